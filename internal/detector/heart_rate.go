package detector

import (
	"wisefido-anxiety/internal/models"
)

// HeartRateAnalysis 心率指标子分析结果
type HeartRateAnalysis struct {
	Abnormal             bool    // 超过 mild 阈值且已持续
	AboveMild            bool    // 当前值超过 mild 阈值（不论是否持续）
	VeryHigh             bool    // 超过 moderate 阈值（用于提升置信度）
	Sustained            bool    // 窗口内合格样本数达到要求
	PercentAboveBaseline float64 // 相对基线的升高比例
}

// analyzeHeartRate 心率子分析（纯函数）
// 异常判定要求两个条件同时成立：
//  1. 当前心率跨过 mild 绝对阈值（baseline + 15）
//  2. 升高已经持续：时间窗口内至少 minSamples 条读数同样跨过 mild 阈值
//
// 样本不足时是"尚未持续"，不是"正常"——下一条读数会重新评估
func analyzeHeartRate(reading models.Reading, recent []models.Reading, thresholds models.Thresholds, minSamples int) HeartRateAnalysis {
	analysis := HeartRateAnalysis{}

	if thresholds.Baseline > 0 {
		analysis.PercentAboveBaseline = (reading.HeartRate - thresholds.Baseline) / thresholds.Baseline
	}

	analysis.AboveMild = reading.HeartRate >= thresholds.Mild
	analysis.VeryHigh = reading.HeartRate >= thresholds.Moderate

	if !analysis.AboveMild {
		return analysis
	}

	// 持续性检查：统计窗口内跨过 mild 阈值的样本数
	qualifying := 0
	for _, r := range recent {
		if r.HeartRate >= thresholds.Mild {
			qualifying++
		}
	}
	analysis.Sustained = qualifying >= minSamples
	analysis.Abnormal = analysis.AboveMild && analysis.Sustained

	return analysis
}

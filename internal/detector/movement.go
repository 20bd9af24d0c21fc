package detector

// MovementAnalysis 运动指标子分析结果
// 运动只用于组合判定和置信度提升，自身从不单独触发报警
type MovementAnalysis struct {
	HasSpikes        bool // 超过尖峰阈值，计入异常指标数
	IndicatesAnxiety bool // 超过焦虑指征阈值，额外 +0.1 置信度
}

// analyzeMovement 运动子分析（纯函数）
// level 为 nil 表示传感器未上报运动数据：
// 视为"无数据"而非"强度为 0"，两个标志都不成立
func analyzeMovement(level *float64, spikeThreshold, anxietyThreshold float64) MovementAnalysis {
	if level == nil {
		return MovementAnalysis{}
	}
	return MovementAnalysis{
		HasSpikes:        *level >= spikeThreshold,
		IndicatesAnxiety: *level >= anxietyThreshold,
	}
}

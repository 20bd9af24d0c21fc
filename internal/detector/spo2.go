package detector

// SpO2Analysis 血氧指标子分析结果
type SpO2Analysis struct {
	Critical bool // 低于危急阈值（<90%），无条件触发
	Low      bool // 低于偏低阈值（<94%），需要用户确认
}

// analyzeSpO2 血氧子分析（纯函数）
// 危急低氧是生命安全问题，压倒其他所有指标
func analyzeSpO2(spo2 float64, criticalThreshold, lowThreshold float64) SpO2Analysis {
	return SpO2Analysis{
		Critical: spo2 < criticalThreshold,
		Low:      spo2 < lowThreshold,
	}
}

// abnormal 血氧是否计入异常指标数
func (a SpO2Analysis) abnormal() bool {
	return a.Critical || a.Low
}

package detector

import (
	"wisefido-anxiety/internal/models"
)

// buildVerdict 组装检测判定
// severity 只在触发时有意义，决定下游冷却时长
func buildVerdict(
	reading models.Reading,
	thresholds models.Thresholds,
	hr HeartRateAnalysis,
	abnormal models.AbnormalMetrics,
	abnormalCount int,
	triggered bool,
	reason models.Reason,
	confidence float64,
	confirm bool,
) models.DetectionVerdict {
	verdict := models.DetectionVerdict{
		Triggered:                triggered,
		Reason:                   reason,
		ConfidenceLevel:          confidence,
		RequiresUserConfirmation: confirm,
		AbnormalMetrics:          abnormal,
		Metrics: models.VerdictMetrics{
			HeartRate:            reading.HeartRate,
			SpO2:                 reading.SpO2,
			MovementLevel:        reading.MovementLevel,
			BodyTemp:             reading.BodyTemp,
			BaselineHR:           thresholds.Baseline,
			PercentAboveBaseline: hr.PercentAboveBaseline,
		},
		Timestamp: reading.Timestamp,
	}

	if triggered {
		verdict.Severity = deriveSeverity(reading, thresholds, hr, reason, abnormalCount)
	}

	return verdict
}

// deriveSeverity 由判定推导严重程度
// 血氧危急和心率进入 critical 档为最高级；
// 多指标组合或心率 severe 档次之；veryHigh 档或血氧偏低居中；其余为 mild
func deriveSeverity(
	reading models.Reading,
	thresholds models.Thresholds,
	hr HeartRateAnalysis,
	reason models.Reason,
	abnormalCount int,
) models.Severity {
	switch {
	case reason == models.ReasonCriticalSpO2 || reading.HeartRate >= thresholds.Critical:
		return models.SeverityCritical
	case abnormalCount >= 2 || reading.HeartRate >= thresholds.Severe:
		return models.SeveritySevere
	case hr.VeryHigh || reason == models.ReasonLowSpO2:
		return models.SeverityModerate
	default:
		return models.SeverityMild
	}
}

package threshold

import (
	"wisefido-anxiety/internal/models"
)

// 心率阈值相对基线的固定偏移（BPM）
// 用绝对偏移而非相对百分比：静息心率偏低或偏高的用户阈值都保持稳定
const (
	ElevatedDeltaBPM = 10
	MildDeltaBPM     = 15
	ModerateDeltaBPM = 25
	SevereDeltaBPM   = 35
	CriticalDeltaBPM = 45
)

// DeriveThresholds 由个人基线推导五档心率绝对阈值
// 纯函数：相同基线永远得到相同阈值
func DeriveThresholds(baseline models.Baseline) models.Thresholds {
	return models.Thresholds{
		Baseline: baseline.RestingHeartRate,
		Elevated: baseline.RestingHeartRate + ElevatedDeltaBPM,
		Mild:     baseline.RestingHeartRate + MildDeltaBPM,
		Moderate: baseline.RestingHeartRate + ModerateDeltaBPM,
		Severe:   baseline.RestingHeartRate + SevereDeltaBPM,
		Critical: baseline.RestingHeartRate + CriticalDeltaBPM,
	}
}

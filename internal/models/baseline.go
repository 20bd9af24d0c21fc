package models

import (
	"time"
)

// Baseline 个人静息心率基线（对应 anxiety_baselines 表）
// 每个 (user, device) 只保留一条有效基线，由外部校准流程写入，核心只读
// 没有基线的用户不做检测（fail-closed）
type Baseline struct {
	UserID           string    `json:"user_id" db:"user_id"`
	DeviceID         string    `json:"device_id" db:"device_id"`
	RestingHeartRate float64   `json:"resting_heart_rate" db:"resting_heart_rate"`
	EstablishedAt    time.Time `json:"established_at" db:"established_at"`
	SampleCount      int       `json:"sample_count" db:"sample_count"`
	Confidence       float64   `json:"confidence" db:"confidence"`
}

// Thresholds 由基线推导出的五档心率绝对阈值（BPM）
type Thresholds struct {
	Baseline float64 `json:"baseline"`
	Elevated float64 `json:"elevated"` // baseline + 10
	Mild     float64 `json:"mild"`     // baseline + 15
	Moderate float64 `json:"moderate"` // baseline + 25
	Severe   float64 `json:"severe"`   // baseline + 35
	Critical float64 `json:"critical"` // baseline + 45
}

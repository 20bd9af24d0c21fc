package models

// Reason 检测判定原因（显式枚举，按优先级从高到低排列）
type Reason string

const (
	ReasonCriticalSpO2    Reason = "criticalSpO2"        // 血氧危急（压倒一切）
	ReasonMultiMetric     Reason = "multiMetric"         // 三项指标同时异常
	ReasonHighHRMovement  Reason = "highHRWithMovement"  // 心率 + 运动尖峰
	ReasonHighHRLowSpO2   Reason = "highHRLowSpO2"       // 心率 + 血氧偏低
	ReasonLowSpO2Movement Reason = "lowSpO2WithMovement" // 血氧偏低 + 运动尖峰
	ReasonHighHR          Reason = "highHR"              // 仅心率持续升高
	ReasonLowSpO2         Reason = "lowSpO2"             // 仅血氧偏低
	ReasonNormal          Reason = "normal"              // 无异常
)

// Severity 报警严重程度（决定冷却时长）
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

// AbnormalMetrics 各指标是否异常
type AbnormalMetrics struct {
	HeartRate bool `json:"heart_rate"`
	SpO2      bool `json:"spo2"`
	Movement  bool `json:"movement"`
}

// VerdictMetrics 判定时的指标快照
type VerdictMetrics struct {
	HeartRate            float64  `json:"heart_rate"`
	SpO2                 float64  `json:"spo2"`
	MovementLevel        *float64 `json:"movement_level,omitempty"`
	BodyTemp             *float64 `json:"body_temp,omitempty"`
	BaselineHR           float64  `json:"baseline_hr"`
	PercentAboveBaseline float64  `json:"percent_above_baseline"`
}

// DetectionVerdict 单次检测评估的判定结果
// 临时对象：核心自身不持久化，确认后的判定由外部协作方落库
type DetectionVerdict struct {
	Triggered                bool            `json:"triggered"`
	Reason                   Reason          `json:"reason"`
	Severity                 Severity        `json:"severity"`
	ConfidenceLevel          float64         `json:"confidence_level"`
	RequiresUserConfirmation bool            `json:"requires_user_confirmation"`
	AbnormalMetrics          AbnormalMetrics `json:"abnormal_metrics"`
	Metrics                  VerdictMetrics  `json:"metrics"`
	Timestamp                int64           `json:"timestamp"`
}

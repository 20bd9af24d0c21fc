package detector

import (
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"
	"wisefido-anxiety/internal/threshold"
	"wisefido-anxiety/internal/window"

	"go.uber.org/zap"
)

// Detector 多参数焦虑检测器
// 对单条读数做一次评估：各指标子分析相互独立，组合策略按优先级取首个命中分支
type Detector struct {
	config  *config.Config
	windows *window.Store
	logger  *zap.Logger
}

// NewDetector 创建检测器
func NewDetector(cfg *config.Config, windows *window.Store, logger *zap.Logger) *Detector {
	return &Detector{
		config:  cfg,
		windows: windows,
		logger:  logger,
	}
}

// Evaluate 评估一条读数，产出检测判定
// 调用前读数必须已写入窗口（持续性检查依赖 RecentWithin）
// 调用方保证 baseline 存在：没有基线的用户不会走到这里（fail-closed）
//
// 组合策略优先级（首个命中生效）：
//  1. 血氧危急         → 触发，置信度 1.0，无需确认
//  2. 两项以上指标异常 → 触发，0.85 + 0.1×(n−2)，无需确认
//     （心率+运动组合额外 +0.1：对这套阈值而言是最强的焦虑信号，
//     但无法与运动性升高区分，见已知歧义）
//  3. 恰好一项异常     → 触发，0.6（心率进入 veryHigh 档则 0.75），需用户确认
//     （仅运动异常不算：运动从不单独触发）
//  4. 其余             → 不触发，reason=normal
//
// 运动强度达到焦虑指征阈值时，无论命中哪个分支都再 +0.1 置信度，上限 1.0
func (d *Detector) Evaluate(reading models.Reading, baseline models.Baseline) models.DetectionVerdict {
	thresholds := threshold.DeriveThresholds(baseline)

	sustainWindow := time.Duration(d.config.Anxiety.Window.SustainSeconds) * time.Second
	now := time.Unix(reading.Timestamp, 0)
	recent := d.windows.RecentWithin(reading.SessionID, sustainWindow, now)

	// 各指标子分析（纯函数，相互独立）
	hr := analyzeHeartRate(reading, recent, thresholds, d.config.Anxiety.Window.MinSustainSamples)
	spo2 := analyzeSpO2(reading.SpO2, d.config.Anxiety.Detection.SpO2Critical, d.config.Anxiety.Detection.SpO2Low)
	movement := analyzeMovement(reading.MovementLevel, d.config.Anxiety.Detection.MovementSpike, d.config.Anxiety.Detection.MovementAnxiety)

	abnormal := models.AbnormalMetrics{
		HeartRate: hr.Abnormal,
		SpO2:      spo2.abnormal(),
		Movement:  movement.HasSpikes,
	}
	abnormalCount := countAbnormal(abnormal)

	var (
		triggered  bool
		reason     = models.ReasonNormal
		confidence float64
		confirm    bool
	)

	switch {
	case spo2.Critical:
		// 生命安全压倒一切
		triggered = true
		reason = models.ReasonCriticalSpO2
		confidence = 1.0

	case abnormalCount >= 2:
		triggered = true
		reason = comboReason(abnormal)
		confidence = 0.85 + 0.1*float64(abnormalCount-2)
		if abnormal.HeartRate && abnormal.Movement {
			confidence += 0.1
		}

	case abnormal.HeartRate:
		triggered = true
		reason = models.ReasonHighHR
		confidence = 0.6
		if hr.VeryHigh {
			confidence = 0.75
		}
		confirm = true

	case abnormal.SpO2:
		triggered = true
		reason = models.ReasonLowSpO2
		confidence = 0.6
		confirm = true
	}

	// 运动焦虑指征的最终置信度提升，所有分支都适用
	if movement.IndicatesAnxiety {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	verdict := buildVerdict(reading, thresholds, hr, abnormal, abnormalCount, triggered, reason, confidence, confirm)

	if triggered {
		d.logger.Debug("Detection triggered",
			zap.String("session_id", reading.SessionID),
			zap.String("reason", string(verdict.Reason)),
			zap.String("severity", string(verdict.Severity)),
			zap.Float64("confidence", verdict.ConfidenceLevel),
			zap.Float64("heart_rate", reading.HeartRate),
			zap.Float64("spo2", reading.SpO2),
		)
	}

	return verdict
}

// comboReason 按异常指标组合确定原因
// 注意：组合含义必须按原因码区分——心率+运动既可能是焦虑也可能是运动，
// 下游按 reason 解读，不做统一处理
func comboReason(abnormal models.AbnormalMetrics) models.Reason {
	switch {
	case abnormal.HeartRate && abnormal.SpO2 && abnormal.Movement:
		return models.ReasonMultiMetric
	case abnormal.HeartRate && abnormal.Movement:
		return models.ReasonHighHRMovement
	case abnormal.HeartRate && abnormal.SpO2:
		return models.ReasonHighHRLowSpO2
	default:
		return models.ReasonLowSpO2Movement
	}
}

func countAbnormal(abnormal models.AbnormalMetrics) int {
	count := 0
	if abnormal.HeartRate {
		count++
	}
	if abnormal.SpO2 {
		count++
	}
	if abnormal.Movement {
		count++
	}
	return count
}

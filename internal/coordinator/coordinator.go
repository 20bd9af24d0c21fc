package coordinator

import (
	"context"
	"sync"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"
	"wisefido-anxiety/internal/window"

	"go.uber.org/zap"
)

// Outcome 单条读数走完管线后的终态
type Outcome string

const (
	OutcomeDiscarded  Outcome = "discarded"  // 未分配 / 无基线 / 判定未触发
	OutcomeSuppressed Outcome = "suppressed" // 触发但处于冷却中
	OutcomeDispatched Outcome = "dispatched" // 触发并已交给推送网关
)

// SessionResolver 会话解析接口（由 registry.SessionRegistry 实现）
type SessionResolver interface {
	ResolveActiveSession(ctx context.Context, deviceID string) (userID, sessionID string, ok bool, err error)
}

// BaselineProvider 基线提供接口（由 threshold.BaselineProvider 实现）
type BaselineProvider interface {
	Get(ctx context.Context, userID, deviceID string) (*models.Baseline, error)
}

// Detector 检测接口（由 detector.Detector 实现）
type Detector interface {
	Evaluate(reading models.Reading, baseline models.Baseline) models.DetectionVerdict
}

// Limiter 冷却限流接口（由 limiter.RateLimiter 实现）
type Limiter interface {
	ShouldDispatch(ctx context.Context, userID string, severity models.Severity, now time.Time) (bool, error)
	RecordDispatch(ctx context.Context, userID string, severity models.Severity, now time.Time) error
}

// AlertSink 报警下发接口（由 notify.PushGatewaySink 实现）
type AlertSink interface {
	Dispatch(ctx context.Context, userID, sessionID string, verdict models.DetectionVerdict) error
}

// AuditSink 审计接口（由 repository.AuditRepository 实现）
type AuditSink interface {
	Record(ctx context.Context, userID, sessionID string, verdict models.DetectionVerdict, dispatched bool) error
}

// VerdictCache 判定缓存接口（由 consumer.CacheManager 实现）
type VerdictCache interface {
	UpdateVerdictCache(ctx context.Context, sessionID string, verdict models.DetectionVerdict) error
}

// Coordinator 调度协调器
// 每条读数走一条直线管线：Routed → Windowed → Evaluated → {Suppressed | Dispatched}
// 任何一级失败都降级为"这轮不报警"，绝不让管线卡死——下一条读数独立重新进入
//
// 推送和审计相对管线异步：推送网关慢不能拖住下一条读数的摄入
type Coordinator struct {
	config    *config.Config
	registry  SessionResolver
	baselines BaselineProvider
	windows   *window.Store
	detector  Detector
	limiter   Limiter
	alerts    AlertSink
	audit     AuditSink
	cache     VerdictCache
	logger    *zap.Logger

	wg sync.WaitGroup
}

// NewCoordinator 创建协调器
func NewCoordinator(
	cfg *config.Config,
	registry SessionResolver,
	baselines BaselineProvider,
	windows *window.Store,
	det Detector,
	lim Limiter,
	alerts AlertSink,
	audit AuditSink,
	cache VerdictCache,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		config:    cfg,
		registry:  registry,
		baselines: baselines,
		windows:   windows,
		detector:  det,
		limiter:   lim,
		alerts:    alerts,
		audit:     audit,
		cache:     cache,
		logger:    logger,
	}
}

// ProcessReading 处理一条设备读数
// 同一会话的读数必须按到达顺序串行调用（窗口淘汰和冷却时间戳都是顺序敏感的），
// 由消费者的按设备分发保证；不同会话可以并发调用
func (c *Coordinator) ProcessReading(ctx context.Context, deviceID string, reading models.Reading) (Outcome, error) {
	// 1. Routed：解析设备归属
	userID, sessionID, ok, err := c.registry.ResolveActiveSession(ctx, deviceID)
	if err != nil {
		return OutcomeDiscarded, err
	}
	if !ok {
		// 设备未分配：无主数据不缓存、不报警
		c.logger.Debug("Reading discarded: device not assigned",
			zap.String("device_id", deviceID),
		)
		return OutcomeDiscarded, nil
	}
	reading.SessionID = sessionID

	// 2. Windowed：写入滑动窗口
	size := c.windows.Append(sessionID, reading)

	// 3. Evaluated：无基线则检测禁用（fail-closed，不猜默认阈值）
	baseline, err := c.baselines.Get(ctx, userID, deviceID)
	if err != nil {
		return OutcomeDiscarded, err
	}
	if baseline == nil {
		c.logger.Debug("Reading discarded: no baseline for user",
			zap.String("user_id", userID),
			zap.String("device_id", deviceID),
		)
		return OutcomeDiscarded, nil
	}

	verdict := c.detector.Evaluate(reading, *baseline)
	if !verdict.Triggered {
		return OutcomeDiscarded, nil
	}

	c.logger.Info("Anxiety pattern detected",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.String("reason", string(verdict.Reason)),
		zap.String("severity", string(verdict.Severity)),
		zap.Float64("confidence", verdict.ConfidenceLevel),
		zap.Int("window_size", size),
	)

	// 触发的判定缓存给聚合端读取（尽力而为）
	if err := c.cache.UpdateVerdictCache(ctx, sessionID, verdict); err != nil {
		c.logger.Warn("Failed to update verdict cache",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	// 4. 冷却判断
	now := time.Unix(reading.Timestamp, 0)
	allowed, err := c.limiter.ShouldDispatch(ctx, userID, verdict.Severity, now)
	if err != nil {
		// 限流器故障按冷却中处理：这轮不报警
		c.logger.Error("Rate limiter failure, suppressing dispatch",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		allowed = false
	}

	if !allowed {
		c.recordAuditAsync(userID, sessionID, verdict, false)
		return OutcomeSuppressed, nil
	}

	// 5. Dispatched：先记录时间戳再异步下发
	// 先记录保证同一会话后续读数看到的冷却状态是有序的
	if err := c.limiter.RecordDispatch(ctx, userID, verdict.Severity, now); err != nil {
		c.logger.Error("Failed to record dispatch timestamp",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	c.dispatchAsync(userID, sessionID, verdict)
	c.recordAuditAsync(userID, sessionID, verdict, true)

	return OutcomeDispatched, nil
}

// dispatchAsync 异步下发报警（有界超时，失败记日志后丢弃，不在下一条读数时复活）
func (c *Coordinator) dispatchAsync(userID, sessionID string, verdict models.DetectionVerdict) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		timeout := time.Duration(c.config.Anxiety.Alert.TimeoutSeconds) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := c.alerts.Dispatch(ctx, userID, sessionID, verdict); err != nil {
			c.logger.Error("Failed to dispatch alert",
				zap.String("user_id", userID),
				zap.String("session_id", sessionID),
				zap.String("severity", string(verdict.Severity)),
				zap.Error(err),
			)
		}
	}()
}

// recordAuditAsync 异步写审计（fire-and-forget，失败绝不影响管线）
func (c *Coordinator) recordAuditAsync(userID, sessionID string, verdict models.DetectionVerdict, dispatched bool) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := c.audit.Record(ctx, userID, sessionID, verdict, dispatched); err != nil {
			c.logger.Warn("Failed to record audit event",
				zap.String("user_id", userID),
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}()
}

// Wait 等待在途的异步下发和审计完成（优雅关闭时调用）
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

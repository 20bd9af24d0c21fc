package limiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RateLimiter 报警冷却限流器
// 每个 (user, severity) 一个 Redis 键，值为上次下发的 Unix 时间戳，TTL 即冷却时长
// 键相互独立：不同用户、不同严重程度并发读写互不影响，没有全局锁
//
// 冷却按严重程度分级，越严重冷却越短——紧急状态不能被长时间压制
// 被压制的候选判定直接丢弃（most-recent-wins），不排队不重试
type RateLimiter struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewRateLimiter 创建限流器
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// ShouldDispatch 判断该 (user, severity) 当前是否允许下发
// 返回 true 后调用方必须随即调用 RecordDispatch 记录时间戳
// Redis 故障时返回 false：宁可这轮不报警，下一条读数会重新评估
func (l *RateLimiter) ShouldDispatch(ctx context.Context, userID string, severity models.Severity, now time.Time) (bool, error) {
	key := l.cooldownKey(userID, severity)

	val, err := l.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		// 无记录或冷却已过期（TTL 到期键自动消失）
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cooldown entry: %w", err)
	}

	lastDispatch, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// 键内容损坏：按冷却中处理并记日志，TTL 到期后自愈
		l.logger.Error("Corrupt cooldown entry",
			zap.String("key", key),
			zap.String("value", val),
		)
		return false, nil
	}

	cooldown := l.cooldownFor(severity)
	if now.Sub(time.Unix(lastDispatch, 0)) >= cooldown {
		return true, nil
	}

	return false, nil
}

// RecordDispatch 记录一次成功下发（覆盖写，TTL = 冷却时长）
func (l *RateLimiter) RecordDispatch(ctx context.Context, userID string, severity models.Severity, now time.Time) error {
	key := l.cooldownKey(userID, severity)
	cooldown := l.cooldownFor(severity)

	if err := l.redisClient.Set(ctx, key, strconv.FormatInt(now.Unix(), 10), cooldown).Err(); err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}

	return nil
}

// cooldownKey 构建冷却键，如 "anxiety:cooldown:{user}:{severity}"
func (l *RateLimiter) cooldownKey(userID string, severity models.Severity) string {
	return fmt.Sprintf("%s%s:%s",
		l.config.Anxiety.Cache.CooldownKeyPrefix,
		userID,
		severity,
	)
}

// cooldownFor 按严重程度返回冷却时长
func (l *RateLimiter) cooldownFor(severity models.Severity) time.Duration {
	switch severity {
	case models.SeverityCritical:
		return time.Duration(l.config.Anxiety.Cooldown.CriticalSeconds) * time.Second
	case models.SeveritySevere:
		return time.Duration(l.config.Anxiety.Cooldown.SevereSeconds) * time.Second
	case models.SeverityModerate:
		return time.Duration(l.config.Anxiety.Cooldown.ModerateSeconds) * time.Second
	default:
		return time.Duration(l.config.Anxiety.Cooldown.MildSeconds) * time.Second
	}
}

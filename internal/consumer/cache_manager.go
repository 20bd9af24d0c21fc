package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheManager 判定结果缓存管理器
// 触发的判定写入 Redis（带 TTL），供看板/聚合端读取最近一次检测状态
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// UpdateVerdictCache 写入会话最近一次触发的判定
func (c *CacheManager) UpdateVerdictCache(ctx context.Context, sessionID string, verdict models.DetectionVerdict) error {
	key := c.verdictKey(sessionID)

	jsonData, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}

	ttl := time.Duration(c.config.Anxiety.Cache.VerdictTTL) * time.Second
	if err := c.redisClient.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set verdict cache: %w", err)
	}

	c.logger.Debug("Updated verdict cache",
		zap.String("session_id", sessionID),
		zap.String("key", key),
		zap.String("reason", string(verdict.Reason)),
	)

	return nil
}

// GetVerdict 读取会话最近一次触发的判定
func (c *CacheManager) GetVerdict(ctx context.Context, sessionID string) (*models.DetectionVerdict, error) {
	key := c.verdictKey(sessionID)

	val, err := c.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("verdict not found for session: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get verdict cache: %w", err)
	}

	var verdict models.DetectionVerdict
	if err := json.Unmarshal([]byte(val), &verdict); err != nil {
		return nil, fmt.Errorf("failed to unmarshal verdict: %w", err)
	}

	return &verdict, nil
}

// verdictKey 构建判定缓存键，如 "anxiety:session:{session_id}:verdict"
func (c *CacheManager) verdictKey(sessionID string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Anxiety.Cache.VerdictKeyPrefix,
		sessionID,
		c.config.Anxiety.Cache.VerdictSuffix,
	)
}

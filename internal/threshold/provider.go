package threshold

import (
	"context"
	"sync"
	"time"

	"wisefido-anxiety/internal/models"

	"go.uber.org/zap"
)

// BaselineGetter 基线读取接口（由 repository.BaselineRepository 实现）
type BaselineGetter interface {
	GetBaseline(ctx context.Context, userID, deviceID string) (*models.Baseline, error)
}

// baselineCacheEntry 基线缓存条目
// nil baseline（用户没有基线）同样缓存，避免每条读数都查库
type baselineCacheEntry struct {
	baseline  *models.Baseline
	fetchedAt time.Time
}

// BaselineProvider 带短 TTL 缓存的基线提供者
// 基线写入很少、读取在每次评估上，几秒陈旧只会让新阈值晚几秒生效
type BaselineProvider struct {
	repo   BaselineGetter
	ttl    time.Duration
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]baselineCacheEntry
}

// NewBaselineProvider 创建基线提供者
func NewBaselineProvider(repo BaselineGetter, ttl time.Duration, logger *zap.Logger) *BaselineProvider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &BaselineProvider{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		cache:  make(map[string]baselineCacheEntry),
	}
}

// Get 获取 (user, device) 的基线，不存在时返回 (nil, nil)
func (p *BaselineProvider) Get(ctx context.Context, userID, deviceID string) (*models.Baseline, error) {
	key := userID + ":" + deviceID

	p.mu.RLock()
	entry, found := p.cache[key]
	p.mu.RUnlock()

	if found && time.Since(entry.fetchedAt) < p.ttl {
		return entry.baseline, nil
	}

	baseline, err := p.repo.GetBaseline(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[key] = baselineCacheEntry{
		baseline:  baseline,
		fetchedAt: time.Now(),
	}
	p.mu.Unlock()

	if baseline == nil {
		p.logger.Debug("No baseline for user, detection disabled",
			zap.String("user_id", userID),
			zap.String("device_id", deviceID),
		)
	}

	return baseline, nil
}

package limiter

import (
	"context"
	"testing"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestLimiter(t *testing.T) (*miniredis.Miniredis, *RateLimiter) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Anxiety.Cache.CooldownKeyPrefix = "anxiety:cooldown:"
	cfg.Anxiety.Cooldown.MildSeconds = 300
	cfg.Anxiety.Cooldown.ModerateSeconds = 180
	cfg.Anxiety.Cooldown.SevereSeconds = 60
	cfg.Anxiety.Cooldown.CriticalSeconds = 30

	return mr, NewRateLimiter(cfg, redisClient, zap.NewNop())
}

func TestRateLimiter_FirstDispatchAllowed(t *testing.T) {
	_, limiter := setupTestLimiter(t)

	allowed, err := limiter.ShouldDispatch(context.Background(), "user-1", models.SeveritySevere, time.Now())
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_SecondDispatchWithinCooldownSuppressed(t *testing.T) {
	// 同一 (user, severity) 冷却期内的两次询问必须是 (true, false)，不可能 (true, true)
	_, limiter := setupTestLimiter(t)
	ctx := context.Background()
	now := time.Now()

	allowed, err := limiter.ShouldDispatch(ctx, "user-1", models.SeveritySevere, now)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, limiter.RecordDispatch(ctx, "user-1", models.SeveritySevere, now))

	allowed, err = limiter.ShouldDispatch(ctx, "user-1", models.SeveritySevere, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRateLimiter_DispatchAllowedAfterCooldownExpires(t *testing.T) {
	// severe 冷却 60 秒：T=0 下发，T=30s 压制，T=61s 放行
	mr, limiter := setupTestLimiter(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, limiter.RecordDispatch(ctx, "user-1", models.SeveritySevere, now))

	allowed, err := limiter.ShouldDispatch(ctx, "user-1", models.SeveritySevere, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, allowed)

	// TTL 到期后键消失
	mr.FastForward(61 * time.Second)

	allowed, err = limiter.ShouldDispatch(ctx, "user-1", models.SeveritySevere, now.Add(61*time.Second))
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_SeveritiesAreIndependent(t *testing.T) {
	// (user, severity) 维度独立：severe 冷却中不影响 critical
	_, limiter := setupTestLimiter(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, limiter.RecordDispatch(ctx, "user-1", models.SeveritySevere, now))

	allowed, err := limiter.ShouldDispatch(ctx, "user-1", models.SeverityCritical, now)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_UsersAreIndependent(t *testing.T) {
	_, limiter := setupTestLimiter(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, limiter.RecordDispatch(ctx, "user-1", models.SeverityMild, now))

	allowed, err := limiter.ShouldDispatch(ctx, "user-2", models.SeverityMild, now)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_CooldownScalesWithSeverity(t *testing.T) {
	// 越严重冷却越短：critical 30 秒后放行，mild 同一时刻仍在冷却
	mr, limiter := setupTestLimiter(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, limiter.RecordDispatch(ctx, "user-1", models.SeverityCritical, now))
	require.NoError(t, limiter.RecordDispatch(ctx, "user-1", models.SeverityMild, now))

	mr.FastForward(31 * time.Second)
	later := now.Add(31 * time.Second)

	allowed, err := limiter.ShouldDispatch(ctx, "user-1", models.SeverityCritical, later)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.ShouldDispatch(ctx, "user-1", models.SeverityMild, later)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRateLimiter_CorruptEntryTreatedAsCoolingDown(t *testing.T) {
	mr, limiter := setupTestLimiter(t)
	ctx := context.Background()

	// 键内容损坏：按冷却中处理，TTL 到期自愈
	require.NoError(t, mr.Set("anxiety:cooldown:user-1:severe", "garbage"))

	allowed, err := limiter.ShouldDispatch(ctx, "user-1", models.SeveritySevere, time.Now())
	require.NoError(t, err)
	assert.False(t, allowed)
}

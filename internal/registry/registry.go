package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"
	"wisefido-anxiety/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WindowDropper 会话结束时丢弃其滑动窗口（由 window.Store 实现）
type WindowDropper interface {
	Drop(sessionID string)
}

// assignmentCacheEntry 设备分配缓存条目
// nil assignment 也缓存（未分配设备的读数很频繁，避免每条都打数据库）
type assignmentCacheEntry struct {
	assignment *models.Assignment
	fetchedAt  time.Time
}

// SessionRegistry 会话注册表
// 负责把设备读数解析到 (user, session)，并维护"单活跃会话"不变式
// 分配记录短 TTL 缓存，几秒的陈旧性可接受
type SessionRegistry struct {
	config         *config.Config
	assignmentRepo *repository.AssignmentRepository
	sessionRepo    *repository.SessionRepository
	redisClient    *redis.Client
	windows        WindowDropper
	logger         *zap.Logger

	mu    sync.RWMutex
	cache map[string]assignmentCacheEntry
}

// NewSessionRegistry 创建会话注册表
func NewSessionRegistry(
	cfg *config.Config,
	assignmentRepo *repository.AssignmentRepository,
	sessionRepo *repository.SessionRepository,
	redisClient *redis.Client,
	windows WindowDropper,
	logger *zap.Logger,
) *SessionRegistry {
	return &SessionRegistry{
		config:         cfg,
		assignmentRepo: assignmentRepo,
		sessionRepo:    sessionRepo,
		redisClient:    redisClient,
		windows:        windows,
		logger:         logger,
		cache:          make(map[string]assignmentCacheEntry),
	}
}

// ResolveActiveSession 解析设备当前归属的 (user, session)
// 设备未分配或分配已释放时返回 ok=false：这是正常的"丢弃读数"路径，不是错误
func (r *SessionRegistry) ResolveActiveSession(ctx context.Context, deviceID string) (userID, sessionID string, ok bool, err error) {
	assignment, err := r.getAssignmentCached(ctx, deviceID)
	if err != nil {
		return "", "", false, err
	}

	if assignment == nil || assignment.Status != models.AssignmentStatusActive {
		return "", "", false, nil
	}

	return assignment.AssignedUserID, assignment.ActiveSessionID, true, nil
}

// StartSession 为用户在指定设备上开启新会话
// 先把该用户所有旧的 active 会话置为 completed（保证单活跃不变式，重复调用幂等），
// 再创建新会话并绑定设备分配
func (r *SessionRegistry) StartSession(ctx context.Context, userID, deviceID string) (string, error) {
	if userID == "" || deviceID == "" {
		return "", fmt.Errorf("user_id and device_id are required")
	}

	// 1. 结束用户已有的 active 会话
	actives, err := r.sessionRepo.GetActiveSessionsByUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get active sessions: %w", err)
	}

	if len(actives) > 1 {
		// 数据完整性问题：同一用户出现多个 active 会话
		// 确定性修复：全部结束（最新的一个本来也要让位给新会话）
		r.logger.Error("Invariant violation: multiple active sessions for user",
			zap.String("user_id", userID),
			zap.Int("active_count", len(actives)),
		)
	}

	now := time.Now()
	for _, s := range actives {
		if err := r.sessionRepo.CompleteSession(ctx, s.SessionID, now); err != nil {
			return "", fmt.Errorf("failed to complete prior session: %w", err)
		}
		// 旧会话的窗口历史随会话一起失效
		r.windows.Drop(s.SessionID)
	}

	// 2. 创建新会话
	sessionID := uuid.New().String()
	session := &models.Session{
		SessionID: sessionID,
		UserID:    userID,
		DeviceID:  deviceID,
		StartedAt: now,
		Status:    models.SessionStatusActive,
	}
	if err := r.sessionRepo.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	// 3. 绑定设备分配
	if err := r.assignmentRepo.BindAssignment(ctx, deviceID, userID, sessionID); err != nil {
		return "", fmt.Errorf("failed to bind assignment: %w", err)
	}

	// 4. 本地缓存失效并广播变更
	r.invalidate(deviceID)
	r.publishAssignmentChanged(ctx, deviceID)

	r.logger.Info("Session started",
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
		zap.String("session_id", sessionID),
	)

	return sessionID, nil
}

// EndSession 结束会话（已完成的会话再次调用是 no-op）
func (r *SessionRegistry) EndSession(ctx context.Context, sessionID string) error {
	session, err := r.sessionRepo.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	if err := r.sessionRepo.CompleteSession(ctx, sessionID, time.Now()); err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	r.windows.Drop(sessionID)

	// 分配仍指向该会话时一并释放
	assignment, err := r.assignmentRepo.GetAssignment(ctx, session.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to get assignment: %w", err)
	}
	if assignment != nil && assignment.ActiveSessionID == sessionID {
		released, err := r.assignmentRepo.ReleaseAssignment(ctx, session.DeviceID, assignment.Version)
		if err != nil {
			return fmt.Errorf("failed to release assignment: %w", err)
		}
		if !released {
			// version 不匹配：有并发修改，分配已被别人接管，保持现状即可
			r.logger.Warn("Assignment release skipped due to concurrent update",
				zap.String("device_id", session.DeviceID),
				zap.String("session_id", sessionID),
			)
		}
	}

	r.invalidate(session.DeviceID)
	r.publishAssignmentChanged(ctx, session.DeviceID)

	r.logger.Info("Session ended",
		zap.String("session_id", sessionID),
		zap.String("device_id", session.DeviceID),
	)

	return nil
}

// WatchAssignments 订阅分配变更通知，收到后使对应设备的缓存失效
// 外部管理端绑定/释放设备时通过同一频道广播 device_id
func (r *SessionRegistry) WatchAssignments(ctx context.Context) {
	channel := r.config.Anxiety.Cache.AssignmentChannel
	pubsub := r.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	r.logger.Info("Watching assignment changes",
		zap.String("channel", channel),
	)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Assignment watcher stopped")
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			r.invalidate(msg.Payload)
			r.logger.Debug("Assignment cache invalidated",
				zap.String("device_id", msg.Payload),
			)
		}
	}
}

// getAssignmentCached 读取设备分配（带短 TTL 缓存）
func (r *SessionRegistry) getAssignmentCached(ctx context.Context, deviceID string) (*models.Assignment, error) {
	ttl := time.Duration(r.config.Anxiety.Cache.AssignmentTTLSeconds) * time.Second

	r.mu.RLock()
	entry, found := r.cache[deviceID]
	r.mu.RUnlock()

	if found && time.Since(entry.fetchedAt) < ttl {
		return entry.assignment, nil
	}

	assignment, err := r.assignmentRepo.GetAssignment(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[deviceID] = assignmentCacheEntry{
		assignment: assignment,
		fetchedAt:  time.Now(),
	}
	r.mu.Unlock()

	return assignment, nil
}

// invalidate 使设备的分配缓存失效
func (r *SessionRegistry) invalidate(deviceID string) {
	r.mu.Lock()
	delete(r.cache, deviceID)
	r.mu.Unlock()
}

// publishAssignmentChanged 广播分配变更（失败只记日志）
func (r *SessionRegistry) publishAssignmentChanged(ctx context.Context, deviceID string) {
	if err := r.redisClient.Publish(ctx, r.config.Anxiety.Cache.AssignmentChannel, deviceID).Err(); err != nil {
		r.logger.Warn("Failed to publish assignment change",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}
}

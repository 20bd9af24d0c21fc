package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-anxiety/internal/models"

	"go.uber.org/zap"
)

// SessionRepository 佩戴会话仓库
type SessionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSessionRepository 创建会话仓库
func NewSessionRepository(db *sql.DB, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// GetSession 根据 session_id 获取会话
func (r *SessionRepository) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	query := `
		SELECT session_id, user_id, device_id, started_at, ended_at, status
		FROM wear_sessions
		WHERE session_id = $1
	`

	var session models.Session
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.SessionID,
		&session.UserID,
		&session.DeviceID,
		&session.StartedAt,
		&session.EndedAt,
		&session.Status,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// GetActiveSessionsByUser 获取用户当前所有 active 会话（按开始时间倒序）
// 正常情况下最多一条；多于一条是数据完整性问题，由调用方修复
func (r *SessionRepository) GetActiveSessionsByUser(ctx context.Context, userID string) ([]models.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT session_id, user_id, device_id, started_at, ended_at, status
		FROM wear_sessions
		WHERE user_id = $1 AND status = $2
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, models.SessionStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var session models.Session
		if err := rows.Scan(
			&session.SessionID,
			&session.UserID,
			&session.DeviceID,
			&session.StartedAt,
			&session.EndedAt,
			&session.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

// CreateSession 创建新的 active 会话
func (r *SessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	if session.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wear_sessions (session_id, user_id, device_id, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`, session.SessionID, session.UserID, session.DeviceID, session.StartedAt, models.SessionStatusActive)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// CompleteSession 将会话标记为 completed 并写入结束时间
// 只更新仍为 active 的行，已完成的会话再次调用是 no-op，不是错误
func (r *SessionRepository) CompleteSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE wear_sessions
		SET status = $1, ended_at = $2
		WHERE session_id = $3 AND status = $4
	`, models.SessionStatusCompleted, endedAt, sessionID, models.SessionStatusActive)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}

	return nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-anxiety/internal/models"

	"go.uber.org/zap"
)

// AssignmentRepository 设备分配仓库
// 分配记录带 version 字段，更新走 compare-and-swap，
// 保证"同一设备最多一条非 released 分配"在并发下仍然成立
type AssignmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAssignmentRepository 创建设备分配仓库
func NewAssignmentRepository(db *sql.DB, logger *zap.Logger) *AssignmentRepository {
	return &AssignmentRepository{
		db:     db,
		logger: logger,
	}
}

// GetAssignment 获取设备当前的非 released 分配
// 不存在时返回 (nil, nil)：未分配的设备读数直接丢弃，不是错误
func (r *AssignmentRepository) GetAssignment(ctx context.Context, deviceID string) (*models.Assignment, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT device_id, assigned_user_id, active_session_id, assigned_at, status, version
		FROM device_assignments
		WHERE device_id = $1 AND status = $2
	`

	var assignment models.Assignment
	err := r.db.QueryRowContext(ctx, query, deviceID, models.AssignmentStatusActive).Scan(
		&assignment.DeviceID,
		&assignment.AssignedUserID,
		&assignment.ActiveSessionID,
		&assignment.AssignedAt,
		&assignment.Status,
		&assignment.Version,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return &assignment, nil
}

// BindAssignment 将设备绑定到用户和会话
// 先释放设备已有的分配，再插入新分配（version 从 1 开始）
func (r *AssignmentRepository) BindAssignment(ctx context.Context, deviceID, userID, sessionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. 释放设备上已有的分配
	_, err = tx.ExecContext(ctx, `
		UPDATE device_assignments
		SET status = $1, version = version + 1
		WHERE device_id = $2 AND status = $3
	`, models.AssignmentStatusReleased, deviceID, models.AssignmentStatusActive)
	if err != nil {
		return fmt.Errorf("failed to release previous assignment: %w", err)
	}

	// 2. 插入新分配
	_, err = tx.ExecContext(ctx, `
		INSERT INTO device_assignments (device_id, assigned_user_id, active_session_id, assigned_at, status, version)
		VALUES ($1, $2, $3, $4, $5, 1)
	`, deviceID, userID, sessionID, time.Now(), models.AssignmentStatusActive)
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ReleaseAssignment 释放设备分配（compare-and-swap）
// version 不匹配说明有并发修改，返回 false，调用方重新读取后重试
func (r *AssignmentRepository) ReleaseAssignment(ctx context.Context, deviceID string, version int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE device_assignments
		SET status = $1, version = version + 1
		WHERE device_id = $2 AND status = $3 AND version = $4
	`, models.AssignmentStatusReleased, deviceID, models.AssignmentStatusActive, version)
	if err != nil {
		return false, fmt.Errorf("failed to release assignment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

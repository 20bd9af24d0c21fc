package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-anxiety/internal/models"

	"go.uber.org/zap"
)

// BaselineRepository 个人基线仓库（只读，基线由外部校准流程写入）
type BaselineRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBaselineRepository 创建基线仓库
func NewBaselineRepository(db *sql.DB, logger *zap.Logger) *BaselineRepository {
	return &BaselineRepository{
		db:     db,
		logger: logger,
	}
}

// GetBaseline 获取 (user, device) 的有效基线
// 不存在时返回 (nil, nil)：没有基线意味着该用户检测被禁用，不是错误
func (r *BaselineRepository) GetBaseline(ctx context.Context, userID, deviceID string) (*models.Baseline, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT user_id, device_id, resting_heart_rate, established_at, sample_count, confidence
		FROM anxiety_baselines
		WHERE user_id = $1 AND device_id = $2
	`

	var baseline models.Baseline
	err := r.db.QueryRowContext(ctx, query, userID, deviceID).Scan(
		&baseline.UserID,
		&baseline.DeviceID,
		&baseline.RestingHeartRate,
		&baseline.EstablishedAt,
		&baseline.SampleCount,
		&baseline.Confidence,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}

	return &baseline, nil
}

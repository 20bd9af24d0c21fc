package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-anxiety/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditRepository 检测审计仓库（对应 anxiety_audit_events 表）
// 下游分析与合规用途，fire-and-forget：写入失败只记日志，不影响检测管线
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository 创建审计仓库
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Record 记录一次触发的判定及其是否被实际下发
func (r *AuditRepository) Record(ctx context.Context, userID, sessionID string, verdict models.DetectionVerdict, dispatched bool) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}

	verdictJSON, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO anxiety_audit_events (event_id, user_id, session_id, reason, severity, confidence, verdict, dispatched, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.New().String(),
		userID,
		sessionID,
		string(verdict.Reason),
		string(verdict.Severity),
		verdict.ConfidenceLevel,
		string(verdictJSON),
		dispatched,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

package notify

import (
	"context"
	"fmt"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// AlertPayload 推送网关请求体
// 核心只传判定本身，消息文案、渠道、颜色由网关负责渲染
type AlertPayload struct {
	UserID    string                  `json:"user_id"`
	SessionID string                  `json:"session_id"`
	Verdict   models.DetectionVerdict `json:"verdict"`
}

// PushGatewaySink 推送网关客户端（AlertSink 实现）
// 超时和重试次数都有界：推送失败记日志后丢弃，绝不无限重试
type PushGatewaySink struct {
	client *resty.Client
	logger *zap.Logger
}

// NewPushGatewaySink 创建推送网关客户端
func NewPushGatewaySink(cfg *config.Config, logger *zap.Logger) *PushGatewaySink {
	client := resty.New().
		SetBaseURL(cfg.Anxiety.Alert.GatewayURL).
		SetTimeout(time.Duration(cfg.Anxiety.Alert.TimeoutSeconds) * time.Second).
		SetRetryCount(cfg.Anxiety.Alert.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &PushGatewaySink{
		client: client,
		logger: logger,
	}
}

// Dispatch 下发一条报警判定
func (s *PushGatewaySink) Dispatch(ctx context.Context, userID, sessionID string, verdict models.DetectionVerdict) error {
	payload := AlertPayload{
		UserID:    userID,
		SessionID: sessionID,
		Verdict:   verdict,
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/alerts")
	if err != nil {
		return fmt.Errorf("failed to call push gateway: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("push gateway returned status %d: %s", resp.StatusCode(), resp.String())
	}

	s.logger.Info("Alert dispatched",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.String("reason", string(verdict.Reason)),
		zap.String("severity", string(verdict.Severity)),
	)

	return nil
}

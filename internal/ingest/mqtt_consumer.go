package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	mqttcommon "wisefido-anxiety/internal/common/mqtt"
	rediscommon "wisefido-anxiety/internal/common/redis"
)

// gatewayPayload 可穿戴网关上报的原始消息体
// movement/body_temp 可能缺失：老固件不带运动传感器
type gatewayPayload struct {
	Timestamp     int64    `json:"timestamp"`
	HeartRate     float64  `json:"heart_rate"`
	SpO2          float64  `json:"spo2"`
	MovementLevel *float64 `json:"movement_level,omitempty"`
	BodyTemp      *float64 `json:"body_temp,omitempty"`
}

// MQTTConsumer MQTT消息消费者（接入桥：网关主题 → Redis Streams）
type MQTTConsumer struct {
	config      *config.Config
	mqttClient  *mqttcommon.Client
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqttcommon.Client,
	redisClient *redis.Client,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:      cfg,
		mqttClient:  mqttClient,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Start 启动消费者
func (c *MQTTConsumer) Start(ctx context.Context) error {
	topic := c.config.Anxiety.Ingest.Topic
	if err := c.mqttClient.Subscribe(topic, c.config.MQTT.QoS, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to vitals topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", topic),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.config.Anxiety.Ingest.Topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 处理MQTT消息
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	// 1. 从主题中提取设备标识符
	// 主题格式: wearable/{device_id}/vitals
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	deviceID := parts[1]

	// 2. 解析消息
	var data gatewayPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		c.logger.Error("Failed to unmarshal MQTT message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	// 3. 构建标准化读数
	reading := models.StreamReading{
		DeviceID:      deviceID,
		Timestamp:     data.Timestamp,
		HeartRate:     data.HeartRate,
		SpO2:          data.SpO2,
		MovementLevel: data.MovementLevel,
		BodyTemp:      data.BodyTemp,
	}

	// 4. 发布到 Redis Streams
	stream := c.config.Anxiety.Ingest.Stream
	streamID, err := rediscommon.PublishJSONToStream(context.Background(), c.redisClient, stream, reading)
	if err != nil {
		c.logger.Error("Failed to publish to Redis Streams",
			zap.String("stream", stream),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish to stream: %w", err)
	}

	c.logger.Debug("Reading published to stream",
		zap.String("device_id", deviceID),
		zap.String("stream_id", streamID),
	)

	return nil
}

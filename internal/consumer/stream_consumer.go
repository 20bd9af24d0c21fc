package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/coordinator"
	"wisefido-anxiety/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "wisefido-anxiety/internal/common/redis"
)

// Metrics 监控指标
type Metrics struct {
	mu sync.RWMutex

	// 消息处理统计
	MessagesProcessed int64 // 处理的消息总数
	MessagesFailed    int64 // 处理失败的消息数

	// 管线终态统计
	ReadingsDiscarded  int64 // 丢弃（未分配/无基线/未触发）
	ReadingsSuppressed int64 // 冷却压制
	ReadingsDispatched int64 // 实际下发

	// 错误分类统计
	ErrorsParse   int64 // 解析错误
	ErrorsProcess int64 // 管线处理错误

	// 性能指标
	LastProcessTime time.Time // 最后处理时间
	StartTime       time.Time // 启动时间
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		MessagesProcessed:  m.MessagesProcessed,
		MessagesFailed:     m.MessagesFailed,
		ReadingsDiscarded:  m.ReadingsDiscarded,
		ReadingsSuppressed: m.ReadingsSuppressed,
		ReadingsDispatched: m.ReadingsDispatched,
		ErrorsParse:        m.ErrorsParse,
		ErrorsProcess:      m.ErrorsProcess,
		LastProcessTime:    m.LastProcessTime,
		StartTime:          m.StartTime,
	}
}

// recordOutcome 记录一次管线终态
func (m *Metrics) recordOutcome(outcome coordinator.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesProcessed++
	m.LastProcessTime = time.Now()
	switch outcome {
	case coordinator.OutcomeDispatched:
		m.ReadingsDispatched++
	case coordinator.OutcomeSuppressed:
		m.ReadingsSuppressed++
	default:
		m.ReadingsDiscarded++
	}
}

// recordFailure 记录一次处理失败
func (m *Metrics) recordFailure(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesFailed++
	switch errorType {
	case "parse":
		m.ErrorsParse++
	case "process":
		m.ErrorsProcess++
	}
}

// Processor 读数处理接口（由 coordinator.Coordinator 实现）
type Processor interface {
	ProcessReading(ctx context.Context, deviceID string, reading models.Reading) (coordinator.Outcome, error)
}

// readingJob 分发给设备 worker 的任务
type readingJob struct {
	messageID string
	deviceID  string
	reading   models.Reading
}

// StreamConsumer Redis Streams 读数消费者
// 按设备分发到独立 worker：同一设备（即同一会话）的读数按到达顺序串行处理，
// 不同设备完全并行——窗口淘汰和冷却时间戳都是顺序敏感的
type StreamConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	processor   Processor
	logger      *zap.Logger
	metrics     *Metrics

	mu      sync.Mutex
	workers map[string]chan readingJob
	wg      sync.WaitGroup
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	processor Processor,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		processor:   processor,
		logger:      logger,
		metrics:     &Metrics{StartTime: time.Now()},
		workers:     make(map[string]chan readingJob),
	}
}

// Metrics 返回指标
func (c *StreamConsumer) Metrics() *Metrics {
	return c.metrics
}

// Start 启动消费循环（阻塞直到 ctx 取消）
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream := c.config.Anxiety.Ingest.Stream
	group := c.config.Anxiety.Ingest.Group
	consumerName := c.config.Anxiety.Ingest.Consumer

	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, stream, group); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", stream),
		zap.String("group", group),
		zap.String("consumer", consumerName),
	)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.logger.Info("Stream consumer stopped")
			return nil
		default:
		}

		messages, err := rediscommon.ReadFromStream(ctx, c.redisClient, stream, group, consumerName, 32)
		if err != nil {
			if ctx.Err() != nil {
				c.shutdown()
				return nil
			}
			c.logger.Error("Failed to read from stream",
				zap.String("stream", stream),
				zap.Error(err),
			)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			c.route(ctx, msg)
		}
	}
}

// route 解析消息并分发到对应设备的 worker
func (c *StreamConsumer) route(ctx context.Context, msg rediscommon.StreamMessage) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		c.metrics.recordFailure("parse")
		c.logger.Error("Stream message missing data field",
			zap.String("message_id", msg.ID),
		)
		c.ack(ctx, msg.ID)
		return
	}

	var streamReading models.StreamReading
	if err := json.Unmarshal([]byte(data), &streamReading); err != nil {
		c.metrics.recordFailure("parse")
		c.logger.Error("Failed to unmarshal stream reading",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		c.ack(ctx, msg.ID)
		return
	}

	if streamReading.DeviceID == "" {
		c.metrics.recordFailure("parse")
		c.logger.Error("Stream reading missing device_id",
			zap.String("message_id", msg.ID),
		)
		c.ack(ctx, msg.ID)
		return
	}

	job := readingJob{
		messageID: msg.ID,
		deviceID:  streamReading.DeviceID,
		reading:   streamReading.ToReading(),
	}

	// 阻塞发送：worker 队列满时对整条摄入施加背压，
	// 好过为单个慢设备无界囤积内存
	select {
	case <-ctx.Done():
	case c.workerFor(ctx, streamReading.DeviceID) <- job:
	}
}

// workerFor 获取（或惰性创建）设备的串行 worker
func (c *StreamConsumer) workerFor(ctx context.Context, deviceID string) chan readingJob {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, found := c.workers[deviceID]; found {
		return ch
	}

	ch := make(chan readingJob, 64)
	c.workers[deviceID] = ch

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job, open := <-ch:
				if !open {
					return
				}
				c.process(ctx, job)
			}
		}
	}()

	return ch
}

// process 处理单条读数并 ACK
func (c *StreamConsumer) process(ctx context.Context, job readingJob) {
	outcome, err := c.processor.ProcessReading(ctx, job.deviceID, job.reading)
	if err != nil {
		c.metrics.recordFailure("process")
		c.logger.Error("Failed to process reading",
			zap.String("device_id", job.deviceID),
			zap.String("message_id", job.messageID),
			zap.Error(err),
		)
	} else {
		c.metrics.recordOutcome(outcome)
	}

	// 处理失败也 ACK：管线没有重试语义，下一条读数会重新评估
	c.ack(ctx, job.messageID)
}

// ack 确认消息
func (c *StreamConsumer) ack(ctx context.Context, messageID string) {
	stream := c.config.Anxiety.Ingest.Stream
	group := c.config.Anxiety.Ingest.Group
	if err := rediscommon.AckMessage(ctx, c.redisClient, stream, group, messageID); err != nil && ctx.Err() == nil {
		c.logger.Warn("Failed to ack message",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

// shutdown 等待所有设备 worker 退出
func (c *StreamConsumer) shutdown() {
	c.mu.Lock()
	for _, ch := range c.workers {
		close(ch)
	}
	c.workers = make(map[string]chan readingJob)
	c.mu.Unlock()

	c.wg.Wait()
}

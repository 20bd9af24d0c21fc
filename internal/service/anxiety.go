package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-anxiety/internal/config"
	"wisefido-anxiety/internal/consumer"
	"wisefido-anxiety/internal/coordinator"
	"wisefido-anxiety/internal/detector"
	"wisefido-anxiety/internal/ingest"
	"wisefido-anxiety/internal/limiter"
	"wisefido-anxiety/internal/notify"
	"wisefido-anxiety/internal/registry"
	"wisefido-anxiety/internal/repository"
	"wisefido-anxiety/internal/threshold"
	"wisefido-anxiety/internal/window"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-anxiety/internal/common/database"
	mqttcommon "wisefido-anxiety/internal/common/mqtt"
	rediscommon "wisefido-anxiety/internal/common/redis"
)

// AnxietyService 焦虑检测服务（整合各层）
type AnxietyService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	logger      *zap.Logger

	// 各层组件
	baselineRepo   *repository.BaselineRepository
	assignmentRepo *repository.AssignmentRepository
	sessionRepo    *repository.SessionRepository
	auditRepo      *repository.AuditRepository
	registry       *registry.SessionRegistry
	baselines      *threshold.BaselineProvider
	windows        *window.Store
	detector       *detector.Detector
	limiter        *limiter.RateLimiter
	alertSink      *notify.PushGatewaySink
	cacheManager   *consumer.CacheManager
	coordinator    *coordinator.Coordinator
	streamConsumer *consumer.StreamConsumer
	mqttConsumer   *ingest.MQTTConsumer
}

// NewAnxietyService 创建焦虑检测服务
func NewAnxietyService(cfg *config.Config, logger *zap.Logger) (*AnxietyService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	ctx := context.Background()
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	// 4. 创建 Repository 层
	baselineRepo := repository.NewBaselineRepository(db, logger)
	assignmentRepo := repository.NewAssignmentRepository(db, logger)
	sessionRepo := repository.NewSessionRepository(db, logger)
	auditRepo := repository.NewAuditRepository(db, logger)

	// 5. 创建核心组件
	windows := window.NewStore(cfg.Anxiety.Window.Capacity)
	sessionRegistry := registry.NewSessionRegistry(cfg, assignmentRepo, sessionRepo, redisClient, windows, logger)
	baselineTTL := time.Duration(cfg.Anxiety.Cache.BaselineTTLSeconds) * time.Second
	baselines := threshold.NewBaselineProvider(baselineRepo, baselineTTL, logger)
	det := detector.NewDetector(cfg, windows, logger)
	lim := limiter.NewRateLimiter(cfg, redisClient, logger)
	alertSink := notify.NewPushGatewaySink(cfg, logger)
	cacheManager := consumer.NewCacheManager(cfg, redisClient, logger)

	// 6. 创建协调器与消费者
	coord := coordinator.NewCoordinator(
		cfg,
		sessionRegistry,
		baselines,
		windows,
		det,
		lim,
		alertSink,
		auditRepo,
		cacheManager,
		logger,
	)
	streamConsumer := consumer.NewStreamConsumer(cfg, redisClient, coord, logger)
	mqttConsumer := ingest.NewMQTTConsumer(cfg, mqttClient, redisClient, logger)

	return &AnxietyService{
		config:         cfg,
		db:             db,
		redisClient:    redisClient,
		mqttClient:     mqttClient,
		logger:         logger,
		baselineRepo:   baselineRepo,
		assignmentRepo: assignmentRepo,
		sessionRepo:    sessionRepo,
		auditRepo:      auditRepo,
		registry:       sessionRegistry,
		baselines:      baselines,
		windows:        windows,
		detector:       det,
		limiter:        lim,
		alertSink:      alertSink,
		cacheManager:   cacheManager,
		coordinator:    coord,
		streamConsumer: streamConsumer,
		mqttConsumer:   mqttConsumer,
	}, nil
}

// Start 启动服务（阻塞直到 ctx 取消或消费者出错）
func (s *AnxietyService) Start(ctx context.Context) error {
	s.logger.Info("Starting anxiety detection service")

	// 分配变更监听（缓存失效）
	go s.registry.WatchAssignments(ctx)

	// MQTT 接入桥
	errChan := make(chan error, 2)
	go func() {
		if err := s.mqttConsumer.Start(ctx); err != nil {
			errChan <- fmt.Errorf("mqtt consumer: %w", err)
		}
	}()

	// Streams 消费者（检测管线入口）
	go func() {
		if err := s.streamConsumer.Start(ctx); err != nil {
			errChan <- fmt.Errorf("stream consumer: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

// Stop 停止服务
func (s *AnxietyService) Stop() error {
	s.logger.Info("Stopping anxiety detection service")

	// 等待在途的报警下发和审计写入
	s.coordinator.Wait()

	s.mqttClient.Disconnect()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}

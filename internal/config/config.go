package config

import (
	"fmt"
	"os"
)

// DatabaseConfig PostgreSQL数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config 焦虑检测服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 焦虑检测服务特定配置
	Anxiety struct {
		// 接入配置（MQTT → Redis Streams）
		Ingest struct {
			Topic    string // 可穿戴网关数据主题，如 "wearable/+/vitals"
			Stream   string // Redis Streams 流名称
			Group    string // 消费者组名称
			Consumer string // 消费者名称
		}

		// 滑动窗口配置
		Window struct {
			Capacity          int // 每个会话保留的最近读数条数，默认 50
			SustainSeconds    int // 持续升高判断的时间窗口（秒），默认 30
			MinSustainSamples int // 持续升高判断所需的合格样本数，默认 3
		}

		// 检测阈值配置（心率阈值由个人基线推导，此处仅为固定阈值）
		Detection struct {
			SpO2Critical    float64 // 血氧危急阈值（%），默认 90
			SpO2Low         float64 // 血氧偏低阈值（%），默认 94
			MovementSpike   float64 // 运动强度尖峰阈值，默认 45
			MovementAnxiety float64 // 运动强度焦虑指征阈值，默认 65
		}

		// 冷却时间配置（按严重程度分级，越严重冷却越短）
		Cooldown struct {
			MildSeconds     int // mild 冷却（秒），默认 300
			ModerateSeconds int // moderate 冷却（秒），默认 180
			SevereSeconds   int // severe 冷却（秒），默认 60
			CriticalSeconds int // critical 冷却（秒），默认 30
		}

		// Redis 缓存配置
		Cache struct {
			VerdictKeyPrefix     string // 判定结果缓存键前缀，如 "anxiety:session:"
			VerdictSuffix        string // 判定结果缓存键后缀，如 ":verdict"
			VerdictTTL           int    // 判定结果 TTL（秒），默认 60
			CooldownKeyPrefix    string // 冷却键前缀，如 "anxiety:cooldown:"
			AssignmentTTLSeconds int    // 设备分配缓存 TTL（秒），默认 5
			BaselineTTLSeconds   int    // 基线缓存 TTL（秒），默认 30
			AssignmentChannel    string // 设备分配变更通知频道
		}

		// 报警推送配置
		Alert struct {
			GatewayURL     string // 推送网关地址
			TimeoutSeconds int    // 单次推送超时（秒），默认 5
			RetryCount     int    // 推送重试次数，默认 2
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 数据库配置
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "anxiety")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	// Redis 配置
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// MQTT 配置
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-anxiety")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	// 接入配置
	cfg.Anxiety.Ingest.Topic = getEnv("INGEST_TOPIC", "wearable/+/vitals")
	cfg.Anxiety.Ingest.Stream = getEnv("INGEST_STREAM", "anxiety:readings:stream")
	cfg.Anxiety.Ingest.Group = getEnv("INGEST_GROUP", "anxiety-detector")
	cfg.Anxiety.Ingest.Consumer = getEnv("INGEST_CONSUMER", "detector-1")

	// 滑动窗口配置
	cfg.Anxiety.Window.Capacity = getEnvInt("WINDOW_CAPACITY", 50)
	cfg.Anxiety.Window.SustainSeconds = getEnvInt("WINDOW_SUSTAIN_SECONDS", 30)
	cfg.Anxiety.Window.MinSustainSamples = getEnvInt("WINDOW_MIN_SUSTAIN_SAMPLES", 3)

	// 检测阈值配置
	cfg.Anxiety.Detection.SpO2Critical = 90
	cfg.Anxiety.Detection.SpO2Low = 94
	cfg.Anxiety.Detection.MovementSpike = 45
	cfg.Anxiety.Detection.MovementAnxiety = 65

	// 冷却时间配置
	cfg.Anxiety.Cooldown.MildSeconds = getEnvInt("COOLDOWN_MILD_SECONDS", 300)
	cfg.Anxiety.Cooldown.ModerateSeconds = getEnvInt("COOLDOWN_MODERATE_SECONDS", 180)
	cfg.Anxiety.Cooldown.SevereSeconds = getEnvInt("COOLDOWN_SEVERE_SECONDS", 60)
	cfg.Anxiety.Cooldown.CriticalSeconds = getEnvInt("COOLDOWN_CRITICAL_SECONDS", 30)

	// 缓存配置
	cfg.Anxiety.Cache.VerdictKeyPrefix = getEnv("CACHE_VERDICT_PREFIX", "anxiety:session:")
	cfg.Anxiety.Cache.VerdictSuffix = ":verdict"
	cfg.Anxiety.Cache.VerdictTTL = getEnvInt("CACHE_VERDICT_TTL", 60)
	cfg.Anxiety.Cache.CooldownKeyPrefix = getEnv("CACHE_COOLDOWN_PREFIX", "anxiety:cooldown:")
	cfg.Anxiety.Cache.AssignmentTTLSeconds = getEnvInt("CACHE_ASSIGNMENT_TTL", 5)
	cfg.Anxiety.Cache.BaselineTTLSeconds = getEnvInt("CACHE_BASELINE_TTL", 30)
	cfg.Anxiety.Cache.AssignmentChannel = getEnv("CACHE_ASSIGNMENT_CHANNEL", "anxiety:assignment:changed")

	// 报警推送配置
	cfg.Anxiety.Alert.GatewayURL = getEnv("ALERT_GATEWAY_URL", "http://localhost:8085")
	cfg.Anxiety.Alert.TimeoutSeconds = getEnvInt("ALERT_TIMEOUT_SECONDS", 5)
	cfg.Anxiety.Alert.RetryCount = getEnvInt("ALERT_RETRY_COUNT", 2)

	// 日志配置
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var parsed int
		if _, err := fmt.Sscanf(value, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return defaultValue
}

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "anxiety", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "wearable/+/vitals", cfg.Anxiety.Ingest.Topic)
	assert.Equal(t, "anxiety:readings:stream", cfg.Anxiety.Ingest.Stream)
	assert.Equal(t, "anxiety-detector", cfg.Anxiety.Ingest.Group)

	assert.Equal(t, 50, cfg.Anxiety.Window.Capacity)
	assert.Equal(t, 30, cfg.Anxiety.Window.SustainSeconds)
	assert.Equal(t, 3, cfg.Anxiety.Window.MinSustainSamples)

	assert.Equal(t, float64(90), cfg.Anxiety.Detection.SpO2Critical)
	assert.Equal(t, float64(94), cfg.Anxiety.Detection.SpO2Low)

	// 冷却按严重程度递减
	assert.Equal(t, 300, cfg.Anxiety.Cooldown.MildSeconds)
	assert.Equal(t, 180, cfg.Anxiety.Cooldown.ModerateSeconds)
	assert.Equal(t, 60, cfg.Anxiety.Cooldown.SevereSeconds)
	assert.Equal(t, 30, cfg.Anxiety.Cooldown.CriticalSeconds)

	assert.Equal(t, "anxiety:session:", cfg.Anxiety.Cache.VerdictKeyPrefix)
	assert.Equal(t, ":verdict", cfg.Anxiety.Cache.VerdictSuffix)
	assert.Equal(t, "anxiety:cooldown:", cfg.Anxiety.Cache.CooldownKeyPrefix)
	assert.Equal(t, 5, cfg.Anxiety.Cache.AssignmentTTLSeconds)

	assert.Equal(t, 5, cfg.Anxiety.Alert.TimeoutSeconds)
	assert.Equal(t, 2, cfg.Anxiety.Alert.RetryCount)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_USER", "test-user")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("INGEST_STREAM", "test:stream")
	os.Setenv("WINDOW_CAPACITY", "100")
	os.Setenv("COOLDOWN_SEVERE_SECONDS", "90")
	os.Setenv("ALERT_GATEWAY_URL", "http://gateway:9000")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证环境变量覆盖
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-user", cfg.Database.User)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "test:stream", cfg.Anxiety.Ingest.Stream)
	assert.Equal(t, 100, cfg.Anxiety.Window.Capacity)
	assert.Equal(t, 90, cfg.Anxiety.Cooldown.SevereSeconds)
	assert.Equal(t, "http://gateway:9000", cfg.Anxiety.Alert.GatewayURL)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 清理环境变量
	os.Clearenv()
}

func TestGetEnvInt(t *testing.T) {
	os.Clearenv()

	// 默认值
	assert.Equal(t, 42, getEnvInt("TEST_INT_KEY", 42))

	// 合法整数
	os.Setenv("TEST_INT_KEY", "7")
	assert.Equal(t, 7, getEnvInt("TEST_INT_KEY", 42))

	// 非法值回落默认
	os.Setenv("TEST_INT_KEY", "not-a-number")
	assert.Equal(t, 42, getEnvInt("TEST_INT_KEY", 42))

	os.Unsetenv("TEST_INT_KEY")
}

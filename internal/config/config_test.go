package config

import (
    "log/slog"
    "testing"
    "time"

    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/assert"
)

func TestLoadEngineConfigDefaults(t *testing.T) {
    for _, k := range []string{"HOLD_TTL", "QUEUE_MAX_DEPTH", "RESALE_FEE_RATE", "RESALE_WINDOW",
        "RESALE_INTEREST_THRESHOLD", "IDEMPOTENCY_RETENTION", "IDEMPOTENCY_DRIVER", "SWEEP_INTERVAL"} {
        t.Setenv(k, "")
    }
    cfg := LoadEngineConfig()
    assert.Equal(t, 10*time.Minute, cfg.HoldTTL)
    assert.Equal(t, 10000, cfg.QueueMaxDepth)
    assert.True(t, decimal.RequireFromString("0.03").Equal(cfg.ResaleFeeRate))
    assert.Equal(t, 15*time.Minute, cfg.ResaleWindow)
    assert.Equal(t, 0, cfg.ResaleInterestThreshold)
    assert.Equal(t, 24*time.Hour, cfg.IdempotencyRetention)
    assert.Equal(t, "redis", cfg.IdempotencyDriver)
    assert.Equal(t, 30*time.Second, cfg.SweepInterval)
}

func TestLoadEngineConfigOverrides(t *testing.T) {
    t.Setenv("HOLD_TTL", "90s")
    t.Setenv("QUEUE_MAX_DEPTH", "0")
    t.Setenv("RESALE_FEE_RATE", "0.05")
    t.Setenv("RESALE_INTEREST_THRESHOLD", "5")
    t.Setenv("IDEMPOTENCY_DRIVER", "Memory")
    t.Setenv("SWEEP_INTERVAL", "10ms")

    cfg := LoadEngineConfig()
    assert.Equal(t, 90*time.Second, cfg.HoldTTL)
    assert.Equal(t, -1, cfg.QueueDepthOption())
    assert.True(t, decimal.RequireFromString("0.05").Equal(cfg.ResaleFeeRate))
    assert.Equal(t, 5, cfg.ResaleInterestThreshold)
    assert.Equal(t, "memory", cfg.IdempotencyDriver)
    assert.Equal(t, time.Second, cfg.SweepInterval)
}

func TestLoadEngineConfigRejectsNegativeFee(t *testing.T) {
    t.Setenv("RESALE_FEE_RATE", "-0.5")
    assert.True(t, decimal.RequireFromString("0.03").Equal(LoadEngineConfig().ResaleFeeRate))
}

func TestLoadConfigMemoryDriver(t *testing.T) {
    t.Setenv("APP_PORT", "8080")
    t.Setenv("JWT_SECRET", "secret")
    t.Setenv("STORAGE_DRIVER", "memory")
    t.Setenv("DB_HOST", "")

    cfg := Load()
    assert.Equal(t, StorageMemory, cfg.StorageDriver)
    assert.Equal(t, "8080", cfg.Port)
    assert.Empty(t, cfg.DBHost)
}

func TestLoadRateLimitConfigBurst(t *testing.T) {
    t.Setenv("RATE_LIMIT_BURST", "3")
    t.Setenv("RATE_LIMIT_REFILL_EVERY", "1m")
    cfg := LoadRateLimitConfig()
    assert.Equal(t, 3, cfg.Capacity)
    assert.Equal(t, 1, cfg.RefillTokens)
    assert.Equal(t, time.Minute, cfg.RefillInterval)
    assert.Equal(t, 10*time.Minute, cfg.TTL)
}

func TestLoadRedisConfigHostPortWins(t *testing.T) {
    t.Setenv("REDIS_ADDR", "cache:6379")
    t.Setenv("REDIS_HOST", "redis")
    t.Setenv("REDIS_PORT", "6380")
    t.Setenv("REDIS_TLS", "1")
    cfg := LoadRedisConfig()
    assert.Equal(t, "redis:6380", cfg.Addr)
    assert.True(t, cfg.TLS)
}

func TestLoadLogConfig(t *testing.T) {
    t.Setenv("LOG_LEVEL", "debug")
    t.Setenv("LOG_FORMAT", "TEXT")
    cfg := LoadLogConfig()
    assert.Equal(t, slog.LevelDebug, cfg.Level)
    assert.Equal(t, "text", cfg.Format)

    t.Setenv("LOG_LEVEL", "loud")
    t.Setenv("LOG_FORMAT", "xml")
    cfg = LoadLogConfig()
    assert.Equal(t, slog.LevelInfo, cfg.Level)
    assert.Equal(t, "json", cfg.Format)
}

func TestLoadBrokerConfigPrefersRabbitURL(t *testing.T) {
    t.Setenv("AMQP_URL", "amqp://b/")
    t.Setenv("RABBITMQ_URL", "amqp://a/")
    assert.Equal(t, "amqp://a/", LoadBrokerConfig().URL)
    t.Setenv("RABBITMQ_URL", "")
    assert.Equal(t, "amqp://b/", LoadBrokerConfig().URL)
}

func TestLoadBrokerConfigTimeouts(t *testing.T) {
    cfg := LoadBrokerConfig()
    assert.Equal(t, 2*time.Second, cfg.DialTimeout)
    assert.Equal(t, 30*time.Second, cfg.RetryBackoff)

    t.Setenv("BROKER_DIAL_TIMEOUT", "500ms")
    t.Setenv("BROKER_RETRY_BACKOFF", "1m")
    cfg = LoadBrokerConfig()
    assert.Equal(t, 500*time.Millisecond, cfg.DialTimeout)
    assert.Equal(t, time.Minute, cfg.RetryBackoff)
}

package config

import (
    "os"
    "strings"
    "time"

    "github.com/shopspring/decimal"
)

// EngineConfig tunes admission, holds, resale and idempotency.
//
// Variables:
//   HOLD_TTL – lifetime of a hold before it expires (default 10m)
//   QUEUE_MAX_DEPTH – waiting entries allowed per event, 0 = unbounded (default 10000)
//   RESALE_FEE_RATE – fee added to the seller price (default 0.03)
//   RESALE_WINDOW – time after listing when an offer resolves (default 15m)
//   RESALE_INTEREST_THRESHOLD – buyers that resolve an offer early, 0 = window only
//   IDEMPOTENCY_RETENTION – how long completion results are replayed (default 24h)
//   IDEMPOTENCY_DRIVER – "redis" or "memory" (default redis)
//   SWEEP_INTERVAL – period of the fallback sweeps (default 30s)
type EngineConfig struct {
    HoldTTL                 time.Duration
    QueueMaxDepth           int
    ResaleFeeRate           decimal.Decimal
    ResaleWindow            time.Duration
    ResaleInterestThreshold int
    IdempotencyRetention    time.Duration
    IdempotencyDriver       string
    SweepInterval           time.Duration
}

// LoadEngineConfig reads the engine variables.  Invalid or out of range
// values fall back to the defaults.
func LoadEngineConfig() EngineConfig {
    cfg := EngineConfig{
        HoldTTL:                 envDur("HOLD_TTL", 10*time.Minute),
        QueueMaxDepth:           envInt("QUEUE_MAX_DEPTH", 10000),
        ResaleFeeRate:           envDecimal("RESALE_FEE_RATE", decimal.RequireFromString("0.03")),
        ResaleWindow:            envDur("RESALE_WINDOW", 15*time.Minute),
        ResaleInterestThreshold: envInt("RESALE_INTEREST_THRESHOLD", 0),
        IdempotencyRetention:    envDur("IDEMPOTENCY_RETENTION", 24*time.Hour),
        IdempotencyDriver:       strings.ToLower(envStr("IDEMPOTENCY_DRIVER", "redis")),
        SweepInterval:           envDur("SWEEP_INTERVAL", 30*time.Second),
    }
    if cfg.HoldTTL <= 0 { cfg.HoldTTL = 10 * time.Minute }
    if cfg.QueueMaxDepth < 0 { cfg.QueueMaxDepth = 0 }
    if cfg.ResaleFeeRate.IsNegative() { cfg.ResaleFeeRate = decimal.RequireFromString("0.03") }
    if cfg.ResaleWindow <= 0 { cfg.ResaleWindow = 15 * time.Minute }
    if cfg.ResaleInterestThreshold < 0 { cfg.ResaleInterestThreshold = 0 }
    if cfg.IdempotencyRetention <= 0 { cfg.IdempotencyRetention = 24 * time.Hour }
    if cfg.SweepInterval < time.Second { cfg.SweepInterval = time.Second }
    return cfg
}

// QueueDepthOption converts QueueMaxDepth to the service convention where a
// negative bound means unbounded.
func (c EngineConfig) QueueDepthOption() int {
    if c.QueueMaxDepth == 0 {
        return -1
    }
    return c.QueueMaxDepth
}

func envDecimal(k string, d decimal.Decimal) decimal.Decimal {
    v := os.Getenv(k)
    if v == "" { return d }
    if dec, err := decimal.NewFromString(v); err == nil { return dec }
    return d
}

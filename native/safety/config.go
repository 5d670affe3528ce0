package safety

import (
	"math/big"
	"time"

	"synapse/core/types"
)

// RateLimitConfig bounds per-minute payment count and value.
type RateLimitConfig struct {
	MaxTxPerMinute    int
	MaxValuePerMinute *big.Int
	CooldownPeriod    time.Duration
}

// AnomalyConfig tunes the statistical detector.
type AnomalyConfig struct {
	Enabled bool
	// Sensitivity scales the standard-deviation threshold: higher is looser.
	Sensitivity float64
	// MinTransactions is the sample floor before the detector activates.
	MinTransactions int
	StdDevThreshold float64
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	FailureWindow    time.Duration
	RecoveryTimeout  time.Duration
}

// CircularConfig tunes payment-cycle detection.
type CircularConfig struct {
	Enabled    bool
	MaxHops    int
	TimeWindow time.Duration
}

// LargeTxConfig tunes the large-transaction protection.
type LargeTxConfig struct {
	Threshold           *big.Int
	RequireConfirmation bool
	Delay               time.Duration
}

// Config carries the protocol tunables. Numeric zero values fall back to the
// defaults; the Enabled flags are plain booleans, so callers start from
// DefaultConfig and override.
type Config struct {
	RateLimit RateLimitConfig
	Anomaly   AnomalyConfig
	Breaker   BreakerConfig
	Circular  CircularConfig
	LargeTx   LargeTxConfig
	// MaxHistory caps the retained transaction log.
	MaxHistory int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			MaxTxPerMinute:    10,
			MaxValuePerMinute: types.MustParseAmount("100"),
			CooldownPeriod:    60 * time.Second,
		},
		Anomaly: AnomalyConfig{
			Enabled:         true,
			Sensitivity:     1.0,
			MinTransactions: 5,
			StdDevThreshold: 2.0,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			FailureWindow:    60 * time.Second,
			RecoveryTimeout:  30 * time.Second,
		},
		Circular: CircularConfig{
			Enabled:    true,
			MaxHops:    5,
			TimeWindow: time.Hour,
		},
		LargeTx: LargeTxConfig{
			Threshold:           types.MustParseAmount("50"),
			RequireConfirmation: true,
			Delay:               30 * time.Second,
		},
		MaxHistory: 500,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.RateLimit.MaxTxPerMinute <= 0 {
		c.RateLimit.MaxTxPerMinute = def.RateLimit.MaxTxPerMinute
	}
	if c.RateLimit.MaxValuePerMinute == nil || c.RateLimit.MaxValuePerMinute.Sign() <= 0 {
		c.RateLimit.MaxValuePerMinute = def.RateLimit.MaxValuePerMinute
	}
	if c.RateLimit.CooldownPeriod <= 0 {
		c.RateLimit.CooldownPeriod = def.RateLimit.CooldownPeriod
	}
	if c.Anomaly.Sensitivity <= 0 {
		c.Anomaly.Sensitivity = def.Anomaly.Sensitivity
	}
	if c.Anomaly.MinTransactions <= 0 {
		c.Anomaly.MinTransactions = def.Anomaly.MinTransactions
	}
	if c.Anomaly.StdDevThreshold <= 0 {
		c.Anomaly.StdDevThreshold = def.Anomaly.StdDevThreshold
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = def.Breaker.FailureThreshold
	}
	if c.Breaker.FailureWindow <= 0 {
		c.Breaker.FailureWindow = def.Breaker.FailureWindow
	}
	if c.Breaker.RecoveryTimeout <= 0 {
		c.Breaker.RecoveryTimeout = def.Breaker.RecoveryTimeout
	}
	if c.Circular.MaxHops <= 0 {
		c.Circular.MaxHops = def.Circular.MaxHops
	}
	if c.Circular.TimeWindow <= 0 {
		c.Circular.TimeWindow = def.Circular.TimeWindow
	}
	if c.LargeTx.Threshold == nil || c.LargeTx.Threshold.Sign() <= 0 {
		c.LargeTx.Threshold = def.LargeTx.Threshold
	}
	if c.LargeTx.Delay <= 0 {
		c.LargeTx.Delay = def.LargeTx.Delay
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = def.MaxHistory
	}
	return c
}

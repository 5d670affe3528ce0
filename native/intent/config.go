package intent

import (
	"math/big"
	"time"
)

// Config carries the engine tunables. The zero value of any field means "use
// the default", so partial configurations merge over DefaultConfig field-wise.
type Config struct {
	// RetentionPeriod keeps terminal intents queryable before eviction.
	RetentionPeriod time.Duration
	// CleanupInterval is the sweep cadence for the retention pass.
	CleanupInterval time.Duration
	// MaxIntents caps stored intents; the oldest terminal intents are evicted
	// first once the cap is exceeded.
	MaxIntents int
	// MaxBidsPerIntent bounds the auction book for a single intent.
	MaxBidsPerIntent int
	// DefaultBiddingDuration applies when a create request carries none.
	DefaultBiddingDuration time.Duration
	// MinBiddingDuration is the platform floor for requested bidding windows.
	MinBiddingDuration time.Duration
	// DefaultExecutionTimeout applies when a create request carries none.
	DefaultExecutionTimeout time.Duration
	// FailoverTimeout is the short pickup window a newly assigned provider has
	// to call MarkExecutionStarted before the engine fails over.
	FailoverTimeout time.Duration
	// MinBidAmount is the global bid floor in micro-units.
	MinBidAmount *big.Int
	// Scorer configures the bid scorer.
	Scorer ScorerConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RetentionPeriod:         time.Hour,
		CleanupInterval:         5 * time.Minute,
		MaxIntents:              10_000,
		MaxBidsPerIntent:        100,
		DefaultBiddingDuration:  30 * time.Second,
		MinBiddingDuration:      time.Second,
		DefaultExecutionTimeout: 5 * time.Minute,
		FailoverTimeout:         10 * time.Second,
		MinBidAmount:            big.NewInt(1_000),
		Scorer: ScorerConfig{
			Weights:             DefaultWeights(),
			DefaultMaxLatencyMs: 30_000,
			TEEBonus:            1,
		},
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.RetentionPeriod <= 0 {
		c.RetentionPeriod = def.RetentionPeriod
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.MaxIntents <= 0 {
		c.MaxIntents = def.MaxIntents
	}
	if c.MaxBidsPerIntent <= 0 {
		c.MaxBidsPerIntent = def.MaxBidsPerIntent
	}
	if c.DefaultBiddingDuration <= 0 {
		c.DefaultBiddingDuration = def.DefaultBiddingDuration
	}
	if c.MinBiddingDuration <= 0 {
		c.MinBiddingDuration = def.MinBiddingDuration
	}
	if c.DefaultExecutionTimeout <= 0 {
		c.DefaultExecutionTimeout = def.DefaultExecutionTimeout
	}
	if c.FailoverTimeout <= 0 {
		c.FailoverTimeout = def.FailoverTimeout
	}
	if c.MinBidAmount == nil || c.MinBidAmount.Sign() <= 0 {
		c.MinBidAmount = def.MinBidAmount
	}
	c.Scorer = c.Scorer.normalized()
	return c
}

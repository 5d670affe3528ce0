package dispute

import (
	"time"

	"synapse/core/types"
)

// Config carries the resolver tunables. Numeric zero values fall back to the
// defaults; the Enable flags are plain booleans, so callers start from
// DefaultConfig and override.
type Config struct {
	// EnableOracles controls whether the evidence pipeline consults the
	// oracle registry.
	EnableOracles bool
	// EnableSlashing controls whether a client_wins verdict triggers a real
	// escrow slash.
	EnableSlashing bool
	// EvidenceTimeout bounds the oracle query and the lifetime of an
	// unresolved dispute before the expiry sweep abandons it.
	EvidenceTimeout time.Duration
	// DeviationThreshold is the relative deviation above which the provider
	// is at fault.
	DeviationThreshold float64
	// SlashBps is the slashed fraction of the escrow, in basis points.
	SlashBps uint32
	// MinReputationPenaltyBps / MaxReputationPenaltyBps clamp the penalty
	// applied on provider fault.
	MinReputationPenaltyBps uint32
	MaxReputationPenaltyBps uint32
	// PlatformWallet receives slashed funds; the zero address falls back to
	// the disputing client.
	PlatformWallet types.Address
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		EnableOracles:           true,
		EnableSlashing:          true,
		EvidenceTimeout:         5 * time.Minute,
		DeviationThreshold:      0.05,
		SlashBps:                1_000,
		MinReputationPenaltyBps: 1_000,
		MaxReputationPenaltyBps: 5_000,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.EvidenceTimeout <= 0 {
		c.EvidenceTimeout = def.EvidenceTimeout
	}
	if c.DeviationThreshold <= 0 {
		c.DeviationThreshold = def.DeviationThreshold
	}
	if c.SlashBps == 0 || c.SlashBps > 10_000 {
		c.SlashBps = def.SlashBps
	}
	if c.MinReputationPenaltyBps == 0 {
		c.MinReputationPenaltyBps = def.MinReputationPenaltyBps
	}
	if c.MaxReputationPenaltyBps == 0 || c.MaxReputationPenaltyBps < c.MinReputationPenaltyBps {
		c.MaxReputationPenaltyBps = def.MaxReputationPenaltyBps
		if c.MaxReputationPenaltyBps < c.MinReputationPenaltyBps {
			c.MaxReputationPenaltyBps = c.MinReputationPenaltyBps
		}
	}
	return c
}

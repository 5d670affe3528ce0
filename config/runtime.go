package config

import (
	"fmt"
	"strings"
	"time"

	"synapse/core/types"
	"synapse/native/dispute"
	"synapse/native/intent"
	"synapse/native/safety"
)

// IntentConfig converts the intent section into engine tunables. Zero-valued
// fields stay zero so the engine's own defaults apply.
func (c *Config) IntentConfig() (intent.Config, error) {
	cfg := intent.Config{
		MaxIntents:              c.Intent.MaxIntents,
		MaxBidsPerIntent:        c.Intent.MaxBidsPerIntent,
		RetentionPeriod:         secondsToDuration(c.Intent.RetentionSeconds),
		CleanupInterval:         secondsToDuration(c.Intent.CleanupIntervalSeconds),
		DefaultBiddingDuration:  secondsToDuration(c.Intent.DefaultBiddingWindowSeconds),
		MinBiddingDuration:      secondsToDuration(c.Intent.MinBiddingWindowSeconds),
		DefaultExecutionTimeout: secondsToDuration(c.Intent.DefaultExecutionTimeoutSeconds),
		FailoverTimeout:         secondsToDuration(c.Intent.FailoverTimeoutSeconds),
	}
	if raw := strings.TrimSpace(c.Intent.MinBidAmount); raw != "" {
		amount, err := types.ParseAmount(raw)
		if err != nil {
			return intent.Config{}, fmt.Errorf("intent: MinBidAmount: %w", err)
		}
		cfg.MinBidAmount = amount
	}
	return cfg, nil
}

// DisputeConfig converts the dispute section into resolver tunables.
func (c *Config) DisputeConfig() (dispute.Config, error) {
	cfg := dispute.DefaultConfig()
	if c.Dispute.EnableOracles != nil {
		cfg.EnableOracles = *c.Dispute.EnableOracles
	}
	if c.Dispute.EnableSlashing != nil {
		cfg.EnableSlashing = *c.Dispute.EnableSlashing
	}
	if c.Dispute.EvidenceTimeoutSeconds > 0 {
		cfg.EvidenceTimeout = secondsToDuration(c.Dispute.EvidenceTimeoutSeconds)
	}
	if c.Dispute.DeviationThreshold > 0 {
		cfg.DeviationThreshold = c.Dispute.DeviationThreshold
	}
	if c.Dispute.SlashBps > 0 {
		cfg.SlashBps = c.Dispute.SlashBps
	}
	if c.Dispute.MinReputationPenaltyBps > 0 {
		cfg.MinReputationPenaltyBps = c.Dispute.MinReputationPenaltyBps
	}
	if c.Dispute.MaxReputationPenaltyBps > 0 {
		cfg.MaxReputationPenaltyBps = c.Dispute.MaxReputationPenaltyBps
	}
	if wallet := strings.TrimSpace(c.Dispute.PlatformWallet); wallet != "" {
		addr, err := types.ParseAddress(wallet)
		if err != nil {
			return dispute.Config{}, fmt.Errorf("dispute: PlatformWallet: %w", err)
		}
		cfg.PlatformWallet = addr
	}
	return cfg, nil
}

// SafetyConfig loads the YAML safety policy when one is configured, falling
// back to the protocol defaults otherwise.
func (c *Config) SafetyConfig() (safety.Config, error) {
	if path := strings.TrimSpace(c.SafetyPolicyFile); path != "" {
		return safety.LoadPolicy(path)
	}
	return safety.DefaultConfig(), nil
}

func secondsToDuration(seconds int64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

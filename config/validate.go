package config

import (
	"fmt"
	"strings"

	"synapse/core/types"
)

func ValidateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must not be empty")
	}
	if cfg.Dispute.DeviationThreshold < 0 || cfg.Dispute.DeviationThreshold > 1 {
		return fmt.Errorf("dispute: DeviationThreshold outside [0, 1]")
	}
	if cfg.Dispute.SlashBps > 10_000 {
		return fmt.Errorf("dispute: SlashBps > 10000")
	}
	if cfg.Dispute.MaxReputationPenaltyBps > 0 && cfg.Dispute.MaxReputationPenaltyBps < cfg.Dispute.MinReputationPenaltyBps {
		return fmt.Errorf("dispute: MaxReputationPenaltyBps < MinReputationPenaltyBps")
	}
	if wallet := strings.TrimSpace(cfg.Dispute.PlatformWallet); wallet != "" {
		if _, err := types.ParseAddress(wallet); err != nil {
			return fmt.Errorf("dispute: PlatformWallet: %w", err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Journal.Driver)) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("journal: unsupported driver %q", cfg.Journal.Driver)
	}
	if cfg.Journal.Driver != "" && strings.TrimSpace(cfg.Journal.DSN) == "" {
		return fmt.Errorf("journal: DSN required when a driver is set")
	}
	if cfg.Gateway.RateLimitPerSecond < 0 {
		return fmt.Errorf("gateway: RateLimitPerSecond < 0")
	}
	return nil
}

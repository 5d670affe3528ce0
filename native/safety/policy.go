package safety

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"synapse/core/types"
)

// Duration wraps time.Duration so policy documents can spell windows as
// "60s" or "1h".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("safety: invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// policyDocument is the operator-editable YAML form of Config. Amounts are
// decimal strings ("100" or "0.50"), durations human-readable.
type policyDocument struct {
	RateLimit struct {
		MaxTxPerMinute    int      `yaml:"maxTxPerMinute"`
		MaxValuePerMinute string   `yaml:"maxValuePerMinute"`
		CooldownPeriod    Duration `yaml:"cooldownPeriod"`
	} `yaml:"rateLimit"`
	Anomaly struct {
		Enabled         *bool   `yaml:"enabled"`
		Sensitivity     float64 `yaml:"sensitivity"`
		MinTransactions int     `yaml:"minTransactions"`
		StdDevThreshold float64 `yaml:"stdDevThreshold"`
	} `yaml:"anomalyDetection"`
	CircuitBreaker struct {
		Enabled          *bool    `yaml:"enabled"`
		FailureThreshold int      `yaml:"failureThreshold"`
		FailureWindow    Duration `yaml:"failureWindow"`
		RecoveryTimeout  Duration `yaml:"recoveryTimeout"`
	} `yaml:"circuitBreaker"`
	CircularDetection struct {
		Enabled    *bool    `yaml:"enabled"`
		MaxHops    int      `yaml:"maxHops"`
		TimeWindow Duration `yaml:"timeWindow"`
	} `yaml:"circularDetection"`
	LargeTransaction struct {
		Threshold           string   `yaml:"threshold"`
		RequireConfirmation *bool    `yaml:"requireConfirmation"`
		Delay               Duration `yaml:"delay"`
	} `yaml:"largeTransaction"`
	MaxHistory int `yaml:"maxHistory"`
}

// LoadPolicy reads a YAML policy document and merges it over DefaultConfig.
// Absent fields keep their defaults.
func LoadPolicy(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("safety: read policy: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy merges a YAML policy document over DefaultConfig.
func ParsePolicy(raw []byte) (Config, error) {
	var doc policyDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("safety: parse policy: %w", err)
	}
	cfg := DefaultConfig()
	if doc.RateLimit.MaxTxPerMinute > 0 {
		cfg.RateLimit.MaxTxPerMinute = doc.RateLimit.MaxTxPerMinute
	}
	if doc.RateLimit.MaxValuePerMinute != "" {
		amount, err := types.ParseAmount(doc.RateLimit.MaxValuePerMinute)
		if err != nil {
			return Config{}, fmt.Errorf("safety: rateLimit.maxValuePerMinute: %w", err)
		}
		cfg.RateLimit.MaxValuePerMinute = amount
	}
	if doc.RateLimit.CooldownPeriod.Duration > 0 {
		cfg.RateLimit.CooldownPeriod = doc.RateLimit.CooldownPeriod.Duration
	}
	if doc.Anomaly.Enabled != nil {
		cfg.Anomaly.Enabled = *doc.Anomaly.Enabled
	}
	if doc.Anomaly.Sensitivity > 0 {
		cfg.Anomaly.Sensitivity = doc.Anomaly.Sensitivity
	}
	if doc.Anomaly.MinTransactions > 0 {
		cfg.Anomaly.MinTransactions = doc.Anomaly.MinTransactions
	}
	if doc.Anomaly.StdDevThreshold > 0 {
		cfg.Anomaly.StdDevThreshold = doc.Anomaly.StdDevThreshold
	}
	if doc.CircuitBreaker.Enabled != nil {
		cfg.Breaker.Enabled = *doc.CircuitBreaker.Enabled
	}
	if doc.CircuitBreaker.FailureThreshold > 0 {
		cfg.Breaker.FailureThreshold = doc.CircuitBreaker.FailureThreshold
	}
	if doc.CircuitBreaker.FailureWindow.Duration > 0 {
		cfg.Breaker.FailureWindow = doc.CircuitBreaker.FailureWindow.Duration
	}
	if doc.CircuitBreaker.RecoveryTimeout.Duration > 0 {
		cfg.Breaker.RecoveryTimeout = doc.CircuitBreaker.RecoveryTimeout.Duration
	}
	if doc.CircularDetection.Enabled != nil {
		cfg.Circular.Enabled = *doc.CircularDetection.Enabled
	}
	if doc.CircularDetection.MaxHops > 0 {
		cfg.Circular.MaxHops = doc.CircularDetection.MaxHops
	}
	if doc.CircularDetection.TimeWindow.Duration > 0 {
		cfg.Circular.TimeWindow = doc.CircularDetection.TimeWindow.Duration
	}
	if doc.LargeTransaction.Threshold != "" {
		amount, err := types.ParseAmount(doc.LargeTransaction.Threshold)
		if err != nil {
			return Config{}, fmt.Errorf("safety: largeTransaction.threshold: %w", err)
		}
		cfg.LargeTx.Threshold = amount
	}
	if doc.LargeTransaction.RequireConfirmation != nil {
		cfg.LargeTx.RequireConfirmation = *doc.LargeTransaction.RequireConfirmation
	}
	if doc.LargeTransaction.Delay.Duration > 0 {
		cfg.LargeTx.Delay = doc.LargeTransaction.Delay.Duration
	}
	if doc.MaxHistory > 0 {
		cfg.MaxHistory = doc.MaxHistory
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration file. Field defaults are filled by Load;
// a missing file is created with the defaults so a fresh checkout boots.
type Config struct {
	ListenAddress    string `toml:"ListenAddress"`
	DataDir          string `toml:"DataDir"`
	Environment      string `toml:"Environment"`
	SafetyPolicyFile string `toml:"SafetyPolicyFile"`

	Intent    IntentSection    `toml:"intent"`
	Dispute   DisputeSection   `toml:"dispute"`
	Gateway   GatewaySection   `toml:"gateway"`
	Journal   JournalSection   `toml:"journal"`
	Archive   ArchiveSection   `toml:"archive"`
	Telemetry TelemetrySection `toml:"telemetry"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s contains unknown keys: %s", path, strings.Join(keys, ", "))
	}

	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./synapse-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if cfg.Gateway.RateLimitPerSecond <= 0 {
		cfg.Gateway.RateLimitPerSecond = 50
	}
	if cfg.Gateway.RateLimitBurst <= 0 {
		cfg.Gateway.RateLimitBurst = 100
	}
	if strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		cfg.Telemetry.Endpoint = "localhost:4318"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./synapse-data",
		Environment:   "dev",
		Journal: JournalSection{
			Driver: "sqlite",
			DSN:    filepath.Join("./synapse-data", "journal.db"),
		},
	}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

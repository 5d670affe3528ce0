package config

// IntentSection tunes the intent engine. Durations are expressed in seconds
// so the file stays editable without duration syntax.
type IntentSection struct {
	MaxIntents                     int    `toml:"MaxIntents"`
	MaxBidsPerIntent               int    `toml:"MaxBidsPerIntent"`
	RetentionSeconds               int64  `toml:"RetentionSeconds"`
	CleanupIntervalSeconds         int64  `toml:"CleanupIntervalSeconds"`
	DefaultBiddingWindowSeconds    int64  `toml:"DefaultBiddingWindowSeconds"`
	MinBiddingWindowSeconds        int64  `toml:"MinBiddingWindowSeconds"`
	DefaultExecutionTimeoutSeconds int64  `toml:"DefaultExecutionTimeoutSeconds"`
	FailoverTimeoutSeconds         int64  `toml:"FailoverTimeoutSeconds"`
	MinBidAmount                   string `toml:"MinBidAmount"`
}

// DisputeSection tunes the dispute resolver. The Enable flags are pointers so
// an absent key keeps the default rather than forcing false.
type DisputeSection struct {
	EnableOracles           *bool   `toml:"EnableOracles,omitempty"`
	EnableSlashing          *bool   `toml:"EnableSlashing,omitempty"`
	EvidenceTimeoutSeconds  int64   `toml:"EvidenceTimeoutSeconds"`
	DeviationThreshold      float64 `toml:"DeviationThreshold"`
	SlashBps                uint32  `toml:"SlashBps"`
	MinReputationPenaltyBps uint32  `toml:"MinReputationPenaltyBps"`
	MaxReputationPenaltyBps uint32  `toml:"MaxReputationPenaltyBps"`
	PlatformWallet          string  `toml:"PlatformWallet"`
}

// GatewaySection tunes the HTTP host.
type GatewaySection struct {
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

// JournalSection selects the settlement journal backend.
type JournalSection struct {
	// Driver is "sqlite" or "postgres"; empty disables the journal.
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// ArchiveSection selects the evidence archive backend. An empty path keeps
// evidence in memory.
type ArchiveSection struct {
	Path string `toml:"Path"`
}

// TelemetrySection wires the OTLP exporters. SampleRatio bounds the fraction
// of root spans exported; zero keeps every span.
type TelemetrySection struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}

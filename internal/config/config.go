// Package config provides configuration types and loading for personapulse.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Store, Vault, Gateway, Generator, Publisher, Dispatcher, Audit.
type Config struct {
	Store      StoreConfig      `json:"store"`
	Vault      VaultConfig      `json:"vault"`
	Gateway    GatewayConfig    `json:"gateway"`
	Generator  GeneratorConfig  `json:"generator"`
	Publisher  PublisherConfig  `json:"publisher"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	Audit      AuditConfig      `json:"audit"`
}

// ---------------------------------------------------------------------------
// Store – sqlite persistence
// ---------------------------------------------------------------------------

// StoreConfig groups persistence settings.
type StoreConfig struct {
	Path string `json:"path" envconfig:"STORE_PATH"`
}

// ---------------------------------------------------------------------------
// Vault – secret encryption
// ---------------------------------------------------------------------------

// VaultConfig groups secret-encryption settings.
// Key resolution order: Key → PERSONAPULSE_SECRET_KEY env → keyring → key file.
type VaultConfig struct {
	Key        string `json:"key,omitempty" envconfig:"SECRET_KEY"`
	KeyBackend string `json:"keyBackend" envconfig:"KEY_BACKEND"` // auto, keyring, file
	KeyFile    string `json:"keyFile,omitempty" envconfig:"KEY_FILE"`
}

// ---------------------------------------------------------------------------
// Gateway – inbound webhook HTTP server
// ---------------------------------------------------------------------------

// GatewayConfig groups webhook gateway settings.
type GatewayConfig struct {
	Addr               string        `json:"addr" envconfig:"GATEWAY_ADDR"`
	MaxBodyBytes       int64         `json:"maxBodyBytes" envconfig:"GATEWAY_MAX_BODY_BYTES"`
	RatePerMinute      int           `json:"ratePerMinute" envconfig:"GATEWAY_RATE_PER_MINUTE"`
	RateBurst          int           `json:"rateBurst" envconfig:"GATEWAY_RATE_BURST"`
	TimestampTolerance time.Duration `json:"timestampTolerance" envconfig:"GATEWAY_TIMESTAMP_TOLERANCE"`
	ProcessInline      bool          `json:"processInline" envconfig:"GATEWAY_PROCESS_INLINE"`
}

// ---------------------------------------------------------------------------
// Generator – LLM text generation
// ---------------------------------------------------------------------------

// GeneratorConfig groups content-generation settings.
type GeneratorConfig struct {
	APIBase     string        `json:"apiBase" envconfig:"GENERATOR_API_BASE"`
	Model       string        `json:"model" envconfig:"GENERATOR_MODEL"`
	MaxTokens   int           `json:"maxTokens" envconfig:"GENERATOR_MAX_TOKENS"`
	Temperature float64       `json:"temperature" envconfig:"GENERATOR_TEMPERATURE"`
	MaxChars    int           `json:"maxChars" envconfig:"GENERATOR_MAX_CHARS"`
	Timeout     time.Duration `json:"timeout" envconfig:"GENERATOR_TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Publisher – outbound platform publish calls
// ---------------------------------------------------------------------------

// PublisherConfig groups outbound publish settings.
type PublisherConfig struct {
	APIBase string        `json:"apiBase" envconfig:"PUBLISHER_API_BASE"`
	Timeout time.Duration `json:"timeout" envconfig:"PUBLISHER_TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Dispatcher – sweep loops
// ---------------------------------------------------------------------------

// DispatcherConfig groups dispatcher sweep settings.
type DispatcherConfig struct {
	TickInterval  time.Duration `json:"tickInterval" envconfig:"DISPATCHER_TICK_INTERVAL"`
	SweepLimit    int           `json:"sweepLimit" envconfig:"DISPATCHER_SWEEP_LIMIT"`
	ThreadContext int           `json:"threadContext" envconfig:"DISPATCHER_THREAD_CONTEXT"`
}

// ---------------------------------------------------------------------------
// Audit – audit trail and event emission
// ---------------------------------------------------------------------------

// AuditConfig groups audit settings. Kafka emission is optional; when Brokers
// is empty only the local audit table is written.
type AuditConfig struct {
	Brokers string `json:"brokers,omitempty" envconfig:"AUDIT_BROKERS"`
	Topic   string `json:"topic,omitempty" envconfig:"AUDIT_TOPIC"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Path: "personapulse.db",
		},
		Vault: VaultConfig{
			KeyBackend: "auto",
		},
		Gateway: GatewayConfig{
			Addr:               ":8090",
			MaxBodyBytes:       1 << 20,
			RatePerMinute:      120,
			RateBurst:          30,
			TimestampTolerance: 5 * time.Minute,
			ProcessInline:      true,
		},
		Generator: GeneratorConfig{
			APIBase:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   512,
			Temperature: 0.8,
			MaxChars:    2200,
			Timeout:     60 * time.Second,
		},
		Publisher: PublisherConfig{
			APIBase: "https://graph.example.com/v21.0",
			Timeout: 30 * time.Second,
		},
		Dispatcher: DispatcherConfig{
			TickInterval:  time.Minute,
			SweepLimit:    50,
			ThreadContext: 10,
		},
		Audit: AuditConfig{
			Topic: "personapulse.audit",
		},
	}
}

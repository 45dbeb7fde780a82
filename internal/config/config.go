// Package config provides configuration types and loading for kafmarket.
package config

// Config is the root configuration struct.
// Top-level groups: Paths, Database, Gateway, Auth, Events, Slack, Log.
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Database DatabaseConfig `json:"database"`
	Gateway  GatewayConfig  `json:"gateway"`
	Auth     AuthConfig     `json:"auth"`
	Events   EventsConfig   `json:"events"`
	Slack    SlackConfig    `json:"slack"`
	Log      LogConfig      `json:"log"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
}

// ---------------------------------------------------------------------------
// Database – marketplace store
// ---------------------------------------------------------------------------

// DatabaseConfig selects the SQL driver and database file.
// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
type DatabaseConfig struct {
	Driver string `json:"driver" envconfig:"DB_DRIVER"`
	Path   string `json:"path" envconfig:"DB_PATH"`
}

// ---------------------------------------------------------------------------
// Gateway – HTTP surface
// ---------------------------------------------------------------------------

// GatewayConfig contains the HTTP listener settings.
type GatewayConfig struct {
	Host            string `json:"host" envconfig:"GATEWAY_HOST"`
	Port            int    `json:"port" envconfig:"GATEWAY_PORT"`
	PublicURL       string `json:"publicUrl" envconfig:"PUBLIC_URL"`
	ReadTimeoutSec  int    `json:"readTimeoutSec" envconfig:"GATEWAY_READ_TIMEOUT_SEC"`
	WriteTimeoutSec int    `json:"writeTimeoutSec" envconfig:"GATEWAY_WRITE_TIMEOUT_SEC"`
}

// ---------------------------------------------------------------------------
// Auth – agent credentials
// ---------------------------------------------------------------------------

// AuthConfig controls how agents present their credential.
type AuthConfig struct {
	APIKeyHeader string `json:"apiKeyHeader" envconfig:"API_KEY_HEADER"`
	DIDPrefix    string `json:"didPrefix" envconfig:"DID_PREFIX"`
}

// ---------------------------------------------------------------------------
// Events – Kafka publishing of marketplace events
// ---------------------------------------------------------------------------

// EventsConfig configures the Kafka event sink.
// Encoding is "json" or "protobuf".
type EventsConfig struct {
	Enabled  bool     `json:"enabled" envconfig:"EVENTS_ENABLED"`
	Brokers  []string `json:"brokers" envconfig:"KAFKA_BROKERS"`
	Topic    string   `json:"topic" envconfig:"EVENTS_TOPIC"`
	Encoding string   `json:"encoding" envconfig:"EVENTS_ENCODING"`

	SecurityProtocol string `json:"securityProtocol,omitempty" envconfig:"KAFKA_SECURITY_PROTOCOL"`
	SASLMechanism    string `json:"saslMechanism,omitempty" envconfig:"KAFKA_SASL_MECHANISM"`
	SASLUsername     string `json:"saslUsername,omitempty" envconfig:"KAFKA_SASL_USERNAME"`
	SASLPassword     string `json:"saslPassword,omitempty" envconfig:"KAFKA_SASL_PASSWORD"`
	CAFile           string `json:"caFile,omitempty" envconfig:"KAFKA_CA_FILE"`
}

// ---------------------------------------------------------------------------
// Slack – operator notifications
// ---------------------------------------------------------------------------

// SlackConfig configures the Slack notifier.
type SlackConfig struct {
	Enabled bool   `json:"enabled" envconfig:"SLACK_ENABLED"`
	Token   string `json:"token" envconfig:"SLACK_TOKEN"`
	Channel string `json:"channel" envconfig:"SLACK_CHANNEL"`
	APIBase string `json:"apiBase,omitempty" envconfig:"SLACK_API_BASE"`
}

// ---------------------------------------------------------------------------
// Log
// ---------------------------------------------------------------------------

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" envconfig:"LOG_LEVEL"`
	Format string `json:"format" envconfig:"LOG_FORMAT"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.kafmarket",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "~/.kafmarket/market.db",
		},
		Gateway: GatewayConfig{
			Host:            "127.0.0.1", // Secure default
			Port:            8000,
			ReadTimeoutSec:  30,
			WriteTimeoutSec: 30,
		},
		Auth: AuthConfig{
			APIKeyHeader: "X-API-Key",
			DIDPrefix:    "did:kafmarket:agent:",
		},
		Events: EventsConfig{
			Brokers:  []string{"localhost:9092"},
			Topic:    "kafmarket.events",
			Encoding: "json",
		},
		Slack: SlackConfig{
			Channel: "#marketplace",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Household       HouseholdConfig   `yaml:"household"`
	Players         map[string]string `yaml:"players"` // Alias -> player address (host, host:port or URL)
	UPnP            UPnPConfig        `yaml:"upnp"`
	Settle          SettleConfig      `yaml:"settle"`
	Notify          NotifyConfig      `yaml:"notify"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	API             APIConfig         `yaml:"api"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	Telemetry       TelemetryConfig   `yaml:"telemetry"`
	Script          string            `yaml:"script"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// HouseholdConfig names the player asked for household topology
type HouseholdConfig struct {
	Seed string `yaml:"seed"` // Any player of the household
}

// UPnPConfig contains action client settings
type UPnPConfig struct {
	Timeout      Duration `yaml:"timeout"`        // HTTP timeout per action
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // 0 disables pacing
}

// SettleConfig overrides the waits after unacknowledged actions
type SettleConfig struct {
	QueuePopulate Duration `yaml:"queue_populate"`
	Seek          Duration `yaml:"seek"`
}

// NotifyConfig contains notification defaults
type NotifyConfig struct {
	DefaultDuration   Duration `yaml:"default_duration"`    // Used when no duration is known (default: 5s)
	DurationSlack     Duration `yaml:"duration_slack"`      // Added to reported durations (default: 1s)
	QueuePlaylistName string   `yaml:"queue_playlist_name"` // Save non-empty queues under this name before diverting
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"` // Emit JSON lines instead of console output
}

// APIConfig contains control API settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns the listen address
func (c *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LedgerConfig contains notification history settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// GetHost returns host with default
func (c *HealthcheckConfig) GetHost() string {
	if c.Host == "" {
		return "0.0.0.0"
	}
	return c.Host
}

// GetPort returns port with default
func (c *HealthcheckConfig) GetPort() int {
	if c.Port == 0 {
		return 9090
	}
	return c.Port
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// TelemetryConfig contains tracing settings
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"` // OTLP HTTP endpoint; empty disables export
	ServiceName string `yaml:"service_name"`
}

// GetShutdownTimeout returns the graceful shutdown timeout
func (c *Config) GetShutdownTimeout() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return 5 * time.Second
	}
	return c.ShutdownTimeout.Duration()
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration bytes, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./sonosd.sqlite"
	}
	if cfg.Script == "" {
		cfg.Script = "main.lua"
	}

	// UPnP defaults
	if cfg.UPnP.Timeout == 0 {
		cfg.UPnP.Timeout = Duration(10 * time.Second)
	}

	// Settle defaults
	if cfg.Settle.QueuePopulate == 0 {
		cfg.Settle.QueuePopulate = Duration(300 * time.Millisecond)
	}
	if cfg.Settle.Seek == 0 {
		cfg.Settle.Seek = Duration(500 * time.Millisecond)
	}

	// Notify defaults
	if cfg.Notify.DefaultDuration == 0 {
		cfg.Notify.DefaultDuration = Duration(5 * time.Second)
	}
	if cfg.Notify.DurationSlack == 0 {
		cfg.Notify.DurationSlack = Duration(1 * time.Second)
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// Telemetry defaults
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "sonosd"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks values that have no sensible default
func (c *Config) Validate() error {
	if c.Household.Seed == "" && len(c.Players) == 0 {
		return fmt.Errorf("config: household.seed or at least one entry in players is required")
	}
	for alias, addr := range c.Players {
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("config: player %q has no address", alias)
		}
	}
	if c.UPnP.RateLimitRPS < 0 {
		return fmt.Errorf("config: upnp.rate_limit_rps must not be negative")
	}
	if c.Settle.QueuePopulate < 0 || c.Settle.Seek < 0 {
		return fmt.Errorf("config: settle intervals must not be negative")
	}
	if c.Notify.DefaultDuration < 0 || c.Notify.DurationSlack < 0 {
		return fmt.Errorf("config: notify durations must not be negative")
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

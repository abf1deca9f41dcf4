package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the telemetry core.
// All configuration is loaded from YAML and can be overridden by
// environment variables.
type Config struct {
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Database     DatabaseConfig     `yaml:"database"`
	WriteBuffer  WriteBufferConfig  `yaml:"writeBuffer"`
	Cache        CacheConfig        `yaml:"cache"`
	MessageRelay MessageRelayConfig `yaml:"messageRelay"`
	Callbacks    CallbacksConfig    `yaml:"callbacks"`
	Server       ServerConfig       `yaml:"server"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logger"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	URL       string            `yaml:"url"`
	Topics    []string          `yaml:"topics"`
	Options   MQTTOptionsConfig `yaml:"options"`
	Reconnect MQTTReconnectConfig
}

// MQTTOptionsConfig mirrors the mqtt.options{qos, reconnectPeriod, clientId}
// config block.
type MQTTOptionsConfig struct {
	QoS             int    `yaml:"qos"`
	ReconnectPeriod int    `yaml:"reconnectPeriod"`
	ClientID        string `yaml:"clientId"`
}

// MQTTReconnectConfig contains reconnection backoff bounds, derived from
// MQTTOptionsConfig.ReconnectPeriod: InitialDelay is the configured
// period and MaxDelay is a fixed 60s cap.
type MQTTReconnectConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DatabaseConfig contains relational store connection settings used by the
// Write Buffer's batch-insert sink.
type DatabaseConfig struct {
	Enabled        bool                   `yaml:"enabled"`
	ConnectionPool DBConnectionPoolConfig `yaml:"connectionPool"`
	Path           string                 `yaml:"path"`
}

// DBConnectionPoolConfig mirrors the
// database.connectionPool{host,user,password,database,connectionLimit,waitForConnections,queueLimit}.
type DBConnectionPoolConfig struct {
	Host               string `yaml:"host"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	Database           string `yaml:"database"`
	ConnectionLimit    int    `yaml:"connectionLimit"`
	WaitForConnections bool   `yaml:"waitForConnections"`
	QueueLimit         int    `yaml:"queueLimit"`
}

// WriteBufferConfig contains batched-write tuning.
type WriteBufferConfig struct {
	MaxSize       int `yaml:"maxSize"`
	FlushInterval int `yaml:"flushInterval"` // milliseconds
	MaxRetries    int `yaml:"maxRetries"`
}

// CacheConfig contains latest-by-device cache tuning.
type CacheConfig struct {
	MaxSize int `yaml:"maxSize"`
	TTL     int `yaml:"ttl"` // milliseconds
}

// MessageRelayConfig contains relay rule configuration.
type MessageRelayConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Patterns    map[string]string `yaml:"patterns"` // category -> targetTemplate
	TopicPrefix string            `yaml:"topicPrefix"`
}

// CallbacksConfig contains HTTP callback retry policy.
// No callback sink ships in this binary; this
// shape exists so a future callback sink can share the bounded-retry policy.
type CallbacksConfig struct {
	Enabled    bool `yaml:"enabled"`
	RetryLimit int  `yaml:"retryLimit"`
	RetryDelay int  `yaml:"retryDelay"` // milliseconds
}

// ServerConfig contains HTTP/WebSocket host bindings. The server
// itself lives in a separate service; only the binding shape is owned
// here so downstream services share one source of configuration.
type ServerConfig struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig mirrors the server.rateLimit{windowMs,maxRequests} config
// block.
type RateLimitConfig struct {
	WindowMs    int `yaml:"windowMs"`
	MaxRequests int `yaml:"maxRequests"`
}

// InfluxDBConfig contains time-series sink settings. The InfluxDB sink is
// an optional extra fanout target alongside the relational write buffer.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batchSize"`
	FlushInterval int    `yaml:"flushInterval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: ConfigInvalid if the file cannot be read, parsed, or fails validation
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file: %v", ErrConfigInvalid, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config file: %v", ErrConfigInvalid, err)
	}

	applyEnvOverrides(cfg)
	deriveReconnectBounds(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the built-in defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			URL:    "tcp://localhost:1883",
			Topics: []string{"FamilyB/#", "FamilyT/#"},
			Options: MQTTOptionsConfig{
				QoS:             1,
				ReconnectPeriod: 1000,
				ClientID:        "telemetry-core",
			},
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    "./data/telemetry.db",
			ConnectionPool: DBConnectionPoolConfig{
				ConnectionLimit:    10,
				WaitForConnections: true,
				QueueLimit:         0,
			},
		},
		WriteBuffer: WriteBufferConfig{
			MaxSize:       1000,
			FlushInterval: 5000,
			MaxRetries:    3,
		},
		Cache: CacheConfig{
			MaxSize: 10000,
			TTL:     3_600_000,
		},
		MessageRelay: MessageRelayConfig{
			Enabled:     false,
			Patterns:    map[string]string{},
			TopicPrefix: "new",
		},
		Callbacks: CallbacksConfig{
			Enabled:    false,
			RetryLimit: 3,
			RetryDelay: 1000,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			RateLimit: RateLimitConfig{
				WindowMs:    60000,
				MaxRequests: 100,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// deriveReconnectBounds computes MQTTReconnectConfig from the configured
// reconnect period: the period (1s when not positive) becomes
// InitialDelay and MaxDelay is fixed at 60s. The period is not clamped.
func deriveReconnectBounds(cfg *Config) {
	period := time.Duration(cfg.MQTT.Options.ReconnectPeriod) * time.Millisecond
	if period <= 0 {
		period = time.Second
	}
	cfg.MQTT.Reconnect = MQTTReconnectConfig{
		InitialDelay: period,
		MaxDelay:     60 * time.Second,
	}
}

// applyEnvOverrides applies the supported environment variable overrides:
// MQTT_URL, DB_HOST/DB_USER/DB_PASS/DB_NAME, PORT, DEBUG, NODE_ENV.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MQTT_URL"); v != "" {
		cfg.MQTT.URL = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.ConnectionPool.Host = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.ConnectionPool.User = v
	}
	if v := os.Getenv("DB_PASS"); v != "" {
		cfg.Database.ConnectionPool.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.ConnectionPool.Database = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := parsePort(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := strings.ToLower(os.Getenv("DEBUG")); v == "true" || v == "1" {
		cfg.Logging.Level = "debug"
	}
	if v := os.Getenv("NODE_ENV"); v == "production" {
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = "json"
		}
	}
}

func parsePort(v string) (int, error) {
	var port int
	_, err := fmt.Sscanf(v, "%d", &port)
	if err != nil {
		return 0, err
	}
	return port, nil
}

// Validate checks the configuration for structural errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.URL == "" {
		errs = append(errs, "mqtt.url is required")
	}
	if c.MQTT.Options.QoS < 0 || c.MQTT.Options.QoS > 2 {
		errs = append(errs, "mqtt.options.qos must be 0, 1, or 2")
	}
	if c.WriteBuffer.MaxSize <= 0 {
		errs = append(errs, "writeBuffer.maxSize must be positive")
	}
	if c.WriteBuffer.MaxRetries < 0 {
		errs = append(errs, "writeBuffer.maxRetries must be non-negative")
	}
	if c.Cache.MaxSize <= 0 {
		errs = append(errs, "cache.maxSize must be positive")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.MessageRelay.Enabled && len(c.MessageRelay.Patterns) == 0 {
		errs = append(errs, "messageRelay.patterns must be non-empty when messageRelay.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// FlushIntervalDuration returns the write buffer flush interval as a Duration.
func (c *WriteBufferConfig) FlushIntervalDuration() time.Duration {
	return time.Duration(c.FlushInterval) * time.Millisecond
}

// TTLDuration returns the cache entry TTL as a Duration.
func (c *CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Millisecond
}

// RetryDelayDuration returns the callback retry delay as a Duration.
func (c *CallbacksConfig) RetryDelayDuration() time.Duration {
	return time.Duration(c.RetryDelay) * time.Millisecond
}

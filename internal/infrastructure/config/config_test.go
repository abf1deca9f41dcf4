package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  url: "tcp://broker.local:1883"
  topics:
    - "FamilyB/#"
    - "FamilyT/#"
  options:
    qos: 1
    reconnectPeriod: 2000
    clientId: "test-client"
database:
  enabled: true
  connectionPool:
    host: "localhost"
    user: "ingest"
    database: "telemetry"
    connectionLimit: 5
writeBuffer:
  maxSize: 500
  flushInterval: 2000
  maxRetries: 2
cache:
  maxSize: 5000
  ttl: 60000
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.URL != "tcp://broker.local:1883" {
		t.Errorf("MQTT.URL = %q, want %q", cfg.MQTT.URL, "tcp://broker.local:1883")
	}
	if len(cfg.MQTT.Topics) != 2 {
		t.Errorf("MQTT.Topics = %v, want 2 entries", cfg.MQTT.Topics)
	}
	if cfg.WriteBuffer.MaxSize != 500 {
		t.Errorf("WriteBuffer.MaxSize = %d, want 500", cfg.WriteBuffer.MaxSize)
	}
	if cfg.Cache.MaxSize != 5000 {
		t.Errorf("Cache.MaxSize = %d, want 5000", cfg.Cache.MaxSize)
	}
	// Server defaults should still apply since not overridden.
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("Load() error = %v, want ErrConfigInvalid", err)
	}
}

func TestLoad_InvalidQoS(t *testing.T) {
	content := `
mqtt:
  url: "tcp://localhost:1883"
  options:
    qos: 5
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("Load() error = %v, want ErrConfigInvalid", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
mqtt:
  url: "tcp://localhost:1883"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("MQTT_URL", "tcp://override.local:1883")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("PORT", "9090")
	t.Setenv("DEBUG", "true")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.URL != "tcp://override.local:1883" {
		t.Errorf("MQTT.URL = %q, want env override", cfg.MQTT.URL)
	}
	if cfg.Database.ConnectionPool.Host != "db.internal" {
		t.Errorf("Database.ConnectionPool.Host = %q, want env override", cfg.Database.ConnectionPool.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestValidate_RelayRequiresPatterns(t *testing.T) {
	cfg := defaultConfig()
	cfg.MessageRelay.Enabled = true
	cfg.MessageRelay.Patterns = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for relay enabled without patterns")
	}
}

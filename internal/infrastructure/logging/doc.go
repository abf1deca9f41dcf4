// Package logging provides structured logging for the telemetry core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the ingest pipeline, decoders,
// state engine, write buffer, cache, and relay.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logger:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("frame decoded", "topic", topic, "kind", kind)
//	logger.Error("decode failed", "error", err)
//
// # Security
//
// Never log raw credentials or MQTT broker passwords. Frame payloads are
// safe to log (telemetry, not secrets); this package does not truncate
// them, so a logged payload appears in full.
package logging

// Telemetry Core - Rack Telemetry Ingest Middleware
//
// This is the main entry point for the telemetry-core application:
// MQTT telemetry from rack-management gateways is decoded into
// canonical records, diffed against per-module state, recorded in the
// relational history store, and republished for downstream consumers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rackmesh/telemetry-core/internal/cache"
	"github.com/rackmesh/telemetry-core/internal/decode"
	"github.com/rackmesh/telemetry-core/internal/infrastructure/config"
	"github.com/rackmesh/telemetry-core/internal/infrastructure/database"
	"github.com/rackmesh/telemetry-core/internal/infrastructure/influxdb"
	"github.com/rackmesh/telemetry-core/internal/infrastructure/logging"
	"github.com/rackmesh/telemetry-core/internal/infrastructure/mqtt"
	"github.com/rackmesh/telemetry-core/internal/pipeline"
	"github.com/rackmesh/telemetry-core/internal/relay"
	"github.com/rackmesh/telemetry-core/internal/state"
	"github.com/rackmesh/telemetry-core/internal/writebuffer"

	_ "github.com/rackmesh/telemetry-core/migrations" // registers embedded migrations
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// shutdownGrace bounds the graceful drain after a termination signal.
const shutdownGrace = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	fmt.Printf("Telemetry Core %s (%s) built %s\n", version, commit, date)

	// Cancel on SIGINT/SIGTERM for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Only configuration errors are fatal; a broker or
// time-series outage leaves the process running degraded.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("starting telemetry core", "config", configPath)

	// Relational history store for the write buffer. Disabled by config
	// leaves the buffer as a no-op and the rest of the fan-out intact.
	var buffer *writebuffer.Buffer
	var history pipeline.HistoryStore
	if cfg.Database.Enabled {
		db, err := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     true,
			BusyTimeout: 5,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close() //nolint:errcheck // Best effort on shutdown

		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		store := writebuffer.NewSensorStore(db)
		history = store
		buffer = writebuffer.New(store, cfg.WriteBuffer)
	} else {
		logger.Warn("database sink disabled, records will not be persisted")
		buffer = writebuffer.New(nil, cfg.WriteBuffer)
	}
	buffer.SetLogger(logger.With("component", "writebuffer"))

	// Optional time-series sink.
	var timeseries pipeline.TimeSeries
	if cfg.InfluxDB.Enabled {
		influx, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			logger.Warn("influxdb unavailable, time-series sink disabled", "error", err)
		} else {
			defer influx.Close() //nolint:errcheck // Best effort on shutdown
			timeseries = influx
		}
	}

	rly, err := relay.New(cfg.MessageRelay)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfigInvalid, err)
	}
	rly.SetLogger(logger.With("component", "relay"))

	// Broker outage is tolerated: the process keeps retrying in
	// degraded mode rather than aborting, and once connected the
	// adapter replays subscriptions itself.
	broker, err := connectBroker(ctx, cfg.MQTT, logger)
	if err != nil {
		return err
	}
	broker.SetLogger(logger.With("component", "mqtt"))
	defer broker.Close() //nolint:errcheck // Best effort on shutdown

	engine := state.NewEngine()
	engine.SetLogger(logger.With("component", "state"))

	deviceCache := cache.New(cfg.Cache.MaxSize, cfg.Cache.TTLDuration())
	deviceCache.SetLogger(logger.With("component", "cache"))

	pipe := pipeline.New(pipeline.Options{
		Topics: cfg.MQTT.Topics,
		QoS:    byte(cfg.MQTT.Options.QoS),
	}, pipeline.Deps{
		Registry:   decode.NewRegistry(),
		Engine:     engine,
		Cache:      deviceCache,
		Buffer:     buffer,
		Relay:      rly,
		Broker:     broker,
		TimeSeries: timeseries,
		History:    history,
		Logger:     logger.With("component", "pipeline"),
	})

	if err := pipe.Start(ctx); err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	logger.Info("initialisation complete, ingesting")
	<-ctx.Done()

	logger.Info("shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := pipe.Shutdown(shutdownCtx); err != nil {
		logger.Error("pipeline shutdown incomplete", "error", err)
	}

	logger.Info("telemetry core stopped")
	return nil
}

// connectBroker retries the bounded MQTT connect until it succeeds or
// the process is told to stop.
func connectBroker(ctx context.Context, cfg config.MQTTConfig, logger *logging.Logger) (*mqtt.Client, error) {
	for {
		broker, err := mqtt.Connect(cfg)
		if err == nil {
			return broker, nil
		}
		logger.Warn("MQTT broker unreachable, retrying", "url", cfg.URL, "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("stopped before broker connection: %w", ctx.Err())
		case <-time.After(cfg.Reconnect.InitialDelay):
		}
	}
}

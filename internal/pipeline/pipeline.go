package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rackmesh/telemetry-core/internal/cache"
	"github.com/rackmesh/telemetry-core/internal/canonical"
	"github.com/rackmesh/telemetry-core/internal/decode"
	"github.com/rackmesh/telemetry-core/internal/infrastructure/mqtt"
	"github.com/rackmesh/telemetry-core/internal/relay"
	"github.com/rackmesh/telemetry-core/internal/state"
	"github.com/rackmesh/telemetry-core/internal/topics"
	"github.com/rackmesh/telemetry-core/internal/writebuffer"
)

// Defaults for pipeline tuning.
const (
	defaultShardBuffer     = 256
	defaultShutdownTimeout = 10 * time.Second
	maxWorkers             = 8
	minWorkers             = 2
)

// LifecycleState is the pipeline's lifecycle position.
// Transitions are monotonic: a pipeline never moves backwards.
type LifecycleState string

const (
	StateNew          LifecycleState = "new"
	StateInitializing LifecycleState = "initializing"
	StateRunning      LifecycleState = "running"
	StateShuttingDown LifecycleState = "shutting_down"
	StateStopped      LifecycleState = "stopped"
)

// stateRank orders lifecycle states for the monotonic check.
var stateRank = map[LifecycleState]int{
	StateNew:          0,
	StateInitializing: 1,
	StateRunning:      2,
	StateShuttingDown: 3,
	StateStopped:      4,
}

// Frame is one raw MQTT payload awaiting decode.
type Frame struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Broker is the slice of the MQTT adapter the pipeline needs: inbound
// subscriptions and relay publishes.
type Broker interface {
	Subscribe(pattern string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// WSSink receives every canonical record for live broadcast. The
// transport behind it is an external collaborator.
type WSSink interface {
	Broadcast(rec canonical.Record)
}

// TimeSeries receives kind-specific sensor points. Satisfied by the
// InfluxDB client; nil disables the sink.
type TimeSeries interface {
	WriteTempHum(deviceID string, moduleNumber int, position int, temperature, humidity float64)
	WriteNoise(deviceID string, moduleNumber int, position int, level float64)
	WriteRfidChange(deviceID string, moduleNumber int, position int, action, rfid string, alarm int)
	WriteDoorEvent(deviceID string, moduleNumber int, status string, durationSeconds float64)
	WriteQualityScore(deviceID string, messageKind string, score float64)
}

// HistoryStore serves the stored-record query surface.
type HistoryStore interface {
	DeviceHistory(ctx context.Context, deviceID string, limit int) ([]writebuffer.HistoryRow, error)
}

// Logger defines the logging interface used by the Pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options tunes the pipeline.
type Options struct {
	// Topics are the MQTT subscription patterns, e.g. FamilyB/#.
	Topics []string

	// QoS for inbound subscriptions and relay publishes.
	QoS byte

	// Workers is the decode worker count. Zero means derived from the
	// CPU count.
	Workers int

	// ShutdownTimeout bounds the drain on Shutdown. Zero means the 10s
	// default.
	ShutdownTimeout time.Duration
}

// Deps are the pipeline's collaborators, passed at construction so no
// component reaches back up into the pipeline.
type Deps struct {
	Registry   *decode.Registry
	Engine     *state.Engine
	Cache      *cache.Cache
	Buffer     *writebuffer.Buffer
	Relay      *relay.Relay
	Broker     Broker
	WS         WSSink
	TimeSeries TimeSeries
	History    HistoryStore
	Logger     Logger
}

// Pipeline connects MQTT subscription, decoding, canonicalization,
// state tracking and the sink fan-out.
type Pipeline struct {
	opts   Options
	deps   Deps
	mapper decode.Mapper
	logger Logger
	bus    *Bus

	shards []chan Frame
	done   chan struct{}
	// intakeMu lets Shutdown close the shard channels only once no
	// HandleFrame call is mid-send.
	intakeMu sync.RWMutex
	cancel   context.CancelFunc
	group    *errgroup.Group

	lifecycleMu sync.RWMutex
	lifecycle   LifecycleState

	statsMu        sync.Mutex
	framesReceived uint64
	loopSkipped    uint64
	rejected       uint64
	decodeErrors   uint64
	stateErrors    uint64
	recordsEmitted uint64
	sinkFailures   map[string]uint64
}

// New creates a pipeline in the New lifecycle state.
func New(opts Options, deps Deps) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
		if opts.Workers > maxWorkers {
			opts.Workers = maxWorkers
		}
		if opts.Workers < minWorkers {
			opts.Workers = minWorkers
		}
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Pipeline{
		opts:         opts,
		deps:         deps,
		logger:       logger,
		bus:          NewBus(),
		done:         make(chan struct{}),
		lifecycle:    StateNew,
		sinkFailures: make(map[string]uint64),
	}
}

// Bus returns the pipeline's event bus for subscribers.
func (p *Pipeline) Bus() *Bus {
	return p.bus
}

// State returns the current lifecycle state.
func (p *Pipeline) State() LifecycleState {
	p.lifecycleMu.RLock()
	defer p.lifecycleMu.RUnlock()
	return p.lifecycle
}

// transition moves to a later lifecycle state. Moving backwards (or
// re-entering the same state) is an error.
func (p *Pipeline) transition(to LifecycleState) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if stateRank[to] <= stateRank[p.lifecycle] {
		return fmt.Errorf("%w: %s -> %s", ErrAlreadyStarted, p.lifecycle, to)
	}
	p.lifecycle = to
	return nil
}

// Start wires the components, launches the worker pool, and subscribes
// to the configured topic patterns. A broker subscription failure is
// tolerated: the adapter replays subscriptions once it connects.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.transition(StateInitializing); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	if p.deps.Cache != nil {
		p.deps.Cache.SetOnExpire(func(deviceID string, rec canonical.Record) {
			p.bus.expired.publish(ExpiredEvent{DeviceID: deviceID, Record: rec})
		})
	}
	if p.deps.Buffer != nil {
		p.deps.Buffer.SetOnBatchStored(func(batchID string, count int) {
			p.bus.batchStored.publish(BatchStoredEvent{
				BatchID: batchID,
				Count:   count,
				Time:    time.Now().UTC(),
			})
		})
	}

	p.shards = make([]chan Frame, p.opts.Workers)
	group, _ := errgroup.WithContext(runCtx)
	p.group = group
	for i := range p.shards {
		shard := make(chan Frame, defaultShardBuffer)
		p.shards[i] = shard
		group.Go(func() error {
			for frame := range shard {
				p.process(frame)
			}
			return nil
		})
	}

	if p.deps.Buffer != nil {
		group.Go(func() error {
			p.deps.Buffer.Run(runCtx)
			return nil
		})
	}
	if p.deps.Cache != nil {
		group.Go(func() error {
			p.deps.Cache.Run(runCtx)
			return nil
		})
	}

	for _, pattern := range p.opts.Topics {
		if err := p.deps.Broker.Subscribe(pattern, p.opts.QoS, p.HandleFrame); err != nil {
			p.logger.Warn("subscription failed, running degraded", "pattern", pattern, "error", err)
		}
	}

	if err := p.transition(StateRunning); err != nil {
		return err
	}
	p.logger.Info("pipeline running", "workers", p.opts.Workers, "topics", p.opts.Topics)
	return nil
}

// HandleFrame is the MQTT message handler: it admits a raw frame into
// the worker pool. Frames for one device always land on the same shard,
// which gives sinks per-device ordering.
func (p *Pipeline) HandleFrame(topic string, payload []byte) error {
	if p.State() != StateRunning {
		p.statsMu.Lock()
		p.rejected++
		p.statsMu.Unlock()
		return ErrNotRunning
	}

	p.statsMu.Lock()
	p.framesReceived++
	p.statsMu.Unlock()

	// Break relay loops before any work happens.
	if p.deps.Relay != nil && p.deps.Relay.ShouldSkip(topic) {
		p.statsMu.Lock()
		p.loopSkipped++
		p.statsMu.Unlock()
		p.logger.Debug("skipping self-generated topic", "topic", topic)
		return nil
	}

	frame := Frame{
		Topic:      topic,
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: time.Now().UTC(),
	}

	p.intakeMu.RLock()
	defer p.intakeMu.RUnlock()

	select {
	case <-p.done:
		return ErrNotRunning
	default:
	}

	shard := p.shards[p.shardFor(topic)]
	select {
	case shard <- frame:
		return nil
	case <-p.done:
		return ErrNotRunning
	}
}

// shardFor maps a topic's device segment to a worker index.
func (p *Pipeline) shardFor(topic string) int {
	deviceID := topics.DeviceID(topic)
	h := fnv.New32a()
	h.Write([]byte(deviceID)) //nolint:errcheck // fnv never fails
	return int(h.Sum32() % uint32(len(p.shards)))
}

// process runs one frame through decode -> map -> build -> state ->
// fanout. Errors short-circuit to the error stream; a state failure
// degrades to pass-through.
func (p *Pipeline) process(frame Frame) {
	records, err := p.deps.Registry.Decode(frame.Topic, frame.Payload, frame.ReceivedAt)
	if err != nil {
		p.statsMu.Lock()
		p.decodeErrors++
		p.statsMu.Unlock()
		p.publishError("decode", frame.Topic, "", "", err)
		p.logger.Warn("frame dropped", "stage", "decode", "topic", frame.Topic, "error", err)
		return
	}

	for _, rec := range records {
		in, err := p.mapper.Map(rec)
		if err != nil {
			p.statsMu.Lock()
			p.decodeErrors++
			p.statsMu.Unlock()
			p.publishError("map", frame.Topic, rec.DeviceID, canonical.MessageKind(rec.MessageKind), err)
			continue
		}

		built, err := canonical.Build(in)
		if err != nil {
			p.statsMu.Lock()
			p.decodeErrors++
			p.statsMu.Unlock()
			p.publishError("build", frame.Topic, rec.DeviceID, canonical.MessageKind(rec.MessageKind), err)
			continue
		}

		out, err := p.deps.Engine.Update(built)
		switch {
		case err == nil:
		case errors.Is(err, state.ErrUntrackedKind):
			// Untracked kinds flow through without annotations.
		default:
			p.statsMu.Lock()
			p.stateErrors++
			p.statsMu.Unlock()
			p.publishError("state", frame.Topic, built.DeviceID, built.MessageKind, err)
			out = built
		}

		p.fanout(out)

		p.statsMu.Lock()
		p.recordsEmitted++
		p.statsMu.Unlock()
		p.bus.processed.publish(out)
	}
}

// publishError emits a message.error event.
func (p *Pipeline) publishError(stage, topic, deviceID string, kind canonical.MessageKind, err error) {
	p.bus.errors.publish(ErrorEvent{
		Stage:    stage,
		Topic:    topic,
		DeviceID: deviceID,
		Kind:     kind,
		Err:      err,
		Time:     time.Now().UTC(),
	})
}

// Shutdown drains the pipeline: intake stops, buffered frames are
// processed up to the shutdown deadline, and the write buffer runs its
// final flush.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if err := p.transition(StateShuttingDown); err != nil {
		return err
	}
	p.logger.Info("pipeline shutting down")

	// Stop intake, stop the timed flush and cache sweep, then let the
	// workers drain what is already queued.
	close(p.done)
	p.intakeMu.Lock()
	for _, shard := range p.shards {
		close(shard)
	}
	p.intakeMu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}

	drained := make(chan struct{})
	go func() {
		if p.group != nil {
			p.group.Wait() //nolint:errcheck // Workers return nil
		}
		close(drained)
	}()

	deadline := time.NewTimer(p.opts.ShutdownTimeout)
	defer deadline.Stop()
	select {
	case <-drained:
	case <-deadline.C:
		p.logger.Warn("shutdown deadline exceeded, abandoning in-flight work")
	case <-ctx.Done():
		p.logger.Warn("shutdown context cancelled", "error", ctx.Err())
	}

	// One final flush for whatever the drain left behind.
	var flushErr error
	if p.deps.Buffer != nil {
		flushErr = p.deps.Buffer.Close(ctx)
	}

	p.bus.Close()
	if err := p.transition(StateStopped); err != nil {
		return err
	}
	p.logger.Info("pipeline stopped")
	return flushErr
}

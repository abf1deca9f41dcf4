package state

import (
	"sync"
	"time"

	"github.com/rackmesh/telemetry-core/internal/canonical"
)

// historyCap bounds the per-key change history (FIFO).
const historyCap = 100

// Logger defines the logging interface used by the Engine.
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

// cell holds one key's tracked state. The cell mutex serializes updates
// to the key; the engine-level map mutex is only held long enough to
// find or create the cell, so different keys update in parallel.
type cell struct {
	mu       sync.Mutex
	previous any
	prevTime time.Time
	history  []canonical.Change
}

// Engine maintains per-(deviceId, moduleNumber, messageKind) previous
// state and computes change events for each update.
//
// All public methods are thread-safe. Between two updates to the same
// key, every observer of the second sees the effects of the first.
type Engine struct {
	cells  map[canonical.StateKey]*cell
	mu     sync.RWMutex
	logger Logger

	statsMu sync.Mutex
	updates uint64
	changes uint64
	errors  uint64
}

// NewEngine creates an empty state engine.
func NewEngine() *Engine {
	return &Engine{
		cells:  make(map[canonical.StateKey]*cell),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// Update diffs rec against the key's previous payload, stores the new
// payload, and returns rec annotated with the resulting change events.
//
// For RFID records the returned payload is filtered down to only the
// positions that changed; for all other tracked kinds the previous
// payload is attached as PreviousState. Untracked kinds (Heartbeat,
// command acks) are returned unchanged with ErrUntrackedKind; payloads
// that do not match their declared kind are returned unchanged with
// ErrStateFailed.
func (e *Engine) Update(rec canonical.Record) (canonical.Record, error) {
	if !tracked(rec.MessageKind) {
		return rec, ErrUntrackedKind
	}

	c := e.cellFor(rec.Key())

	c.mu.Lock()
	defer c.mu.Unlock()

	out, store, err := diff(c, rec)
	if err != nil {
		e.statsMu.Lock()
		e.errors++
		e.statsMu.Unlock()
		e.logger.Warn("state diff failed", "key", rec.String(), "error", err)
		return rec, err
	}

	c.appendHistory(out.Changes)
	c.previous = store
	c.prevTime = rec.Timestamp

	e.statsMu.Lock()
	e.updates++
	e.changes += uint64(len(out.Changes))
	e.statsMu.Unlock()

	return out, nil
}

// cellFor finds or lazily creates the cell for a key.
func (e *Engine) cellFor(key canonical.StateKey) *cell {
	e.mu.RLock()
	c, ok := e.cells[key]
	e.mu.RUnlock()
	if ok {
		return c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok = e.cells[key]; ok {
		return c
	}
	c = &cell{}
	e.cells[key] = c
	return c
}

// appendHistory appends events to the bounded FIFO history, dropping
// the oldest entries once the cap is reached.
func (c *cell) appendHistory(events []canonical.Change) {
	c.history = append(c.history, events...)
	if over := len(c.history) - historyCap; over > 0 {
		c.history = c.history[over:]
	}
}

// Previous returns the last stored payload for a key, or nil if the key
// has never been updated.
func (e *Engine) Previous(key canonical.StateKey) any {
	e.mu.RLock()
	c, ok := e.cells[key]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previous
}

// History returns a copy of a key's change history, oldest first.
func (e *Engine) History(key canonical.StateKey) []canonical.Change {
	e.mu.RLock()
	c, ok := e.cells[key]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]canonical.Change, len(c.history))
	copy(out, c.history)
	return out
}

// Clear evicts a single key's state cell.
func (e *Engine) Clear(key canonical.StateKey) {
	e.mu.Lock()
	delete(e.cells, key)
	e.mu.Unlock()
}

// ClearDevice evicts every state cell belonging to a device.
func (e *Engine) ClearDevice(deviceID string) {
	e.mu.Lock()
	for key := range e.cells {
		if key.DeviceID == deviceID {
			delete(e.cells, key)
		}
	}
	e.mu.Unlock()
}

// Stats holds engine statistics for monitoring.
type Stats struct {
	Keys    int
	Updates uint64
	Changes uint64
	Errors  uint64
}

// GetStats returns current engine statistics.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	keys := len(e.cells)
	e.mu.RUnlock()

	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return Stats{
		Keys:    keys,
		Updates: e.updates,
		Changes: e.changes,
		Errors:  e.errors,
	}
}

// tracked reports whether the engine maintains state for a message
// kind. Heartbeats and command acknowledgements pass through untracked.
func tracked(kind canonical.MessageKind) bool {
	switch kind {
	case canonical.MessageKindRfid,
		canonical.MessageKindTempHum,
		canonical.MessageKindNoise,
		canonical.MessageKindDoor,
		canonical.MessageKindColor,
		canonical.MessageKindDeviceInfo,
		canonical.MessageKindModuleInfo:
		return true
	default:
		return false
	}
}

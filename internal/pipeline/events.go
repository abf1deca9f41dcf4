package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rackmesh/telemetry-core/internal/canonical"
)

// defaultStreamBuffer is the channel capacity handed to subscribers
// that do not ask for one.
const defaultStreamBuffer = 64

// ErrorEvent describes a per-frame or per-record failure, with enough
// context to diagnose.
type ErrorEvent struct {
	Stage    string
	Topic    string
	DeviceID string
	Kind     canonical.MessageKind
	Err      error
	Time     time.Time
}

// BatchStoredEvent is emitted after the write buffer lands a batch.
type BatchStoredEvent struct {
	BatchID string
	Count   int
	Time    time.Time
}

// ExpiredEvent is emitted when the cache sweep drops a device's entry.
type ExpiredEvent struct {
	DeviceID string
	Record   canonical.Record
}

// RelayEvent is emitted for every record the relay republished.
type RelayEvent struct {
	Topic  string
	Record canonical.Record
}

// stream fans one event type out to its subscribers. Publishes never
// block: a subscriber that stops draining loses events, counted in
// dropped.
type stream[T any] struct {
	mu      sync.RWMutex
	subs    []chan T
	closed  bool
	dropped atomic.Uint64
}

func (s *stream[T]) subscribe(buffer int) <-chan T {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	ch := make(chan T, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

func (s *stream[T]) publish(event T) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *stream[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}

func (s *stream[T]) droppedCount() uint64 {
	return s.dropped.Load()
}

// Bus carries the pipeline's typed event streams.
// Subscribers receive a channel that is closed on shutdown, propagating
// cancellation downstream.
type Bus struct {
	processed   stream[canonical.Record]
	errors      stream[ErrorEvent]
	batchStored stream[BatchStoredEvent]
	expired     stream[ExpiredEvent]
	relayed     stream[RelayEvent]
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	return &Bus{}
}

// SubscribeProcessed returns a stream of every canonical record the
// pipeline emits ("message.processed").
func (b *Bus) SubscribeProcessed(buffer int) <-chan canonical.Record {
	return b.processed.subscribe(buffer)
}

// SubscribeErrors returns the "message.error" stream.
func (b *Bus) SubscribeErrors(buffer int) <-chan ErrorEvent {
	return b.errors.subscribe(buffer)
}

// SubscribeBatchStored returns the "db.batch.stored" stream.
func (b *Bus) SubscribeBatchStored(buffer int) <-chan BatchStoredEvent {
	return b.batchStored.subscribe(buffer)
}

// SubscribeExpired returns the "data.expired" stream.
func (b *Bus) SubscribeExpired(buffer int) <-chan ExpiredEvent {
	return b.expired.subscribe(buffer)
}

// SubscribeRelayed returns the "relay.message" stream.
func (b *Bus) SubscribeRelayed(buffer int) <-chan RelayEvent {
	return b.relayed.subscribe(buffer)
}

// Close closes every subscriber channel. Publishes after Close are
// discarded.
func (b *Bus) Close() {
	b.processed.close()
	b.errors.close()
	b.batchStored.close()
	b.expired.close()
	b.relayed.close()
}

// Dropped returns the total events lost to slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.processed.droppedCount() +
		b.errors.droppedCount() +
		b.batchStored.droppedCount() +
		b.expired.droppedCount() +
		b.relayed.droppedCount()
}

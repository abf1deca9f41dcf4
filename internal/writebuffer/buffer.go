package writebuffer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rackmesh/telemetry-core/internal/canonical"
	"github.com/rackmesh/telemetry-core/internal/infrastructure/config"
)

// retryBaseDelay is the unit of the retry backoff: attempt n waits
// retryBaseDelay * (n+1) before the next batch save.
const retryBaseDelay = time.Second

// Store persists canonical records. SaveBatch writes all records in one
// statement; SaveHistory writes a single record and is the per-row
// fallback when the batch path has exhausted its retries.
type Store interface {
	SaveBatch(ctx context.Context, batchID string, records []canonical.Record) error
	SaveHistory(ctx context.Context, rec canonical.Record) error
}

// Logger defines the logging interface used by the Buffer.
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

// Buffer coalesces canonical records into batched store writes.
//
// Push appends; reaching the size limit triggers a flush before Push
// returns. Run flushes on a timer. At most one flush executes at a
// time. With a nil store the buffer is disabled: Push and Flush are
// no-ops and records flow to the other sinks untouched.
//
// All public methods are thread-safe.
type Buffer struct {
	store  Store
	cfg    config.WriteBufferConfig
	logger Logger

	mu         sync.Mutex
	items      []canonical.Record
	isFlushing bool
	closed     bool

	// retryDelay is swappable for tests.
	retryDelay func(attempt int) time.Duration

	// onBatchStored, when set, is invoked after each successful batch
	// save. The pipeline wires this to its db.batch.stored event.
	onBatchStored func(batchID string, count int)

	statsMu      sync.Mutex
	pushes       uint64
	flushes      uint64
	retries      uint64
	fallbackRows uint64
	dropped      uint64
	lastFlush    time.Time
}

// New creates a write buffer over store. A nil store disables the
// buffer entirely.
func New(store Store, cfg config.WriteBufferConfig) *Buffer {
	return &Buffer{
		store:  store,
		cfg:    cfg,
		logger: noopLogger{},
		retryDelay: func(attempt int) time.Duration {
			return retryBaseDelay * time.Duration(attempt+1)
		},
	}
}

// SetLogger sets the logger for the buffer.
func (b *Buffer) SetLogger(logger Logger) {
	b.logger = logger
}

// SetOnBatchStored registers a callback invoked after each successful
// batch save.
func (b *Buffer) SetOnBatchStored(fn func(batchID string, count int)) {
	b.onBatchStored = fn
}

// Push appends a record. When the buffer reaches its size limit the
// triggered flush runs synchronously, before Push returns.
func (b *Buffer) Push(ctx context.Context, rec canonical.Record) error {
	if b.store == nil {
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrShutdown
	}
	b.items = append(b.items, rec)
	full := len(b.items) >= b.cfg.MaxSize
	b.mu.Unlock()

	b.statsMu.Lock()
	b.pushes++
	b.statsMu.Unlock()

	if full {
		return b.Flush(ctx)
	}
	return nil
}

// Run flushes the buffer every flush interval until ctx is cancelled.
func (b *Buffer) Run(ctx context.Context) {
	if b.store == nil {
		return
	}

	ticker := time.NewTicker(b.cfg.FlushIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Flush(ctx); err != nil {
				b.logger.Error("timed flush failed", "error", err)
			}
		}
	}
}

// Flush drains the buffer through the store. It is a critical section:
// if a flush is already in progress the call returns immediately.
//
// A failing batch is put back at the front of the buffer and retried
// with backoff up to maxRetries times; records pushed in the meantime
// join the retried batch. After the final failure the snapshot degrades
// to per-row writes, and rows that still fail are dropped.
func (b *Buffer) Flush(ctx context.Context) error {
	if b.store == nil {
		return nil
	}

	b.mu.Lock()
	if b.isFlushing || len(b.items) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.isFlushing = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.isFlushing = false
		b.mu.Unlock()
	}()

	for attempt := 0; ; attempt++ {
		b.mu.Lock()
		batch := b.items
		b.items = nil
		b.mu.Unlock()

		if len(batch) == 0 {
			return nil
		}

		batchID := uuid.NewString()
		err := b.store.SaveBatch(ctx, batchID, batch)
		if err == nil {
			b.statsMu.Lock()
			b.flushes++
			b.lastFlush = time.Now().UTC()
			b.statsMu.Unlock()

			b.logger.Debug("batch stored", "batchId", batchID, "count", len(batch))
			if b.onBatchStored != nil {
				b.onBatchStored(batchID, len(batch))
			}
			return nil
		}

		if attempt >= b.cfg.MaxRetries {
			b.logger.Error("batch save exhausted retries, falling back to per-row writes",
				"batchId", batchID, "count", len(batch), "error", err)
			b.fallback(ctx, batch)
			return fmt.Errorf("%w: %v", ErrBatchFailed, err)
		}

		// Transient failure: the batch goes back to the front of the
		// buffer so ordering is preserved across the retry.
		b.mu.Lock()
		b.items = append(batch, b.items...)
		b.mu.Unlock()

		b.statsMu.Lock()
		b.retries++
		b.statsMu.Unlock()

		delay := b.retryDelay(attempt)
		b.logger.Warn("batch save failed, retrying",
			"batchId", batchID, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// fallback writes each record of a failed batch individually. Rows that
// still fail are logged and dropped, not re-enqueued, so memory stays
// bounded.
func (b *Buffer) fallback(ctx context.Context, batch []canonical.Record) {
	for _, rec := range batch {
		if err := b.store.SaveHistory(ctx, rec); err != nil {
			b.statsMu.Lock()
			b.dropped++
			b.statsMu.Unlock()
			b.logger.Error("per-row fallback failed, dropping record",
				"record", rec.String(), "error", err)
			continue
		}
		b.statsMu.Lock()
		b.fallbackRows++
		b.statsMu.Unlock()
	}
}

// Close rejects further pushes and runs one final flush so the drain
// leaves nothing behind.
func (b *Buffer) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	return b.Flush(ctx)
}

// Size returns the number of buffered records.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Stats holds buffer statistics for monitoring.
type Stats struct {
	Size         int
	Pushes       uint64
	Flushes      uint64
	Retries      uint64
	FallbackRows uint64
	Dropped      uint64
	LastFlush    time.Time
}

// GetStats returns current buffer statistics.
func (b *Buffer) GetStats() Stats {
	size := b.Size()

	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return Stats{
		Size:         size,
		Pushes:       b.pushes,
		Flushes:      b.flushes,
		Retries:      b.retries,
		FallbackRows: b.fallbackRows,
		Dropped:      b.dropped,
		LastFlush:    b.lastFlush,
	}
}

package writebuffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rackmesh/telemetry-core/internal/canonical"
	"github.com/rackmesh/telemetry-core/internal/infrastructure/config"
)

// fakeStore records saved batches and rows and can be told to fail.
type fakeStore struct {
	mu           sync.Mutex
	batches      [][]canonical.Record
	rows         []canonical.Record
	batchFails   int // SaveBatch fails this many times before succeeding
	rowFailEvery int // every Nth SaveHistory call fails (0 = never)
	rowCalls     int
}

func (s *fakeStore) SaveBatch(_ context.Context, _ string, records []canonical.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchFails > 0 {
		s.batchFails--
		return errors.New("transient batch failure")
	}
	batch := make([]canonical.Record, len(records))
	copy(batch, records)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *fakeStore) SaveHistory(_ context.Context, rec canonical.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCalls++
	if s.rowFailEvery > 0 && s.rowCalls%s.rowFailEvery == 0 {
		return errors.New("row failure")
	}
	s.rows = append(s.rows, rec)
	return nil
}

func (s *fakeStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.rows)
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func testBuffer(store Store, maxSize, maxRetries int) *Buffer {
	b := New(store, config.WriteBufferConfig{
		MaxSize:       maxSize,
		FlushInterval: 5000,
		MaxRetries:    maxRetries,
	})
	b.retryDelay = func(int) time.Duration { return time.Millisecond }
	return b
}

func testRecord(t *testing.T, deviceID string, i int) canonical.Record {
	t.Helper()
	rec, err := canonical.Build(canonical.Input{
		DeviceID:    deviceID,
		DeviceKind:  canonical.DeviceKindB,
		MessageKind: canonical.MessageKindDoor,
		Timestamp:   time.Now().UTC(),
		Payload:     canonical.DoorPayload{Status: fmt.Sprintf("0x%02X", i)},
		RawTopic:    "FamilyB/" + deviceID + "/OpeAck",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return rec
}

func TestBuffer_FlushOnMaxSize(t *testing.T) {
	store := &fakeStore{}
	b := testBuffer(store, 3, 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := b.Push(ctx, testRecord(t, "dev", i)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	if got := len(store.batches); got != 0 {
		t.Fatalf("batches = %d before reaching maxSize, want 0", got)
	}

	// The third push reaches maxSize and flushes before returning.
	if err := b.Push(ctx, testRecord(t, "dev", 2)); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if got := len(store.batches); got != 1 {
		t.Fatalf("batches = %d after reaching maxSize, want 1", got)
	}
	if got := len(store.batches[0]); got != 3 {
		t.Errorf("batch size = %d, want 3", got)
	}
	if b.Size() != 0 {
		t.Errorf("Size() = %d after flush, want 0", b.Size())
	}
}

func TestBuffer_RetryThenSuccess(t *testing.T) {
	store := &fakeStore{batchFails: 3}
	b := testBuffer(store, 1000, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := b.Push(ctx, testRecord(t, "dev", i)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	// Drained exactly once, nothing duplicated.
	if got := len(store.batches); got != 1 {
		t.Fatalf("batches = %d, want 1", got)
	}
	if got := store.savedCount(); got != 5 {
		t.Errorf("saved records = %d, want 5", got)
	}
	if b.Size() != 0 {
		t.Errorf("Size() = %d, want 0", b.Size())
	}

	stats := b.GetStats()
	if stats.Retries != 3 {
		t.Errorf("Retries = %d, want 3", stats.Retries)
	}
	if stats.Flushes != 1 {
		t.Errorf("Flushes = %d, want 1", stats.Flushes)
	}
}

func TestBuffer_FallbackAfterRetriesExhausted(t *testing.T) {
	// Batch path always fails; every second row write fails too.
	store := &fakeStore{batchFails: 1 << 30, rowFailEvery: 2}
	b := testBuffer(store, 1000, 2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := b.Push(ctx, testRecord(t, "dev", i)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	err := b.Flush(ctx)
	if !errors.Is(err, ErrBatchFailed) {
		t.Fatalf("Flush() error = %v, want ErrBatchFailed", err)
	}

	stats := b.GetStats()
	if stats.FallbackRows != 2 {
		t.Errorf("FallbackRows = %d, want 2", stats.FallbackRows)
	}
	if stats.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", stats.Dropped)
	}
	// Failed rows are dropped, not re-enqueued.
	if b.Size() != 0 {
		t.Errorf("Size() = %d, want 0", b.Size())
	}
}

func TestBuffer_DisabledIsNoop(t *testing.T) {
	b := New(nil, config.WriteBufferConfig{MaxSize: 10, FlushInterval: 5000, MaxRetries: 3})
	ctx := context.Background()

	if err := b.Push(ctx, testRecord(t, "dev", 0)); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if b.Size() != 0 {
		t.Errorf("Size() = %d, want 0 when disabled", b.Size())
	}
}

func TestBuffer_CloseRejectsPushes(t *testing.T) {
	store := &fakeStore{}
	b := testBuffer(store, 1000, 3)
	ctx := context.Background()

	if err := b.Push(ctx, testRecord(t, "dev", 0)); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Final drain happened.
	if got := store.savedCount(); got != 1 {
		t.Errorf("saved records = %d after Close, want 1", got)
	}
	if b.Size() != 0 {
		t.Errorf("Size() = %d after Close, want 0", b.Size())
	}

	if err := b.Push(ctx, testRecord(t, "dev", 1)); !errors.Is(err, ErrShutdown) {
		t.Fatalf("Push() after Close error = %v, want ErrShutdown", err)
	}
}

func TestBuffer_OnBatchStored(t *testing.T) {
	store := &fakeStore{}
	b := testBuffer(store, 1000, 3)
	ctx := context.Background()

	var gotID string
	var gotCount int
	b.SetOnBatchStored(func(batchID string, count int) {
		gotID = batchID
		gotCount = count
	})

	for i := 0; i < 3; i++ {
		if err := b.Push(ctx, testRecord(t, "dev", i)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if gotID == "" {
		t.Error("batch stored callback not invoked")
	}
	if gotCount != 3 {
		t.Errorf("callback count = %d, want 3", gotCount)
	}
}

func TestBuffer_ConcurrentPush(t *testing.T) {
	store := &fakeStore{}
	b := testBuffer(store, 50, 3)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if err := b.Push(ctx, testRecord(t, fmt.Sprintf("dev-%d", w), i)); err != nil {
					t.Errorf("Push() error = %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := store.savedCount(); got != 400 {
		t.Errorf("saved records = %d, want 400", got)
	}
}

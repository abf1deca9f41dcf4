package writebuffer

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rackmesh/telemetry-core/internal/canonical"
	"github.com/rackmesh/telemetry-core/internal/infrastructure/database"

	_ "github.com/rackmesh/telemetry-core/migrations" // registers embedded migrations
)

func testStore(t *testing.T) *SensorStore {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return NewSensorStore(db)
}

func storeRecord(t *testing.T, deviceID string, module int, ts time.Time) canonical.Record {
	t.Helper()
	rec, err := canonical.Build(canonical.Input{
		DeviceID:     deviceID,
		DeviceKind:   canonical.DeviceKindB,
		MessageKind:  canonical.MessageKindTempHum,
		ModuleNumber: &module,
		ModuleID:     "2349402517",
		Timestamp:    ts,
		Payload: []canonical.TempHumEntry{
			{Position: 10, Temperature: 27.41, Humidity: 56.53},
		},
		RawTopic: "FamilyB/" + deviceID + "/TemHum",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return rec
}

func TestSensorStore_SaveBatchAndHistory(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	var records []canonical.Record
	for i := 0; i < 5; i++ {
		records = append(records, storeRecord(t, "2437871205", 2, t0.Add(time.Duration(i)*time.Minute)))
	}

	if err := store.SaveBatch(ctx, "batch-1", records); err != nil {
		t.Fatalf("SaveBatch() error = %v", err)
	}

	count, err := store.CountForDevice(ctx, "2437871205")
	if err != nil {
		t.Fatalf("CountForDevice() error = %v", err)
	}
	if count != 5 {
		t.Fatalf("stored rows = %d, want 5", count)
	}

	rows, err := store.DeviceHistory(ctx, "2437871205", 3)
	if err != nil {
		t.Fatalf("DeviceHistory() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("history rows = %d, want 3 (limit)", len(rows))
	}

	// Newest first, timestamps normalised to UTC "YYYY-MM-DD HH:MM:SS".
	if rows[0].Timestamp != "2026-07-01 12:04:00" {
		t.Errorf("rows[0].Timestamp = %q, want 2026-07-01 12:04:00", rows[0].Timestamp)
	}
	if rows[0].SensorKind != "TempHum" {
		t.Errorf("SensorKind = %q, want TempHum", rows[0].SensorKind)
	}
	if rows[0].ModuleNumber == nil || *rows[0].ModuleNumber != 2 {
		t.Errorf("ModuleNumber = %v, want 2", rows[0].ModuleNumber)
	}

	var payload []canonical.TempHumEntry
	if err := json.Unmarshal(rows[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshalling stored payload: %v", err)
	}
	if len(payload) != 1 || payload[0].Temperature != 27.41 {
		t.Errorf("stored payload = %+v, want the original entry", payload)
	}

	var meta canonical.Meta
	if err := json.Unmarshal(rows[0].Meta, &meta); err != nil {
		t.Fatalf("unmarshalling stored meta: %v", err)
	}
	if meta.RawTopic != "FamilyB/2437871205/TemHum" {
		t.Errorf("meta.RawTopic = %q, want the original topic", meta.RawTopic)
	}
}

func TestSensorStore_SaveHistorySingleRow(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec := storeRecord(t, "dev-1", 1, time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC))
	if err := store.SaveHistory(ctx, rec); err != nil {
		t.Fatalf("SaveHistory() error = %v", err)
	}

	count, err := store.CountForDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("CountForDevice() error = %v", err)
	}
	if count != 1 {
		t.Errorf("stored rows = %d, want 1", count)
	}
}

func TestSensorStore_BatchLargerThanChunk(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	// More rows than one chunked INSERT holds.
	var records []canonical.Record
	for i := 0; i < insertChunkSize*2+7; i++ {
		records = append(records, storeRecord(t, "dev-big", 1, t0.Add(time.Duration(i)*time.Second)))
	}

	if err := store.SaveBatch(ctx, "batch-big", records); err != nil {
		t.Fatalf("SaveBatch() error = %v", err)
	}

	count, err := store.CountForDevice(ctx, "dev-big")
	if err != nil {
		t.Fatalf("CountForDevice() error = %v", err)
	}
	if count != len(records) {
		t.Errorf("stored rows = %d, want %d", count, len(records))
	}
}

func TestSensorStore_HistoryEmptyDevice(t *testing.T) {
	store := testStore(t)

	rows, err := store.DeviceHistory(context.Background(), "nope", 10)
	if err != nil {
		t.Fatalf("DeviceHistory() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("history rows = %d for unknown device, want 0", len(rows))
	}
}

func TestBuildInsert(t *testing.T) {
	recs := []canonical.Record{
		storeRecord(t, "dev-a", 1, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)),
		storeRecord(t, "dev-b", 2, time.Date(2026, 7, 1, 0, 0, 1, 0, time.UTC)),
	}

	query, args, err := buildInsert(recs)
	if err != nil {
		t.Fatalf("buildInsert() error = %v", err)
	}
	if want := len(recs) * 10; len(args) != want {
		t.Errorf("args = %d, want %d", len(args), want)
	}
	wantPrefix := fmt.Sprintf("INSERT INTO sensor_data (%s) VALUES ", insertColumns)
	if len(query) < len(wantPrefix) || query[:len(wantPrefix)] != wantPrefix {
		t.Errorf("query prefix = %q, want %q", query, wantPrefix)
	}
}

package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/rackmesh/telemetry-core/internal/canonical"
)

func testRecord(t *testing.T, deviceID string) canonical.Record {
	t.Helper()
	rec, err := canonical.Build(canonical.Input{
		DeviceID:    deviceID,
		DeviceKind:  canonical.DeviceKindB,
		MessageKind: canonical.MessageKindDoor,
		Timestamp:   time.Now().UTC(),
		Payload:     canonical.DoorPayload{Status: "open"},
		RawTopic:    "FamilyB/" + deviceID + "/OpeAck",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return rec
}

func TestCache_SetGet(t *testing.T) {
	c := New(10, time.Hour)
	rec := testRecord(t, "dev-1")

	c.Set("dev-1", rec)
	got, ok := c.Get("dev-1")
	if !ok {
		t.Fatal("Get() after Set() returned false")
	}
	if got.DeviceID != "dev-1" {
		t.Errorf("DeviceID = %q, want dev-1", got.DeviceID)
	}

	if _, ok := c.Get("absent"); ok {
		t.Error("Get() for absent key returned true")
	}

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", stats)
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New(10, time.Hour)
	current := time.Unix(1_000_000, 0)
	c.now = func() time.Time { return current }

	c.SetTTL("dev-1", testRecord(t, "dev-1"), time.Minute)

	if _, ok := c.Get("dev-1"); !ok {
		t.Fatal("Get() before expiry returned false")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := c.Get("dev-1"); ok {
		t.Fatal("Get() after expiry returned true")
	}
	// Lazy removal: the expired entry is gone.
	if c.Size() != 0 {
		t.Errorf("Size() = %d after expired read, want 0", c.Size())
	}
}

func TestCache_EvictEarliestExpiry(t *testing.T) {
	c := New(3, time.Hour)
	current := time.Unix(1_000_000, 0)
	c.now = func() time.Time { return current }

	// dev-2 expires soonest and must be the victim.
	c.SetTTL("dev-1", testRecord(t, "dev-1"), 30*time.Minute)
	c.SetTTL("dev-2", testRecord(t, "dev-2"), 10*time.Minute)
	c.SetTTL("dev-3", testRecord(t, "dev-3"), 20*time.Minute)

	c.SetTTL("dev-4", testRecord(t, "dev-4"), time.Hour)

	if _, ok := c.Get("dev-2"); ok {
		t.Error("earliest-expiry entry survived eviction")
	}
	for _, id := range []string{"dev-1", "dev-3", "dev-4"} {
		if _, ok := c.Get(id); !ok {
			t.Errorf("entry %s missing after eviction", id)
		}
	}
	if c.GetStats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", c.GetStats().Evictions)
	}
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c := New(2, time.Hour)
	c.Set("dev-1", testRecord(t, "dev-1"))
	c.Set("dev-2", testRecord(t, "dev-2"))

	// Overwriting an existing key at capacity must not evict anything.
	c.Set("dev-1", testRecord(t, "dev-1"))

	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
	if c.GetStats().Evictions != 0 {
		t.Errorf("Evictions = %d, want 0", c.GetStats().Evictions)
	}
}

func TestCache_Sweep(t *testing.T) {
	c := New(10, time.Hour)
	current := time.Unix(1_000_000, 0)
	c.now = func() time.Time { return current }

	var expired []string
	c.SetOnExpire(func(deviceID string, _ canonical.Record) {
		expired = append(expired, deviceID)
	})

	c.SetTTL("dev-1", testRecord(t, "dev-1"), time.Minute)
	c.SetTTL("dev-2", testRecord(t, "dev-2"), time.Hour)

	current = current.Add(10 * time.Minute)
	removed := c.Sweep()
	if removed != 1 {
		t.Fatalf("Sweep() = %d, want 1", removed)
	}
	if len(expired) != 1 || expired[0] != "dev-1" {
		t.Errorf("expiry callbacks = %v, want [dev-1]", expired)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d after sweep, want 1", c.Size())
	}
}

func TestCache_Devices(t *testing.T) {
	c := New(10, time.Hour)
	for _, id := range []string{"dev-3", "dev-1", "dev-2"} {
		c.Set(id, testRecord(t, id))
	}

	devices := c.Devices()
	want := []string{"dev-1", "dev-2", "dev-3"}
	if len(devices) != len(want) {
		t.Fatalf("Devices() = %v, want %v", devices, want)
	}
	for i := range want {
		if devices[i] != want[i] {
			t.Fatalf("Devices() = %v, want %v", devices, want)
		}
	}
}

func TestCache_CapacityChurn(t *testing.T) {
	c := New(5, time.Hour)
	current := time.Unix(1_000_000, 0)
	c.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("dev-%d", i)
		c.Set(id, testRecord(t, id))
	}
	if c.Size() != 5 {
		t.Errorf("Size() = %d, want 5", c.Size())
	}
	// The most recent inserts (latest expiries) survive.
	for i := 45; i < 50; i++ {
		if _, ok := c.Get(fmt.Sprintf("dev-%d", i)); !ok {
			t.Errorf("recent entry dev-%d missing", i)
		}
	}
}

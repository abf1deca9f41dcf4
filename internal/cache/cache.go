package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rackmesh/telemetry-core/internal/canonical"
)

// sweepInterval is how often the background sweep removes expired
// entries.
const sweepInterval = 60 * time.Second

// Logger defines the logging interface used by the Cache.
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

// entry is one cached record with its expiry instant.
type entry struct {
	record    canonical.Record
	expiresAt time.Time
}

// Cache is a bounded latest-by-device record cache with per-entry TTL.
//
// All public methods are thread-safe.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	maxSize int
	ttl     time.Duration
	logger  Logger

	hits      uint64
	misses    uint64
	evictions uint64

	// onExpire, when set, is invoked (outside the lock) for every entry
	// the sweep removes. The pipeline wires this to its data.expired
	// event stream.
	onExpire func(deviceID string, rec canonical.Record)

	// now is swappable for tests.
	now func() time.Time
}

// New creates a cache holding at most maxSize entries, each expiring
// ttl after insertion.
func New(maxSize int, ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		maxSize: maxSize,
		ttl:     ttl,
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	c.logger = logger
}

// SetOnExpire registers a callback invoked for entries removed by the
// periodic sweep.
func (c *Cache) SetOnExpire(fn func(deviceID string, rec canonical.Record)) {
	c.mu.Lock()
	c.onExpire = fn
	c.mu.Unlock()
}

// Set stores a record under its device ID with the default TTL.
func (c *Cache) Set(deviceID string, rec canonical.Record) {
	c.SetTTL(deviceID, rec, c.ttl)
}

// SetTTL stores a record with an explicit TTL. If the cache is full and
// the key is new, the entry with the earliest expiry is evicted first.
func (c *Cache) SetTTL(deviceID string, rec canonical.Record, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[deviceID]; !exists && len(c.entries) >= c.maxSize {
		c.evictEarliest()
	}

	c.entries[deviceID] = entry{
		record:    rec,
		expiresAt: c.now().Add(ttl),
	}
}

// evictEarliest removes the entry with the earliest expiry. Caller
// holds the lock.
func (c *Cache) evictEarliest() {
	var victim string
	var earliest time.Time
	for id, e := range c.entries {
		if victim == "" || e.expiresAt.Before(earliest) {
			victim = id
			earliest = e.expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.evictions++
		c.logger.Debug("cache entry evicted", "deviceId", victim)
	}
}

// Get returns the cached record for a device, or false if absent or
// expired. Expired entries are removed on read.
func (c *Cache) Get(deviceID string) (canonical.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[deviceID]
	if !ok {
		c.misses++
		return canonical.Record{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, deviceID)
		c.misses++
		return canonical.Record{}, false
	}

	c.hits++
	return e.record, true
}

// Delete removes a device's entry.
func (c *Cache) Delete(deviceID string) {
	c.mu.Lock()
	delete(c.entries, deviceID)
	c.mu.Unlock()
}

// Devices returns the IDs of all unexpired entries, sorted.
func (c *Cache) Devices() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	out := make([]string, 0, len(c.entries))
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// All returns the unexpired cached records keyed by device ID.
func (c *Cache) All() map[string]canonical.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	out := make(map[string]canonical.Record, len(c.entries))
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			continue
		}
		out[id] = e.record
	}
	return out
}

// Size returns the number of entries currently held, including any that
// have expired but not yet been swept.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Run sweeps expired entries every minute until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep removes every expired entry, invoking the expiry callback for
// each. Returns the number removed.
func (c *Cache) Sweep() int {
	type expired struct {
		id  string
		rec canonical.Record
	}

	c.mu.Lock()
	now := c.now()
	var removed []expired
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			removed = append(removed, expired{id: id, rec: e.record})
			delete(c.entries, id)
		}
	}
	onExpire := c.onExpire
	c.mu.Unlock()

	if onExpire != nil {
		for _, e := range removed {
			onExpire(e.id, e.rec)
		}
	}
	if len(removed) > 0 {
		c.logger.Debug("cache sweep removed expired entries", "count", len(removed))
	}
	return len(removed)
}

// Stats holds cache statistics for monitoring.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

// GetStats returns current cache statistics.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}

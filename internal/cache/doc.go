// Package cache provides the latest-by-device record cache.
//
// Each device's most recent canonical record is held under a TTL.
// Expired entries are removed lazily on read and by a periodic sweep;
// when the cache is full, the entry closest to expiry is evicted to
// make room. Hit, miss and eviction counters are exposed for the stats
// surface.
package cache

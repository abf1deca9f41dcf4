package pipeline

import (
	"context"
	"fmt"

	"github.com/rackmesh/telemetry-core/internal/canonical"
	"github.com/rackmesh/telemetry-core/internal/writebuffer"
)

// LatestByDevice returns the most recent canonical record for a device
// from the cache.
func (p *Pipeline) LatestByDevice(deviceID string) (canonical.Record, bool) {
	if p.deps.Cache == nil {
		return canonical.Record{}, false
	}
	return p.deps.Cache.Get(deviceID)
}

// AllDevices returns the latest record of every cached device.
func (p *Pipeline) AllDevices() map[string]canonical.Record {
	if p.deps.Cache == nil {
		return map[string]canonical.Record{}
	}
	return p.deps.Cache.All()
}

// DeviceHistory returns a device's stored records, newest first.
func (p *Pipeline) DeviceHistory(ctx context.Context, deviceID string, limit int) ([]writebuffer.HistoryRow, error) {
	if p.deps.History == nil {
		return nil, fmt.Errorf("%w: history", ErrUnknownComponent)
	}
	return p.deps.History.DeviceHistory(ctx, deviceID, limit)
}

// GetComponent returns a component by name for diagnostic surfaces.
func (p *Pipeline) GetComponent(name string) (any, error) {
	switch name {
	case "registry":
		return p.deps.Registry, nil
	case "stateEngine":
		return p.deps.Engine, nil
	case "cache":
		return p.deps.Cache, nil
	case "writeBuffer":
		return p.deps.Buffer, nil
	case "relay":
		return p.deps.Relay, nil
	case "bus":
		return p.bus, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, name)
	}
}

// Stats aggregates the pipeline's own counters with every component's,
// backing the stats endpoint: drop counters per pipeline stage and a
// failure count per sink. Drops are not broken down by message kind, and
// sink failures are plain counts, not rates.
type Stats struct {
	Lifecycle      LifecycleState    `json:"lifecycle"`
	FramesReceived uint64            `json:"framesReceived"`
	LoopSkipped    uint64            `json:"loopSkipped"`
	Rejected       uint64            `json:"rejected"`
	DecodeErrors   uint64            `json:"decodeErrors"`
	StateErrors    uint64            `json:"stateErrors"`
	RecordsEmitted uint64            `json:"recordsEmitted"`
	SinkFailures   map[string]uint64 `json:"sinkFailures"`
	EventsDropped  uint64            `json:"eventsDropped"`

	StateEngine *stateStats  `json:"stateEngine,omitempty"`
	Cache       *cacheStats  `json:"cache,omitempty"`
	WriteBuffer *bufferStats `json:"writeBuffer,omitempty"`
	Relay       *relayStats  `json:"relay,omitempty"`
}

type stateStats struct {
	Keys    int    `json:"keys"`
	Updates uint64 `json:"updates"`
	Changes uint64 `json:"changes"`
	Errors  uint64 `json:"errors"`
}

type cacheStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}

type bufferStats struct {
	Size         int    `json:"size"`
	Pushes       uint64 `json:"pushes"`
	Flushes      uint64 `json:"flushes"`
	Retries      uint64 `json:"retries"`
	FallbackRows uint64 `json:"fallbackRows"`
	Dropped      uint64 `json:"dropped"`
}

type relayStats struct {
	Rules     int    `json:"rules"`
	Matched   uint64 `json:"matched"`
	Unmatched uint64 `json:"unmatched"`
	Skipped   uint64 `json:"skipped"`
}

// GetStats returns a snapshot of pipeline and component statistics.
func (p *Pipeline) GetStats() Stats {
	p.statsMu.Lock()
	failures := make(map[string]uint64, len(p.sinkFailures))
	for name, n := range p.sinkFailures {
		failures[name] = n
	}
	stats := Stats{
		FramesReceived: p.framesReceived,
		LoopSkipped:    p.loopSkipped,
		Rejected:       p.rejected,
		DecodeErrors:   p.decodeErrors,
		StateErrors:    p.stateErrors,
		RecordsEmitted: p.recordsEmitted,
		SinkFailures:   failures,
	}
	p.statsMu.Unlock()

	stats.Lifecycle = p.State()
	stats.EventsDropped = p.bus.Dropped()

	if p.deps.Engine != nil {
		s := p.deps.Engine.GetStats()
		stats.StateEngine = &stateStats{Keys: s.Keys, Updates: s.Updates, Changes: s.Changes, Errors: s.Errors}
	}
	if p.deps.Cache != nil {
		s := p.deps.Cache.GetStats()
		stats.Cache = &cacheStats{Hits: s.Hits, Misses: s.Misses, Evictions: s.Evictions, Size: s.Size}
	}
	if p.deps.Buffer != nil {
		s := p.deps.Buffer.GetStats()
		stats.WriteBuffer = &bufferStats{
			Size: s.Size, Pushes: s.Pushes, Flushes: s.Flushes,
			Retries: s.Retries, FallbackRows: s.FallbackRows, Dropped: s.Dropped,
		}
	}
	if p.deps.Relay != nil {
		s := p.deps.Relay.GetStats()
		stats.Relay = &relayStats{Rules: s.Rules, Matched: s.Matched, Unmatched: s.Unmatched, Skipped: s.Skipped}
	}

	return stats
}

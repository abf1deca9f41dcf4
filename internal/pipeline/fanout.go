package pipeline

import (
	"context"

	"github.com/rackmesh/telemetry-core/internal/canonical"
)

// fanout delivers one canonical record to every sink. Sinks are
// independent: a panic or error in one is counted and logged, and the
// rest still run.
//
// Cache and write buffer run synchronously so they observe records in
// per-device order; WebSocket broadcast and relay publish are
// fire-and-forget.
func (p *Pipeline) fanout(rec canonical.Record) {
	if p.deps.Cache != nil {
		p.safeSink("cache", func() {
			p.deps.Cache.Set(rec.DeviceID, rec)
		})
	}

	if p.deps.Buffer != nil {
		p.safeSink("writeBuffer", func() {
			if err := p.deps.Buffer.Push(context.Background(), rec); err != nil {
				p.noteSinkFailure("writeBuffer")
				p.logger.Warn("write buffer push failed", "record", rec.String(), "error", err)
			}
		})
	}

	if p.deps.WS != nil {
		go p.safeSink("websocket", func() {
			p.deps.WS.Broadcast(rec)
		})
	}

	if p.deps.Relay != nil && p.deps.Relay.Enabled() {
		p.safeSink("relay", func() {
			p.relayOut(rec)
		})
	}

	if p.deps.TimeSeries != nil {
		p.safeSink("timeseries", func() {
			p.writeTimeSeries(rec)
		})
	}
}

// relayOut rewrites and republishes one record.
func (p *Pipeline) relayOut(rec canonical.Record) {
	topic, payload, ok, err := p.deps.Relay.Rewrite(rec)
	if err != nil {
		p.noteSinkFailure("relay")
		p.logger.Warn("relay rewrite failed", "record", rec.String(), "error", err)
		return
	}
	if !ok {
		return
	}

	go func() {
		if err := p.deps.Broker.Publish(topic, payload, p.opts.QoS, false); err != nil {
			p.noteSinkFailure("relay")
			p.logger.Warn("relay publish failed", "topic", topic, "error", err)
			return
		}
		p.bus.relayed.publish(RelayEvent{Topic: topic, Record: rec})
	}()
}

// writeTimeSeries projects a record's payload into time-series points.
func (p *Pipeline) writeTimeSeries(rec canonical.Record) {
	module := 0
	if rec.ModuleNumber != nil {
		module = *rec.ModuleNumber
	}
	ts := p.deps.TimeSeries

	switch payload := rec.Payload.(type) {
	case []canonical.TempHumEntry:
		for _, e := range payload {
			ts.WriteTempHum(rec.DeviceID, module, e.Position, e.Temperature, e.Humidity)
		}
	case []canonical.NoiseEntry:
		for _, e := range payload {
			ts.WriteNoise(rec.DeviceID, module, e.Position, e.Level)
		}
	case canonical.RfidPayload:
		for _, ch := range rec.Changes {
			tag, _ := ch.Current.(canonical.RfidTag)
			if tag.RFID == "" {
				tag, _ = ch.Previous.(canonical.RfidTag)
			}
			ts.WriteRfidChange(rec.DeviceID, module, ch.Position, string(ch.Action), tag.RFID, tag.Alarm)
		}
	case canonical.DoorPayload:
		duration := 0.0
		if payload.Duration != nil {
			duration = *payload.Duration
		}
		ts.WriteDoorEvent(rec.DeviceID, module, payload.Status, duration)
	}

	ts.WriteQualityScore(rec.DeviceID, string(rec.MessageKind), rec.Meta.QualityScore)
}

// safeSink runs one sink delivery with panic isolation.
func (p *Pipeline) safeSink(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.noteSinkFailure(name)
			p.logger.Error("sink panic recovered", "sink", name, "panic", r)
		}
	}()
	fn()
}

func (p *Pipeline) noteSinkFailure(name string) {
	p.statsMu.Lock()
	p.sinkFailures[name]++
	p.statsMu.Unlock()
}

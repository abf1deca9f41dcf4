package canonical

import "time"

// maxTimestampAge is the recency window a record's timestamp is scored
// against.
const maxTimestampAge = 24 * time.Hour

// Score computes a record's quality score: the mean (0-100)
// of four sub-scores — completeness, consistency, timestamp, payload.
func Score(r Record) float64 {
	return (completenessScore(r) + consistencyScore(r) + timestampScore(r.Timestamp) + payloadScore(r)) / 4
}

// completenessScore is the fraction of required fields present.
func completenessScore(r Record) float64 {
	required := 0
	present := 0

	required++
	if r.DeviceID != "" {
		present++
	}

	required++
	if r.MessageKind != "" {
		present++
	}

	required++
	if !r.Timestamp.IsZero() {
		present++
	}

	if kindHasModule(r.MessageKind) {
		required++
		if r.ModuleNumber != nil {
			present++
		}
	}

	required++
	if r.Payload != nil {
		present++
	}

	if required == 0 {
		return 100
	}
	return 100 * float64(present) / float64(required)
}

// kindHasModule reports whether a message kind is expected to carry a
// module number. DeviceInfo describes the gateway itself, not a module.
func kindHasModule(kind MessageKind) bool {
	return kind != MessageKindDeviceInfo
}

// consistencyScore performs type/range sanity checks on required fields,
// per kind.
func consistencyScore(r Record) float64 {
	switch p := r.Payload.(type) {
	case RfidPayload:
		if p.RfidCount != len(p.RfidData) && !r.Meta.HasChanges {
			return 0
		}
		return 100
	case []TempHumEntry:
		for _, e := range p {
			if e.Temperature < -50 || e.Temperature > 150 {
				return 50
			}
			if e.Humidity < 0 || e.Humidity > 100 {
				return 50
			}
		}
		return 100
	case []NoiseEntry:
		for _, e := range p {
			if e.Level < 0 {
				return 50
			}
		}
		return 100
	case DoorPayload:
		if p.Status == "" {
			return 0
		}
		return 100
	case []ColorEntry:
		return 100
	case HeartbeatPayload:
		return 100
	case DeviceInfoPayload:
		return 100
	case ModuleInfoPayload:
		return 100
	case AckPayload:
		return 100
	default:
		if p == nil {
			return 0
		}
		return 75
	}
}

// timestampScore scores validity and recency.
func timestampScore(ts time.Time) float64 {
	if ts.IsZero() {
		return 0
	}
	age := time.Since(ts)
	if age < 0 {
		age = -age
	}
	if age > maxTimestampAge {
		return 50
	}
	return 100
}

// payloadScore performs kind-specific structural checks.
func payloadScore(r Record) float64 {
	switch p := r.Payload.(type) {
	case RfidPayload:
		if p.RfidData == nil {
			return 50
		}
		return 100
	case []TempHumEntry, []NoiseEntry, []ColorEntry:
		return 100
	case DoorPayload:
		return 100
	case HeartbeatPayload:
		if p.Modules == nil {
			return 50
		}
		return 100
	case DeviceInfoPayload:
		if p.IP == "" {
			return 50
		}
		return 100
	case ModuleInfoPayload:
		if p.Modules == nil {
			return 50
		}
		return 100
	case AckPayload:
		return 100
	default:
		return 50
	}
}

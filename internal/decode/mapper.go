package decode

import (
	"fmt"
	"sort"

	"github.com/rackmesh/telemetry-core/internal/canonical"
)

// Mapper renames family-specific RawFields into the canonical payload
// shapes. It is a pure function over a Record: no I/O, no
// shared state. Canonical field names are fixed by the data model; the
// per-(deviceKind, messageKind) lookup lives in the functions below
// rather than a single flat table, since Family-B and Family-T payloads
// have incompatible raw shapes for the same messageKind.
type Mapper struct{}

// Map converts a decoder Record into a canonical.Input ready for the
// canonical builder. The returned Input carries no changes, previous
// state or quality score; the builder adds the quality score, and the
// state engine then annotates the built record with changes and
// previous state.
func (Mapper) Map(rec Record) (canonical.Input, error) {
	payload, err := mapPayload(rec)
	if err != nil {
		return canonical.Input{}, err
	}

	msgID, _ := rec.RawFields["msgId"].(string)

	return canonical.Input{
		DeviceID:     rec.DeviceID,
		DeviceKind:   canonical.DeviceKind(rec.DeviceKind),
		MessageKind:  canonical.MessageKind(rec.MessageKind),
		ModuleNumber: rec.ModuleNumber,
		ModuleID:     rec.ModuleID,
		Timestamp:    rec.ReceivedAt,
		Payload:      payload,
		RawTopic:     rec.RawTopic,
		RawFrame:     rec.RawFrame,
		MsgID:        msgID,
	}, nil
}

func mapPayload(rec Record) (any, error) {
	switch rec.MessageKind {
	case MessageKindRfid:
		return mapRfid(rec)
	case MessageKindTempHum:
		return mapTempHum(rec)
	case MessageKindNoise:
		return mapNoise(rec)
	case MessageKindDoor:
		return mapDoor(rec)
	case MessageKindColor:
		return mapColor(rec)
	case MessageKindHeartbeat:
		return mapHeartbeat(rec)
	case MessageKindDeviceInfo:
		return mapDeviceInfo(rec)
	case MessageKindModuleInfo:
		return mapModuleInfo(rec)
	case MessageKindColorSetAck, MessageKindColorQueryAck, MessageKindTamperClearAck:
		return mapAck(rec)
	default:
		return rec.RawFields, nil
	}
}

// mapRfid assembles the canonical RfidPayload. Family-B frames carry
// every tag slot up front ("uCount", "rfidCount", "entries": [{pos,
// alarm, rfid}]); Family-T frames carry one snapshot's worth of tag
// transitions ("tagEntries": [{num, tag_code, action, alarm}]), with no
// explicit counts.
func mapRfid(rec Record) (canonical.RfidPayload, error) {
	switch rec.DeviceKind {
	case DeviceKindB:
		entries, _ := rec.RawFields["entries"].([]any)
		tags := make([]canonical.RfidTag, 0, len(entries))
		for _, e := range entries {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			tags = append(tags, canonical.RfidTag{
				Position: intField(m, "pos"),
				RFID:     stringField(m, "rfid"),
				Alarm:    intField(m, "alarm"),
				State:    "attached",
			})
		}
		return canonical.RfidPayload{
			UCount:    intField(rec.RawFields, "uCount"),
			RfidCount: intField(rec.RawFields, "rfidCount"),
			RfidData:  tags,
		}, nil
	case DeviceKindT:
		entries, _ := rec.RawFields["tagEntries"].([]map[string]any)
		tags := make([]canonical.RfidTag, 0, len(entries))
		for _, m := range entries {
			state := "detached"
			if intField(m, "action") == 1 {
				state = "attached"
			}
			tags = append(tags, canonical.RfidTag{
				Position: intField(m, "num"),
				RFID:     stringField(m, "tag_code"),
				Alarm:    intField(m, "alarm"),
				State:    state,
			})
		}
		return canonical.RfidPayload{
			UCount:    len(tags),
			RfidCount: len(tags),
			RfidData:  tags,
		}, nil
	default:
		return canonical.RfidPayload{}, fmt.Errorf("%w: unrecognised device kind %q for Rfid", ErrDecodeFailed, rec.DeviceKind)
	}
}

func mapTempHum(rec Record) ([]canonical.TempHumEntry, error) {
	switch rec.DeviceKind {
	case DeviceKindB:
		entries, _ := rec.RawFields["entries"].([]any)
		out := make([]canonical.TempHumEntry, 0, len(entries))
		for _, e := range entries {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, canonical.TempHumEntry{
				Position:    intField(m, "addr"),
				Temperature: floatField(m, "temp"),
				Humidity:    floatField(m, "hum"),
			})
		}
		return sortTempHumByPosition(out), nil
	case DeviceKindT:
		return []canonical.TempHumEntry{{
			Position:    familyTPosition(rec),
			Temperature: floatField(rec.RawFields, "temper_swot"),
			Humidity:    floatField(rec.RawFields, "hum_swot"),
		}}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognised device kind %q for TempHum", ErrDecodeFailed, rec.DeviceKind)
	}
}

func mapNoise(rec Record) ([]canonical.NoiseEntry, error) {
	switch rec.DeviceKind {
	case DeviceKindB:
		entries, _ := rec.RawFields["entries"].([]any)
		out := make([]canonical.NoiseEntry, 0, len(entries))
		for _, e := range entries {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, canonical.NoiseEntry{
				Position: intField(m, "addr"),
				Level:    floatField(m, "level"),
			})
		}
		return out, nil
	case DeviceKindT:
		return []canonical.NoiseEntry{{
			Position: familyTPosition(rec),
			Level:    floatField(rec.RawFields, "noise_val"),
		}}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognised device kind %q for Noise", ErrDecodeFailed, rec.DeviceKind)
	}
}

// doorStatusNames resolves a Family-B raw status byte (rendered as
// "0x<HH>" by the decoder) to the canonical open/closed vocabulary. The
// wire protocol does not document which of the two observed values means
// which state; 0x00 = open, 0x01 = closed was chosen to match the
// "normally open" convention used throughout the rest of the gateway's
// door/tamper fields and is recorded as an assumption.
var doorStatusNames = map[string]string{
	"0x00": "open",
	"0x01": "closed",
}

func mapDoor(rec Record) (canonical.DoorPayload, error) {
	switch rec.DeviceKind {
	case DeviceKindB:
		raw := stringField(rec.RawFields, "status")
		status := raw
		if name, ok := doorStatusNames[raw]; ok {
			status = name
		}
		return canonical.DoorPayload{Status: status}, nil
	case DeviceKindT:
		return canonical.DoorPayload{Status: stringField(rec.RawFields, "door_state")}, nil
	default:
		return canonical.DoorPayload{}, fmt.Errorf("%w: unrecognised device kind %q for Door", ErrDecodeFailed, rec.DeviceKind)
	}
}

func mapColor(rec Record) ([]canonical.ColorEntry, error) {
	switch rec.DeviceKind {
	case DeviceKindB:
		colors, _ := rec.RawFields["colors"].([]any)
		out := make([]canonical.ColorEntry, 0, len(colors))
		for _, c := range colors {
			m, ok := c.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, canonical.ColorEntry{
				Position: intField(m, "pos"),
				Color:    stringField(m, "color"),
				Code:     intField(m, "code"),
			})
		}
		return out, nil
	case DeviceKindT:
		code := intField(rec.RawFields, "color_code")
		name, ok := colorNames[code]
		if !ok {
			name = "unknown"
		}
		return []canonical.ColorEntry{{
			Position: familyTPosition(rec),
			Color:    name,
			Code:     code,
		}}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognised device kind %q for Color", ErrDecodeFailed, rec.DeviceKind)
	}
}

func mapHeartbeat(rec Record) (canonical.HeartbeatPayload, error) {
	switch rec.DeviceKind {
	case DeviceKindB:
		modules, _ := rec.RawFields["modules"].([]any)
		out := make([]canonical.HeartbeatModule, 0, len(modules))
		for _, m := range modules {
			mm, ok := m.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, canonical.HeartbeatModule{
				ModuleAddress: intField(mm, "modAdd"),
				ModuleID:      stringField(mm, "modId"),
				UCount:        intField(mm, "uCount"),
			})
		}
		return canonical.HeartbeatPayload{Modules: out}, nil
	case DeviceKindT:
		return canonical.HeartbeatPayload{}, nil
	default:
		return canonical.HeartbeatPayload{}, fmt.Errorf("%w: unrecognised device kind %q for Heartbeat", ErrDecodeFailed, rec.DeviceKind)
	}
}

func mapDeviceInfo(rec Record) (canonical.DeviceInfoPayload, error) {
	if rec.DeviceKind != DeviceKindB {
		return canonical.DeviceInfoPayload{}, nil
	}
	return canonical.DeviceInfoPayload{
		DeviceType: intField(rec.RawFields, "devType"),
		Firmware:   stringField(rec.RawFields, "fw"),
		IP:         stringField(rec.RawFields, "ip"),
		Mask:       stringField(rec.RawFields, "mask"),
		Gateway:    stringField(rec.RawFields, "gateway"),
		MAC:        stringField(rec.RawFields, "mac"),
	}, nil
}

func mapModuleInfo(rec Record) (canonical.ModuleInfoPayload, error) {
	if rec.DeviceKind != DeviceKindB {
		return canonical.ModuleInfoPayload{}, nil
	}
	modules, _ := rec.RawFields["modules"].([]any)
	out := make([]canonical.ModuleInfoEntry, 0, len(modules))
	for _, m := range modules {
		mm, ok := m.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, canonical.ModuleInfoEntry{
			ModuleAddress: intField(mm, "modAdd"),
			Firmware:      stringField(mm, "fw"),
		})
	}
	return canonical.ModuleInfoPayload{Modules: out}, nil
}

func mapAck(rec Record) (canonical.AckPayload, error) {
	success, _ := rec.RawFields["success"].(bool)
	colorsRaw, _ := rec.RawFields["colors"].([]any)
	colors := make([]canonical.ColorEntry, 0, len(colorsRaw))
	for _, c := range colorsRaw {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		colors = append(colors, canonical.ColorEntry{
			Position: intField(m, "pos"),
			Color:    stringField(m, "color"),
			Code:     intField(m, "code"),
		})
	}
	return canonical.AckPayload{Success: success, Colors: colors}, nil
}

func sortTempHumByPosition(entries []canonical.TempHumEntry) []canonical.TempHumEntry {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	return entries
}

// familyTPosition returns the position of a single-reading Family-T
// record: the decoder moves the frame's "num" into ModuleNumber, so that
// is read first, with a "num" raw field as the fallback.
func familyTPosition(rec Record) int {
	if rec.ModuleNumber != nil {
		return *rec.ModuleNumber
	}
	return intField(rec.RawFields, "num")
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

package decode

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rackmesh/telemetry-core/internal/topics"
)

// familyTEnvelope is the self-describing structured-text wire shape:
// every frame carries its own msg_type and a data payload whose
// shape depends on that type.
type familyTEnvelope struct {
	MsgType string          `json:"msg_type"`
	Data    json.RawMessage `json:"data"`
}

// messageKindDeviceAndModuleInfo is not a canonical MessageKind on its
// own; "devies_init_req" frames describe both the gateway (DeviceInfo)
// and its modules (ModuleInfo) in one payload. The decoder splits it
// into one record of each real kind rather than inventing a combined
// kind downstream stages would need to know about.
const messageKindDeviceAndModuleInfo MessageKind = "DeviceAndModuleInfo"

// familyTExactKinds maps msg_type tokens that match a single literal
// value to a canonical MessageKind.
var familyTExactKinds = map[string]MessageKind{
	"heart_beat_req":                 MessageKindHeartbeat,
	"u_state_changed_notify_req":     MessageKindRfid,
	"u_state_resp":                   MessageKindRfid,
	"devies_init_req":                messageKindDeviceAndModuleInfo,
	"u_color":                        MessageKindColor,
	"set_module_property_result_req": MessageKindColorSetAck,
	"clear_u_warning":                MessageKindTamperClearAck,
}

// familyTPrefixKinds maps msg_type prefixes to a MessageKind, for the
// msg_type families ("temper_humidity_*", "noise_*",
// "door_state_*").
var familyTPrefixKinds = []struct {
	prefix string
	kind   MessageKind
}{
	{"temper_humidity_", MessageKindTempHum},
	{"noise_", MessageKindNoise},
	{"door_state_", MessageKindDoor},
}

// classifyFamilyT resolves a msg_type token to a MessageKind, or reports
// it unknown.
func classifyFamilyT(msgType string) (MessageKind, bool) {
	if kind, ok := familyTExactKinds[msgType]; ok {
		return kind, true
	}
	for _, p := range familyTPrefixKinds {
		if strings.HasPrefix(msgType, p.prefix) {
			return p.kind, true
		}
	}
	return "", false
}

// FamilyTDecoder decodes the self-describing structured-text protocol.
// A single family-T frame may describe several module ports in
// one "data" array; the decoder fans each one out to its own Record so
// downstream stages never need to know about multi-port frames.
type FamilyTDecoder struct{}

// Decode implements Decoder.
func (FamilyTDecoder) Decode(topic string, frame []byte, receivedAt time.Time) ([]Record, error) {
	deviceID := topics.DeviceID(topic)
	if deviceID == "" {
		return nil, ErrTopicInvalid
	}

	var env familyTEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if env.MsgType == "" {
		return nil, fmt.Errorf("%w: missing msg_type", ErrDecodeFailed)
	}

	kind, ok := classifyFamilyT(env.MsgType)
	if !ok {
		return nil, fmt.Errorf("%w: msg_type %q", ErrUnknownMessageKind, env.MsgType)
	}

	switch kind {
	case MessageKindRfid:
		return decodeFamilyTRfid(deviceID, topic, frame, receivedAt, env.Data)
	case MessageKindTempHum, MessageKindNoise, MessageKindDoor, MessageKindColor:
		return decodeFamilyTModuleRecords(deviceID, kind, topic, frame, receivedAt, env.Data)
	case MessageKindHeartbeat, MessageKindColorSetAck, MessageKindTamperClearAck:
		return decodeFamilyTDeviceRecord(deviceID, kind, topic, frame, receivedAt, env.Data)
	case messageKindDeviceAndModuleInfo:
		return decodeFamilyTDeviceAndModuleInfo(deviceID, topic, frame, receivedAt, env.Data)
	default:
		return nil, fmt.Errorf("%w: msg_type %q not supported over family T", ErrUnknownMessageKind, env.MsgType)
	}
}

// decodeFamilyTModuleRecords handles the common shape of a family-T
// per-port message: data is a JSON array of objects, each carrying its
// own "num" (module/port number) alongside kind-specific fields. Field
// names are preserved verbatim from the wire — the Field Mapper
// renames them, not the decoder.
func decodeFamilyTModuleRecords(deviceID string, kind MessageKind, topic string, frame []byte, receivedAt time.Time, data json.RawMessage) ([]Record, error) {
	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: data is not an array of objects: %v", ErrDecodeFailed, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty data array", ErrDecodeFailed)
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		modNum, err := familyTModuleNumber(entry)
		if err != nil {
			return nil, err
		}

		records = append(records, Record{
			DeviceID:     deviceID,
			DeviceKind:   DeviceKindT,
			MessageKind:  kind,
			ModuleNumber: modNum,
			RawFields:    RawFields(entry),
			ReceivedAt:   receivedAt,
			RawTopic:     topic,
			RawFrame:     frame,
		})
	}
	return records, nil
}

// decodeFamilyTRfid handles "u_state_changed_notify_req"/"u_state_resp"
// frames. The wire carries two shapes:
//
//   - module-grouped: data is an array of {"num": <port>, "data": [tag
//     entries]} objects. Each module port becomes its own Record, so one
//     frame covering ports 2 and 4 yields two records.
//   - flat: data is the tag-entry array itself, with no module grouping.
//     All entries stay together in a single Record without a module
//     number.
//
// Each tag entry's "action" (1=attached, 0=detached) is preserved
// verbatim for the State Engine.
func decodeFamilyTRfid(deviceID, topic string, frame []byte, receivedAt time.Time, data json.RawMessage) ([]Record, error) {
	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: data is not an array of objects: %v", ErrDecodeFailed, err)
	}

	if len(entries) > 0 {
		if _, grouped := entries[0]["data"]; grouped {
			return decodeFamilyTRfidModules(deviceID, topic, frame, receivedAt, entries)
		}
	}

	rec := Record{
		DeviceID:    deviceID,
		DeviceKind:  DeviceKindT,
		MessageKind: MessageKindRfid,
		RawFields:   RawFields{"tagEntries": entries},
		ReceivedAt:  receivedAt,
		RawTopic:    topic,
		RawFrame:    frame,
	}
	return []Record{rec}, nil
}

// decodeFamilyTRfidModules fans a module-grouped RFID frame out to one
// Record per module port.
func decodeFamilyTRfidModules(deviceID, topic string, frame []byte, receivedAt time.Time, entries []map[string]any) ([]Record, error) {
	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		modNum, err := familyTModuleNumber(entry)
		if err != nil {
			return nil, err
		}

		rawTags, ok := entry["data"].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: module %d \"data\" is not an array", ErrDecodeFailed, *modNum)
		}
		tags := make([]map[string]any, 0, len(rawTags))
		for _, raw := range rawTags {
			tag, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: module %d tag entry is not an object", ErrDecodeFailed, *modNum)
			}
			tags = append(tags, tag)
		}

		records = append(records, Record{
			DeviceID:     deviceID,
			DeviceKind:   DeviceKindT,
			MessageKind:  MessageKindRfid,
			ModuleNumber: modNum,
			RawFields:    RawFields{"tagEntries": tags},
			ReceivedAt:   receivedAt,
			RawTopic:     topic,
			RawFrame:     frame,
		})
	}
	return records, nil
}

// decodeFamilyTDeviceRecord handles device/gateway-scoped family-T
// messages: data is a single JSON object, not an array, and has no
// per-port module number.
func decodeFamilyTDeviceRecord(deviceID string, kind MessageKind, topic string, frame []byte, receivedAt time.Time, data json.RawMessage) ([]Record, error) {
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: data is not an object: %v", ErrDecodeFailed, err)
	}

	rec := Record{
		DeviceID:    deviceID,
		DeviceKind:  DeviceKindT,
		MessageKind: kind,
		RawFields:   RawFields(entry),
		ReceivedAt:  receivedAt,
		RawTopic:    topic,
		RawFrame:    frame,
	}
	return []Record{rec}, nil
}

// decodeFamilyTDeviceAndModuleInfo splits a "devies_init_req" frame into
// one DeviceInfo record (gateway-scoped fields) and one ModuleInfo
// record per entry in its "modules" array.
func decodeFamilyTDeviceAndModuleInfo(deviceID, topic string, frame []byte, receivedAt time.Time, data json.RawMessage) ([]Record, error) {
	var payload struct {
		Modules []map[string]any `json:"modules"`
	}
	var full map[string]any
	if err := json.Unmarshal(data, &full); err != nil {
		return nil, fmt.Errorf("%w: data is not an object: %v", ErrDecodeFailed, err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: data.modules is not an array: %v", ErrDecodeFailed, err)
	}
	delete(full, "modules")

	records := []Record{{
		DeviceID:    deviceID,
		DeviceKind:  DeviceKindT,
		MessageKind: MessageKindDeviceInfo,
		RawFields:   RawFields(full),
		ReceivedAt:  receivedAt,
		RawTopic:    topic,
		RawFrame:    frame,
	}}

	for _, mod := range payload.Modules {
		modNum, err := familyTModuleNumber(mod)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{
			DeviceID:     deviceID,
			DeviceKind:   DeviceKindT,
			MessageKind:  MessageKindModuleInfo,
			ModuleNumber: modNum,
			RawFields:    RawFields(mod),
			ReceivedAt:   receivedAt,
			RawTopic:     topic,
			RawFrame:     frame,
		})
	}
	return records, nil
}

// familyTModuleNumber extracts and removes the "num" field present on
// every per-port family-T entry, leaving the rest of the entry as
// kind-specific RawFields.
func familyTModuleNumber(entry map[string]any) (*int, error) {
	raw, ok := entry["num"]
	if !ok {
		return nil, fmt.Errorf("%w: entry missing \"num\"", ErrDecodeFailed)
	}
	delete(entry, "num")

	switch v := raw.(type) {
	case float64:
		return intPtr(int(v)), nil
	default:
		return nil, fmt.Errorf("%w: \"num\" is not a number", ErrDecodeFailed)
	}
}

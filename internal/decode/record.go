package decode

import "time"

// DeviceKind identifies the protocol family a gateway belongs to.
type DeviceKind string

const (
	DeviceKindB DeviceKind = "B"
	DeviceKindT DeviceKind = "T"
)

// MessageKind enumerates the decoder output kinds.
type MessageKind string

const (
	MessageKindRfid           MessageKind = "Rfid"
	MessageKindTempHum        MessageKind = "TempHum"
	MessageKindNoise          MessageKind = "Noise"
	MessageKindDoor           MessageKind = "Door"
	MessageKindColor          MessageKind = "Color"
	MessageKindHeartbeat      MessageKind = "Heartbeat"
	MessageKindDeviceInfo     MessageKind = "DeviceInfo"
	MessageKindModuleInfo     MessageKind = "ModuleInfo"
	MessageKindColorSetAck    MessageKind = "ColorSetAck"
	MessageKindColorQueryAck  MessageKind = "ColorQueryAck"
	MessageKindTamperClearAck MessageKind = "TamperClearAck"
)

// RawFields carries kind-specific decoder output before the Field Mapper
// renames keys to their canonical form. Decoders populate this with
// the raw field names documented alongside each decoder; it is treated
// as opaque data by everything upstream of the mapper.
type RawFields map[string]any

// Record is the decoder's intermediate output.
// One raw frame may yield more than one Record — family-T frames with
// several module-port entries emit one Record per entry.
type Record struct {
	DeviceID     string
	DeviceKind   DeviceKind
	MessageKind  MessageKind
	ModuleNumber *int
	ModuleID     string
	RawFields    RawFields
	ReceivedAt   time.Time
	RawTopic     string
	RawFrame     []byte
}

func intPtr(v int) *int {
	return &v
}

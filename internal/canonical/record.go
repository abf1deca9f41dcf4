package canonical

import "time"

// DeviceKind identifies the protocol family a gateway belongs to.
type DeviceKind string

const (
	DeviceKindB DeviceKind = "B"
	DeviceKindT DeviceKind = "T"
)

// MessageKind enumerates the canonical record kinds.
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

// ChangeAction enumerates the state-transition kinds a Change Event can
// carry.
type ChangeAction string

const (
	ActionAttached     ChangeAction = "attached"
	ActionDetached     ChangeAction = "detached"
	ActionChanged      ChangeAction = "changed"
	ActionAlarmChanged ChangeAction = "alarm_changed"
	ActionSet          ChangeAction = "set"
	ActionUpdated      ChangeAction = "updated"
	ActionInitialized  ChangeAction = "initialized"
)

// Change describes a single state transition on one position within a
// module.
type Change struct {
	Position  int          `json:"position"`
	Action    ChangeAction `json:"action"`
	Previous  any          `json:"previous,omitempty"`
	Current   any          `json:"current,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Meta carries a Canonical Record's provenance and quality metadata.
type Meta struct {
	RawTopic     string  `json:"rawTopic"`
	RawFrame     []byte  `json:"rawFrame,omitempty"`
	MsgID        string  `json:"msgId,omitempty"`
	QualityScore float64 `json:"qualityScore"`
	// HasChanges distinguishes an RFID record carrying only the positions
	// that changed (true) from one carrying its full tag inventory
	// (false).
	HasChanges bool `json:"hasChanges"`
	// DecoderVersion and ParserVersion are constant build-time strings
	// stamped onto every record for downstream schema evolution.
	DecoderVersion string `json:"decoderVersion"`
	ParserVersion  string `json:"parserVersion"`
}

// Record is the immutable, normalised representation emitted by the
// Canonical Record Builder.
type Record struct {
	DeviceID      string      `json:"deviceId"`
	DeviceKind    DeviceKind  `json:"deviceKind"`
	MessageKind   MessageKind `json:"messageKind"`
	ModuleNumber  *int        `json:"moduleNumber,omitempty"`
	ModuleID      string      `json:"moduleId,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	Payload       any         `json:"payload"`
	Meta          Meta        `json:"meta"`
	Changes       []Change    `json:"changes,omitempty"`
	PreviousState any         `json:"previousState,omitempty"`
}

// Key returns the State Engine key this record is tracked under:
// (deviceId, moduleNumber, messageKind).
func (r Record) Key() StateKey {
	mod := -1
	if r.ModuleNumber != nil {
		mod = *r.ModuleNumber
	}
	return StateKey{DeviceID: r.DeviceID, ModuleNumber: mod, MessageKind: r.MessageKind}
}

// StateKey identifies a State Cell.
type StateKey struct {
	DeviceID     string
	ModuleNumber int
	MessageKind  MessageKind
}

package canonical

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Build versions, stamped onto every record's Meta.
const (
	DecoderVersion = "1"
	ParserVersion  = "1"
)

// Input is everything the Canonical Record Builder needs to compose
// a Record: the Field Mapper's output plus provenance. State Engine
// annotations (Changes, PreviousState, HasChanges) are applied
// afterward via WithChanges since the State Engine operates on the
// built record.
type Input struct {
	DeviceID     string
	DeviceKind   DeviceKind
	MessageKind  MessageKind
	ModuleNumber *int
	ModuleID     string
	Timestamp    time.Time
	Payload      any
	RawTopic     string
	RawFrame     []byte
	MsgID        string
}

// Build composes a mapped decoder record and metadata into a Canonical
// Record and computes its quality score. It rejects inputs
// with an empty DeviceID.
func Build(in Input) (Record, error) {
	if in.DeviceID == "" {
		return Record{}, ErrEmptyDeviceID
	}

	timestamp := in.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	// Frames without a wire-level message code (some family-T kinds)
	// still get a msgId so the record identity tuple stays total.
	msgID := in.MsgID
	if msgID == "" {
		msgID = uuid.NewString()
	}

	rec := Record{
		DeviceID:     in.DeviceID,
		DeviceKind:   in.DeviceKind,
		MessageKind:  in.MessageKind,
		ModuleNumber: in.ModuleNumber,
		ModuleID:     in.ModuleID,
		Timestamp:    timestamp,
		Payload:      in.Payload,
		Meta: Meta{
			RawTopic:       in.RawTopic,
			RawFrame:       in.RawFrame,
			MsgID:          msgID,
			DecoderVersion: DecoderVersion,
			ParserVersion:  ParserVersion,
		},
	}

	rec.Meta.QualityScore = Score(rec)

	return rec, nil
}

// WithChanges returns a copy of rec annotated with the State Engine's
// diff output. previousState is nil for kinds the builder doesn't
// attach previous-state to (Rfid).
func (r Record) WithChanges(changes []Change, previousState any, hasChanges bool) Record {
	r.Changes = changes
	r.PreviousState = previousState
	r.Meta.HasChanges = hasChanges
	return r
}

// String renders a compact identity for logging: "deviceId/moduleNumber/messageKind".
func (r Record) String() string {
	mod := "-"
	if r.ModuleNumber != nil {
		mod = fmt.Sprintf("%d", *r.ModuleNumber)
	}
	return fmt.Sprintf("%s/%s/%s", r.DeviceID, mod, r.MessageKind)
}

package decode

import (
	"fmt"
	"sort"
	"time"

	"github.com/rackmesh/telemetry-core/internal/topics"
)

// Decoder turns a raw gateway frame into zero-or-more intermediate Records.
// Implementations are pure functions of (topic, frame, receivedAt) — no
// shared state, no I/O — so the registry can call them concurrently
// across devices without locking.
type Decoder interface {
	Decode(topic string, frame []byte, receivedAt time.Time) ([]Record, error)
}

// basicDecoder is the pass-through fallback: any topic family
// without a registered decoder still produces a record, carrying the raw
// frame as an opaque payload rather than being dropped.
type basicDecoder struct{}

func (basicDecoder) Decode(topic string, frame []byte, receivedAt time.Time) ([]Record, error) {
	deviceID := topics.DeviceID(topic)
	if deviceID == "" {
		return nil, ErrTopicInvalid
	}
	return []Record{{
		DeviceID:    deviceID,
		MessageKind: "Raw",
		RawFields:   RawFields{"raw": string(frame)},
		ReceivedAt:  receivedAt,
		RawTopic:    topic,
		RawFrame:    frame,
	}}, nil
}

// Registry dispatches an incoming frame to a Decoder by the topic's
// leading family segment. Families with
// no registered decoder fall back to basicDecoder rather than being
// dropped.
type Registry struct {
	decoders map[string]Decoder
	fallback Decoder
}

// NewRegistry returns a Registry pre-populated with the Family-B and
// Family-T decoders and the basic pass-through fallback.
func NewRegistry() *Registry {
	reg := &Registry{decoders: make(map[string]Decoder)}
	reg.fallback = basicDecoder{}
	reg.Register("FamilyB", FamilyBDecoder{})
	reg.Register("FamilyT", FamilyTDecoder{})
	return reg
}

// Register associates a Decoder with a topic family prefix (the topic's
// first "/"-separated segment), overwriting any prior registration.
func (reg *Registry) Register(family string, d Decoder) {
	reg.decoders[family] = d
}

// SetFallback overrides the pass-through fallback decoder.
func (reg *Registry) SetFallback(d Decoder) {
	reg.fallback = d
}

// Decode dispatches topic/frame to the decoder registered for the
// topic's family, or the fallback when no family-specific decoder is
// registered. Returns ErrTopicInvalid, unwrapped from the chosen
// decoder, when the topic carries no device ID at all.
func (reg *Registry) Decode(topic string, frame []byte, receivedAt time.Time) ([]Record, error) {
	family := topics.Family(topic)
	if family == "" {
		return nil, fmt.Errorf("%w: empty topic", ErrTopicInvalid)
	}

	d, ok := reg.decoders[family]
	if !ok {
		d = reg.fallback
	}

	records, err := d.Decode(topic, frame, receivedAt)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].RawTopic == "" {
			records[i].RawTopic = topic
		}
	}
	return records, nil
}

// Families returns the list of topic family prefixes with a registered
// (non-fallback) decoder, sorted for deterministic logging/diagnostics.
func (reg *Registry) Families() []string {
	out := make([]string, 0, len(reg.decoders))
	for family := range reg.decoders {
		out = append(out, family)
	}
	sort.Strings(out)
	return out
}

// Package canonical defines the single uniform record shape every decoded
// gateway frame is normalised into.
//
// A Record is immutable once emitted: one deviceId, one deviceKind, one
// messageKind, an optional module address, a kind-specific Payload, and
// Meta carrying provenance (raw topic, raw frame, a decoder-assigned
// message id, and a quality score). Records that were tracked by the
// State Engine also carry Changes and PreviousState.
//
// Payload is a tagged union dispatched on MessageKind — see payload.go for
// the concrete per-kind shapes (RfidPayload, TempHumEntry, NoiseEntry,
// DoorPayload, ColorEntry, HeartbeatPayload, DeviceInfoPayload,
// ModuleInfoPayload, AckPayload).
package canonical

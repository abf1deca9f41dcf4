package state

import "errors"

var (
	// ErrStateFailed is returned when a record's payload does not have
	// the shape its messageKind promises. The pipeline degrades to
	// pass-through: the record continues unannotated.
	ErrStateFailed = errors.New("state: update failed")

	// ErrUntrackedKind is returned for message kinds the engine does not
	// track (Heartbeat and command acknowledgements). Callers treat this
	// as "no annotation", not as a failure.
	ErrUntrackedKind = errors.New("state: untracked message kind")
)

package pipeline

import "errors"

var (
	// ErrNotRunning is returned when a frame arrives outside the
	// Running state.
	ErrNotRunning = errors.New("pipeline: not running")

	// ErrAlreadyStarted is returned by Start after the first call; the
	// lifecycle is monotonic and cannot be re-entered.
	ErrAlreadyStarted = errors.New("pipeline: already started")

	// ErrUnknownComponent is returned by GetComponent for a name the
	// pipeline does not own.
	ErrUnknownComponent = errors.New("pipeline: unknown component")
)

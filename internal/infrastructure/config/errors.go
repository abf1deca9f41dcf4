package config

import "errors"

// ErrConfigInvalid is returned when configuration cannot be loaded, parsed,
// or fails validation. ConfigInvalid is fatal at startup; the
// caller (cmd/telemetrycore) is the only place that should terminate the
// process on this error.
var ErrConfigInvalid = errors.New("config: invalid configuration")

package canonical

import "errors"

// ErrEmptyDeviceID is returned when a record is built with no device
// identifier. Every Canonical Record has a
// non-empty deviceId; records lacking one must be rejected before they
// ever reach a sink.
var ErrEmptyDeviceID = errors.New("canonical: deviceId is empty")

package relay

import "errors"

// ErrRuleInvalid is returned when a configured relay rule cannot be
// compiled. Surfaced at startup as a configuration error.
var ErrRuleInvalid = errors.New("relay: invalid rule")

// Package decode turns raw gateway frames into kind-tagged intermediate
// records.
//
// Two gateway families are supported: family B, a compact binary/hex
// framed protocol, and family T, a structured text protocol. Both
// decoders are pure functions from (topic, payload) to a Record or an
// error — no callbacks, no shared state. The Registry selects the
// right decoder from the topic's family prefix.
//
// # Byte layouts
//
// Family-B frame layouts are byte-exact and documented per message kind
// in familyb.go; the Reader provides bounds-checked primitives so
// every decoder fails the same way — ErrFrameTruncated — on a short frame
// rather than panicking on an out-of-range slice.
package decode

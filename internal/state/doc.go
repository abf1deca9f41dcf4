// Package state implements the per-device state engine.
//
// The engine tracks the last observed payload for every
// (deviceId, moduleNumber, messageKind) key and diffs each incoming
// canonical record against it, producing change events: RFID tags being
// attached, detached or swapped, sensor readings drifting past a
// threshold, doors opening and closing.
//
// Updates to a single key are serialized; updates to different keys run
// in parallel. Each key keeps a bounded FIFO history of its change
// events.
package state

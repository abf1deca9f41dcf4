// Package pipeline orchestrates the ingest hot path: MQTT frames are
// decoded, mapped, composed into canonical records by the canonical
// builder, annotated by the state engine, and fanned out to the sinks
// (cache, write buffer, WebSocket broadcast, relay, time-series).
//
// Frames are sharded to a fixed worker pool by device ID, so records
// for one device are always processed, and observed by sinks, in
// arrival order while different devices proceed in parallel. Sink
// failures are isolated: one failing sink never stops the others.
//
// The pipeline walks a monotonic lifecycle: New -> Initializing ->
// Running -> ShuttingDown -> Stopped. Shutting down drains in-flight
// frames up to a deadline and runs one final write-buffer flush.
package pipeline

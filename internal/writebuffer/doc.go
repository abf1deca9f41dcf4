// Package writebuffer implements the batched database write path.
//
// Canonical records are coalesced in memory and flushed to the sensor
// history store either when the buffer reaches its size limit or on a
// timer. A failed batch is retried with backoff a bounded number of
// times; when retries are exhausted the batch degrades to per-row
// inserts, and rows that still fail are dropped so memory stays
// bounded.
package writebuffer

package writebuffer

import "errors"

var (
	// ErrShutdown is returned by Push once Close has been called; new
	// records are rejected while the final drain runs.
	ErrShutdown = errors.New("writebuffer: shutting down")

	// ErrBatchFailed wraps a batch insert failure that exhausted its
	// retries and fell back to per-row writes.
	ErrBatchFailed = errors.New("writebuffer: batch save failed")
)

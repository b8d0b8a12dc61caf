package domain

import "errors"

var (
	// ErrNotReady means the read index has not been built yet. Surfaced to the
	// user as a polite "still starting up" answer, never as a raw error.
	ErrNotReady = errors.New("index not ready")

	// ErrQueueFull means the answer pipeline is at capacity. The gate still
	// acknowledges the event (with the platform's no-retry signal) so the
	// platform does not redeliver it.
	ErrQueueFull = errors.New("answer queue full")
)

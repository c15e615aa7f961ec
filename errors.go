package deferred

import "errors"

// Renderer errors.
var (
	// ErrClosed is returned by every method after Destroy.
	ErrClosed = errors.New("deferred: renderer closed")

	// ErrTimeout is returned by DrawFrame and DrawSplash when a fence wait
	// or image acquisition did not finish within the configured timeout.
	// The frame was dropped.
	ErrTimeout = errors.New("deferred: timed out")

	// ErrInvalidSize is returned by Resize for a negative size.
	ErrInvalidSize = errors.New("deferred: invalid size")
)

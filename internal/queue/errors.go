package queue

import "errors"

// Queue errors.
var (
	// ErrNullQueue is returned for operations on a queue without a driver handle.
	ErrNullQueue = errors.New("queue: null queue")

	// ErrSubmitting is returned by submit calls while a submission is
	// outstanding.
	ErrSubmitting = errors.New("queue: submission outstanding")

	// ErrEmptySubmit is returned for a submission without command buffers.
	ErrEmptySubmit = errors.New("queue: nothing to submit")

	// ErrDuplicateBuffer is returned when one command buffer appears twice in
	// a submission.
	ErrDuplicateBuffer = errors.New("queue: command buffer submitted twice")

	// ErrNoQueue is returned by Allocator.Claim when no unlocked queue has
	// the requested capabilities.
	ErrNoQueue = errors.New("queue: no free queue with requested capabilities")
)

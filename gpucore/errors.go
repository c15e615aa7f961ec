package gpucore

import "errors"

// Driver errors. Drivers wrap these with context; callers match them with
// errors.Is.
var (
	// ErrAllocation is returned when a native allocation fails.
	ErrAllocation = errors.New("gpucore: allocation failed")

	// ErrInvalidHandle is returned for an unknown or destroyed ID.
	ErrInvalidHandle = errors.New("gpucore: invalid handle")

	// ErrTimeout is returned when a bounded wait expired.
	ErrTimeout = errors.New("gpucore: timeout")

	// ErrOutOfDate is returned when a swapchain no longer matches its surface.
	ErrOutOfDate = errors.New("gpucore: swapchain out of date")

	// ErrDeviceLost is returned when the device stopped responding.
	ErrDeviceLost = errors.New("gpucore: device lost")

	// ErrUnsupported is returned for features the driver does not implement.
	ErrUnsupported = errors.New("gpucore: unsupported")

	// ErrSemaphore is returned when a submission waits on a semaphore that
	// has no pending signal, or signals one that is already signaled.
	ErrSemaphore = errors.New("gpucore: semaphore misuse")

	// ErrNotRecording is returned when a command buffer is used in a way that
	// requires recording state.
	ErrNotRecording = errors.New("gpucore: command buffer not recording")
)

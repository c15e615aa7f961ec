package deferred

import "time"

// FrameStats counts renderer activity since creation.
type FrameStats struct {
	// Frames is the number of presented scene frames.
	Frames uint64

	// Splashes is the number of presented splash frames.
	Splashes uint64

	// Submissions is the number of queue submissions.
	Submissions uint64

	// Timeouts is the number of frames dropped on a timed out wait.
	Timeouts uint64

	// Rebuilds is the number of swapchain rebuilds, whether caused by
	// Resize, an out-of-date swapchain or a timeout.
	Rebuilds uint64

	// LastFrame is the CPU time of the last presented frame, including the
	// end-of-frame drain.
	LastFrame time.Duration
}

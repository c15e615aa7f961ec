// Package queue wraps driver queues with single-outstanding-submission
// fence tracking.
//
// Every Queue owns exactly one fence. A submission marks the queue as
// submitting and moves its command buffers to Pending; the flag is cleared
// only when WaitSubmit or WaitIdle observes the fence signaled. A second
// submission while one is outstanding is rejected with ErrSubmitting.
//
// Timeouts are reported as TimedOut, never as success:
//
//	res, err := q.WaitSubmit(10 * time.Millisecond)
//	if err != nil {
//		return err
//	}
//	if res == queue.TimedOut {
//		// the submission is still outstanding
//	}
package queue

package queue

import (
	"fmt"
	"time"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/command"
)

// WaitResult is the outcome of a bounded wait.
type WaitResult uint8

// Wait outcomes.
const (
	// Signaled means the awaited work completed.
	Signaled WaitResult = iota
	// TimedOut means the timeout expired first; the work is still pending.
	TimedOut
)

func (r WaitResult) String() string {
	if r == TimedOut {
		return "TimedOut"
	}
	return "Signaled"
}

// Batch is one batch of a multi-batch submission.
type Batch struct {
	Waits   []gpucore.Wait
	Buffers []*command.CommandBuffer
	Signals []gpucore.SemaphoreID
}

// Queue is a driver queue with one submission fence.
//
// Queue is NOT safe for concurrent use; LockUsage is an ownership
// convention, not a mutex.
type Queue struct {
	drv    gpucore.Driver
	id     gpucore.QueueID
	family uint32
	index  uint32
	caps   gpucore.QueueCaps
	fence  gpucore.FenceID

	locked     bool
	submitting bool

	// serial counts accepted submissions; completed is the last serial
	// observed finished.
	serial    uint64
	completed uint64
}

// New wraps queue index of family and creates its fence.
func New(drv gpucore.Driver, family gpucore.QueueFamily, index uint32) (*Queue, error) {
	id, err := drv.GetQueue(family.Index, index)
	if err != nil {
		return nil, fmt.Errorf("get queue %d/%d: %w", family.Index, index, err)
	}
	fence, err := drv.CreateFence(false)
	if err != nil {
		return nil, fmt.Errorf("create fence for queue %d/%d: %w", family.Index, index, err)
	}
	return &Queue{
		drv:    drv,
		id:     id,
		family: family.Index,
		index:  index,
		caps:   family.Caps,
		fence:  fence,
	}, nil
}

// ID returns the driver handle.
func (q *Queue) ID() gpucore.QueueID { return q.id }

// Family returns the queue family index.
func (q *Queue) Family() uint32 { return q.family }

// Index returns the queue index within its family.
func (q *Queue) Index() uint32 { return q.index }

// Caps returns the capabilities of the queue's family.
func (q *Queue) Caps() gpucore.QueueCaps { return q.caps }

// IsSubmitting reports whether a submission is outstanding.
func (q *Queue) IsSubmitting() bool { return q.submitting }

// Submissions returns the number of accepted submissions.
func (q *Queue) Submissions() uint64 { return q.serial }

func (q *Queue) String() string {
	return fmt.Sprintf("queue %d/%d (%s)", q.family, q.index, q.caps)
}

// LockUsage claims the queue. It reports false when it is already claimed.
func (q *Queue) LockUsage() bool {
	if q.locked {
		return false
	}
	q.locked = true
	return true
}

// UnlockUsage releases a claim.
func (q *Queue) UnlockUsage() { q.locked = false }

// Locked reports whether the queue is claimed.
func (q *Queue) Locked() bool { return q.locked }

// SubmitOne submits one command buffer. It implements command.Submitter.
func (q *Queue) SubmitOne(cb *command.CommandBuffer, waits []gpucore.Wait, signals []gpucore.SemaphoreID) error {
	return q.SubmitMulti([]Batch{{Waits: waits, Buffers: []*command.CommandBuffer{cb}, Signals: signals}})
}

// SubmitMulti submits batches under the queue fence. Every buffer must be
// Executable; on success they become Pending until the fence is observed
// signaled. A rejected submission changes nothing.
func (q *Queue) SubmitMulti(batches []Batch) error {
	if q.id == gpucore.InvalidID {
		return ErrNullQueue
	}
	if q.submitting {
		return fmt.Errorf("%s: %w", q, ErrSubmitting)
	}
	seen := make(map[*command.CommandBuffer]bool)
	out := make([]gpucore.SubmitBatch, len(batches))
	for i, b := range batches {
		ids := make([]gpucore.CommandBufferID, 0, len(b.Buffers))
		for _, cb := range b.Buffers {
			if seen[cb] {
				return fmt.Errorf("%s: %q: %w", q, cb.Label(), ErrDuplicateBuffer)
			}
			seen[cb] = true
			if err := cb.CanSubmit(); err != nil {
				return fmt.Errorf("%s: %q: %w", q, cb.Label(), err)
			}
			ids = append(ids, cb.ID())
		}
		out[i] = gpucore.SubmitBatch{Waits: b.Waits, CommandBuffers: ids, Signals: b.Signals}
	}
	if len(seen) == 0 {
		return ErrEmptySubmit
	}
	if err := q.drv.Submit(q.id, out, q.fence); err != nil {
		return fmt.Errorf("%s: submit: %w", q, err)
	}
	q.serial++
	q.submitting = true
	t := &tracker{q: q, serial: q.serial}
	for _, b := range batches {
		for _, cb := range b.Buffers {
			// CanSubmit passed above and nothing ran since.
			_ = cb.MarkPending(t)
		}
	}
	return nil
}

// WaitSubmit waits up to timeout for the outstanding submission. With
// nothing outstanding it returns Signaled at once.
func (q *Queue) WaitSubmit(timeout time.Duration) (WaitResult, error) {
	if q.id == gpucore.InvalidID {
		return Signaled, ErrNullQueue
	}
	if !q.submitting {
		return Signaled, nil
	}
	done, err := q.drv.WaitFence(q.fence, timeout)
	if err != nil {
		return Signaled, fmt.Errorf("%s: wait fence: %w", q, err)
	}
	if !done {
		return TimedOut, nil
	}
	return Signaled, q.retire()
}

// WaitIdle blocks until the queue drained and retires any outstanding
// submission.
func (q *Queue) WaitIdle() error {
	if q.id == gpucore.InvalidID {
		return ErrNullQueue
	}
	if err := q.drv.QueueWaitIdle(q.id); err != nil {
		return fmt.Errorf("%s: wait idle: %w", q, err)
	}
	if !q.submitting {
		return nil
	}
	return q.retire()
}

func (q *Queue) retire() error {
	if err := q.drv.ResetFence(q.fence); err != nil {
		return fmt.Errorf("%s: reset fence: %w", q, err)
	}
	q.submitting = false
	q.completed = q.serial
	return nil
}

// Destroy releases the fence. The caller must have drained the queue.
func (q *Queue) Destroy() {
	if q.fence != gpucore.InvalidID {
		q.drv.DestroyFence(q.fence)
		q.fence = gpucore.InvalidID
	}
	q.id = gpucore.InvalidID
}

// tracker reports completion of one submission to command buffers.
type tracker struct {
	q      *Queue
	serial uint64
}

func (t *tracker) Done() bool { return t.q.completed >= t.serial }

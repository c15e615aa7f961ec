package queue

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/deferred/gpucore"
)

// Allocator owns every queue of a device and hands them out by capability.
type Allocator struct {
	queues []*Queue
}

// NewAllocator wraps every queue of every family the driver reports.
func NewAllocator(drv gpucore.Driver) (*Allocator, error) {
	a := &Allocator{}
	for _, fam := range drv.QueueFamilies() {
		for i := uint32(0); i < fam.Count; i++ {
			q, err := New(drv, fam, i)
			if err != nil {
				a.Destroy()
				return nil, err
			}
			a.queues = append(a.queues, q)
		}
	}
	return a, nil
}

// Queues returns every queue in family, index order.
func (a *Allocator) Queues() []*Queue { return append([]*Queue(nil), a.queues...) }

// Claim locks and returns the unlocked queue that has every capability in
// caps and the fewest others, so a compute-only family wins a compute claim
// over the graphics family.
func (a *Allocator) Claim(caps gpucore.QueueCaps) (*Queue, error) {
	var best *Queue
	bestExtra := 0
	for _, q := range a.queues {
		if q.Locked() || !q.Caps().Has(caps) {
			continue
		}
		extra := bits.OnesCount32(uint32(q.Caps() &^ caps))
		if best == nil || extra < bestExtra {
			best, bestExtra = q, extra
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoQueue, caps)
	}
	best.LockUsage()
	return best, nil
}

// Release unlocks a claimed queue.
func (a *Allocator) Release(q *Queue) { q.UnlockUsage() }

// WaitIdle drains every queue that has a submission outstanding.
func (a *Allocator) WaitIdle() error {
	for _, q := range a.queues {
		if !q.IsSubmitting() {
			continue
		}
		if err := q.WaitIdle(); err != nil {
			return err
		}
	}
	return nil
}

// Destroy destroys every queue fence.
func (a *Allocator) Destroy() {
	for _, q := range a.queues {
		q.Destroy()
	}
	a.queues = nil
}

package soft

import (
	"fmt"
	"time"

	"github.com/gogpu/deferred/gpucore"
)

type queueState struct {
	family uint32
	caps   gpucore.QueueCaps

	// inflight holds fences of work that has not completed.
	inflight []*fence
	submits  int
}

type semaphore struct {
	label    string
	signaled bool
}

type fence struct {
	signaled bool
}

// CreateSemaphore creates a binary semaphore.
func (d *Device) CreateSemaphore(label string) (gpucore.SemaphoreID, error) {
	if err := d.fault("CreateSemaphore"); err != nil {
		return 0, err
	}
	return gpucore.SemaphoreID(d.semaphores.Insert(&semaphore{label: label})), nil
}

// DestroySemaphore releases a semaphore.
func (d *Device) DestroySemaphore(s gpucore.SemaphoreID) { d.semaphores.Remove(uint64(s)) }

// SemaphoreSignaled reports whether s has a pending signal.
func (d *Device) SemaphoreSignaled(s gpucore.SemaphoreID) bool {
	sem, ok := d.semaphores.Get(uint64(s))
	return ok && sem.signaled
}

// SemaphoreLabel returns the label s was created with.
func (d *Device) SemaphoreLabel(s gpucore.SemaphoreID) string {
	if sem, ok := d.semaphores.Get(uint64(s)); ok {
		return sem.label
	}
	return ""
}

// CreateFence creates a fence.
func (d *Device) CreateFence(signaled bool) (gpucore.FenceID, error) {
	if err := d.fault("CreateFence"); err != nil {
		return 0, err
	}
	return gpucore.FenceID(d.fences.Insert(&fence{signaled: signaled})), nil
}

// DestroyFence releases a fence.
func (d *Device) DestroyFence(f gpucore.FenceID) { d.fences.Remove(uint64(f)) }

// WaitFence reports the fence status without sleeping: work either completed
// at submission or is held, in which case the wait times out.
func (d *Device) WaitFence(f gpucore.FenceID, _ time.Duration) (bool, error) {
	if err := d.fault("WaitFence"); err != nil {
		return false, err
	}
	fc, ok := d.fences.Get(uint64(f))
	if !ok {
		return false, invalid("fence", uint64(f))
	}
	return fc.signaled, nil
}

// ResetFence returns a fence to the unsignaled state.
func (d *Device) ResetFence(f gpucore.FenceID) error {
	fc, ok := d.fences.Get(uint64(f))
	if !ok {
		return invalid("fence", uint64(f))
	}
	fc.signaled = false
	return nil
}

// HoldQueue keeps work submitted to q from completing until ReleaseQueue or
// a WaitIdle.
func (d *Device) HoldQueue(q gpucore.QueueID) { d.held[q] = true }

// ReleaseQueue completes held work on q.
func (d *Device) ReleaseQueue(q gpucore.QueueID) {
	delete(d.held, q)
	if qs, ok := d.queues.Get(uint64(q)); ok {
		d.drain(qs)
	}
}

func (d *Device) drain(q *queueState) {
	for _, f := range q.inflight {
		f.signaled = true
	}
	q.inflight = q.inflight[:0]
}

// Submits returns the number of accepted submissions on q.
func (d *Device) Submits(q gpucore.QueueID) int {
	if qs, ok := d.queues.Get(uint64(q)); ok {
		return qs.submits
	}
	return 0
}

// Submit validates and executes batches on q.
func (d *Device) Submit(q gpucore.QueueID, batches []gpucore.SubmitBatch, f gpucore.FenceID) error {
	if err := d.fault("Submit"); err != nil {
		return err
	}
	qs, ok := d.queues.Get(uint64(q))
	if !ok {
		return invalid("queue", uint64(q))
	}
	var fc *fence
	if f != gpucore.InvalidID {
		if fc, ok = d.fences.Get(uint64(f)); !ok {
			return invalid("fence", uint64(f))
		}
		if fc.signaled {
			return validation("submit with signaled fence %#x", uint64(f))
		}
	}

	// Validate everything before touching state so a rejected submission
	// has no effect.
	sigState := make(map[gpucore.SemaphoreID]bool)
	signaled := func(id gpucore.SemaphoreID) (bool, error) {
		if v, ok := sigState[id]; ok {
			return v, nil
		}
		sem, ok := d.semaphores.Get(uint64(id))
		if !ok {
			return false, invalid("semaphore", uint64(id))
		}
		return sem.signaled, nil
	}
	claims := make(map[resource]uint32)
	for bi, b := range batches {
		for _, w := range b.Waits {
			on, err := signaled(w.Semaphore)
			if err != nil {
				return err
			}
			if !on {
				return fmt.Errorf("soft: batch %d waits on unsignaled semaphore %q: %w: %w",
					bi, d.SemaphoreLabel(w.Semaphore), gpucore.ErrSemaphore, ErrValidation)
			}
			sigState[w.Semaphore] = false
		}
		for _, id := range b.CommandBuffers {
			cb, ok := d.cmdBuffers.Get(uint64(id))
			if !ok {
				return invalid("command buffer", uint64(id))
			}
			if cb.state != cbExecutable {
				return validation("batch %d submits command buffer %#x in state %s", bi, uint64(id), cb.state)
			}
			if p, ok := d.pools.Get(uint64(cb.pool)); ok && p.desc.Family != qs.family {
				return validation("command buffer from family %d submitted to family %d", p.desc.Family, qs.family)
			}
			if err := d.checkOwnership(qs.family, cb, claims); err != nil {
				return err
			}
		}
		for _, s := range b.Signals {
			on, err := signaled(s)
			if err != nil {
				return err
			}
			if on {
				return fmt.Errorf("soft: batch %d signals already signaled semaphore %q: %w: %w",
					bi, d.SemaphoreLabel(s), gpucore.ErrSemaphore, ErrValidation)
			}
			sigState[s] = true
		}
	}

	d.commitOwnership(claims)
	for id, on := range sigState {
		sem, _ := d.semaphores.Get(uint64(id))
		sem.signaled = on
	}
	for _, b := range batches {
		for _, id := range b.CommandBuffers {
			cb, _ := d.cmdBuffers.Get(uint64(id))
			cb.executions++
			if cb.usage == gpucore.UsageOneTimeSubmit {
				cb.state = cbInvalid
			}
		}
	}
	if fc != nil {
		if d.held[q] {
			qs.inflight = append(qs.inflight, fc)
		} else {
			fc.signaled = true
		}
	}
	qs.submits++
	d.events = append(d.events, Event{
		Kind:    EventSubmit,
		Queue:   q,
		Batches: copyBatches(batches),
		Fence:   f,
	})
	return nil
}

// QueueWaitIdle drains q.
func (d *Device) QueueWaitIdle(q gpucore.QueueID) error {
	if err := d.fault("QueueWaitIdle"); err != nil {
		return err
	}
	qs, ok := d.queues.Get(uint64(q))
	if !ok {
		return invalid("queue", uint64(q))
	}
	d.drain(qs)
	d.events = append(d.events, Event{Kind: EventQueueIdle, Queue: q})
	return nil
}

func copyBatches(in []gpucore.SubmitBatch) []gpucore.SubmitBatch {
	out := make([]gpucore.SubmitBatch, len(in))
	for i, b := range in {
		out[i] = gpucore.SubmitBatch{
			Waits:          append([]gpucore.Wait(nil), b.Waits...),
			CommandBuffers: append([]gpucore.CommandBufferID(nil), b.CommandBuffers...),
			Signals:        append([]gpucore.SemaphoreID(nil), b.Signals...),
		}
	}
	return out
}

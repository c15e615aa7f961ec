package queue

import (
	"errors"
	"testing"

	"github.com/gogpu/deferred/backend/soft"
	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/command"
)

func newQueue(t *testing.T, d *soft.Device) *Queue {
	t.Helper()
	q, err := New(d, d.QueueFamilies()[0], 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q
}

// recorded returns an executable buffer with an empty recording.
func recorded(t *testing.T, p *command.Pool, oneTime bool) *command.CommandBuffer {
	t.Helper()
	cb, err := p.Allocate("cb")
	if err != nil {
		t.Fatal(err)
	}
	if err := cb.Start(oneTime); err != nil {
		t.Fatal(err)
	}
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
	return cb
}

func newPool(t *testing.T, d *soft.Device) *command.Pool {
	t.Helper()
	p, err := command.NewPool(d, &gpucore.CommandPoolDesc{Resettable: true})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSingleOutstandingSubmission(t *testing.T) {
	d := soft.New(soft.Options{})
	q := newQueue(t, d)
	p := newPool(t, d)
	a := recorded(t, p, false)
	b := recorded(t, p, false)

	d.HoldQueue(q.ID())
	if err := q.SubmitOne(a, nil, nil); err != nil {
		t.Fatalf("SubmitOne: %v", err)
	}
	if !q.IsSubmitting() {
		t.Fatal("IsSubmitting() = false after submit")
	}
	if got := a.State(); got != command.Pending {
		t.Fatalf("buffer state = %s, want Pending", got)
	}
	if err := q.SubmitOne(b, nil, nil); !errors.Is(err, ErrSubmitting) {
		t.Fatalf("second submit: err = %v, want ErrSubmitting", err)
	}
	if got := b.State(); got != command.Executable {
		t.Errorf("rejected buffer state = %s, want Executable", got)
	}

	res, err := q.WaitSubmit(0)
	if err != nil {
		t.Fatal(err)
	}
	if res != TimedOut {
		t.Fatalf("WaitSubmit on held queue = %s, want TimedOut", res)
	}
	if !q.IsSubmitting() || a.State() != command.Pending {
		t.Fatal("timeout cleared the outstanding submission")
	}

	d.ReleaseQueue(q.ID())
	if res, err := q.WaitSubmit(0); err != nil || res != Signaled {
		t.Fatalf("WaitSubmit after release = %s, %v; want Signaled", res, err)
	}
	if q.IsSubmitting() {
		t.Error("IsSubmitting() = true after Signaled")
	}
	if got := a.State(); got != command.Executable {
		t.Errorf("simultaneous buffer after completion = %s, want Executable", got)
	}
	if err := q.SubmitOne(b, nil, nil); err != nil {
		t.Errorf("submit after retire: %v", err)
	}
}

func TestWaitIdleRetires(t *testing.T) {
	d := soft.New(soft.Options{})
	q := newQueue(t, d)
	p := newPool(t, d)
	cb := recorded(t, p, true)

	d.HoldQueue(q.ID())
	if err := q.SubmitOne(cb, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := q.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	if q.IsSubmitting() {
		t.Error("IsSubmitting() after WaitIdle")
	}
	if got := cb.State(); got != command.Fresh {
		t.Errorf("one-time buffer after WaitIdle = %s, want Fresh", got)
	}
	if err := p.Reset(true); err != nil {
		t.Errorf("pool reset after drain: %v", err)
	}
}

func TestWaitSubmitNothingOutstanding(t *testing.T) {
	d := soft.New(soft.Options{})
	q := newQueue(t, d)
	if res, err := q.WaitSubmit(0); err != nil || res != Signaled {
		t.Errorf("WaitSubmit idle = %s, %v", res, err)
	}
}

func TestSubmitMultiBatches(t *testing.T) {
	d := soft.New(soft.Options{})
	q := newQueue(t, d)
	p := newPool(t, d)
	a := recorded(t, p, false)
	b := recorded(t, p, false)
	s1, _ := d.CreateSemaphore("s1")
	s2, _ := d.CreateSemaphore("s2")

	err := q.SubmitMulti([]Batch{
		{Buffers: []*command.CommandBuffer{a}, Signals: []gpucore.SemaphoreID{s1}},
		{Waits: []gpucore.Wait{{Semaphore: s1, Stage: gpucore.StageFragmentShader}}, Buffers: []*command.CommandBuffer{b}, Signals: []gpucore.SemaphoreID{s2}},
	})
	if err != nil {
		t.Fatalf("SubmitMulti: %v", err)
	}
	ev := d.Events()
	if len(ev) != 1 || len(ev[0].Batches) != 2 {
		t.Fatalf("events = %+v, want one submit with two batches", ev)
	}
	if !d.SemaphoreSignaled(s2) || d.SemaphoreSignaled(s1) {
		t.Error("semaphore hand-off inside the submission not applied")
	}
	if q.Submissions() != 1 {
		t.Errorf("Submissions() = %d, want 1", q.Submissions())
	}
}

func TestSubmitRejections(t *testing.T) {
	d := soft.New(soft.Options{})
	q := newQueue(t, d)
	p := newPool(t, d)
	a := recorded(t, p, false)

	if err := q.SubmitMulti([]Batch{{Buffers: []*command.CommandBuffer{a, a}}}); !errors.Is(err, ErrDuplicateBuffer) {
		t.Errorf("duplicate buffer: err = %v", err)
	}
	if err := q.SubmitMulti(nil); !errors.Is(err, ErrEmptySubmit) {
		t.Errorf("empty submit: err = %v", err)
	}

	fresh, _ := p.Allocate("fresh")
	if err := q.SubmitOne(fresh, nil, nil); !errors.Is(err, command.ErrInvalidState) {
		t.Errorf("fresh buffer: err = %v, want ErrInvalidState", err)
	}

	// A driver rejection leaves the queue and buffers untouched.
	unsignaled, _ := d.CreateSemaphore("never")
	err := q.SubmitOne(a, []gpucore.Wait{{Semaphore: unsignaled}}, nil)
	if !errors.Is(err, gpucore.ErrSemaphore) {
		t.Fatalf("driver rejection: err = %v", err)
	}
	if q.IsSubmitting() || a.State() != command.Executable {
		t.Error("rejected submission changed queue or buffer state")
	}

	q.Destroy()
	if err := q.SubmitOne(a, nil, nil); !errors.Is(err, ErrNullQueue) {
		t.Errorf("submit on destroyed queue: err = %v, want ErrNullQueue", err)
	}
}

func TestLockUsage(t *testing.T) {
	d := soft.New(soft.Options{})
	q := newQueue(t, d)
	if !q.LockUsage() {
		t.Fatal("first LockUsage() = false")
	}
	if q.LockUsage() {
		t.Error("second LockUsage() = true")
	}
	q.UnlockUsage()
	if q.Locked() {
		t.Error("Locked() after UnlockUsage")
	}
}

func TestAllocatorClaim(t *testing.T) {
	d := soft.New(soft.Options{})
	a, err := NewAllocator(d)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Destroy()
	if n := len(a.Queues()); n != 3 {
		t.Fatalf("len(Queues()) = %d, want 3", n)
	}

	gfx, err := a.Claim(gpucore.QueueGraphics | gpucore.QueuePresent)
	if err != nil {
		t.Fatal(err)
	}
	if gfx.Family() != 0 {
		t.Errorf("graphics queue family = %d, want 0", gfx.Family())
	}
	cmp, err := a.Claim(gpucore.QueueCompute)
	if err != nil {
		t.Fatal(err)
	}
	if cmp.Family() != 1 {
		t.Errorf("compute claim picked family %d, want the compute-only family 1", cmp.Family())
	}

	gfx2, err := a.Claim(gpucore.QueueGraphics)
	if err != nil {
		t.Fatal(err)
	}
	if gfx2 == gfx {
		t.Error("Claim handed out a locked queue")
	}
	if _, err := a.Claim(gpucore.QueueGraphics); !errors.Is(err, ErrNoQueue) {
		t.Errorf("exhausted claim: err = %v, want ErrNoQueue", err)
	}
	a.Release(gfx)
	if q, err := a.Claim(gpucore.QueueGraphics); err != nil || q != gfx {
		t.Errorf("Claim after Release = %v, %v", q, err)
	}
}

func TestAllocatorDestroyReleasesFences(t *testing.T) {
	d := soft.New(soft.Options{})
	a, err := NewAllocator(d)
	if err != nil {
		t.Fatal(err)
	}
	a.Destroy()
	if n := d.LiveObjects()["fence"]; n != 0 {
		t.Errorf("%d fences alive after Destroy", n)
	}
}

package command

import (
	"errors"
	"testing"

	"github.com/gogpu/deferred/backend/soft"
	"github.com/gogpu/deferred/gpucore"
)

type fakeTracker struct{ done bool }

func (t *fakeTracker) Done() bool { return t.done }

type target struct {
	rp gpucore.RenderPassID
	fb gpucore.FramebufferID
}

func newTarget(t *testing.T, d *soft.Device) target {
	t.Helper()
	img, err := d.CreateImage(&gpucore.ImageDesc{
		Extent: gpucore.Extent2D{Width: 2, Height: 2},
		Format: gpucore.FormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	view, err := d.CreateImageView(&gpucore.ImageViewDesc{Image: img, Format: gpucore.FormatRGBA8Unorm})
	if err != nil {
		t.Fatal(err)
	}
	rp, err := d.CreateRenderPass(&gpucore.RenderPassDesc{
		Attachments: []gpucore.AttachmentDesc{{Format: gpucore.FormatRGBA8Unorm}},
		Subpasses:   []gpucore.SubpassDesc{{Color: []gpucore.AttachmentRef{{Attachment: 0}}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	fb, err := d.CreateFramebuffer(&gpucore.FramebufferDesc{
		RenderPass:  rp,
		Attachments: []gpucore.ImageViewID{view},
		Extent:      gpucore.Extent2D{Width: 2, Height: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	return target{rp: rp, fb: fb}
}

func (tg target) begin() *gpucore.RenderPassBegin {
	return &gpucore.RenderPassBegin{RenderPass: tg.rp, Framebuffer: tg.fb}
}

func newPool(t *testing.T, d *soft.Device, resettable bool) *Pool {
	t.Helper()
	p, err := NewPool(d, &gpucore.CommandPoolDesc{Label: "test", Resettable: resettable})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func wantState(t *testing.T, cb *CommandBuffer, want State) {
	t.Helper()
	if got := cb.State(); got != want {
		t.Fatalf("State() = %s, want %s", got, want)
	}
}

func wantStateError(t *testing.T, err error, op string, from State) {
	t.Helper()
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StateError", err)
	}
	if se.Op != op || se.From != from {
		t.Errorf("StateError = {%q, %s}, want {%q, %s}", se.Op, se.From, op, from)
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("errors.Is(err, ErrInvalidState) = false")
	}
}

func TestLegalLifecycle(t *testing.T) {
	d := soft.New(soft.Options{})
	tg := newTarget(t, d)
	p := newPool(t, d, true)
	cb, err := p.Allocate("main")
	if err != nil {
		t.Fatal(err)
	}
	wantState(t, cb, Fresh)

	if err := cb.Start(false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	wantState(t, cb, Recording)
	if cb.Recorder() == nil {
		t.Fatal("Recorder() = nil while recording")
	}

	if err := cb.StartRenderPass(tg.begin()); err != nil {
		t.Fatalf("StartRenderPass: %v", err)
	}
	wantState(t, cb, RenderPass)
	if err := cb.EndRenderPass(); err != nil {
		t.Fatalf("EndRenderPass: %v", err)
	}
	wantState(t, cb, Recording)

	if err := cb.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	wantState(t, cb, Executable)
	if cb.Recorder() != nil {
		t.Error("Recorder() != nil after End")
	}
	if got := cb.RenderPasses(); got != 1 {
		t.Errorf("RenderPasses() = %d, want 1", got)
	}

	tr := &fakeTracker{}
	if err := cb.MarkPending(tr); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	wantState(t, cb, Pending)

	tr.done = true
	wantState(t, cb, Executable)

	if err := cb.Reset(false); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	wantState(t, cb, Fresh)
}

func TestEndClosesOpenRenderPass(t *testing.T) {
	d := soft.New(soft.Options{})
	tg := newTarget(t, d)
	cb, _ := newPool(t, d, true).Allocate("main")
	_ = cb.Start(true)
	_ = cb.StartRenderPass(tg.begin())
	if err := cb.End(); err != nil {
		t.Fatalf("End inside render pass: %v", err)
	}
	wantState(t, cb, Executable)
	cmds := d.Commands(cb.ID())
	if len(cmds) != 2 || cmds[1].Op != soft.OpEndRenderPass {
		t.Errorf("recorded %v, want BeginRenderPass, EndRenderPass", cmds)
	}
}

func TestRejectedTransitionsLeaveStateUnchanged(t *testing.T) {
	d := soft.New(soft.Options{})
	tg := newTarget(t, d)
	p := newPool(t, d, true)

	fresh, _ := p.Allocate("fresh")
	wantStateError(t, fresh.End(), "end", Fresh)
	wantStateError(t, fresh.StartRenderPass(tg.begin()), "start render pass", Fresh)
	wantStateError(t, fresh.EndRenderPass(), "end render pass", Fresh)
	wantStateError(t, fresh.NextSubpass(), "next subpass", Fresh)
	wantStateError(t, fresh.CanSubmit(), "submit", Fresh)
	wantState(t, fresh, Fresh)

	rec, _ := p.Allocate("recording")
	_ = rec.Start(true)
	wantStateError(t, rec.Start(true), "start", Recording)
	wantStateError(t, rec.EndRenderPass(), "end render pass", Recording)
	wantStateError(t, rec.MarkPending(&fakeTracker{}), "submit", Recording)
	wantState(t, rec, Recording)

	inPass, _ := p.Allocate("pass")
	_ = inPass.Start(true)
	_ = inPass.StartRenderPass(tg.begin())
	wantStateError(t, inPass.StartRenderPass(tg.begin()), "start render pass", RenderPass)
	wantState(t, inPass, RenderPass)

	exec, _ := p.Allocate("exec")
	_ = exec.Start(false)
	_ = exec.End()
	wantStateError(t, exec.Start(false), "start", Executable)
	wantStateError(t, exec.End(), "end", Executable)
	wantState(t, exec, Executable)
}

func TestPendingRefusesResetAndFree(t *testing.T) {
	d := soft.New(soft.Options{})
	p := newPool(t, d, true)
	cb, _ := p.Allocate("main")
	_ = cb.Start(false)
	_ = cb.End()
	tr := &fakeTracker{}
	_ = cb.MarkPending(tr)

	wantStateError(t, cb.Reset(false), "reset", Pending)
	wantStateError(t, p.Free(cb), "free", Pending)
	wantStateError(t, cb.MarkPending(tr), "submit", Pending)
	if err := p.Reset(false); !errors.Is(err, ErrPoolBusy) {
		t.Errorf("Pool.Reset while pending: err = %v, want ErrPoolBusy", err)
	}
	wantState(t, cb, Pending)

	tr.done = true
	if err := p.Reset(false); err != nil {
		t.Fatalf("Pool.Reset after completion: %v", err)
	}
	wantState(t, cb, Fresh)
}

func TestCompletionByUsage(t *testing.T) {
	d := soft.New(soft.Options{})
	p := newPool(t, d, true)

	tests := []struct {
		oneTime bool
		want    State
	}{
		{oneTime: true, want: Fresh},
		{oneTime: false, want: Executable},
	}
	for _, tt := range tests {
		cb, _ := p.Allocate("cb")
		_ = cb.Start(tt.oneTime)
		_ = cb.End()
		tr := &fakeTracker{}
		_ = cb.MarkPending(tr)
		tr.done = true
		if got := cb.State(); got != tt.want {
			t.Errorf("oneTime=%v: State after completion = %s, want %s", tt.oneTime, got, tt.want)
		}
	}
}

func TestNonResettablePool(t *testing.T) {
	d := soft.New(soft.Options{})
	p := newPool(t, d, false)
	cb, _ := p.Allocate("main")
	_ = cb.Start(false)
	_ = cb.End()

	if err := cb.Reset(false); !errors.Is(err, ErrNotResettable) {
		t.Errorf("Reset on non-resettable pool: err = %v, want ErrNotResettable", err)
	}
	wantState(t, cb, Executable)

	if err := p.Reset(true); err != nil {
		t.Fatalf("Pool.Reset: %v", err)
	}
	wantState(t, cb, Fresh)
	// Resetting an already reset pool is a no-op.
	if err := p.Reset(true); err != nil {
		t.Fatalf("second Pool.Reset: %v", err)
	}
	wantState(t, cb, Fresh)
}

func TestForeignAndFreedBuffers(t *testing.T) {
	d := soft.New(soft.Options{})
	a := newPool(t, d, true)
	b := newPool(t, d, true)
	cb, _ := a.Allocate("main")

	if err := b.Free(cb); !errors.Is(err, ErrForeignBuffer) {
		t.Errorf("Free by foreign pool: err = %v, want ErrForeignBuffer", err)
	}
	if err := a.Free(cb); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if err := cb.Start(true); !errors.Is(err, ErrFreed) {
		t.Errorf("Start on freed buffer: err = %v, want ErrFreed", err)
	}
	if err := a.Free(cb); !errors.Is(err, ErrForeignBuffer) {
		t.Errorf("double Free: err = %v, want ErrForeignBuffer", err)
	}
}

func TestAllocateNAndDestroy(t *testing.T) {
	d := soft.New(soft.Options{})
	p := newPool(t, d, true)
	bufs, err := p.AllocateN("frame", 3)
	if err != nil {
		t.Fatal(err)
	}
	if bufs[2].Label() != "frame[2]" {
		t.Errorf("Label = %q, want frame[2]", bufs[2].Label())
	}
	if p.Len() != 3 || len(p.Buffers()) != 3 {
		t.Errorf("Len = %d, Buffers = %d, want 3", p.Len(), len(p.Buffers()))
	}

	p.Destroy()
	if err := bufs[0].Start(true); !errors.Is(err, ErrFreed) && !errors.Is(err, ErrPoolDestroyed) {
		t.Errorf("Start after pool Destroy: err = %v", err)
	}
	if _, err := p.Allocate("late"); !errors.Is(err, ErrPoolDestroyed) {
		t.Errorf("Allocate after Destroy: err = %v, want ErrPoolDestroyed", err)
	}
	if n := d.LiveObjects()["commandBuffer"] + d.LiveObjects()["commandPool"]; n != 0 {
		t.Errorf("%d command objects alive after Destroy", n)
	}
}

func TestDriverRejectionKeepsRecording(t *testing.T) {
	d := soft.New(soft.Options{})
	p := newPool(t, d, true)
	cb, _ := p.Allocate("main")
	_ = cb.Start(true)
	d.FailNext("EndCommandBuffer", nil)
	if err := cb.End(); !errors.Is(err, soft.ErrInjected) {
		t.Fatalf("End with driver fault: err = %v", err)
	}
	wantState(t, cb, Recording)
	if err := cb.End(); err != nil {
		t.Fatalf("End retry: %v", err)
	}
}

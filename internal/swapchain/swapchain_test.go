package swapchain

import (
	"errors"
	"testing"

	"github.com/gogpu/deferred/backend/soft"
	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/queue"
)

func newSwapchain(t *testing.T, d *soft.Device) *Swapchain {
	t.Helper()
	sc, err := New(d, gpucore.SwapchainDesc{
		Label:      "sc",
		Extent:     gpucore.Extent2D{Width: 64, Height: 32},
		Format:     gpucore.FormatBGRA8Unorm,
		ImageCount: 3,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sc
}

func TestAcquirePresentCycle(t *testing.T) {
	d := soft.New(soft.Options{})
	sc := newSwapchain(t, d)
	q, err := queue.New(d, d.QueueFamilies()[0], 0)
	if err != nil {
		t.Fatal(err)
	}
	if sc.ImageCount() != 3 {
		t.Fatalf("ImageCount() = %d", sc.ImageCount())
	}

	idx, res, err := sc.Acquire(0)
	if err != nil || res != queue.Signaled {
		t.Fatalf("Acquire = %d, %s, %v", idx, res, err)
	}
	if !d.SemaphoreSignaled(sc.ImageReady()) {
		t.Error("ImageReady not signaled by Acquire")
	}

	// Present without RenderReady signaled is a semaphore misuse.
	if err := sc.Present(q, idx); !errors.Is(err, gpucore.ErrSemaphore) {
		t.Fatalf("Present before render: err = %v", err)
	}

	// Simulate the last pass: consume ImageReady, signal RenderReady.
	cbPool, _ := d.CreateCommandPool(&gpucore.CommandPoolDesc{})
	cb, _ := d.AllocateCommandBuffer(cbPool)
	if _, err := d.BeginCommandBuffer(cb, gpucore.UsageOneTimeSubmit); err != nil {
		t.Fatal(err)
	}
	_ = d.EndCommandBuffer(cb)
	err = d.Submit(q.ID(), []gpucore.SubmitBatch{{
		Waits:          []gpucore.Wait{{Semaphore: sc.ImageReady(), Stage: gpucore.StageColorAttachmentOutput}},
		CommandBuffers: []gpucore.CommandBufferID{cb},
		Signals:        []gpucore.SemaphoreID{sc.RenderReady()},
	}}, 0)
	if err != nil {
		t.Fatal(err)
	}

	_, _, _ = sc.Acquire(0)
	if err := sc.Present(q, idx); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("Present of stale index: err = %v, want ErrNotAcquired", err)
	}
}

func TestAcquireTimeoutIsDistinct(t *testing.T) {
	d := soft.New(soft.Options{})
	sc := newSwapchain(t, d)
	d.StallAcquire(true)
	_, res, err := sc.Acquire(0)
	if err != nil {
		t.Fatalf("Acquire timeout returned error %v", err)
	}
	if res != queue.TimedOut {
		t.Errorf("Acquire result = %s, want TimedOut", res)
	}
	if d.SemaphoreSignaled(sc.ImageReady()) {
		t.Error("ImageReady signaled on timeout")
	}
}

func TestAcquireOutOfDate(t *testing.T) {
	d := soft.New(soft.Options{})
	sc := newSwapchain(t, d)
	d.SetOutOfDate(sc.ID())
	if _, _, err := sc.Acquire(0); !errors.Is(err, gpucore.ErrOutOfDate) {
		t.Errorf("Acquire on out-of-date swapchain: err = %v", err)
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	d := soft.New(soft.Options{})
	sc := newSwapchain(t, d)
	sc.Destroy()
	sc.Destroy()
	if n := d.TotalLive(); n != 0 {
		t.Errorf("TotalLive after Destroy = %d: %v", n, d.LiveObjects())
	}
}

func TestNewCleansUpOnFailure(t *testing.T) {
	d := soft.New(soft.Options{})
	d.FailNext("CreateSemaphore", nil)
	if _, err := New(d, gpucore.SwapchainDesc{Extent: gpucore.Extent2D{Width: 4, Height: 4}, Format: gpucore.FormatBGRA8Unorm}); err == nil {
		t.Fatal("New succeeded despite injected fault")
	}
	if n := d.TotalLive(); n != 0 {
		t.Errorf("TotalLive after failed New = %d: %v", n, d.LiveObjects())
	}
}

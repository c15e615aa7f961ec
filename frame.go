package deferred

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/chain"
	"github.com/gogpu/deferred/internal/command"
	"github.com/gogpu/deferred/internal/queue"
	"github.com/gogpu/deferred/internal/step"
	"github.com/gogpu/deferred/internal/uniform"
)

// DrawFrame renders and presents one frame of the current scene with ctl.
// A nil ctl reuses the control block of the previous frame. Without a
// scene it draws the splash screen instead.
//
// An out-of-date swapchain skips the frame and rebuilds it before the
// next one; DrawFrame then returns nil. A wait that exceeds the configured
// timeout returns an error wrapping ErrTimeout. Every frame ends with the
// used queues idle.
func (r *Renderer) DrawFrame(ctl *uniform.ShaderControl) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ready, err := r.prepare()
	if err != nil || !ready {
		return err
	}
	if r.scene == nil {
		return r.drawSplash()
	}
	start := time.Now()

	if ctl != nil {
		r.control = *ctl
	}
	if err := r.sync(); err != nil {
		return err
	}
	ext := r.sc.Extent()
	aspect := float32(ext.Width) / float32(ext.Height)
	if err := r.uniforms.Upload(r.scene, &r.control, aspect); err != nil {
		return fmt.Errorf("deferred: %w", err)
	}

	idx, ok, err := r.acquire()
	if err != nil || !ok {
		return err
	}
	used, err := r.submitFrame(idx)
	if err != nil {
		return r.failFrame(err)
	}
	if err := r.present(idx, r.sc.RenderReady()); err != nil {
		return err
	}
	if err := r.idle(used...); err != nil {
		return r.failFrame(err)
	}
	r.stats.Frames++
	r.stats.LastFrame = time.Since(start)
	return nil
}

// DrawSplash presents the splash image once, whether or not a scene is
// set.
func (r *Renderer) DrawSplash() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ready, err := r.prepare()
	if err != nil || !ready {
		return err
	}
	return r.drawSplash()
}

func (r *Renderer) drawSplash() error {
	if err := r.uniforms.UploadControl(&r.control); err != nil {
		return fmt.Errorf("deferred: %w", err)
	}
	idx, ok, err := r.acquire()
	if err != nil || !ok {
		return err
	}
	signal := r.sems[splashLink]
	wait := gpucore.Wait{Semaphore: r.sc.ImageReady(), Stage: gpucore.StageColorAttachmentOutput}
	if err := r.graphics.SubmitOne(r.splash.CommandBuffer(idx), []gpucore.Wait{wait}, []gpucore.SemaphoreID{signal}); err != nil {
		return r.failFrame(err)
	}
	if err := r.await(r.graphics); err != nil {
		return r.failFrame(err)
	}
	if err := r.present(idx, signal); err != nil {
		return err
	}
	if err := r.idle(r.graphics); err != nil {
		return r.failFrame(err)
	}
	r.stats.Splashes++
	return nil
}

// prepare rebuilds a stale or resized swapchain. It reports false while
// there is nothing to draw to.
func (r *Renderer) prepare() (bool, error) {
	if r.closed {
		return false, ErrClosed
	}
	if r.stale || r.resize.Load() != nil {
		reason := r.staleReason
		if reason == "" {
			reason = "resize"
		}
		if err := r.rebuild(reason); err != nil {
			return false, err
		}
	}
	return !r.stale && r.sc != nil, nil
}

// sync brings the chain and the recorded passes in line with the control
// block and the scene.
func (r *Renderer) sync() error {
	if err := r.applyToggles(Toggles{Blur: r.control.BlurEnabled, GlobalLight: r.control.GlobalEnabled}); err != nil {
		return err
	}
	if v := r.scene.Version(); v != r.sceneVersion {
		if err := r.drain(); err != nil {
			return err
		}
		if err := r.scene.Validate(r.cfg.Limits()); err != nil {
			return err
		}
		if err := r.refresh(r.steps...); err != nil {
			return err
		}
		r.sceneVersion = v
		r.log.Debug("deferred: scene edit picked up", "version", v)
	}
	return nil
}

// acquire reports false when the frame must be skipped.
func (r *Renderer) acquire() (uint32, bool, error) {
	idx, res, err := r.sc.Acquire(r.cfg.AcquireTimeout)
	switch {
	case errors.Is(err, gpucore.ErrOutOfDate):
		r.markStale("out of date on acquire")
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("deferred: %w", err)
	case res == queue.TimedOut:
		r.stats.Timeouts++
		r.log.Warn("deferred: acquire timed out", "timeout", r.cfg.AcquireTimeout)
		return 0, false, fmt.Errorf("%w: acquire after %v", ErrTimeout, r.cfg.AcquireTimeout)
	}
	return idx, true, nil
}

// submitFrame submits the enabled chain steps in order. Consecutive steps
// on one queue go out as one multi-batch submission; before a queue is
// reused its previous submission must have completed.
func (r *Renderer) submitFrame(idx uint32) ([]*queue.Queue, error) {
	var (
		used    []*queue.Queue
		cur     *queue.Queue
		batches []queue.Batch
	)
	flush := func() error {
		if len(batches) == 0 {
			return nil
		}
		if err := r.await(cur); err != nil {
			return err
		}
		if err := cur.SubmitMulti(batches); err != nil {
			return fmt.Errorf("deferred: %w", err)
		}
		r.stats.Submissions++
		r.log.Debug("deferred: submitted", "queue", cur.String(), "batches", len(batches))
		batches = nil
		return nil
	}
	for _, cs := range r.chain.Steps() {
		s := r.byName[cs.Name]
		q := r.queueFor(s)
		if q != cur {
			if err := flush(); err != nil {
				return used, err
			}
			cur = q
			used = appendQueue(used, q)
		}
		batches = append(batches, batchOf(cs, s, idx))
	}
	if err := flush(); err != nil {
		return used, err
	}
	for _, q := range used {
		if err := r.await(q); err != nil {
			return used, err
		}
	}
	return used, nil
}

func batchOf(cs chain.Step, s step.Step, idx uint32) queue.Batch {
	return queue.Batch{
		Waits:   []gpucore.Wait{cs.Wait},
		Buffers: []*command.CommandBuffer{s.CommandBuffer(idx)},
		Signals: []gpucore.SemaphoreID{cs.Signal},
	}
}

func appendQueue(qs []*queue.Queue, q *queue.Queue) []*queue.Queue {
	for _, have := range qs {
		if have == q {
			return qs
		}
	}
	return append(qs, q)
}

func (r *Renderer) queueFor(s step.Step) *queue.Queue {
	if s.Queue() == step.Compute {
		return r.compute
	}
	return r.graphics
}

// await waits for the outstanding submission of q within FenceTimeout.
func (r *Renderer) await(q *queue.Queue) error {
	res, err := q.WaitSubmit(r.cfg.FenceTimeout)
	if err != nil {
		return fmt.Errorf("deferred: %w", err)
	}
	if res == queue.TimedOut {
		return fmt.Errorf("%w: %s fence after %v", ErrTimeout, q, r.cfg.FenceTimeout)
	}
	return nil
}

func (r *Renderer) present(idx uint32, wait gpucore.SemaphoreID) error {
	err := r.sc.PresentAfter(r.graphics, idx, wait)
	switch {
	case errors.Is(err, gpucore.ErrOutOfDate):
		r.markStale("out of date on present")
		return nil
	case err != nil:
		return r.failFrame(fmt.Errorf("deferred: %w", err))
	}
	return nil
}

// idle drains the given queues.
func (r *Renderer) idle(qs ...*queue.Queue) error {
	for _, q := range qs {
		if err := q.WaitIdle(); err != nil {
			return fmt.Errorf("deferred: %w", err)
		}
	}
	return nil
}

// failFrame abandons a frame that acquired an image. Semaphores it signaled
// are left in an unknown state, so the swapchain and chain are rebuilt
// before the next frame.
func (r *Renderer) failFrame(err error) error {
	if errors.Is(err, ErrTimeout) {
		r.stats.Timeouts++
	}
	r.markStale("failed frame")
	r.log.Warn("deferred: frame dropped", "err", err)
	return err
}

package command

import (
	"fmt"

	"github.com/gogpu/deferred/gpucore"
)

// Tracker reports whether the submission a buffer belongs to has finished
// executing. Queues hand one to MarkPending.
type Tracker interface {
	Done() bool
}

// Submitter hands executable buffers to the GPU. *queue.Queue implements it.
type Submitter interface {
	SubmitOne(cb *CommandBuffer, waits []gpucore.Wait, signals []gpucore.SemaphoreID) error
}

// CommandBuffer is a recordable unit of GPU work owned by exactly one Pool.
//
// CommandBuffer is NOT safe for concurrent use.
type CommandBuffer struct {
	pool  *Pool
	id    gpucore.CommandBufferID
	label string

	state   State
	oneTime bool
	freed   bool

	// rec is the driver command sink, valid while recording.
	rec gpucore.Recorder

	// passes counts render pass instances recorded since Start.
	passes int
}

// ID returns the driver handle.
func (cb *CommandBuffer) ID() gpucore.CommandBufferID { return cb.id }

// Pool returns the owning pool.
func (cb *CommandBuffer) Pool() *Pool { return cb.pool }

// Label returns the debug label.
func (cb *CommandBuffer) Label() string { return cb.label }

// SetLabel sets the debug label used in errors and logs.
func (cb *CommandBuffer) SetLabel(label string) { cb.label = label }

// State returns the current state. A Pending buffer whose submission has
// finished moves on before State returns.
func (cb *CommandBuffer) State() State {
	cb.pool.poll(cb)
	return cb.state
}

// OneTime reports whether the current recording used one-time-submit usage.
func (cb *CommandBuffer) OneTime() bool { return cb.oneTime }

// RenderPasses returns the number of render pass instances recorded since
// the last Start.
func (cb *CommandBuffer) RenderPasses() int { return cb.passes }

func (cb *CommandBuffer) reject(op string) error {
	return &StateError{Op: op, From: cb.state}
}

func (cb *CommandBuffer) live() error {
	if cb.freed {
		return ErrFreed
	}
	if cb.pool.destroyed {
		return ErrPoolDestroyed
	}
	return nil
}

// Start begins recording. oneTime selects one-time-submit usage; otherwise
// the buffer is recorded for simultaneous use and may be resubmitted until
// it is reset.
func (cb *CommandBuffer) Start(oneTime bool) error {
	if err := cb.live(); err != nil {
		return err
	}
	if cb.State() != Fresh {
		return cb.reject("start")
	}
	usage := gpucore.UsageSimultaneous
	if oneTime {
		usage = gpucore.UsageOneTimeSubmit
	}
	rec, err := cb.pool.drv.BeginCommandBuffer(cb.id, usage)
	if err != nil {
		return fmt.Errorf("begin command buffer %q: %w", cb.label, err)
	}
	cb.rec = rec
	cb.oneTime = oneTime
	cb.passes = 0
	cb.state = Recording
	return nil
}

// Recorder returns the command sink while the buffer is recording, or nil.
// Render pass boundaries must go through StartRenderPass and EndRenderPass,
// not the sink, so the state machine sees them.
func (cb *CommandBuffer) Recorder() gpucore.Recorder {
	if cb.state != Recording && cb.state != RenderPass {
		return nil
	}
	return cb.rec
}

// StartRenderPass begins a render pass instance.
func (cb *CommandBuffer) StartRenderPass(begin *gpucore.RenderPassBegin) error {
	if err := cb.live(); err != nil {
		return err
	}
	if cb.state != Recording {
		return cb.reject("start render pass")
	}
	cb.rec.BeginRenderPass(begin)
	cb.passes++
	cb.state = RenderPass
	return nil
}

// NextSubpass advances to the next subpass of the open render pass.
func (cb *CommandBuffer) NextSubpass() error {
	if err := cb.live(); err != nil {
		return err
	}
	if cb.state != RenderPass {
		return cb.reject("next subpass")
	}
	cb.rec.NextSubpass()
	return nil
}

// EndRenderPass closes the open render pass.
func (cb *CommandBuffer) EndRenderPass() error {
	if err := cb.live(); err != nil {
		return err
	}
	if cb.state != RenderPass {
		return cb.reject("end render pass")
	}
	cb.rec.EndRenderPass()
	cb.state = Recording
	return nil
}

// End finishes recording. An open render pass is closed first.
func (cb *CommandBuffer) End() error {
	if err := cb.live(); err != nil {
		return err
	}
	if cb.state != Recording && cb.state != RenderPass {
		return cb.reject("end")
	}
	if cb.state == RenderPass {
		cb.rec.EndRenderPass()
	}
	if err := cb.pool.drv.EndCommandBuffer(cb.id); err != nil {
		// The driver rejected the recording; the buffer must be reset.
		cb.state = Recording
		return fmt.Errorf("end command buffer %q: %w", cb.label, err)
	}
	cb.rec = nil
	cb.state = Executable
	return nil
}

// Submit hands the buffer to q. It is shorthand for q.SubmitOne.
func (cb *CommandBuffer) Submit(q Submitter, waits []gpucore.Wait, signals []gpucore.SemaphoreID) error {
	if err := cb.live(); err != nil {
		return err
	}
	if cb.State() != Executable {
		return cb.reject("submit")
	}
	return q.SubmitOne(cb, waits, signals)
}

// CanSubmit reports whether the buffer may be handed to a queue now.
func (cb *CommandBuffer) CanSubmit() error {
	if err := cb.live(); err != nil {
		return err
	}
	if cb.State() != Executable {
		return cb.reject("submit")
	}
	return nil
}

// MarkPending moves an Executable buffer to Pending until t reports done.
// Queues call it after the driver accepted the submission.
func (cb *CommandBuffer) MarkPending(t Tracker) error {
	if err := cb.CanSubmit(); err != nil {
		return err
	}
	cb.pool.pending[cb] = t
	cb.state = Pending
	return nil
}

// Reset returns the buffer to Fresh. It is refused when the pool does not
// allow individual reset and while the buffer is Pending.
func (cb *CommandBuffer) Reset(release bool) error {
	if err := cb.live(); err != nil {
		return err
	}
	if !cb.pool.resettable {
		return fmt.Errorf("reset %q: %w", cb.label, ErrNotResettable)
	}
	if cb.State() == Pending {
		return cb.reject("reset")
	}
	if err := cb.pool.drv.ResetCommandBuffer(cb.id, release); err != nil {
		return fmt.Errorf("reset command buffer %q: %w", cb.label, err)
	}
	cb.toFresh()
	return nil
}

func (cb *CommandBuffer) toFresh() {
	cb.rec = nil
	cb.passes = 0
	cb.oneTime = false
	cb.state = Fresh
}

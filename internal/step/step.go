package step

import (
	"errors"
	"fmt"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/command"
	"github.com/gogpu/deferred/internal/renderpass"
)

// ErrNotSetUp is returned when a step is recorded before its setup ran.
var ErrNotSetUp = errors.New("step: not set up")

// Step is one pass of the deferred pipeline.
type Step interface {
	// Name identifies the step in the frame chain and in logs.
	Name() string

	// Queue is the queue kind the step's command buffers are submitted to.
	Queue() QueueKind

	SetupRenderPass(ctx *Context) error
	SetupShaders(ctx *Context) error
	SetupDescriptors(ctx *Context) error
	SetupPipelineLayout(ctx *Context) error
	SetupPipeline(ctx *Context) error
	UpdateDescriptorSets(ctx *Context) error
	WriteCmdBuff(ctx *Context) error

	// CommandBuffer returns the buffer to submit for swapchain image i.
	// Steps that do not write to the swapchain ignore i.
	CommandBuffer(i uint32) *command.CommandBuffer

	// Destroy releases every object the step created. The command buffers
	// go back to their pool.
	Destroy(ctx *Context)
}

// Setup drives the full setup sequence of s.
func Setup(ctx *Context, s Step) error {
	if err := ctx.check(); err != nil {
		return err
	}
	stages := []struct {
		name string
		fn   func(*Context) error
	}{
		{"render pass", s.SetupRenderPass},
		{"shaders", s.SetupShaders},
		{"descriptors", s.SetupDescriptors},
		{"pipeline layout", s.SetupPipelineLayout},
		{"pipeline", s.SetupPipeline},
		{"descriptor sets", s.UpdateDescriptorSets},
		{"command buffers", s.WriteCmdBuff},
	}
	for _, st := range stages {
		if err := st.fn(ctx); err != nil {
			return fmt.Errorf("step %s: %s: %w", s.Name(), st.name, err)
		}
	}
	slogger().Debug("step ready", "step", s.Name(), "queue", s.Queue())
	return nil
}

// Refresh rewrites the descriptor sets of s and re-records its command
// buffers, as needed after a scene change or a toggle change.
func Refresh(ctx *Context, s Step) error {
	if err := s.UpdateDescriptorSets(ctx); err != nil {
		return fmt.Errorf("step %s: descriptor sets: %w", s.Name(), err)
	}
	if err := s.WriteCmdBuff(ctx); err != nil {
		return fmt.Errorf("step %s: command buffers: %w", s.Name(), err)
	}
	return nil
}

// base holds what every step owns. Concrete steps embed it.
type base struct {
	name  string
	queue QueueKind

	rp           *renderpass.RenderPass
	ownsRP       bool
	framebuffers []gpucore.FramebufferID

	vert, frag, comp gpucore.ShaderStageDesc

	setLayout gpucore.DescriptorSetLayoutID
	descPool  gpucore.DescriptorPoolID
	sets      []gpucore.DescriptorSetID

	layout   gpucore.PipelineLayoutID
	pipeline gpucore.PipelineID

	buffers []*command.CommandBuffer
}

func (b *base) Name() string     { return b.name }
func (b *base) Queue() QueueKind { return b.queue }

// CommandBuffer returns buffer i, or the only buffer of single-buffer steps.
func (b *base) CommandBuffer(i uint32) *command.CommandBuffer {
	switch {
	case len(b.buffers) == 0:
		return nil
	case len(b.buffers) == 1:
		return b.buffers[0]
	case int(i) < len(b.buffers):
		return b.buffers[i]
	}
	return nil
}

// RenderPass returns the render pass the step draws with, or nil for
// compute steps.
func (b *base) RenderPass() *renderpass.RenderPass { return b.rp }

// Sets returns the descriptor sets.
func (b *base) Sets() []gpucore.DescriptorSetID { return b.sets }

// ownRenderPass adopts a render pass the step is responsible for.
func (b *base) ownRenderPass(rp *renderpass.RenderPass) {
	b.rp = rp
	b.ownsRP = true
}

// framebuffer creates a framebuffer against the step's render pass.
func (b *base) framebuffer(ctx *Context, label string, e gpucore.Extent2D, views ...gpucore.ImageViewID) error {
	fb, err := ctx.Driver.CreateFramebuffer(&gpucore.FramebufferDesc{
		Label:       label,
		RenderPass:  b.rp.ID(),
		Attachments: views,
		Extent:      e,
		Layers:      1,
	})
	if err != nil {
		return fmt.Errorf("create framebuffer %q: %w", label, err)
	}
	b.framebuffers = append(b.framebuffers, fb)
	return nil
}

// loadGraphics loads a vertex and a fragment shader.
func (b *base) loadGraphics(ctx *Context, vert, frag string) error {
	var err error
	if b.vert, err = ctx.Shaders.Load(vert, gpucore.ShaderVertex); err != nil {
		return err
	}
	if b.frag, err = ctx.Shaders.Load(frag, gpucore.ShaderFragment); err != nil {
		return err
	}
	return nil
}

// descriptors creates the set layout, a pool sized for count sets and
// allocates the sets.
func (b *base) descriptors(ctx *Context, count int, bindings ...gpucore.DescriptorBinding) error {
	var err error
	if b.setLayout, err = ctx.Driver.CreateDescriptorSetLayout(&gpucore.DescriptorSetLayoutDesc{
		Label:    b.name,
		Bindings: bindings,
	}); err != nil {
		return fmt.Errorf("create set layout: %w", err)
	}
	perType := make(map[gpucore.DescriptorType]uint32)
	var order []gpucore.DescriptorType
	for _, bd := range bindings {
		if _, ok := perType[bd.Type]; !ok {
			order = append(order, bd.Type)
		}
		perType[bd.Type] += max(bd.Count, 1) * uint32(count)
	}
	sizes := make([]gpucore.DescriptorPoolSize, 0, len(order))
	for _, t := range order {
		sizes = append(sizes, gpucore.DescriptorPoolSize{Type: t, Count: perType[t]})
	}
	if b.descPool, err = ctx.Driver.CreateDescriptorPool(&gpucore.DescriptorPoolDesc{
		Label:   b.name,
		MaxSets: uint32(count),
		Sizes:   sizes,
	}); err != nil {
		return fmt.Errorf("create descriptor pool: %w", err)
	}
	if b.sets, err = ctx.Driver.AllocateDescriptorSets(b.descPool, b.setLayout, count); err != nil {
		return fmt.Errorf("allocate %d descriptor sets: %w", count, err)
	}
	return nil
}

// pipelineLayout creates the pipeline layout over the step's set layout.
func (b *base) pipelineLayout(ctx *Context, push ...gpucore.PushConstantRange) error {
	var err error
	b.layout, err = ctx.Driver.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
		Label:         b.name,
		SetLayouts:    []gpucore.DescriptorSetLayoutID{b.setLayout},
		PushConstants: push,
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	return nil
}

// record (re)records n command buffers. Buffers are allocated on first use
// and reset before re-recording. fn records the body of buffer i.
func (b *base) record(ctx *Context, n int, fn func(i int, cb *command.CommandBuffer) error) error {
	if b.pipeline == gpucore.InvalidID {
		return ErrNotSetUp
	}
	if len(b.buffers) != n {
		if err := b.freeBuffers(ctx); err != nil {
			return err
		}
		bufs, err := ctx.pool(b.queue).AllocateN(b.name, n)
		if err != nil {
			return err
		}
		b.buffers = bufs
	}
	for i, cb := range b.buffers {
		if cb.State() != command.Fresh {
			if err := cb.Reset(false); err != nil {
				return err
			}
		}
		if err := cb.Start(false); err != nil {
			return err
		}
		if err := fn(i, cb); err != nil {
			return err
		}
		if err := cb.End(); err != nil {
			return err
		}
	}
	return nil
}

func (b *base) freeBuffers(ctx *Context) error {
	for _, cb := range b.buffers {
		if err := cb.Pool().Free(cb); err != nil {
			return err
		}
	}
	b.buffers = nil
	return nil
}

// destroy releases everything base owns.
func (b *base) destroy(ctx *Context) {
	if err := b.freeBuffers(ctx); err != nil {
		slogger().Warn("step: free command buffers", "step", b.name, "err", err)
	}
	d := ctx.Driver
	if b.pipeline != gpucore.InvalidID {
		d.DestroyPipeline(b.pipeline)
		b.pipeline = gpucore.InvalidID
	}
	if b.layout != gpucore.InvalidID {
		d.DestroyPipelineLayout(b.layout)
		b.layout = gpucore.InvalidID
	}
	if b.descPool != gpucore.InvalidID {
		d.DestroyDescriptorPool(b.descPool)
		b.descPool = gpucore.InvalidID
		b.sets = nil
	}
	if b.setLayout != gpucore.InvalidID {
		d.DestroyDescriptorSetLayout(b.setLayout)
		b.setLayout = gpucore.InvalidID
	}
	for _, fb := range b.framebuffers {
		d.DestroyFramebuffer(fb)
	}
	b.framebuffers = nil
	if b.rp != nil && b.ownsRP {
		b.rp.Destroy()
	}
	b.rp, b.ownsRP = nil, false
}

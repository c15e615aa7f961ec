package soft

import (
	"github.com/gogpu/deferred/gpucore"
)

type cbState uint8

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbInvalid
)

func (s cbState) String() string {
	switch s {
	case cbInitial:
		return "initial"
	case cbRecording:
		return "recording"
	case cbExecutable:
		return "executable"
	case cbInvalid:
		return "invalid"
	}
	return "unknown"
}

type poolState struct {
	desc    gpucore.CommandPoolDesc
	buffers map[gpucore.CommandBufferID]struct{}
}

type cmdBuffer struct {
	pool       gpucore.CommandPoolID
	state      cbState
	usage      gpucore.CommandBufferUsage
	cmds       []Command
	executions int

	// misuse is set when a command arrives outside recording.
	misuse bool
}

// CreateCommandPool creates a command pool.
func (d *Device) CreateCommandPool(desc *gpucore.CommandPoolDesc) (gpucore.CommandPoolID, error) {
	if err := d.fault("CreateCommandPool"); err != nil {
		return 0, err
	}
	found := false
	for _, f := range d.opts.Families {
		found = found || f.Index == desc.Family
	}
	if !found {
		return 0, validation("command pool for unknown family %d", desc.Family)
	}
	p := &poolState{desc: *desc, buffers: make(map[gpucore.CommandBufferID]struct{})}
	return gpucore.CommandPoolID(d.pools.Insert(p)), nil
}

// DestroyCommandPool frees the pool and its buffers.
func (d *Device) DestroyCommandPool(pool gpucore.CommandPoolID) {
	p, ok := d.pools.Remove(uint64(pool))
	if !ok {
		return
	}
	for id := range p.buffers {
		d.cmdBuffers.Remove(uint64(id))
	}
}

// ResetCommandPool returns every buffer of the pool to the initial state.
func (d *Device) ResetCommandPool(pool gpucore.CommandPoolID, _ bool) error {
	if err := d.fault("ResetCommandPool"); err != nil {
		return err
	}
	p, ok := d.pools.Get(uint64(pool))
	if !ok {
		return invalid("command pool", uint64(pool))
	}
	for id := range p.buffers {
		if cb, ok := d.cmdBuffers.Get(uint64(id)); ok {
			cb.reset()
		}
	}
	return nil
}

// AllocateCommandBuffer allocates a primary command buffer.
func (d *Device) AllocateCommandBuffer(pool gpucore.CommandPoolID) (gpucore.CommandBufferID, error) {
	if err := d.fault("AllocateCommandBuffer"); err != nil {
		return 0, err
	}
	p, ok := d.pools.Get(uint64(pool))
	if !ok {
		return 0, invalid("command pool", uint64(pool))
	}
	id := gpucore.CommandBufferID(d.cmdBuffers.Insert(&cmdBuffer{pool: pool}))
	p.buffers[id] = struct{}{}
	return id, nil
}

// FreeCommandBuffer releases a command buffer.
func (d *Device) FreeCommandBuffer(pool gpucore.CommandPoolID, cb gpucore.CommandBufferID) {
	if p, ok := d.pools.Get(uint64(pool)); ok {
		delete(p.buffers, cb)
	}
	d.cmdBuffers.Remove(uint64(cb))
}

// BeginCommandBuffer starts recording. A previously recorded buffer is
// implicitly reset, which requires a resettable pool.
func (d *Device) BeginCommandBuffer(id gpucore.CommandBufferID, usage gpucore.CommandBufferUsage) (gpucore.Recorder, error) {
	if err := d.fault("BeginCommandBuffer"); err != nil {
		return nil, err
	}
	cb, ok := d.cmdBuffers.Get(uint64(id))
	if !ok {
		return nil, invalid("command buffer", uint64(id))
	}
	if cb.state == cbRecording {
		return nil, validation("begin on recording command buffer %#x", uint64(id))
	}
	cb.reset()
	cb.state = cbRecording
	cb.usage = usage
	return &recorder{d: d, cb: cb}, nil
}

// EndCommandBuffer finishes recording after validating the command stream.
func (d *Device) EndCommandBuffer(id gpucore.CommandBufferID) error {
	if err := d.fault("EndCommandBuffer"); err != nil {
		return err
	}
	cb, ok := d.cmdBuffers.Get(uint64(id))
	if !ok {
		return invalid("command buffer", uint64(id))
	}
	if cb.state != cbRecording {
		return validation("end on command buffer %#x in state %s", uint64(id), cb.state)
	}
	if err := d.validateStream(cb); err != nil {
		return err
	}
	cb.state = cbExecutable
	return nil
}

// ResetCommandBuffer returns a buffer to the initial state.
func (d *Device) ResetCommandBuffer(id gpucore.CommandBufferID, _ bool) error {
	if err := d.fault("ResetCommandBuffer"); err != nil {
		return err
	}
	cb, ok := d.cmdBuffers.Get(uint64(id))
	if !ok {
		return invalid("command buffer", uint64(id))
	}
	p, ok := d.pools.Get(uint64(cb.pool))
	if ok && !p.desc.Resettable {
		return validation("reset of command buffer %#x from non-resettable pool", uint64(id))
	}
	cb.reset()
	return nil
}

func (cb *cmdBuffer) reset() {
	cb.state = cbInitial
	cb.cmds = nil
	cb.misuse = false
}

func (d *Device) validateStream(cb *cmdBuffer) error {
	if cb.misuse {
		return validation("command recorded outside recording state: %v", gpucore.ErrNotRecording)
	}
	var (
		inPass    bool
		subpass   uint32
		subpasses uint32
		graphics  bool
		compute   bool
	)
	for i, c := range cb.cmds {
		switch c.Op {
		case OpBeginRenderPass:
			if inPass {
				return validation("command %d: nested render pass", i)
			}
			rp, ok := d.renderPasses.Get(uint64(c.RenderPass))
			if !ok {
				return invalid("render pass", uint64(c.RenderPass))
			}
			fb, ok := d.framebuffers.Get(uint64(c.Framebuffer))
			if !ok {
				return invalid("framebuffer", uint64(c.Framebuffer))
			}
			if len(fb.Attachments) != len(rp.Attachments) {
				return validation("command %d: framebuffer has %d attachments, render pass %d",
					i, len(fb.Attachments), len(rp.Attachments))
			}
			inPass, subpass, subpasses = true, 0, uint32(len(rp.Subpasses))
		case OpNextSubpass:
			if !inPass || subpass+1 >= subpasses {
				return validation("command %d: next subpass past the last subpass", i)
			}
			subpass++
		case OpEndRenderPass:
			if !inPass {
				return validation("command %d: end render pass outside a pass", i)
			}
			if subpass+1 != subpasses {
				return validation("command %d: render pass ended in subpass %d of %d", i, subpass, subpasses)
			}
			inPass = false
		case OpBindPipeline:
			p, ok := d.pipelines.Get(uint64(c.Pipeline))
			if !ok {
				return invalid("pipeline", uint64(c.Pipeline))
			}
			if p.compute != (c.BindPoint == gpucore.BindCompute) {
				return validation("command %d: pipeline bound at wrong bind point", i)
			}
			if p.compute {
				compute = true
			} else {
				graphics = true
			}
		case OpBindDescriptorSets:
			for _, s := range c.Sets {
				if !d.descSets.Contains(uint64(s)) {
					return invalid("descriptor set", uint64(s))
				}
			}
		case OpBindVertexBuffers, OpBindIndexBuffer:
			for _, b := range c.Buffers {
				if !d.buffers.Contains(uint64(b)) {
					return invalid("buffer", uint64(b))
				}
			}
		case OpDraw, OpDrawIndexed:
			if !inPass {
				return validation("command %d: draw outside a render pass", i)
			}
			if !graphics {
				return validation("command %d: draw without a graphics pipeline", i)
			}
		case OpDispatch:
			if inPass {
				return validation("command %d: dispatch inside a render pass", i)
			}
			if !compute {
				return validation("command %d: dispatch without a compute pipeline", i)
			}
		case OpPipelineBarrier:
			if inPass {
				return validation("command %d: barrier inside a render pass", i)
			}
		}
	}
	if inPass {
		return validation("command buffer ended inside a render pass")
	}
	return nil
}

// Commands returns the commands recorded into cb.
func (d *Device) Commands(id gpucore.CommandBufferID) []Command {
	cb, ok := d.cmdBuffers.Get(uint64(id))
	if !ok {
		return nil
	}
	return append([]Command(nil), cb.cmds...)
}

// Executions returns how many times cb was submitted.
func (d *Device) Executions(id gpucore.CommandBufferID) int {
	if cb, ok := d.cmdBuffers.Get(uint64(id)); ok {
		return cb.executions
	}
	return 0
}

// WorkCount returns the number of draw and dispatch commands recorded into cb.
func (d *Device) WorkCount(id gpucore.CommandBufferID) int {
	n := 0
	for _, c := range d.Commands(id) {
		if c.IsWork() {
			n++
		}
	}
	return n
}

type recorder struct {
	d  *Device
	cb *cmdBuffer
}

func (r *recorder) add(c Command) {
	if r.cb.state != cbRecording {
		r.cb.misuse = true
		return
	}
	r.cb.cmds = append(r.cb.cmds, c)
}

func (r *recorder) BeginRenderPass(b *gpucore.RenderPassBegin) {
	r.add(Command{Op: OpBeginRenderPass, RenderPass: b.RenderPass, Framebuffer: b.Framebuffer})
}

func (r *recorder) NextSubpass()   { r.add(Command{Op: OpNextSubpass}) }
func (r *recorder) EndRenderPass() { r.add(Command{Op: OpEndRenderPass}) }

func (r *recorder) BindPipeline(point gpucore.PipelineBindPoint, p gpucore.PipelineID) {
	r.add(Command{Op: OpBindPipeline, BindPoint: point, Pipeline: p})
}

func (r *recorder) BindDescriptorSets(point gpucore.PipelineBindPoint, _ gpucore.PipelineLayoutID, first uint32, sets []gpucore.DescriptorSetID) {
	r.add(Command{
		Op:        OpBindDescriptorSets,
		BindPoint: point,
		Sets:      append([]gpucore.DescriptorSetID(nil), sets...),
		Counts:    [3]uint32{first},
	})
}

func (r *recorder) BindVertexBuffers(first uint32, buffers []gpucore.BufferID, _ []uint64) {
	r.add(Command{
		Op:      OpBindVertexBuffers,
		Buffers: append([]gpucore.BufferID(nil), buffers...),
		Counts:  [3]uint32{first},
	})
}

func (r *recorder) BindIndexBuffer(b gpucore.BufferID, _ uint64, format gpucore.IndexFormat) {
	r.add(Command{Op: OpBindIndexBuffer, Buffers: []gpucore.BufferID{b}, Counts: [3]uint32{uint32(format)}})
}

func (r *recorder) PushConstants(_ gpucore.PipelineLayoutID, stages gpucore.ShaderStage, offset uint32, data []byte) {
	r.add(Command{
		Op:     OpPushConstants,
		Counts: [3]uint32{uint32(stages), offset},
		Data:   append([]byte(nil), data...),
	})
}

func (r *recorder) SetViewport(gpucore.Viewport) { r.add(Command{Op: OpSetViewport}) }
func (r *recorder) SetScissor(gpucore.Rect2D)    { r.add(Command{Op: OpSetScissor}) }

func (r *recorder) Draw(vertexCount, instanceCount, _, _ uint32) {
	r.add(Command{Op: OpDraw, Counts: [3]uint32{vertexCount, instanceCount}})
}

func (r *recorder) DrawIndexed(indexCount, instanceCount, _ uint32, _ int32, _ uint32) {
	r.add(Command{Op: OpDrawIndexed, Counts: [3]uint32{indexCount, instanceCount}})
}

func (r *recorder) Dispatch(x, y, z uint32) {
	r.add(Command{Op: OpDispatch, Counts: [3]uint32{x, y, z}})
}

func (r *recorder) PipelineBarrier(barriers []gpucore.ImageBarrier) {
	r.add(Command{Op: OpPipelineBarrier, Barriers: append([]gpucore.ImageBarrier(nil), barriers...)})
}

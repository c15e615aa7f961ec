// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/deferred/gpucore"
)

type vertexBinding struct {
	buf    hal.Buffer
	offset uint64
}

type indexBinding struct {
	buf    hal.Buffer
	offset uint64
	format gputypes.IndexFormat
}

// bindState is the pipeline and descriptor state of one bind point. hal
// passes do not inherit state, so it is re-applied to every pass.
type bindState struct {
	pipeline *pipeline
	sets     map[uint32]hal.BindGroup
}

// encoding replays command lists into one hal command encoder.
type encoding struct {
	d   *Device
	enc hal.CommandEncoder

	pushBG   hal.BindGroup
	pushData []byte
	pushCur  [pushSlot]byte
	slot     int

	rp      hal.RenderPassEncoder
	cp      hal.ComputePassEncoder
	pass    *gpucore.RenderPassDesc
	fb      *gpucore.FramebufferDesc
	begin   gpucore.RenderPassBegin
	subpass int
	loaded  map[uint32]bool
	last    map[uint32]int

	graphics bindState
	compute  bindState
	vertex   map[uint32]vertexBinding
	index    *indexBinding
	viewport *gpucore.Viewport
	scissor  *gpucore.Rect2D
}

func newEncoding(d *Device, enc hal.CommandEncoder, pushBG hal.BindGroup) *encoding {
	return &encoding{d: d, enc: enc, pushBG: pushBG, slot: -1}
}

// resetState clears the bound state between command buffers, which do not
// share state either.
func (e *encoding) resetState() {
	e.graphics = bindState{sets: make(map[uint32]hal.BindGroup)}
	e.compute = bindState{sets: make(map[uint32]hal.BindGroup)}
	e.vertex = make(map[uint32]vertexBinding)
	e.index, e.viewport, e.scissor = nil, nil, nil
	e.pushCur = [pushSlot]byte{}
}

func (e *encoding) replay(cmds []command) error {
	e.resetState()
	for i := range cmds {
		if err := e.exec(&cmds[i]); err != nil {
			return fmt.Errorf("wgpu: command %d: %w", i, err)
		}
	}
	e.endCompute()
	if e.rp != nil {
		return fmt.Errorf("wgpu: command list ends inside a render pass: %w", gpucore.ErrNotRecording)
	}
	return nil
}

func (e *encoding) exec(c *command) error {
	d := e.d
	switch c.op {
	case opBeginRenderPass:
		e.endCompute()
		rp, ok := d.renderPasses.Get(uint64(c.begin.RenderPass))
		if !ok {
			return invalid("render pass", uint64(c.begin.RenderPass))
		}
		fb, ok := d.framebuffers.Get(uint64(c.begin.Framebuffer))
		if !ok {
			return invalid("framebuffer", uint64(c.begin.Framebuffer))
		}
		e.pass, e.fb, e.begin, e.subpass = rp, fb, c.begin, 0
		e.loaded = make(map[uint32]bool)
		e.last = lastUses(rp)
		return e.beginSubpass()
	case opNextSubpass:
		if e.rp == nil || e.subpass+1 >= len(e.pass.Subpasses) {
			return fmt.Errorf("next subpass past the last subpass: %w", gpucore.ErrNotRecording)
		}
		e.rp.End()
		e.subpass++
		return e.beginSubpass()
	case opEndRenderPass:
		if e.rp == nil {
			return fmt.Errorf("end render pass outside a pass: %w", gpucore.ErrNotRecording)
		}
		e.rp.End()
		e.rp, e.pass, e.fb = nil, nil, nil
	case opBindPipeline:
		p, ok := d.pipelines.Get(uint64(c.pipeline))
		if !ok {
			return invalid("pipeline", uint64(c.pipeline))
		}
		if c.point == gpucore.BindCompute {
			e.compute.pipeline = p
			if e.cp != nil {
				e.cp.SetPipeline(p.compute)
				e.bindPush(p, e.cp.SetBindGroup)
			}
			return nil
		}
		e.graphics.pipeline = p
		if e.rp != nil {
			e.rp.SetPipeline(p.render)
			e.bindPush(p, e.rp.SetBindGroup)
		}
	case opBindDescriptorSets:
		st := &e.graphics
		if c.point == gpucore.BindCompute {
			st = &e.compute
		}
		for i, id := range c.sets {
			bg, err := d.bindGroup(id)
			if err != nil {
				return err
			}
			idx := c.first + uint32(i)
			st.sets[idx] = bg
			switch {
			case c.point == gpucore.BindCompute && e.cp != nil:
				e.cp.SetBindGroup(idx, bg, nil)
			case c.point == gpucore.BindGraphics && e.rp != nil:
				e.rp.SetBindGroup(idx, bg, nil)
			}
		}
	case opBindVertexBuffers:
		for i, id := range c.buffers {
			buf, ok := d.buffers.Get(uint64(id))
			if !ok {
				return invalid("buffer", uint64(id))
			}
			var off uint64
			if i < len(c.offsets) {
				off = c.offsets[i]
			}
			slot := c.first + uint32(i)
			e.vertex[slot] = vertexBinding{buf: buf.hal, offset: off}
			if e.rp != nil {
				e.rp.SetVertexBuffer(slot, buf.hal, off)
			}
		}
	case opBindIndexBuffer:
		buf, ok := d.buffers.Get(uint64(c.buffers[0]))
		if !ok {
			return invalid("buffer", uint64(c.buffers[0]))
		}
		e.index = &indexBinding{buf: buf.hal, offset: c.offsets[0], format: indexFormat(c.index)}
		if e.rp != nil {
			e.rp.SetIndexBuffer(e.index.buf, e.index.format, e.index.offset)
		}
	case opPushConstants:
		if int(c.offset)+len(c.data) > pushSlot {
			return fmt.Errorf("push constants past %d bytes: %w", pushSlot, gpucore.ErrUnsupported)
		}
		copy(e.pushCur[c.offset:], c.data)
		e.pushData = append(e.pushData, e.pushCur[:]...)
		e.slot = len(e.pushData)/pushSlot - 1
		if e.rp != nil && e.graphics.pipeline != nil {
			e.bindPush(e.graphics.pipeline, e.rp.SetBindGroup)
		}
		if e.cp != nil && e.compute.pipeline != nil {
			e.bindPush(e.compute.pipeline, e.cp.SetBindGroup)
		}
	case opSetViewport:
		v := c.viewport
		e.viewport = &v
		if e.rp != nil {
			e.rp.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
		}
	case opSetScissor:
		s := c.scissor
		e.scissor = &s
		if e.rp != nil {
			e.rp.SetScissorRect(uint32(s.X), uint32(s.Y), s.Extent.Width, s.Extent.Height)
		}
	case opDraw, opDrawIndexed:
		if e.rp == nil || e.graphics.pipeline == nil {
			return fmt.Errorf("draw outside a render pass or without a pipeline: %w", gpucore.ErrNotRecording)
		}
		if c.op == opDraw {
			e.rp.Draw(c.counts[0], c.counts[1], c.counts[2], c.counts[3])
		} else {
			e.rp.DrawIndexed(c.counts[0], c.counts[1], c.counts[2], c.base, c.counts[3])
		}
	case opDispatch:
		if e.rp != nil || e.compute.pipeline == nil {
			return fmt.Errorf("dispatch inside a render pass or without a pipeline: %w", gpucore.ErrNotRecording)
		}
		if e.cp == nil {
			e.cp = e.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: "dispatch"})
			e.cp.SetPipeline(e.compute.pipeline.compute)
			for idx, bg := range e.compute.sets {
				e.cp.SetBindGroup(idx, bg, nil)
			}
			e.bindPush(e.compute.pipeline, e.cp.SetBindGroup)
		}
		e.cp.Dispatch(c.counts[0], c.counts[1], c.counts[2])
	case opPipelineBarrier:
		if e.rp != nil {
			return fmt.Errorf("barrier inside a render pass: %w", gpucore.ErrNotRecording)
		}
		e.endCompute()
		barriers := make([]hal.TextureBarrier, 0, len(c.barriers))
		for _, b := range c.barriers {
			im, ok := d.images.Get(uint64(b.Image))
			if !ok {
				return invalid("image", uint64(b.Image))
			}
			barriers = append(barriers, hal.TextureBarrier{
				Texture: im.hal,
				Usage: hal.TextureUsageTransition{
					OldUsage: layoutUsage(b.OldLayout),
					NewUsage: layoutUsage(b.NewLayout),
				},
			})
		}
		e.enc.TransitionTextures(barriers)
	}
	return nil
}

func (e *encoding) endCompute() {
	if e.cp != nil {
		e.cp.End()
		e.cp = nil
	}
}

// bindPush binds the current push constant slot for pipelines that use
// push constants.
func (e *encoding) bindPush(p *pipeline, set func(uint32, hal.BindGroup, []uint32)) {
	if p == nil || !p.layout.push || e.slot < 0 || e.pushBG == nil {
		return
	}
	set(pushGroup, e.pushBG, []uint32{uint32(e.slot * pushSlot)})
}

// beginSubpass opens the hal render pass of the current subpass. The first
// use of an attachment applies its load op; later uses load. The last use
// applies its store op; earlier uses store.
func (e *encoding) beginSubpass() error {
	sp := &e.pass.Subpasses[e.subpass]
	desc := &hal.RenderPassDescriptor{Label: fmt.Sprintf("%s/%d", e.pass.Label, e.subpass)}
	for _, ref := range sp.Color {
		if ref.Unused() {
			continue
		}
		view, err := e.attachmentView(ref.Attachment)
		if err != nil {
			return err
		}
		att := e.pass.Attachments[ref.Attachment]
		load, store := e.ops(ref.Attachment, att.LoadOp, att.StoreOp)
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       view,
			LoadOp:     load,
			StoreOp:    store,
			ClearValue: color(e.clear(ref.Attachment).Color),
		})
	}
	if ref, ok := sp.DepthAttachment(); ok {
		view, err := e.attachmentView(ref.Attachment)
		if err != nil {
			return err
		}
		att := e.pass.Attachments[ref.Attachment]
		cv := e.clear(ref.Attachment)
		load, store := e.ops(ref.Attachment, att.LoadOp, att.StoreOp)
		ds := &hal.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     load,
			DepthStoreOp:    store,
			DepthClearValue: cv.Depth,
		}
		if att.Format.HasStencil() {
			ds.StencilLoadOp, ds.StencilStoreOp = e.ops(ref.Attachment, att.StencilLoadOp, att.StencilStoreOp)
			ds.StencilClearValue = cv.Stencil
		}
		desc.DepthStencilAttachment = ds
	}
	for _, ref := range sp.Color {
		e.loaded[ref.Attachment] = true
	}
	for _, ref := range sp.DepthStencil {
		e.loaded[ref.Attachment] = true
	}

	e.rp = e.enc.BeginRenderPass(desc)
	if p := e.graphics.pipeline; p != nil {
		e.rp.SetPipeline(p.render)
		e.bindPush(p, e.rp.SetBindGroup)
	}
	for idx, bg := range e.graphics.sets {
		e.rp.SetBindGroup(idx, bg, nil)
	}
	for slot, vb := range e.vertex {
		e.rp.SetVertexBuffer(slot, vb.buf, vb.offset)
	}
	if ib := e.index; ib != nil {
		e.rp.SetIndexBuffer(ib.buf, ib.format, ib.offset)
	}
	if v := e.viewport; v != nil {
		e.rp.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
	}
	if s := e.scissor; s != nil {
		e.rp.SetScissorRect(uint32(s.X), uint32(s.Y), s.Extent.Width, s.Extent.Height)
	}
	return nil
}

func (e *encoding) ops(att uint32, load gpucore.LoadOp, store gpucore.StoreOp) (gputypes.LoadOp, gputypes.StoreOp) {
	l := gputypes.LoadOpLoad
	if !e.loaded[att] {
		l = loadOp(load)
	}
	s := gputypes.StoreOpStore
	if e.last[att] == e.subpass {
		s = storeOp(store)
	}
	return l, s
}

func (e *encoding) clear(att uint32) gpucore.ClearValue {
	if int(att) < len(e.begin.Clear) {
		return e.begin.Clear[att]
	}
	return gpucore.ClearValue{}
}

func (e *encoding) attachmentView(att uint32) (hal.TextureView, error) {
	if int(att) >= len(e.fb.Attachments) {
		return nil, fmt.Errorf("attachment %d of %d: %w", att, len(e.fb.Attachments), gpucore.ErrInvalidHandle)
	}
	v, ok := e.d.views.Get(uint64(e.fb.Attachments[att]))
	if !ok {
		return nil, invalid("image view", uint64(e.fb.Attachments[att]))
	}
	return v.hal, nil
}

// lastUses maps each attachment to the last subpass referencing it.
func lastUses(rp *gpucore.RenderPassDesc) map[uint32]int {
	last := make(map[uint32]int)
	for i, sp := range rp.Subpasses {
		for _, refs := range [][]gpucore.AttachmentRef{sp.Color, sp.DepthStencil, sp.Input} {
			for _, r := range refs {
				if !r.Unused() {
					last[r.Attachment] = i
				}
			}
		}
	}
	return last
}

// countPushes returns the number of push constant slots cmds need.
func countPushes(cmds []command) int {
	n := 0
	for _, c := range cmds {
		if c.op == opPushConstants {
			n++
		}
	}
	return n
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/deferred/gpucore"
)

type cmdPool struct {
	desc    gpucore.CommandPoolDesc
	buffers map[gpucore.CommandBufferID]struct{}
}

type cmdBuffer struct {
	pool      gpucore.CommandPoolID
	recording bool
	ready     bool
	usage     gpucore.CommandBufferUsage
	cmds      []command

	// misuse is set when a command arrives while not recording.
	misuse bool
}

func (cb *cmdBuffer) reset() {
	cb.recording, cb.ready, cb.misuse = false, false, false
	cb.cmds = cb.cmds[:0]
}

type opcode uint8

const (
	opBeginRenderPass opcode = iota + 1
	opNextSubpass
	opEndRenderPass
	opBindPipeline
	opBindDescriptorSets
	opBindVertexBuffers
	opBindIndexBuffer
	opPushConstants
	opSetViewport
	opSetScissor
	opDraw
	opDrawIndexed
	opDispatch
	opPipelineBarrier
)

// command is one recorded call. Only the fields of its opcode are set.
type command struct {
	op opcode

	begin    gpucore.RenderPassBegin
	point    gpucore.PipelineBindPoint
	pipeline gpucore.PipelineID
	first    uint32
	sets     []gpucore.DescriptorSetID
	buffers  []gpucore.BufferID
	offsets  []uint64
	index    gpucore.IndexFormat
	data     []byte
	offset   uint32
	viewport gpucore.Viewport
	scissor  gpucore.Rect2D
	counts   [4]uint32
	base     int32
	barriers []gpucore.ImageBarrier
}

// CreateCommandPool creates a command pool on the single family.
func (d *Device) CreateCommandPool(desc *gpucore.CommandPoolDesc) (gpucore.CommandPoolID, error) {
	if desc.Family != 0 {
		return 0, fmt.Errorf("wgpu: command pool for family %d: %w", desc.Family, gpucore.ErrInvalidHandle)
	}
	p := &cmdPool{desc: *desc, buffers: make(map[gpucore.CommandBufferID]struct{})}
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

// ResetCommandPool clears every buffer of the pool.
func (d *Device) ResetCommandPool(pool gpucore.CommandPoolID, release bool) error {
	p, ok := d.pools.Get(uint64(pool))
	if !ok {
		return invalid("command pool", uint64(pool))
	}
	for id := range p.buffers {
		if cb, ok := d.cmdBuffers.Get(uint64(id)); ok {
			cb.reset()
			if release {
				cb.cmds = nil
			}
		}
	}
	return nil
}

// AllocateCommandBuffer allocates a command list.
func (d *Device) AllocateCommandBuffer(pool gpucore.CommandPoolID) (gpucore.CommandBufferID, error) {
	p, ok := d.pools.Get(uint64(pool))
	if !ok {
		return 0, invalid("command pool", uint64(pool))
	}
	id := gpucore.CommandBufferID(d.cmdBuffers.Insert(&cmdBuffer{pool: pool}))
	p.buffers[id] = struct{}{}
	return id, nil
}

// FreeCommandBuffer releases a command list.
func (d *Device) FreeCommandBuffer(pool gpucore.CommandPoolID, cb gpucore.CommandBufferID) {
	if p, ok := d.pools.Get(uint64(pool)); ok {
		delete(p.buffers, cb)
	}
	d.cmdBuffers.Remove(uint64(cb))
}

// BeginCommandBuffer starts recording, discarding earlier contents.
func (d *Device) BeginCommandBuffer(id gpucore.CommandBufferID, usage gpucore.CommandBufferUsage) (gpucore.Recorder, error) {
	cb, ok := d.cmdBuffers.Get(uint64(id))
	if !ok {
		return nil, invalid("command buffer", uint64(id))
	}
	if cb.recording {
		return nil, fmt.Errorf("wgpu: begin on recording command buffer %#x: %w", uint64(id), gpucore.ErrNotRecording)
	}
	cb.reset()
	cb.recording = true
	cb.usage = usage
	return &recorder{cb: cb}, nil
}

// EndCommandBuffer finishes recording.
func (d *Device) EndCommandBuffer(id gpucore.CommandBufferID) error {
	cb, ok := d.cmdBuffers.Get(uint64(id))
	if !ok {
		return invalid("command buffer", uint64(id))
	}
	if !cb.recording || cb.misuse {
		return fmt.Errorf("wgpu: end command buffer %#x: %w", uint64(id), gpucore.ErrNotRecording)
	}
	depth := 0
	for _, c := range cb.cmds {
		switch c.op {
		case opBeginRenderPass:
			depth++
		case opEndRenderPass:
			depth--
		}
		if depth < 0 || depth > 1 {
			return fmt.Errorf("wgpu: command buffer %#x has unbalanced render passes: %w", uint64(id), gpucore.ErrNotRecording)
		}
	}
	if depth != 0 {
		return fmt.Errorf("wgpu: command buffer %#x ends inside a render pass: %w", uint64(id), gpucore.ErrNotRecording)
	}
	cb.recording, cb.ready = false, true
	return nil
}

// ResetCommandBuffer clears one buffer. The pool must allow it.
func (d *Device) ResetCommandBuffer(id gpucore.CommandBufferID, release bool) error {
	cb, ok := d.cmdBuffers.Get(uint64(id))
	if !ok {
		return invalid("command buffer", uint64(id))
	}
	if p, ok := d.pools.Get(uint64(cb.pool)); ok && !p.desc.Resettable {
		return fmt.Errorf("wgpu: reset of command buffer %#x from non-resettable pool: %w",
			uint64(id), gpucore.ErrUnsupported)
	}
	cb.reset()
	if release {
		cb.cmds = nil
	}
	return nil
}

type recorder struct {
	cb *cmdBuffer
}

func (r *recorder) add(c command) {
	if !r.cb.recording {
		r.cb.misuse = true
		return
	}
	r.cb.cmds = append(r.cb.cmds, c)
}

func (r *recorder) BeginRenderPass(b *gpucore.RenderPassBegin) {
	c := command{op: opBeginRenderPass, begin: *b}
	c.begin.Clear = append([]gpucore.ClearValue(nil), b.Clear...)
	r.add(c)
}

func (r *recorder) NextSubpass()   { r.add(command{op: opNextSubpass}) }
func (r *recorder) EndRenderPass() { r.add(command{op: opEndRenderPass}) }

func (r *recorder) BindPipeline(point gpucore.PipelineBindPoint, p gpucore.PipelineID) {
	r.add(command{op: opBindPipeline, point: point, pipeline: p})
}

func (r *recorder) BindDescriptorSets(point gpucore.PipelineBindPoint, _ gpucore.PipelineLayoutID, first uint32, sets []gpucore.DescriptorSetID) {
	r.add(command{op: opBindDescriptorSets, point: point, first: first, sets: append([]gpucore.DescriptorSetID(nil), sets...)})
}

func (r *recorder) BindVertexBuffers(first uint32, buffers []gpucore.BufferID, offsets []uint64) {
	r.add(command{
		op:      opBindVertexBuffers,
		first:   first,
		buffers: append([]gpucore.BufferID(nil), buffers...),
		offsets: append([]uint64(nil), offsets...),
	})
}

func (r *recorder) BindIndexBuffer(b gpucore.BufferID, offset uint64, format gpucore.IndexFormat) {
	r.add(command{op: opBindIndexBuffer, buffers: []gpucore.BufferID{b}, offsets: []uint64{offset}, index: format})
}

func (r *recorder) PushConstants(_ gpucore.PipelineLayoutID, _ gpucore.ShaderStage, offset uint32, data []byte) {
	r.add(command{op: opPushConstants, offset: offset, data: append([]byte(nil), data...)})
}

func (r *recorder) SetViewport(v gpucore.Viewport) { r.add(command{op: opSetViewport, viewport: v}) }
func (r *recorder) SetScissor(s gpucore.Rect2D)    { r.add(command{op: opSetScissor, scissor: s}) }

func (r *recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.add(command{op: opDraw, counts: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (r *recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	r.add(command{
		op:     opDrawIndexed,
		counts: [4]uint32{indexCount, instanceCount, firstIndex, firstInstance},
		base:   vertexOffset,
	})
}

func (r *recorder) Dispatch(x, y, z uint32) {
	r.add(command{op: opDispatch, counts: [4]uint32{x, y, z}})
}

func (r *recorder) PipelineBarrier(barriers []gpucore.ImageBarrier) {
	r.add(command{op: opPipelineBarrier, barriers: append([]gpucore.ImageBarrier(nil), barriers...)})
}

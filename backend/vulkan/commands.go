// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/deferred/gpucore"
)

type cmdPool struct {
	vk      vk.CommandPool
	desc    gpucore.CommandPoolDesc
	buffers map[gpucore.CommandBufferID]struct{}
}

type cmdBuffer struct {
	vk        vk.CommandBuffer
	pool      gpucore.CommandPoolID
	recording bool
	ready     bool
	usage     gpucore.CommandBufferUsage

	// depth counts open render passes while recording.
	depth int
	// err is the first recording error, reported by EndCommandBuffer.
	err error
}

// CreateCommandPool creates a pool on one family. Buffers are always
// individually resettable so that Begin can discard earlier contents; the
// Resettable flag only gates ResetCommandBuffer.
func (d *Device) CreateCommandPool(desc *gpucore.CommandPoolDesc) (gpucore.CommandPoolID, error) {
	if int(desc.Family) >= len(d.families) {
		return 0, fmt.Errorf("vulkan: command pool for family %d: %w", desc.Family, gpucore.ErrInvalidHandle)
	}
	flags := vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit)
	if desc.Transient {
		flags |= vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit)
	}
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            flags,
		QueueFamilyIndex: desc.Family,
	}
	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(d.dev, &info, nil, &pool), "create command pool "+desc.Label); err != nil {
		return 0, err
	}
	p := &cmdPool{vk: pool, desc: *desc, buffers: make(map[gpucore.CommandBufferID]struct{})}
	return gpucore.CommandPoolID(d.pools.Insert(p)), nil
}

// DestroyCommandPool frees the pool and its buffers.
func (d *Device) DestroyCommandPool(id gpucore.CommandPoolID) {
	p, ok := d.pools.Remove(uint64(id))
	if !ok {
		return
	}
	for cb := range p.buffers {
		d.cmdBuffers.Remove(uint64(cb))
	}
	vk.DestroyCommandPool(d.dev, p.vk, nil)
}

// ResetCommandPool returns every buffer of the pool to the initial state.
func (d *Device) ResetCommandPool(id gpucore.CommandPoolID, release bool) error {
	p, ok := d.pools.Get(uint64(id))
	if !ok {
		return invalid("command pool", uint64(id))
	}
	var flags vk.CommandPoolResetFlags
	if release {
		flags = vk.CommandPoolResetFlags(vk.CommandPoolResetReleaseResourcesBit)
	}
	if err := check(vk.ResetCommandPool(d.dev, p.vk, flags), "reset command pool"); err != nil {
		return err
	}
	for id := range p.buffers {
		if cb, ok := d.cmdBuffers.Get(uint64(id)); ok {
			cb.reset()
		}
	}
	return nil
}

func (cb *cmdBuffer) reset() {
	cb.recording, cb.ready, cb.depth, cb.err = false, false, 0, nil
}

// AllocateCommandBuffer allocates a primary command buffer.
func (d *Device) AllocateCommandBuffer(pool gpucore.CommandPoolID) (gpucore.CommandBufferID, error) {
	p, ok := d.pools.Get(uint64(pool))
	if !ok {
		return 0, invalid("command pool", uint64(pool))
	}
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.vk,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	out := make([]vk.CommandBuffer, 1)
	if err := check(vk.AllocateCommandBuffers(d.dev, &info, out), "allocate command buffer"); err != nil {
		return 0, err
	}
	id := gpucore.CommandBufferID(d.cmdBuffers.Insert(&cmdBuffer{vk: out[0], pool: pool}))
	p.buffers[id] = struct{}{}
	return id, nil
}

// FreeCommandBuffer returns a buffer to its pool.
func (d *Device) FreeCommandBuffer(pool gpucore.CommandPoolID, id gpucore.CommandBufferID) {
	cb, ok := d.cmdBuffers.Remove(uint64(id))
	if !ok {
		return
	}
	if p, ok := d.pools.Get(uint64(pool)); ok {
		delete(p.buffers, id)
		vk.FreeCommandBuffers(d.dev, p.vk, 1, []vk.CommandBuffer{cb.vk})
	}
}

// BeginCommandBuffer starts recording, discarding earlier contents.
func (d *Device) BeginCommandBuffer(id gpucore.CommandBufferID, usage gpucore.CommandBufferUsage) (gpucore.Recorder, error) {
	cb, ok := d.cmdBuffers.Get(uint64(id))
	if !ok {
		return nil, invalid("command buffer", uint64(id))
	}
	if cb.recording {
		return nil, fmt.Errorf("vulkan: begin on recording command buffer %#x: %w", uint64(id), gpucore.ErrNotRecording)
	}
	var flags vk.CommandBufferUsageFlags
	switch usage {
	case gpucore.UsageOneTimeSubmit:
		flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	case gpucore.UsageSimultaneous:
		flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo, Flags: flags}
	if err := check(vk.BeginCommandBuffer(cb.vk, &info), "begin command buffer"); err != nil {
		return nil, err
	}
	cb.reset()
	cb.recording, cb.usage = true, usage
	return &recorder{d: d, cb: cb}, nil
}

// EndCommandBuffer finishes recording. Recording errors surface here.
func (d *Device) EndCommandBuffer(id gpucore.CommandBufferID) error {
	cb, ok := d.cmdBuffers.Get(uint64(id))
	if !ok {
		return invalid("command buffer", uint64(id))
	}
	if !cb.recording {
		return fmt.Errorf("vulkan: end command buffer %#x: %w", uint64(id), gpucore.ErrNotRecording)
	}
	if cb.err == nil && cb.depth != 0 {
		cb.err = fmt.Errorf("vulkan: command buffer %#x ends inside a render pass: %w", uint64(id), gpucore.ErrNotRecording)
	}
	if err := check(vk.EndCommandBuffer(cb.vk), "end command buffer"); err != nil && cb.err == nil {
		cb.err = err
	}
	cb.recording = false
	if cb.err != nil {
		return cb.err
	}
	cb.ready = true
	return nil
}

// ResetCommandBuffer resets one buffer. The pool must allow it.
func (d *Device) ResetCommandBuffer(id gpucore.CommandBufferID, release bool) error {
	cb, ok := d.cmdBuffers.Get(uint64(id))
	if !ok {
		return invalid("command buffer", uint64(id))
	}
	if p, ok := d.pools.Get(uint64(cb.pool)); ok && !p.desc.Resettable {
		return fmt.Errorf("vulkan: reset of command buffer %#x from non-resettable pool: %w",
			uint64(id), gpucore.ErrUnsupported)
	}
	var flags vk.CommandBufferResetFlags
	if release {
		flags = vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit)
	}
	if err := check(vk.ResetCommandBuffer(cb.vk, flags), "reset command buffer"); err != nil {
		return err
	}
	cb.reset()
	return nil
}

// recorder writes straight into the Vulkan command buffer. Lookups that
// fail are remembered and reported by EndCommandBuffer.
type recorder struct {
	d  *Device
	cb *cmdBuffer
}

func (r *recorder) ok() bool {
	if !r.cb.recording {
		if r.cb.err == nil {
			r.cb.err = fmt.Errorf("vulkan: command recorded outside recording: %w", gpucore.ErrNotRecording)
		}
		return false
	}
	return r.cb.err == nil
}

func (r *recorder) fail(err error) {
	if r.cb.err == nil {
		r.cb.err = err
	}
}

func (r *recorder) BeginRenderPass(b *gpucore.RenderPassBegin) {
	if !r.ok() {
		return
	}
	if r.cb.depth != 0 {
		r.fail(fmt.Errorf("vulkan: nested render pass: %w", gpucore.ErrNotRecording))
		return
	}
	rp, ok := r.d.renderPasses.Get(uint64(b.RenderPass))
	if !ok {
		r.fail(invalid("render pass", uint64(b.RenderPass)))
		return
	}
	fb, ok := r.d.framebuffers.Get(uint64(b.Framebuffer))
	if !ok {
		r.fail(invalid("framebuffer", uint64(b.Framebuffer)))
		return
	}
	clears := make([]vk.ClearValue, len(rp.formats))
	for i, f := range rp.formats {
		if i >= len(b.Clear) {
			break
		}
		c := b.Clear[i]
		if f.IsDepth() {
			clears[i].SetDepthStencil(c.Depth, c.Stencil)
		} else {
			clears[i].SetColor(c.Color[:])
		}
	}
	vk.CmdBeginRenderPass(r.cb.vk, &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp.vk,
		Framebuffer:     fb,
		RenderArea:      rect(b.Area),
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}, vk.SubpassContentsInline)
	r.cb.depth++
}

func (r *recorder) NextSubpass() {
	if !r.ok() {
		return
	}
	if r.cb.depth == 0 {
		r.fail(fmt.Errorf("vulkan: next subpass outside a render pass: %w", gpucore.ErrNotRecording))
		return
	}
	vk.CmdNextSubpass(r.cb.vk, vk.SubpassContentsInline)
}

func (r *recorder) EndRenderPass() {
	if !r.ok() {
		return
	}
	if r.cb.depth == 0 {
		r.fail(fmt.Errorf("vulkan: end of render pass that was not begun: %w", gpucore.ErrNotRecording))
		return
	}
	vk.CmdEndRenderPass(r.cb.vk)
	r.cb.depth--
}

func (r *recorder) BindPipeline(point gpucore.PipelineBindPoint, id gpucore.PipelineID) {
	if !r.ok() {
		return
	}
	p, ok := r.d.pipelines.Get(uint64(id))
	if !ok {
		r.fail(invalid("pipeline", uint64(id)))
		return
	}
	if p.point != bindPoint(point) {
		r.fail(fmt.Errorf("vulkan: pipeline %#x bound at the wrong bind point: %w", uint64(id), gpucore.ErrInvalidHandle))
		return
	}
	vk.CmdBindPipeline(r.cb.vk, p.point, p.vk)
}

func (r *recorder) BindDescriptorSets(point gpucore.PipelineBindPoint, layout gpucore.PipelineLayoutID, first uint32, sets []gpucore.DescriptorSetID) {
	if !r.ok() || len(sets) == 0 {
		return
	}
	l, ok := r.d.layouts.Get(uint64(layout))
	if !ok {
		r.fail(invalid("pipeline layout", uint64(layout)))
		return
	}
	vsets := make([]vk.DescriptorSet, len(sets))
	for i, id := range sets {
		s, ok := r.d.descSets.Get(uint64(id))
		if !ok {
			r.fail(invalid("descriptor set", uint64(id)))
			return
		}
		vsets[i] = s.vk
	}
	vk.CmdBindDescriptorSets(r.cb.vk, bindPoint(point), l.vk, first, uint32(len(vsets)), vsets, 0, nil)
}

func (r *recorder) BindVertexBuffers(first uint32, buffers []gpucore.BufferID, offsets []uint64) {
	if !r.ok() || len(buffers) == 0 {
		return
	}
	bufs := make([]vk.Buffer, len(buffers))
	offs := make([]vk.DeviceSize, len(buffers))
	for i, id := range buffers {
		b, ok := r.d.buffers.Get(uint64(id))
		if !ok {
			r.fail(invalid("buffer", uint64(id)))
			return
		}
		bufs[i] = b.vk
		if i < len(offsets) {
			offs[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(r.cb.vk, first, uint32(len(bufs)), bufs, offs)
}

func (r *recorder) BindIndexBuffer(id gpucore.BufferID, offset uint64, f gpucore.IndexFormat) {
	if !r.ok() {
		return
	}
	b, ok := r.d.buffers.Get(uint64(id))
	if !ok {
		r.fail(invalid("buffer", uint64(id)))
		return
	}
	vk.CmdBindIndexBuffer(r.cb.vk, b.vk, vk.DeviceSize(offset), indexType(f))
}

func (r *recorder) PushConstants(layout gpucore.PipelineLayoutID, stages gpucore.ShaderStage, offset uint32, data []byte) {
	if !r.ok() || len(data) == 0 {
		return
	}
	l, ok := r.d.layouts.Get(uint64(layout))
	if !ok {
		r.fail(invalid("pipeline layout", uint64(layout)))
		return
	}
	end := offset + uint32(len(data))
	fits := false
	for _, p := range l.push {
		if p.Stages&stages == stages && offset >= p.Offset && end <= p.Offset+p.Size {
			fits = true
			break
		}
	}
	if !fits {
		r.fail(fmt.Errorf("vulkan: push of %d bytes at %d outside the layout's ranges: %w",
			len(data), offset, gpucore.ErrInvalidHandle))
		return
	}
	vk.CmdPushConstants(r.cb.vk, l.vk, shaderStages.apply(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (r *recorder) SetViewport(v gpucore.Viewport) {
	if !r.ok() {
		return
	}
	vk.CmdSetViewport(r.cb.vk, 0, 1, []vk.Viewport{{
		X: v.X, Y: v.Y, Width: v.Width, Height: v.Height,
		MinDepth: v.MinDepth, MaxDepth: v.MaxDepth,
	}})
}

func (r *recorder) SetScissor(s gpucore.Rect2D) {
	if !r.ok() {
		return
	}
	vk.CmdSetScissor(r.cb.vk, 0, 1, []vk.Rect2D{rect(s)})
}

func (r *recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if r.ok() {
		vk.CmdDraw(r.cb.vk, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (r *recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if r.ok() {
		vk.CmdDrawIndexed(r.cb.vk, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

func (r *recorder) Dispatch(x, y, z uint32) {
	if !r.ok() {
		return
	}
	if r.cb.depth != 0 {
		r.fail(fmt.Errorf("vulkan: dispatch inside a render pass: %w", gpucore.ErrNotRecording))
		return
	}
	vk.CmdDispatch(r.cb.vk, x, y, z)
}

// PipelineBarrier records every barrier in one call, with the union of
// their stage masks.
func (r *recorder) PipelineBarrier(barriers []gpucore.ImageBarrier) {
	if !r.ok() || len(barriers) == 0 {
		return
	}
	var src, dst gpucore.PipelineStage
	out := make([]vk.ImageMemoryBarrier, len(barriers))
	for i, b := range barriers {
		im, ok := r.d.images.Get(uint64(b.Image))
		if !ok {
			r.fail(invalid("image", uint64(b.Image)))
			return
		}
		aspect := aspects.apply(b.Aspect)
		if aspect == 0 {
			aspect = formatAspect(im.desc.Format)
		}
		out[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       accesses.apply(b.SrcAccess),
			DstAccessMask:       accesses.apply(b.DstAccess),
			OldLayout:           imageLayout(b.OldLayout),
			NewLayout:           imageLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               im.vk,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     aspect,
				LevelCount:     1,
				BaseArrayLayer: b.BaseLayer,
				LayerCount:     max(b.LayerCount, 1),
			},
		}
		src |= b.SrcStage
		dst |= b.DstStage
	}
	vk.CmdPipelineBarrier(r.cb.vk, stageMask(src), stageMask(dst), 0, 0, nil, 0, nil, uint32(len(out)), out)
}

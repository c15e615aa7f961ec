// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/deferred/gpucore"
)

// pushGroup is the bind group index of the push constant uniform, and
// pushSlot the size and alignment of one push constant block.
const (
	pushGroup = 1
	pushSlot  = 256
)

type pipelineLayout struct {
	hal  hal.PipelineLayout
	push bool
}

type pipeline struct {
	render  hal.RenderPipeline
	compute hal.ComputePipeline
	layout  *pipelineLayout
}

type setLayout struct {
	hal      hal.BindGroupLayout
	bindings map[uint32]gpucore.DescriptorBinding
}

type descPool struct {
	maxSets uint32
	sets    []gpucore.DescriptorSetID
}

// descSet is rebuilt as a hal.BindGroup whenever a write changed it, since
// bind groups are immutable.
type descSet struct {
	layout  *setLayout
	entries map[uint32]gputypes.BindGroupEntry
	group   hal.BindGroup
	dirty   bool
}

// CreateRenderPass stores the pass graph. Subpasses are expanded into hal
// render passes at replay.
func (d *Device) CreateRenderPass(desc *gpucore.RenderPassDesc) (gpucore.RenderPassID, error) {
	if len(desc.Subpasses) == 0 {
		return 0, fmt.Errorf("wgpu: render pass %q has no subpasses: %w", desc.Label, gpucore.ErrUnsupported)
	}
	for i, sp := range desc.Subpasses {
		for _, r := range sp.Resolve {
			if !r.Unused() {
				return 0, fmt.Errorf("wgpu: render pass %q subpass %d resolves: %w", desc.Label, i, gpucore.ErrUnsupported)
			}
		}
	}
	cp := *desc
	return gpucore.RenderPassID(d.renderPasses.Insert(&cp)), nil
}

// DestroyRenderPass releases a render pass.
func (d *Device) DestroyRenderPass(rp gpucore.RenderPassID) { d.renderPasses.Remove(uint64(rp)) }

// CreateFramebuffer stores the attachment views of a render pass instance.
func (d *Device) CreateFramebuffer(desc *gpucore.FramebufferDesc) (gpucore.FramebufferID, error) {
	rp, ok := d.renderPasses.Get(uint64(desc.RenderPass))
	if !ok {
		return 0, invalid("render pass", uint64(desc.RenderPass))
	}
	if len(desc.Attachments) != len(rp.Attachments) {
		return 0, fmt.Errorf("wgpu: framebuffer %q has %d attachments, render pass %d: %w",
			desc.Label, len(desc.Attachments), len(rp.Attachments), gpucore.ErrInvalidHandle)
	}
	for _, v := range desc.Attachments {
		if !d.views.Contains(uint64(v)) {
			return 0, invalid("image view", uint64(v))
		}
	}
	cp := *desc
	cp.Attachments = append([]gpucore.ImageViewID(nil), desc.Attachments...)
	return gpucore.FramebufferID(d.framebuffers.Insert(&cp)), nil
}

// DestroyFramebuffer releases a framebuffer.
func (d *Device) DestroyFramebuffer(fb gpucore.FramebufferID) { d.framebuffers.Remove(uint64(fb)) }

// CreatePipelineLayout creates a layout. Push constant ranges add the
// emulation group after the single descriptor set.
func (d *Device) CreatePipelineLayout(desc *gpucore.PipelineLayoutDesc) (gpucore.PipelineLayoutID, error) {
	groups := make([]hal.BindGroupLayout, 0, len(desc.SetLayouts)+1)
	for _, id := range desc.SetLayouts {
		sl, ok := d.setLayouts.Get(uint64(id))
		if !ok {
			return 0, invalid("descriptor set layout", uint64(id))
		}
		groups = append(groups, sl.hal)
	}
	push := len(desc.PushConstants) > 0
	if push {
		if len(groups) != pushGroup {
			return 0, fmt.Errorf("wgpu: layout %q: push constants need exactly %d descriptor set: %w",
				desc.Label, pushGroup, gpucore.ErrUnsupported)
		}
		for _, r := range desc.PushConstants {
			if r.Offset+r.Size > pushSlot {
				return 0, fmt.Errorf("wgpu: layout %q: push constants exceed %d bytes: %w",
					desc.Label, pushSlot, gpucore.ErrUnsupported)
			}
		}
		groups = append(groups, d.pushLayout)
	}
	l, err := d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: groups,
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create pipeline layout %q: %w", desc.Label, err)
	}
	return gpucore.PipelineLayoutID(d.layouts.Insert(&pipelineLayout{hal: l, push: push})), nil
}

// DestroyPipelineLayout releases a layout.
func (d *Device) DestroyPipelineLayout(l gpucore.PipelineLayoutID) {
	if pl, ok := d.layouts.Remove(uint64(l)); ok {
		d.dev.DestroyPipelineLayout(pl.hal)
	}
}

// CreateGraphicsPipeline creates a render pipeline.
func (d *Device) CreateGraphicsPipeline(desc *gpucore.GraphicsPipelineDesc) (gpucore.PipelineID, error) {
	layout, ok := d.layouts.Get(uint64(desc.Layout))
	if !ok {
		return 0, invalid("pipeline layout", uint64(desc.Layout))
	}
	vs, ok := d.shaders.Get(uint64(desc.Vertex.Module))
	if !ok {
		return 0, invalid("shader module", uint64(desc.Vertex.Module))
	}
	buffers := make([]gputypes.VertexBufferLayout, len(desc.VertexBuffers))
	for i, vb := range desc.VertexBuffers {
		attrs := make([]gputypes.VertexAttribute, len(vb.Attributes))
		for j, a := range vb.Attributes {
			attrs[j] = gputypes.VertexAttribute{Format: vertexFormat(a.Format), Offset: uint64(a.Offset), ShaderLocation: a.Location}
		}
		step := gputypes.VertexStepModeVertex
		if vb.Instance {
			step = gputypes.VertexStepModeInstance
		}
		buffers[i] = gputypes.VertexBufferLayout{ArrayStride: uint64(vb.Stride), StepMode: step, Attributes: attrs}
	}
	pd := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout.hal,
		Vertex: hal.VertexState{Module: vs, EntryPoint: desc.Vertex.EntryPoint, Buffers: buffers},
		Primitive: gputypes.PrimitiveState{
			Topology: topology(desc.Topology),
			CullMode: cullMode(desc.CullMode),
		},
		Multisample: gputypes.MultisampleState{Count: max(desc.Samples, 1), Mask: 0xFFFFFFFF},
	}
	if desc.Fragment.Module != gpucore.InvalidID {
		fs, ok := d.shaders.Get(uint64(desc.Fragment.Module))
		if !ok {
			return 0, invalid("shader module", uint64(desc.Fragment.Module))
		}
		targets := make([]gputypes.ColorTargetState, len(desc.Targets))
		for i, t := range desc.Targets {
			targets[i] = gputypes.ColorTargetState{
				Format:    textureFormat(t.Format),
				Blend:     blendState(t.Blend),
				WriteMask: gputypes.ColorWriteMaskAll,
			}
		}
		pd.Fragment = &hal.FragmentState{Module: fs, EntryPoint: desc.Fragment.EntryPoint, Targets: targets}
	}
	if ds := desc.Depth; ds != nil {
		cmp := gputypes.CompareFunctionAlways
		if ds.Test {
			cmp = compareFunction(ds.Compare)
		}
		keep := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		pd.DepthStencil = &hal.DepthStencilState{
			Format:            textureFormat(ds.Format),
			DepthWriteEnabled: ds.Write,
			DepthCompare:      cmp,
			StencilFront:      keep,
			StencilBack:       keep,
		}
	}
	rp, err := d.dev.CreateRenderPipeline(pd)
	if err != nil {
		return 0, fmt.Errorf("wgpu: create render pipeline %q: %w", desc.Label, err)
	}
	return gpucore.PipelineID(d.pipelines.Insert(&pipeline{render: rp, layout: layout})), nil
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.PipelineID, error) {
	layout, ok := d.layouts.Get(uint64(desc.Layout))
	if !ok {
		return 0, invalid("pipeline layout", uint64(desc.Layout))
	}
	cs, ok := d.shaders.Get(uint64(desc.Compute.Module))
	if !ok {
		return 0, invalid("shader module", uint64(desc.Compute.Module))
	}
	cp, err := d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  layout.hal,
		Compute: hal.ComputeState{Module: cs, EntryPoint: desc.Compute.EntryPoint},
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create compute pipeline %q: %w", desc.Label, err)
	}
	return gpucore.PipelineID(d.pipelines.Insert(&pipeline{compute: cp, layout: layout})), nil
}

// DestroyPipeline releases a pipeline.
func (d *Device) DestroyPipeline(p gpucore.PipelineID) {
	pl, ok := d.pipelines.Remove(uint64(p))
	if !ok {
		return
	}
	if pl.render != nil {
		d.dev.DestroyRenderPipeline(pl.render)
	}
	if pl.compute != nil {
		d.dev.DestroyComputePipeline(pl.compute)
	}
}

// CreateDescriptorSetLayout creates a bind group layout.
func (d *Device) CreateDescriptorSetLayout(desc *gpucore.DescriptorSetLayoutDesc) (gpucore.DescriptorSetLayoutID, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(desc.Bindings))
	bindings := make(map[uint32]gpucore.DescriptorBinding, len(desc.Bindings))
	for _, b := range desc.Bindings {
		e, err := layoutEntry(b)
		if err != nil {
			return 0, fmt.Errorf("wgpu: set layout %q: %w", desc.Label, err)
		}
		entries = append(entries, e)
		bindings[b.Binding] = b
	}
	l, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: desc.Label, Entries: entries})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create set layout %q: %w", desc.Label, err)
	}
	return gpucore.DescriptorSetLayoutID(d.setLayouts.Insert(&setLayout{hal: l, bindings: bindings})), nil
}

func layoutEntry(b gpucore.DescriptorBinding) (gputypes.BindGroupLayoutEntry, error) {
	e := gputypes.BindGroupLayoutEntry{Binding: b.Binding, Visibility: shaderStages(b.Stages)}
	switch b.Type {
	case gpucore.DescriptorUniformBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case gpucore.DescriptorStorageBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case gpucore.DescriptorSampledImage, gpucore.DescriptorInputAttachment:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: viewDimension(b.Layered),
		}
	case gpucore.DescriptorStorageImage:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        textureFormat(b.Format),
			ViewDimension: viewDimension(b.Layered),
		}
	case gpucore.DescriptorSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	default:
		return e, fmt.Errorf("binding %d type %d: %w", b.Binding, b.Type, gpucore.ErrUnsupported)
	}
	return e, nil
}

// DestroyDescriptorSetLayout releases a layout.
func (d *Device) DestroyDescriptorSetLayout(l gpucore.DescriptorSetLayoutID) {
	if sl, ok := d.setLayouts.Remove(uint64(l)); ok {
		d.dev.DestroyBindGroupLayout(sl.hal)
	}
}

// CreateDescriptorPool creates a pool. WebGPU has no pools; only the set
// count is enforced.
func (d *Device) CreateDescriptorPool(desc *gpucore.DescriptorPoolDesc) (gpucore.DescriptorPoolID, error) {
	return gpucore.DescriptorPoolID(d.descPools.Insert(&descPool{maxSets: desc.MaxSets})), nil
}

// DestroyDescriptorPool frees the pool's sets.
func (d *Device) DestroyDescriptorPool(p gpucore.DescriptorPoolID) {
	pool, ok := d.descPools.Remove(uint64(p))
	if !ok {
		return
	}
	for _, id := range pool.sets {
		if s, ok := d.descSets.Remove(uint64(id)); ok && s.group != nil {
			d.retire(s.group)
		}
	}
}

// AllocateDescriptorSets allocates count sets of layout.
func (d *Device) AllocateDescriptorSets(p gpucore.DescriptorPoolID, l gpucore.DescriptorSetLayoutID, count int) ([]gpucore.DescriptorSetID, error) {
	pool, ok := d.descPools.Get(uint64(p))
	if !ok {
		return nil, invalid("descriptor pool", uint64(p))
	}
	sl, ok := d.setLayouts.Get(uint64(l))
	if !ok {
		return nil, invalid("descriptor set layout", uint64(l))
	}
	if len(pool.sets)+count > int(pool.maxSets) {
		return nil, fmt.Errorf("wgpu: descriptor pool holds %d sets, %d requested: %w",
			pool.maxSets, len(pool.sets)+count, gpucore.ErrAllocation)
	}
	out := make([]gpucore.DescriptorSetID, count)
	for i := range out {
		out[i] = gpucore.DescriptorSetID(d.descSets.Insert(&descSet{
			layout:  sl,
			entries: make(map[uint32]gputypes.BindGroupEntry),
			dirty:   true,
		}))
	}
	pool.sets = append(pool.sets, out...)
	return out, nil
}

// UpdateDescriptorSets records writes. Bind groups are rebuilt lazily at
// the next submission that uses a changed set.
func (d *Device) UpdateDescriptorSets(writes []gpucore.DescriptorWrite) error {
	for _, w := range writes {
		s, ok := d.descSets.Get(uint64(w.Set))
		if !ok {
			return invalid("descriptor set", uint64(w.Set))
		}
		e, err := d.bindingEntry(w)
		if err != nil {
			return err
		}
		s.entries[w.Binding] = e
		s.dirty = true
	}
	return nil
}

func (d *Device) bindingEntry(w gpucore.DescriptorWrite) (gputypes.BindGroupEntry, error) {
	e := gputypes.BindGroupEntry{Binding: w.Binding}
	switch w.Type {
	case gpucore.DescriptorUniformBuffer, gpucore.DescriptorStorageBuffer:
		buf, ok := d.buffers.Get(uint64(w.Buffer))
		if !ok {
			return e, invalid("buffer", uint64(w.Buffer))
		}
		size := w.Range
		if size == 0 {
			size = buf.size - w.Offset
		}
		e.Resource = gputypes.BufferBinding{Buffer: buf.hal.NativeHandle(), Offset: w.Offset, Size: size}
	case gpucore.DescriptorSampledImage, gpucore.DescriptorStorageImage, gpucore.DescriptorInputAttachment:
		v, ok := d.views.Get(uint64(w.ImageView))
		if !ok {
			return e, invalid("image view", uint64(w.ImageView))
		}
		e.Resource = gputypes.TextureViewBinding{TextureView: v.hal.NativeHandle()}
	case gpucore.DescriptorSampler:
		s, ok := d.samplers.Get(uint64(w.Sampler))
		if !ok {
			return e, invalid("sampler", uint64(w.Sampler))
		}
		e.Resource = gputypes.SamplerBinding{Sampler: s.NativeHandle()}
	default:
		return e, fmt.Errorf("wgpu: descriptor type %d: %w", w.Type, gpucore.ErrUnsupported)
	}
	return e, nil
}

// bindGroup returns the current bind group of a set, rebuilding it after
// writes.
func (d *Device) bindGroup(id gpucore.DescriptorSetID) (hal.BindGroup, error) {
	s, ok := d.descSets.Get(uint64(id))
	if !ok {
		return nil, invalid("descriptor set", uint64(id))
	}
	if !s.dirty {
		return s.group, nil
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(s.layout.bindings))
	for b := range s.layout.bindings {
		e, ok := s.entries[b]
		if !ok {
			return nil, fmt.Errorf("wgpu: descriptor set %#x binding %d never written: %w",
				uint64(id), b, gpucore.ErrInvalidHandle)
		}
		entries = append(entries, e)
	}
	bg, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{Layout: s.layout.hal, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create bind group: %w", err)
	}
	if s.group != nil {
		d.retire(s.group)
	}
	s.group, s.dirty = bg, false
	return bg, nil
}

// retire destroys a bind group once every submission so far completed.
func (d *Device) retire(bg hal.BindGroup) {
	d.inflight = append(d.inflight, inflight{
		serial:  d.serial,
		release: []func(){func() { d.dev.DestroyBindGroup(bg) }},
	})
}

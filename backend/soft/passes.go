package soft

import (
	"fmt"

	"github.com/gogpu/deferred/gpucore"
)

type pipeline struct {
	compute bool
	gfx     gpucore.GraphicsPipelineDesc
	cmp     gpucore.ComputePipelineDesc
}

type descPool struct {
	desc      gpucore.DescriptorPoolDesc
	sets      map[gpucore.DescriptorSetID]struct{}
	remaining uint32
}

type descSet struct {
	pool   gpucore.DescriptorPoolID
	layout gpucore.DescriptorSetLayoutID
	writes map[uint32]gpucore.DescriptorWrite
}

// CreateRenderPass validates and stores a render pass graph.
func (d *Device) CreateRenderPass(desc *gpucore.RenderPassDesc) (gpucore.RenderPassID, error) {
	if err := d.fault("CreateRenderPass"); err != nil {
		return 0, err
	}
	if len(desc.Subpasses) == 0 {
		return 0, validation("render pass %q has no subpasses", desc.Label)
	}
	n := uint32(len(desc.Attachments))
	check := func(refs []gpucore.AttachmentRef) error {
		for _, r := range refs {
			if !r.Unused() && r.Attachment >= n {
				return validation("render pass %q references attachment %d of %d", desc.Label, r.Attachment, n)
			}
		}
		return nil
	}
	for i := range desc.Subpasses {
		sp := &desc.Subpasses[i]
		for _, refs := range [][]gpucore.AttachmentRef{sp.Input, sp.Color, sp.Resolve, sp.DepthStencil} {
			if err := check(refs); err != nil {
				return 0, err
			}
		}
		if len(sp.Resolve) != 0 && len(sp.Resolve) != len(sp.Color) {
			return 0, validation("render pass %q subpass %d: %d resolve refs for %d color refs",
				desc.Label, i, len(sp.Resolve), len(sp.Color))
		}
	}
	subpasses := uint32(len(desc.Subpasses))
	for i, dep := range desc.Dependencies {
		if dep.SrcSubpass == gpucore.SubpassExternal && dep.DstSubpass == gpucore.SubpassExternal {
			return 0, validation("render pass %q dependency %d is external on both ends", desc.Label, i)
		}
		if dep.SrcSubpass != gpucore.SubpassExternal {
			if dep.SrcSubpass >= subpasses || (dep.DstSubpass != gpucore.SubpassExternal && dep.SrcSubpass > dep.DstSubpass) {
				return 0, validation("render pass %q dependency %d: %d -> %d", desc.Label, i, dep.SrcSubpass, dep.DstSubpass)
			}
		}
		if dep.DstSubpass != gpucore.SubpassExternal && dep.DstSubpass >= subpasses {
			return 0, validation("render pass %q dependency %d targets subpass %d of %d", desc.Label, i, dep.DstSubpass, subpasses)
		}
	}
	cp := *desc
	return gpucore.RenderPassID(d.renderPasses.Insert(&cp)), nil
}

// DestroyRenderPass releases a render pass.
func (d *Device) DestroyRenderPass(rp gpucore.RenderPassID) { d.renderPasses.Remove(uint64(rp)) }

// RenderPassDesc returns the graph a render pass was created from.
func (d *Device) RenderPassDesc(rp gpucore.RenderPassID) (*gpucore.RenderPassDesc, bool) {
	return d.renderPasses.Get(uint64(rp))
}

// CreateFramebuffer creates a framebuffer compatible with a render pass.
func (d *Device) CreateFramebuffer(desc *gpucore.FramebufferDesc) (gpucore.FramebufferID, error) {
	if err := d.fault("CreateFramebuffer"); err != nil {
		return 0, err
	}
	rp, ok := d.renderPasses.Get(uint64(desc.RenderPass))
	if !ok {
		return 0, invalid("render pass", uint64(desc.RenderPass))
	}
	if len(desc.Attachments) != len(rp.Attachments) {
		return 0, validation("framebuffer %q has %d attachments, render pass %d",
			desc.Label, len(desc.Attachments), len(rp.Attachments))
	}
	for _, v := range desc.Attachments {
		if !d.views.Contains(uint64(v)) {
			return 0, invalid("image view", uint64(v))
		}
	}
	if desc.Extent.Empty() {
		return 0, validation("framebuffer %q has empty extent", desc.Label)
	}
	cp := *desc
	cp.Attachments = append([]gpucore.ImageViewID(nil), desc.Attachments...)
	return gpucore.FramebufferID(d.framebuffers.Insert(&cp)), nil
}

// DestroyFramebuffer releases a framebuffer.
func (d *Device) DestroyFramebuffer(fb gpucore.FramebufferID) { d.framebuffers.Remove(uint64(fb)) }

// CreatePipelineLayout creates a pipeline layout.
func (d *Device) CreatePipelineLayout(desc *gpucore.PipelineLayoutDesc) (gpucore.PipelineLayoutID, error) {
	if err := d.fault("CreatePipelineLayout"); err != nil {
		return 0, err
	}
	for _, l := range desc.SetLayouts {
		if !d.setLayouts.Contains(uint64(l)) {
			return 0, invalid("descriptor set layout", uint64(l))
		}
	}
	for _, pc := range desc.PushConstants {
		if pc.Size == 0 || pc.Size%4 != 0 || pc.Offset+pc.Size > 128 {
			return 0, validation("pipeline layout %q push constant range %d+%d", desc.Label, pc.Offset, pc.Size)
		}
	}
	cp := *desc
	return gpucore.PipelineLayoutID(d.layouts.Insert(&cp)), nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *Device) DestroyPipelineLayout(l gpucore.PipelineLayoutID) { d.layouts.Remove(uint64(l)) }

// CreateGraphicsPipeline validates a graphics pipeline against its subpass.
func (d *Device) CreateGraphicsPipeline(desc *gpucore.GraphicsPipelineDesc) (gpucore.PipelineID, error) {
	if err := d.fault("CreateGraphicsPipeline"); err != nil {
		return 0, err
	}
	if !d.layouts.Contains(uint64(desc.Layout)) {
		return 0, invalid("pipeline layout", uint64(desc.Layout))
	}
	if !d.shaders.Contains(uint64(desc.Vertex.Module)) {
		return 0, invalid("vertex shader module", uint64(desc.Vertex.Module))
	}
	if desc.Fragment.Module != gpucore.InvalidID && !d.shaders.Contains(uint64(desc.Fragment.Module)) {
		return 0, invalid("fragment shader module", uint64(desc.Fragment.Module))
	}
	rp, ok := d.renderPasses.Get(uint64(desc.RenderPass))
	if !ok {
		return 0, invalid("render pass", uint64(desc.RenderPass))
	}
	if desc.Subpass >= uint32(len(rp.Subpasses)) {
		return 0, validation("pipeline %q uses subpass %d of %d", desc.Label, desc.Subpass, len(rp.Subpasses))
	}
	sp := &rp.Subpasses[desc.Subpass]
	if len(desc.Targets) != len(sp.Color) {
		return 0, validation("pipeline %q has %d color targets, subpass %d has %d",
			desc.Label, len(desc.Targets), desc.Subpass, len(sp.Color))
	}
	if _, hasDepth := sp.DepthAttachment(); desc.Depth != nil && desc.Depth.Test && !hasDepth {
		return 0, validation("pipeline %q tests depth in a subpass without depth attachment", desc.Label)
	}
	p := &pipeline{gfx: *desc}
	return gpucore.PipelineID(d.pipelines.Insert(p)), nil
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.PipelineID, error) {
	if err := d.fault("CreateComputePipeline"); err != nil {
		return 0, err
	}
	if !d.layouts.Contains(uint64(desc.Layout)) {
		return 0, invalid("pipeline layout", uint64(desc.Layout))
	}
	if !d.shaders.Contains(uint64(desc.Compute.Module)) {
		return 0, invalid("compute shader module", uint64(desc.Compute.Module))
	}
	p := &pipeline{compute: true, cmp: *desc}
	return gpucore.PipelineID(d.pipelines.Insert(p)), nil
}

// DestroyPipeline releases a pipeline.
func (d *Device) DestroyPipeline(p gpucore.PipelineID) { d.pipelines.Remove(uint64(p)) }

// CreateDescriptorSetLayout creates a descriptor set layout.
func (d *Device) CreateDescriptorSetLayout(desc *gpucore.DescriptorSetLayoutDesc) (gpucore.DescriptorSetLayoutID, error) {
	if err := d.fault("CreateDescriptorSetLayout"); err != nil {
		return 0, err
	}
	seen := make(map[uint32]bool)
	for _, b := range desc.Bindings {
		if seen[b.Binding] {
			return 0, validation("layout %q declares binding %d twice", desc.Label, b.Binding)
		}
		seen[b.Binding] = true
	}
	cp := *desc
	cp.Bindings = append([]gpucore.DescriptorBinding(nil), desc.Bindings...)
	return gpucore.DescriptorSetLayoutID(d.setLayouts.Insert(&cp)), nil
}

// DestroyDescriptorSetLayout releases a descriptor set layout.
func (d *Device) DestroyDescriptorSetLayout(l gpucore.DescriptorSetLayoutID) {
	d.setLayouts.Remove(uint64(l))
}

// CreateDescriptorPool creates a descriptor pool.
func (d *Device) CreateDescriptorPool(desc *gpucore.DescriptorPoolDesc) (gpucore.DescriptorPoolID, error) {
	if err := d.fault("CreateDescriptorPool"); err != nil {
		return 0, err
	}
	if desc.MaxSets == 0 {
		return 0, validation("descriptor pool %q has MaxSets 0", desc.Label)
	}
	p := &descPool{desc: *desc, sets: make(map[gpucore.DescriptorSetID]struct{}), remaining: desc.MaxSets}
	return gpucore.DescriptorPoolID(d.descPools.Insert(p)), nil
}

// DestroyDescriptorPool frees the pool and its sets.
func (d *Device) DestroyDescriptorPool(id gpucore.DescriptorPoolID) {
	p, ok := d.descPools.Remove(uint64(id))
	if !ok {
		return
	}
	for s := range p.sets {
		d.descSets.Remove(uint64(s))
	}
}

// AllocateDescriptorSets allocates count sets of one layout.
func (d *Device) AllocateDescriptorSets(pool gpucore.DescriptorPoolID, layout gpucore.DescriptorSetLayoutID, count int) ([]gpucore.DescriptorSetID, error) {
	if err := d.fault("AllocateDescriptorSets"); err != nil {
		return nil, err
	}
	p, ok := d.descPools.Get(uint64(pool))
	if !ok {
		return nil, invalid("descriptor pool", uint64(pool))
	}
	if !d.setLayouts.Contains(uint64(layout)) {
		return nil, invalid("descriptor set layout", uint64(layout))
	}
	if uint32(count) > p.remaining {
		return nil, fmt.Errorf("soft: descriptor pool %q exhausted: %d sets requested, %d left: %w: %w",
			p.desc.Label, count, p.remaining, gpucore.ErrAllocation, ErrValidation)
	}
	out := make([]gpucore.DescriptorSetID, count)
	for i := range out {
		id := gpucore.DescriptorSetID(d.descSets.Insert(&descSet{
			pool:   pool,
			layout: layout,
			writes: make(map[uint32]gpucore.DescriptorWrite),
		}))
		p.sets[id] = struct{}{}
		out[i] = id
	}
	p.remaining -= uint32(count)
	return out, nil
}

// UpdateDescriptorSets applies writes after checking them against the
// set layouts.
func (d *Device) UpdateDescriptorSets(writes []gpucore.DescriptorWrite) error {
	if err := d.fault("UpdateDescriptorSets"); err != nil {
		return err
	}
	for i, w := range writes {
		s, ok := d.descSets.Get(uint64(w.Set))
		if !ok {
			return invalid("descriptor set", uint64(w.Set))
		}
		layout, ok := d.setLayouts.Get(uint64(s.layout))
		if !ok {
			return invalid("descriptor set layout", uint64(s.layout))
		}
		var bind *gpucore.DescriptorBinding
		for j := range layout.Bindings {
			if layout.Bindings[j].Binding == w.Binding {
				bind = &layout.Bindings[j]
			}
		}
		if bind == nil {
			return validation("write %d: binding %d not in layout %q", i, w.Binding, layout.Label)
		}
		if bind.Type != w.Type {
			return validation("write %d: binding %d of %q has type %d, write %d", i, w.Binding, layout.Label, bind.Type, w.Type)
		}
		switch w.Type {
		case gpucore.DescriptorUniformBuffer, gpucore.DescriptorStorageBuffer:
			if !d.buffers.Contains(uint64(w.Buffer)) {
				return invalid("buffer", uint64(w.Buffer))
			}
		case gpucore.DescriptorSampler:
			if !d.samplers.Contains(uint64(w.Sampler)) {
				return invalid("sampler", uint64(w.Sampler))
			}
		case gpucore.DescriptorCombinedImageSampler:
			if !d.samplers.Contains(uint64(w.Sampler)) {
				return invalid("sampler", uint64(w.Sampler))
			}
			if !d.views.Contains(uint64(w.ImageView)) {
				return invalid("image view", uint64(w.ImageView))
			}
		default:
			if !d.views.Contains(uint64(w.ImageView)) {
				return invalid("image view", uint64(w.ImageView))
			}
		}
	}
	for _, w := range writes {
		s, _ := d.descSets.Get(uint64(w.Set))
		s.writes[w.Binding] = w
	}
	return nil
}

// DescriptorWrites returns the current bindings of a set.
func (d *Device) DescriptorWrites(id gpucore.DescriptorSetID) map[uint32]gpucore.DescriptorWrite {
	s, ok := d.descSets.Get(uint64(id))
	if !ok {
		return nil
	}
	out := make(map[uint32]gpucore.DescriptorWrite, len(s.writes))
	for k, v := range s.writes {
		out[k] = v
	}
	return out
}

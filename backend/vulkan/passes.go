// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/deferred/gpucore"
)

type renderPass struct {
	vk      vk.RenderPass
	formats []gpucore.Format
}

type pipelineLayout struct {
	vk   vk.PipelineLayout
	push []gpucore.PushConstantRange
}

type pipeline struct {
	vk    vk.Pipeline
	point vk.PipelineBindPoint
}

type descPool struct {
	vk      vk.DescriptorPool
	maxSets uint32
	sets    map[gpucore.DescriptorSetID]struct{}
}

type descSet struct {
	vk   vk.DescriptorSet
	pool gpucore.DescriptorPoolID
}

func attachmentRefs(refs []gpucore.AttachmentRef) []vk.AttachmentReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]vk.AttachmentReference, len(refs))
	for i, r := range refs {
		out[i] = vk.AttachmentReference{Attachment: r.Attachment, Layout: imageLayout(r.Layout)}
	}
	return out
}

// CreateRenderPass creates a render pass with every subpass and dependency
// of desc.
func (d *Device) CreateRenderPass(desc *gpucore.RenderPassDesc) (gpucore.RenderPassID, error) {
	atts := make([]vk.AttachmentDescription, len(desc.Attachments))
	for i, a := range desc.Attachments {
		atts[i] = vk.AttachmentDescription{
			Format:         format(a.Format),
			Samples:        vk.SampleCountFlagBits(max(a.Samples, 1)),
			LoadOp:         loadOp(a.LoadOp),
			StoreOp:        storeOp(a.StoreOp),
			StencilLoadOp:  loadOp(a.StencilLoadOp),
			StencilStoreOp: storeOp(a.StencilStoreOp),
			InitialLayout:  imageLayout(a.InitialLayout),
			FinalLayout:    imageLayout(a.FinalLayout),
		}
	}

	subpasses := make([]vk.SubpassDescription, len(desc.Subpasses))
	for i := range desc.Subpasses {
		sp := &desc.Subpasses[i]
		color := attachmentRefs(sp.Color)
		input := attachmentRefs(sp.Input)
		var resolve []vk.AttachmentReference
		if len(sp.Resolve) == len(sp.Color) {
			resolve = attachmentRefs(sp.Resolve)
		}
		s := vk.SubpassDescription{
			PipelineBindPoint:       bindPoint(sp.BindPoint),
			InputAttachmentCount:    uint32(len(input)),
			PInputAttachments:       input,
			ColorAttachmentCount:    uint32(len(color)),
			PColorAttachments:       color,
			PResolveAttachments:     resolve,
			PreserveAttachmentCount: uint32(len(sp.Preserve)),
			PPreserveAttachments:    sp.Preserve,
		}
		if ref, ok := sp.DepthAttachment(); ok {
			s.PDepthStencilAttachment = &vk.AttachmentReference{Attachment: ref.Attachment, Layout: imageLayout(ref.Layout)}
		}
		subpasses[i] = s
	}

	deps := make([]vk.SubpassDependency, len(desc.Dependencies))
	for i, dep := range desc.Dependencies {
		deps[i] = vk.SubpassDependency{
			SrcSubpass:    dep.SrcSubpass,
			DstSubpass:    dep.DstSubpass,
			SrcStageMask:  stageMask(dep.SrcStage),
			DstStageMask:  stageMask(dep.DstStage),
			SrcAccessMask: accesses.apply(dep.SrcAccess),
			DstAccessMask: accesses.apply(dep.DstAccess),
		}
		if dep.ByRegion {
			deps[i].DependencyFlags = vk.DependencyFlags(vk.DependencyByRegionBit)
		}
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(atts)),
		PAttachments:    atts,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(deps)),
		PDependencies:   deps,
	}
	var rp vk.RenderPass
	if err := check(vk.CreateRenderPass(d.dev, &info, nil, &rp), "create render pass "+desc.Label); err != nil {
		return 0, err
	}
	formats := make([]gpucore.Format, len(desc.Attachments))
	for i, a := range desc.Attachments {
		formats[i] = a.Format
	}
	d.log.Debug("vulkan: render pass created", "label", desc.Label,
		"attachments", len(atts), "subpasses", len(subpasses), "dependencies", len(deps))
	return gpucore.RenderPassID(d.renderPasses.Insert(&renderPass{vk: rp, formats: formats})), nil
}

// DestroyRenderPass releases a render pass.
func (d *Device) DestroyRenderPass(id gpucore.RenderPassID) {
	if rp, ok := d.renderPasses.Remove(uint64(id)); ok {
		vk.DestroyRenderPass(d.dev, rp.vk, nil)
	}
}

// CreateFramebuffer binds views to the attachments of a render pass.
func (d *Device) CreateFramebuffer(desc *gpucore.FramebufferDesc) (gpucore.FramebufferID, error) {
	rp, ok := d.renderPasses.Get(uint64(desc.RenderPass))
	if !ok {
		return 0, invalid("render pass", uint64(desc.RenderPass))
	}
	views := make([]vk.ImageView, len(desc.Attachments))
	for i, id := range desc.Attachments {
		v, ok := d.views.Get(uint64(id))
		if !ok {
			return 0, invalid("image view", uint64(id))
		}
		views[i] = v
	}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.vk,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          max(desc.Layers, 1),
	}
	var fb vk.Framebuffer
	if err := check(vk.CreateFramebuffer(d.dev, &info, nil, &fb), "create framebuffer "+desc.Label); err != nil {
		return 0, err
	}
	return gpucore.FramebufferID(d.framebuffers.Insert(fb)), nil
}

// DestroyFramebuffer releases a framebuffer.
func (d *Device) DestroyFramebuffer(id gpucore.FramebufferID) {
	if fb, ok := d.framebuffers.Remove(uint64(id)); ok {
		vk.DestroyFramebuffer(d.dev, fb, nil)
	}
}

// CreatePipelineLayout creates a layout from set layouts and push ranges.
func (d *Device) CreatePipelineLayout(desc *gpucore.PipelineLayoutDesc) (gpucore.PipelineLayoutID, error) {
	sets := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, id := range desc.SetLayouts {
		l, ok := d.setLayouts.Get(uint64(id))
		if !ok {
			return 0, invalid("descriptor set layout", uint64(id))
		}
		sets[i] = l
	}
	push := make([]vk.PushConstantRange, len(desc.PushConstants))
	for i, p := range desc.PushConstants {
		push[i] = vk.PushConstantRange{StageFlags: shaderStages.apply(p.Stages), Offset: p.Offset, Size: p.Size}
	}
	info := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(sets)),
		PSetLayouts:            sets,
		PushConstantRangeCount: uint32(len(push)),
		PPushConstantRanges:    push,
	}
	var l vk.PipelineLayout
	if err := check(vk.CreatePipelineLayout(d.dev, &info, nil, &l), "create pipeline layout "+desc.Label); err != nil {
		return 0, err
	}
	pl := &pipelineLayout{vk: l, push: append([]gpucore.PushConstantRange(nil), desc.PushConstants...)}
	return gpucore.PipelineLayoutID(d.layouts.Insert(pl)), nil
}

// DestroyPipelineLayout releases a layout.
func (d *Device) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	if l, ok := d.layouts.Remove(uint64(id)); ok {
		vk.DestroyPipelineLayout(d.dev, l.vk, nil)
	}
}

func (d *Device) shaderStage(s gpucore.ShaderStageDesc, stage vk.ShaderStageFlagBits) (vk.PipelineShaderStageCreateInfo, error) {
	m, ok := d.shaders.Get(uint64(s.Module))
	if !ok {
		return vk.PipelineShaderStageCreateInfo{}, invalid("shader module", uint64(s.Module))
	}
	entry := s.EntryPoint
	if entry == "" {
		entry = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: m,
		PName:  cstr(entry),
	}, nil
}

// CreateGraphicsPipeline creates a pipeline for one subpass. Viewport and
// scissor are dynamic.
func (d *Device) CreateGraphicsPipeline(desc *gpucore.GraphicsPipelineDesc) (gpucore.PipelineID, error) {
	layout, ok := d.layouts.Get(uint64(desc.Layout))
	if !ok {
		return 0, invalid("pipeline layout", uint64(desc.Layout))
	}
	rp, ok := d.renderPasses.Get(uint64(desc.RenderPass))
	if !ok {
		return 0, invalid("render pass", uint64(desc.RenderPass))
	}
	vs, err := d.shaderStage(desc.Vertex, vk.ShaderStageVertexBit)
	if err != nil {
		return 0, err
	}
	shaders := []vk.PipelineShaderStageCreateInfo{vs}
	if desc.Fragment.Module != gpucore.InvalidID {
		fs, err := d.shaderStage(desc.Fragment, vk.ShaderStageFragmentBit)
		if err != nil {
			return 0, err
		}
		shaders = append(shaders, fs)
	}

	var bindings []vk.VertexInputBindingDescription
	var attrs []vk.VertexInputAttributeDescription
	for i, vb := range desc.VertexBuffers {
		rate := vk.VertexInputRateVertex
		if vb.Instance {
			rate = vk.VertexInputRateInstance
		}
		bindings = append(bindings, vk.VertexInputBindingDescription{Binding: uint32(i), Stride: vb.Stride, InputRate: rate})
		for _, a := range vb.Attributes {
			attrs = append(attrs, vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  uint32(i),
				Format:   vertexFormat(a.Format),
				Offset:   a.Offset,
			})
		}
	}
	vertex := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attrs)),
		PVertexAttributeDescriptions:    attrs,
	}
	assembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: topology(desc.Topology),
	}
	viewport := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    cullMode(desc.CullMode),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCountFlagBits(max(desc.Samples, 1)),
	}
	depth := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpAlways,
		MaxDepthBounds: 1,
	}
	if desc.Depth != nil {
		if desc.Depth.Test {
			depth.DepthTestEnable = vk.True
		}
		if desc.Depth.Write {
			depth.DepthWriteEnable = vk.True
		}
		depth.DepthCompareOp = compareOp(desc.Depth.Compare)
	}
	blends := make([]vk.PipelineColorBlendAttachmentState, len(desc.Targets))
	for i, t := range desc.Targets {
		blends[i] = blendAttachment(t.Blend)
	}
	blend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blends)),
		PAttachments:    blends,
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(shaders)),
		PStages:             shaders,
		PVertexInputState:   &vertex,
		PInputAssemblyState: &assembly,
		PViewportState:      &viewport,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depth,
		PColorBlendState:    &blend,
		PDynamicState:       &dynamic,
		Layout:              layout.vk,
		RenderPass:          rp.vk,
		Subpass:             desc.Subpass,
		BasePipelineIndex:   -1,
	}
	out := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(d.dev, vk.PipelineCache(vk.NullHandle), 1, []vk.GraphicsPipelineCreateInfo{info}, nil, out)
	if err := check(res, "create graphics pipeline "+desc.Label); err != nil {
		return 0, err
	}
	p := &pipeline{vk: out[0], point: vk.PipelineBindPointGraphics}
	return gpucore.PipelineID(d.pipelines.Insert(p)), nil
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.PipelineID, error) {
	layout, ok := d.layouts.Get(uint64(desc.Layout))
	if !ok {
		return 0, invalid("pipeline layout", uint64(desc.Layout))
	}
	cs, err := d.shaderStage(desc.Compute, vk.ShaderStageComputeBit)
	if err != nil {
		return 0, err
	}
	info := vk.ComputePipelineCreateInfo{
		SType:             vk.StructureTypeComputePipelineCreateInfo,
		Stage:             cs,
		Layout:            layout.vk,
		BasePipelineIndex: -1,
	}
	out := make([]vk.Pipeline, 1)
	res := vk.CreateComputePipelines(d.dev, vk.PipelineCache(vk.NullHandle), 1, []vk.ComputePipelineCreateInfo{info}, nil, out)
	if err := check(res, "create compute pipeline "+desc.Label); err != nil {
		return 0, err
	}
	p := &pipeline{vk: out[0], point: vk.PipelineBindPointCompute}
	return gpucore.PipelineID(d.pipelines.Insert(p)), nil
}

// DestroyPipeline releases a pipeline.
func (d *Device) DestroyPipeline(id gpucore.PipelineID) {
	if p, ok := d.pipelines.Remove(uint64(id)); ok {
		vk.DestroyPipeline(d.dev, p.vk, nil)
	}
}

// CreateDescriptorSetLayout creates a set layout.
func (d *Device) CreateDescriptorSetLayout(desc *gpucore.DescriptorSetLayoutDesc) (gpucore.DescriptorSetLayoutID, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(desc.Bindings))
	for i, b := range desc.Bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  descriptorType(b.Type),
			DescriptorCount: max(b.Count, 1),
			StageFlags:      shaderStages.apply(b.Stages),
		}
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var l vk.DescriptorSetLayout
	if err := check(vk.CreateDescriptorSetLayout(d.dev, &info, nil, &l), "create set layout "+desc.Label); err != nil {
		return 0, err
	}
	return gpucore.DescriptorSetLayoutID(d.setLayouts.Insert(l)), nil
}

// DestroyDescriptorSetLayout releases a set layout.
func (d *Device) DestroyDescriptorSetLayout(id gpucore.DescriptorSetLayoutID) {
	if l, ok := d.setLayouts.Remove(uint64(id)); ok {
		vk.DestroyDescriptorSetLayout(d.dev, l, nil)
	}
}

// CreateDescriptorPool creates a pool.
func (d *Device) CreateDescriptorPool(desc *gpucore.DescriptorPoolDesc) (gpucore.DescriptorPoolID, error) {
	sizes := make([]vk.DescriptorPoolSize, len(desc.Sizes))
	for i, s := range desc.Sizes {
		sizes[i] = vk.DescriptorPoolSize{Type: descriptorType(s.Type), DescriptorCount: s.Count}
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       desc.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(d.dev, &info, nil, &pool), "create descriptor pool "+desc.Label); err != nil {
		return 0, err
	}
	p := &descPool{vk: pool, maxSets: desc.MaxSets, sets: make(map[gpucore.DescriptorSetID]struct{})}
	return gpucore.DescriptorPoolID(d.descPools.Insert(p)), nil
}

// DestroyDescriptorPool releases a pool and its sets.
func (d *Device) DestroyDescriptorPool(id gpucore.DescriptorPoolID) {
	p, ok := d.descPools.Remove(uint64(id))
	if !ok {
		return
	}
	for s := range p.sets {
		d.descSets.Remove(uint64(s))
	}
	vk.DestroyDescriptorPool(d.dev, p.vk, nil)
}

// AllocateDescriptorSets allocates count sets of one layout.
func (d *Device) AllocateDescriptorSets(pool gpucore.DescriptorPoolID, layout gpucore.DescriptorSetLayoutID, count int) ([]gpucore.DescriptorSetID, error) {
	p, ok := d.descPools.Get(uint64(pool))
	if !ok {
		return nil, invalid("descriptor pool", uint64(pool))
	}
	l, ok := d.setLayouts.Get(uint64(layout))
	if !ok {
		return nil, invalid("descriptor set layout", uint64(layout))
	}
	if count <= 0 {
		return nil, nil
	}
	if len(p.sets)+count > int(p.maxSets) {
		return nil, fmt.Errorf("vulkan: pool holds %d of %d sets, %d requested: %w",
			len(p.sets), p.maxSets, count, gpucore.ErrAllocation)
	}
	layouts := make([]vk.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = l
	}
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.vk,
		DescriptorSetCount: uint32(count),
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, count)
	if err := check(vk.AllocateDescriptorSets(d.dev, &info, &sets[0]), "allocate descriptor sets"); err != nil {
		return nil, err
	}
	ids := make([]gpucore.DescriptorSetID, count)
	for i, s := range sets {
		ids[i] = gpucore.DescriptorSetID(d.descSets.Insert(&descSet{vk: s, pool: pool}))
		p.sets[ids[i]] = struct{}{}
	}
	return ids, nil
}

// UpdateDescriptorSets applies writes in one call.
func (d *Device) UpdateDescriptorSets(writes []gpucore.DescriptorWrite) error {
	out := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := d.descSets.Get(uint64(w.Set))
		if !ok {
			return invalid("descriptor set", uint64(w.Set))
		}
		vw := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.vk,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorCount: 1,
			DescriptorType:  descriptorType(w.Type),
		}
		switch w.Type {
		case gpucore.DescriptorUniformBuffer, gpucore.DescriptorStorageBuffer:
			b, ok := d.buffers.Get(uint64(w.Buffer))
			if !ok {
				return invalid("buffer", uint64(w.Buffer))
			}
			rng := w.Range
			if rng == 0 {
				rng = b.size - w.Offset
			}
			vw.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: b.vk,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(rng),
			}}
		default:
			info, err := d.imageInfo(w)
			if err != nil {
				return err
			}
			vw.PImageInfo = []vk.DescriptorImageInfo{info}
		}
		out = append(out, vw)
	}
	if len(out) > 0 {
		vk.UpdateDescriptorSets(d.dev, uint32(len(out)), out, 0, nil)
	}
	return nil
}

func (d *Device) imageInfo(w gpucore.DescriptorWrite) (vk.DescriptorImageInfo, error) {
	var info vk.DescriptorImageInfo
	if w.Type == gpucore.DescriptorSampler || w.Type == gpucore.DescriptorCombinedImageSampler {
		s, ok := d.samplers.Get(uint64(w.Sampler))
		if !ok {
			return info, invalid("sampler", uint64(w.Sampler))
		}
		info.Sampler = s
	}
	if w.Type == gpucore.DescriptorSampler {
		return info, nil
	}
	v, ok := d.views.Get(uint64(w.ImageView))
	if !ok {
		return info, invalid("image view", uint64(w.ImageView))
	}
	info.ImageView = v
	layout := w.Layout
	if layout == gpucore.LayoutUndefined {
		layout = gpucore.LayoutShaderReadOnly
		if w.Type == gpucore.DescriptorStorageImage {
			layout = gpucore.LayoutGeneral
		}
	}
	info.ImageLayout = imageLayout(layout)
	return info, nil
}

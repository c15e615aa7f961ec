// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/deferred/gpucore"
)

// flagMap translates one bit set into another, bit by bit.
type flagMap[F, V ~uint32] []struct {
	from F
	to   V
}

func (m flagMap[F, V]) apply(f F) V {
	var v V
	for _, e := range m {
		if f&e.from != 0 {
			v |= e.to
		}
	}
	return v
}

var formats = map[gpucore.Format]vk.Format{
	gpucore.FormatRGBA8Unorm:          vk.FormatR8g8b8a8Unorm,
	gpucore.FormatRGBA8Srgb:           vk.FormatR8g8b8a8Srgb,
	gpucore.FormatBGRA8Unorm:          vk.FormatB8g8r8a8Unorm,
	gpucore.FormatBGRA8Srgb:           vk.FormatB8g8r8a8Srgb,
	gpucore.FormatR32Float:            vk.FormatR32Sfloat,
	gpucore.FormatRG32Float:           vk.FormatR32g32Sfloat,
	gpucore.FormatRGBA16Float:         vk.FormatR16g16b16a16Sfloat,
	gpucore.FormatRGBA32Float:         vk.FormatR32g32b32a32Sfloat,
	gpucore.FormatDepth32Float:        vk.FormatD32Sfloat,
	gpucore.FormatDepth24PlusStencil8: vk.FormatD24UnormS8Uint,
}

func format(f gpucore.Format) vk.Format {
	if v, ok := formats[f]; ok {
		return v
	}
	return vk.FormatUndefined
}

// gpuFormat maps a surface format back. Unknown formats report
// FormatUndefined.
func gpuFormat(f vk.Format) gpucore.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return gpucore.FormatUndefined
}

func imageLayout(l gpucore.ImageLayout) vk.ImageLayout {
	switch l {
	case gpucore.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case gpucore.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpucore.LayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gpucore.LayoutDepthStencilReadOnly:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case gpucore.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpucore.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case gpucore.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case gpucore.LayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

var imageUsages = flagMap[gpucore.ImageUsage, vk.ImageUsageFlags]{
	{gpucore.ImageUsageTransferSrc, vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)},
	{gpucore.ImageUsageTransferDst, vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)},
	{gpucore.ImageUsageSampled, vk.ImageUsageFlags(vk.ImageUsageSampledBit)},
	{gpucore.ImageUsageStorage, vk.ImageUsageFlags(vk.ImageUsageStorageBit)},
	{gpucore.ImageUsageColorAttachment, vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)},
	{gpucore.ImageUsageDepthStencilAttachment, vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)},
	{gpucore.ImageUsageInputAttachment, vk.ImageUsageFlags(vk.ImageUsageInputAttachmentBit)},
}

var bufferUsages = flagMap[gpucore.BufferUsage, vk.BufferUsageFlags]{
	{gpucore.BufferUsageTransferSrc, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)},
	{gpucore.BufferUsageTransferDst, vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)},
	{gpucore.BufferUsageUniform, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)},
	{gpucore.BufferUsageStorage, vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)},
	{gpucore.BufferUsageIndex, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)},
	{gpucore.BufferUsageVertex, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)},
}

var stages = flagMap[gpucore.PipelineStage, vk.PipelineStageFlags]{
	{gpucore.StageTopOfPipe, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)},
	{gpucore.StageVertexShader, vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit)},
	{gpucore.StageEarlyFragmentTests, vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)},
	{gpucore.StageFragmentShader, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)},
	{gpucore.StageLateFragmentTests, vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)},
	{gpucore.StageColorAttachmentOutput, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
	{gpucore.StageComputeShader, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)},
	{gpucore.StageTransfer, vk.PipelineStageFlags(vk.PipelineStageTransferBit)},
	{gpucore.StageBottomOfPipe, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)},
	{gpucore.StageAllCommands, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)},
}

// stageMask never returns zero; an empty mask means top of pipe.
func stageMask(s gpucore.PipelineStage) vk.PipelineStageFlags {
	if m := stages.apply(s); m != 0 {
		return m
	}
	return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
}

var accesses = flagMap[gpucore.Access, vk.AccessFlags]{
	{gpucore.AccessShaderRead, vk.AccessFlags(vk.AccessShaderReadBit)},
	{gpucore.AccessShaderWrite, vk.AccessFlags(vk.AccessShaderWriteBit)},
	{gpucore.AccessInputAttachmentRead, vk.AccessFlags(vk.AccessInputAttachmentReadBit)},
	{gpucore.AccessColorAttachmentRead, vk.AccessFlags(vk.AccessColorAttachmentReadBit)},
	{gpucore.AccessColorAttachmentWrite, vk.AccessFlags(vk.AccessColorAttachmentWriteBit)},
	{gpucore.AccessDepthStencilRead, vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit)},
	{gpucore.AccessDepthStencilWrite, vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)},
	{gpucore.AccessTransferRead, vk.AccessFlags(vk.AccessTransferReadBit)},
	{gpucore.AccessTransferWrite, vk.AccessFlags(vk.AccessTransferWriteBit)},
	{gpucore.AccessMemoryRead, vk.AccessFlags(vk.AccessMemoryReadBit)},
}

var shaderStages = flagMap[gpucore.ShaderStage, vk.ShaderStageFlags]{
	{gpucore.ShaderVertex, vk.ShaderStageFlags(vk.ShaderStageVertexBit)},
	{gpucore.ShaderFragment, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)},
	{gpucore.ShaderCompute, vk.ShaderStageFlags(vk.ShaderStageComputeBit)},
}

var aspects = flagMap[gpucore.ImageAspect, vk.ImageAspectFlags]{
	{gpucore.AspectColor, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
	{gpucore.AspectDepth, vk.ImageAspectFlags(vk.ImageAspectDepthBit)},
	{gpucore.AspectStencil, vk.ImageAspectFlags(vk.ImageAspectStencilBit)},
}

// formatAspect is the full aspect mask of a format.
func formatAspect(f gpucore.Format) vk.ImageAspectFlags {
	switch {
	case f.HasStencil():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	case f.IsDepth():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func descriptorType(t gpucore.DescriptorType) vk.DescriptorType {
	switch t {
	case gpucore.DescriptorUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case gpucore.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case gpucore.DescriptorSampledImage:
		return vk.DescriptorTypeSampledImage
	case gpucore.DescriptorStorageImage:
		return vk.DescriptorTypeStorageImage
	case gpucore.DescriptorSampler:
		return vk.DescriptorTypeSampler
	case gpucore.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case gpucore.DescriptorInputAttachment:
		return vk.DescriptorTypeInputAttachment
	}
	return vk.DescriptorTypeMaxEnum
}

func loadOp(op gpucore.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gpucore.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case gpucore.LoadOpClear:
		return vk.AttachmentLoadOpClear
	}
	return vk.AttachmentLoadOpDontCare
}

func storeOp(op gpucore.StoreOp) vk.AttachmentStoreOp {
	if op == gpucore.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func bindPoint(p gpucore.PipelineBindPoint) vk.PipelineBindPoint {
	if p == gpucore.BindCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func indexType(f gpucore.IndexFormat) vk.IndexType {
	if f == gpucore.IndexUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

func compareOp(c gpucore.CompareOp) vk.CompareOp {
	switch c {
	case gpucore.CompareNever:
		return vk.CompareOpNever
	case gpucore.CompareLess:
		return vk.CompareOpLess
	case gpucore.CompareLessEqual:
		return vk.CompareOpLessOrEqual
	case gpucore.CompareGreater:
		return vk.CompareOpGreater
	}
	return vk.CompareOpAlways
}

func topology(t gpucore.Topology) vk.PrimitiveTopology {
	switch t {
	case gpucore.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gpucore.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	}
	return vk.PrimitiveTopologyTriangleList
}

func cullMode(c gpucore.CullMode) vk.CullModeFlags {
	switch c {
	case gpucore.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gpucore.CullBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func vertexFormat(f gpucore.VertexFormat) vk.Format {
	switch f {
	case gpucore.VertexFloat32x2:
		return vk.FormatR32g32Sfloat
	case gpucore.VertexFloat32x3:
		return vk.FormatR32g32b32Sfloat
	case gpucore.VertexFloat32x4:
		return vk.FormatR32g32b32a32Sfloat
	}
	return vk.FormatUndefined
}

func filter(f gpucore.Filter) vk.Filter {
	if f == gpucore.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func addressMode(a gpucore.AddressMode) vk.SamplerAddressMode {
	switch a {
	case gpucore.AddressRepeat:
		return vk.SamplerAddressModeRepeat
	case gpucore.AddressClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeClampToEdge
}

func presentMode(m gpucore.PresentMode) vk.PresentMode {
	switch m {
	case gpucore.PresentMailbox:
		return vk.PresentModeMailbox
	case gpucore.PresentImmediate:
		return vk.PresentModeImmediate
	}
	return vk.PresentModeFifo
}

// blendAttachment is the color blend state of one target.
func blendAttachment(m gpucore.BlendMode) vk.PipelineColorBlendAttachmentState {
	s := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	switch m {
	case gpucore.BlendAdditive:
		s.BlendEnable = vk.True
		s.SrcColorBlendFactor, s.DstColorBlendFactor = vk.BlendFactorOne, vk.BlendFactorOne
		s.SrcAlphaBlendFactor, s.DstAlphaBlendFactor = vk.BlendFactorOne, vk.BlendFactorOne
	case gpucore.BlendAlpha:
		s.BlendEnable = vk.True
		s.SrcColorBlendFactor, s.DstColorBlendFactor = vk.BlendFactorSrcAlpha, vk.BlendFactorOneMinusSrcAlpha
		s.SrcAlphaBlendFactor, s.DstAlphaBlendFactor = vk.BlendFactorOne, vk.BlendFactorOneMinusSrcAlpha
	}
	s.ColorBlendOp, s.AlphaBlendOp = vk.BlendOpAdd, vk.BlendOpAdd
	return s
}

// queueCaps maps queue family flags. Present support is queried separately.
func queueCaps(f vk.QueueFlags) gpucore.QueueCaps {
	var c gpucore.QueueCaps
	if f&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
		c |= gpucore.QueueGraphics
	}
	if f&vk.QueueFlags(vk.QueueComputeBit) != 0 {
		c |= gpucore.QueueCompute
	}
	if f&vk.QueueFlags(vk.QueueTransferBit) != 0 {
		c |= gpucore.QueueTransfer
	}
	return c
}

func extent(e gpucore.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

func rect(r gpucore.Rect2D) vk.Rect2D {
	return vk.Rect2D{Offset: vk.Offset2D{X: r.X, Y: r.Y}, Extent: extent(r.Extent)}
}

// cstr NUL-terminates s for the C side of the bindings.
func cstr(s string) string {
	if len(s) > 0 && s[len(s)-1] == 0 {
		return s
	}
	return s + "\x00"
}

func cstrs(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = cstr(s)
	}
	return out
}

// sharing picks concurrent sharing when a resource is used by two or more
// families. No ownership transfers are recorded, so an exclusive resource
// must stay on one family.
func sharing(families []uint32) (vk.SharingMode, []uint32) {
	shared := gpucore.SharedFamilies(families)
	if shared == nil {
		return vk.SharingModeExclusive, nil
	}
	return vk.SharingModeConcurrent, shared
}

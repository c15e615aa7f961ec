// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred/gpucore"
)

func textureFormat(f gpucore.Format) gputypes.TextureFormat {
	switch f {
	case gpucore.FormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm
	case gpucore.FormatRGBA8Srgb:
		return gputypes.TextureFormatRGBA8UnormSrgb
	case gpucore.FormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm
	case gpucore.FormatBGRA8Srgb:
		return gputypes.TextureFormatBGRA8UnormSrgb
	case gpucore.FormatR32Float:
		return gputypes.TextureFormatR32Float
	case gpucore.FormatRG32Float:
		return gputypes.TextureFormatRG32Float
	case gpucore.FormatRGBA16Float:
		return gputypes.TextureFormatRGBA16Float
	case gpucore.FormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float
	case gpucore.FormatDepth32Float:
		return gputypes.TextureFormatDepth32Float
	case gpucore.FormatDepth24PlusStencil8:
		return gputypes.TextureFormatDepth24PlusStencil8
	}
	return gputypes.TextureFormatUndefined
}

func textureUsage(u gpucore.ImageUsage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if u&gpucore.ImageUsageTransferSrc != 0 {
		out |= gputypes.TextureUsageCopySrc
	}
	if u&gpucore.ImageUsageTransferDst != 0 {
		out |= gputypes.TextureUsageCopyDst
	}
	if u&(gpucore.ImageUsageSampled|gpucore.ImageUsageInputAttachment) != 0 {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u&gpucore.ImageUsageStorage != 0 {
		out |= gputypes.TextureUsageStorageBinding
	}
	if u&(gpucore.ImageUsageColorAttachment|gpucore.ImageUsageDepthStencilAttachment) != 0 {
		out |= gputypes.TextureUsageRenderAttachment
	}
	return out
}

// layoutUsage maps an image layout to the WebGPU usage it stands for.
func layoutUsage(l gpucore.ImageLayout) gputypes.TextureUsage {
	switch l {
	case gpucore.LayoutColorAttachment, gpucore.LayoutDepthStencilAttachment:
		return gputypes.TextureUsageRenderAttachment
	case gpucore.LayoutShaderReadOnly, gpucore.LayoutDepthStencilReadOnly:
		return gputypes.TextureUsageTextureBinding
	case gpucore.LayoutGeneral:
		return gputypes.TextureUsageStorageBinding
	case gpucore.LayoutTransferSrc:
		return gputypes.TextureUsageCopySrc
	case gpucore.LayoutTransferDst:
		return gputypes.TextureUsageCopyDst
	}
	return 0
}

func bufferUsage(u gpucore.BufferUsage, hostVisible bool) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	if u&gpucore.BufferUsageTransferSrc != 0 {
		out |= gputypes.BufferUsageCopySrc
	}
	if u&gpucore.BufferUsageTransferDst != 0 || hostVisible {
		out |= gputypes.BufferUsageCopyDst
	}
	if u&gpucore.BufferUsageUniform != 0 {
		out |= gputypes.BufferUsageUniform
	}
	if u&gpucore.BufferUsageStorage != 0 {
		out |= gputypes.BufferUsageStorage
	}
	if u&gpucore.BufferUsageIndex != 0 {
		out |= gputypes.BufferUsageIndex
	}
	if u&gpucore.BufferUsageVertex != 0 {
		out |= gputypes.BufferUsageVertex
	}
	return out
}

func shaderStages(s gpucore.ShaderStage) gputypes.ShaderStages {
	var out gputypes.ShaderStages
	if s&gpucore.ShaderVertex != 0 {
		out |= gputypes.ShaderStageVertex
	}
	if s&gpucore.ShaderFragment != 0 {
		out |= gputypes.ShaderStageFragment
	}
	if s&gpucore.ShaderCompute != 0 {
		out |= gputypes.ShaderStageCompute
	}
	return out
}

func loadOp(op gpucore.LoadOp) gputypes.LoadOp {
	if op == gpucore.LoadOpClear {
		return gputypes.LoadOpClear
	}
	// WebGPU has no don't-care load.
	return gputypes.LoadOpLoad
}

func storeOp(op gpucore.StoreOp) gputypes.StoreOp {
	if op == gpucore.StoreOpStore {
		return gputypes.StoreOpStore
	}
	return gputypes.StoreOpDiscard
}

func filterMode(f gpucore.Filter) gputypes.FilterMode {
	if f == gpucore.FilterLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

func addressMode(a gpucore.AddressMode) gputypes.AddressMode {
	switch a {
	case gpucore.AddressRepeat:
		return gputypes.AddressModeRepeat
	case gpucore.AddressClampToBorder:
		// Border colors are not part of core WebGPU.
		return gputypes.AddressModeClampToEdge
	}
	return gputypes.AddressModeClampToEdge
}

func compareFunction(c gpucore.CompareOp) gputypes.CompareFunction {
	switch c {
	case gpucore.CompareNever:
		return gputypes.CompareFunctionNever
	case gpucore.CompareLess:
		return gputypes.CompareFunctionLess
	case gpucore.CompareLessEqual:
		return gputypes.CompareFunctionLessEqual
	case gpucore.CompareGreater:
		return gputypes.CompareFunctionGreater
	}
	return gputypes.CompareFunctionAlways
}

func topology(t gpucore.Topology) gputypes.PrimitiveTopology {
	switch t {
	case gpucore.TopologyTriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	case gpucore.TopologyLineList:
		return gputypes.PrimitiveTopologyLineList
	}
	return gputypes.PrimitiveTopologyTriangleList
}

func cullMode(c gpucore.CullMode) gputypes.CullMode {
	switch c {
	case gpucore.CullFront:
		return gputypes.CullModeFront
	case gpucore.CullBack:
		return gputypes.CullModeBack
	}
	return gputypes.CullModeNone
}

func vertexFormat(f gpucore.VertexFormat) gputypes.VertexFormat {
	switch f {
	case gpucore.VertexFloat32x2:
		return gputypes.VertexFormatFloat32x2
	case gpucore.VertexFloat32x3:
		return gputypes.VertexFormatFloat32x3
	}
	return gputypes.VertexFormatFloat32x4
}

func indexFormat(f gpucore.IndexFormat) gputypes.IndexFormat {
	if f == gpucore.IndexUint16 {
		return gputypes.IndexFormatUint16
	}
	return gputypes.IndexFormatUint32
}

func blendState(m gpucore.BlendMode) *gputypes.BlendState {
	switch m {
	case gpucore.BlendAdditive:
		one := gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorOne,
			DstFactor: gputypes.BlendFactorOne,
			Operation: gputypes.BlendOperationAdd,
		}
		return &gputypes.BlendState{Color: one, Alpha: one}
	case gpucore.BlendAlpha:
		b := gputypes.BlendStatePremultiplied()
		return &b
	}
	return nil
}

func viewDimension(layered bool) gputypes.TextureViewDimension {
	if layered {
		return gputypes.TextureViewDimension2DArray
	}
	return gputypes.TextureViewDimension2D
}

func color(c [4]float32) gputypes.Color {
	return gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])}
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/deferred/gpucore"
)

type buffer struct {
	label string
	vk    vk.Buffer
	mem   vk.DeviceMemory
	size  uint64
	host  bool
}

type image struct {
	desc gpucore.ImageDesc
	vk   vk.Image
	mem  vk.DeviceMemory

	// external images belong to a swapchain.
	external bool
}

// CreateBuffer creates a buffer. Device-local buffers are written through
// a staging copy, so they always allow transfer writes.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	usage := bufferUsages.apply(desc.Usage)
	want := hostMemory
	if !desc.HostVisible {
		usage |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
		want = deviceMemory
	}
	buf, mem, err := d.newBuffer(max(desc.Size, 4), usage, want, desc.Families)
	if err != nil {
		return 0, fmt.Errorf("vulkan: buffer %q: %w", desc.Label, err)
	}
	b := &buffer{label: desc.Label, vk: buf, mem: mem, size: desc.Size, host: desc.HostVisible}
	return gpucore.BufferID(d.buffers.Insert(b)), nil
}

// DestroyBuffer releases a buffer and its memory.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	if b, ok := d.buffers.Remove(uint64(id)); ok {
		vk.DestroyBuffer(d.dev, b.vk, nil)
		vk.FreeMemory(d.dev, b.mem, nil)
	}
}

// WriteBuffer maps host-visible buffers and stages the rest.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b, ok := d.buffers.Get(uint64(id))
	if !ok {
		return invalid("buffer", uint64(id))
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("vulkan: write of %d bytes at %d overflows buffer %q of %d: %w",
			len(data), offset, b.label, b.size, gpucore.ErrAllocation)
	}
	if len(data) == 0 {
		return nil
	}
	if b.host {
		return d.writeHost(b.mem, offset, data)
	}
	return d.staged(data, func(cb vk.CommandBuffer, src vk.Buffer) {
		vk.CmdCopyBuffer(cb, src, b.vk, 1, []vk.BufferCopy{{
			DstOffset: vk.DeviceSize(offset),
			Size:      vk.DeviceSize(len(data)),
		}})
	})
}

// CreateImage creates an optimally tiled 2D image with desc.Layers layers.
func (d *Device) CreateImage(desc *gpucore.ImageDesc) (gpucore.ImageID, error) {
	f := format(desc.Format)
	if f == vk.FormatUndefined {
		return 0, fmt.Errorf("vulkan: image %q format %s: %w", desc.Label, desc.Format, gpucore.ErrUnsupported)
	}
	mode, shared := sharing(desc.Families)
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    f,
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:             1,
		ArrayLayers:           max(desc.Layers, 1),
		Samples:               vk.SampleCountFlagBits(max(desc.Samples, 1)),
		Tiling:                vk.ImageTilingOptimal,
		Usage:                 imageUsages.apply(desc.Usage) | vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(shared)),
		PQueueFamilyIndices:   shared,
		InitialLayout:         vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if err := check(vk.CreateImage(d.dev, &info, nil, &img), "create image "+desc.Label); err != nil {
		return 0, err
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.dev, img, &req)
	mem, err := d.allocate(req, deviceMemory)
	if err != nil {
		vk.DestroyImage(d.dev, img, nil)
		return 0, fmt.Errorf("vulkan: image %q: %w", desc.Label, err)
	}
	if err := check(vk.BindImageMemory(d.dev, img, mem, 0), "bind image memory"); err != nil {
		vk.FreeMemory(d.dev, mem, nil)
		vk.DestroyImage(d.dev, img, nil)
		return 0, err
	}
	return gpucore.ImageID(d.images.Insert(&image{desc: *desc, vk: img, mem: mem})), nil
}

// DestroyImage releases an image. Swapchain images are released with
// their swapchain.
func (d *Device) DestroyImage(id gpucore.ImageID) {
	im, ok := d.images.Get(uint64(id))
	if !ok || im.external {
		return
	}
	d.images.Remove(uint64(id))
	vk.DestroyImage(d.dev, im.vk, nil)
	vk.FreeMemory(d.dev, im.mem, nil)
}

// WriteImage uploads one layer of tightly packed texels. The layer is left
// in LayoutShaderReadOnly.
func (d *Device) WriteImage(id gpucore.ImageID, layer uint32, data []byte) error {
	im, ok := d.images.Get(uint64(id))
	if !ok {
		return invalid("image", uint64(id))
	}
	w, h := im.desc.Extent.Width, im.desc.Extent.Height
	size := uint64(w) * uint64(h) * uint64(im.desc.Format.TexelSize())
	if uint64(len(data)) != size {
		return fmt.Errorf("vulkan: image %q expects %d bytes per layer, got %d: %w",
			im.desc.Label, size, len(data), gpucore.ErrAllocation)
	}
	if layer >= max(im.desc.Layers, 1) {
		return fmt.Errorf("vulkan: image %q has no layer %d: %w", im.desc.Label, layer, gpucore.ErrInvalidHandle)
	}
	aspect := formatAspect(im.desc.Format)
	sub := vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: 1, BaseArrayLayer: layer, LayerCount: 1}
	return d.staged(data, func(cb vk.CommandBuffer, src vk.Buffer) {
		toDst := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			DstAccessMask:       vk.AccessFlags(vk.AccessTransferWriteBit),
			OldLayout:           vk.ImageLayoutUndefined,
			NewLayout:           vk.ImageLayoutTransferDstOptimal,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               im.vk,
			SubresourceRange:    sub,
		}
		vk.CmdPipelineBarrier(cb,
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toDst})

		vk.CmdCopyBufferToImage(cb, src, im.vk, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			ImageSubresource: vk.ImageSubresourceLayers{AspectMask: aspect, BaseArrayLayer: layer, LayerCount: 1},
			ImageExtent:      vk.Extent3D{Width: w, Height: h, Depth: 1},
		}})

		toRead := toDst
		toRead.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		toRead.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		toRead.OldLayout = vk.ImageLayoutTransferDstOptimal
		toRead.NewLayout = vk.ImageLayoutShaderReadOnlyOptimal
		vk.CmdPipelineBarrier(cb,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit|vk.PipelineStageComputeShaderBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toRead})
	})
}

// CreateImageView creates a view of a layer range.
func (d *Device) CreateImageView(desc *gpucore.ImageViewDesc) (gpucore.ImageViewID, error) {
	im, ok := d.images.Get(uint64(desc.Image))
	if !ok {
		return 0, invalid("image", uint64(desc.Image))
	}
	count := max(desc.LayerCount, 1)
	viewType := vk.ImageViewType2d
	if desc.Array || count > 1 {
		viewType = vk.ImageViewType2dArray
	}
	aspect := aspects.apply(desc.Aspect)
	if aspect == 0 {
		aspect = formatAspect(desc.Format)
	}
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    im.vk,
		ViewType: viewType,
		Format:   format(desc.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			LevelCount:     1,
			BaseArrayLayer: desc.BaseLayer,
			LayerCount:     count,
		},
	}
	var view vk.ImageView
	if err := check(vk.CreateImageView(d.dev, &info, nil, &view), "create view "+desc.Label); err != nil {
		return 0, err
	}
	return gpucore.ImageViewID(d.views.Insert(view)), nil
}

// DestroyImageView releases a view.
func (d *Device) DestroyImageView(id gpucore.ImageViewID) {
	if v, ok := d.views.Remove(uint64(id)); ok {
		vk.DestroyImageView(d.dev, v, nil)
	}
}

// CreateSampler creates a sampler without mipmapping.
func (d *Device) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	mode := addressMode(desc.Address)
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    filter(desc.MagFilter),
		MinFilter:    filter(desc.MinFilter),
		MipmapMode:   vk.SamplerMipmapModeNearest,
		AddressModeU: mode,
		AddressModeV: mode,
		AddressModeW: mode,
		MaxLod:       0.25,
		BorderColor:  vk.BorderColorFloatOpaqueBlack,
		CompareOp:    vk.CompareOpAlways,
	}
	var s vk.Sampler
	if err := check(vk.CreateSampler(d.dev, &info, nil, &s), "create sampler "+desc.Label); err != nil {
		return 0, err
	}
	return gpucore.SamplerID(d.samplers.Insert(s)), nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(id gpucore.SamplerID) {
	if s, ok := d.samplers.Remove(uint64(id)); ok {
		vk.DestroySampler(d.dev, s, nil)
	}
}

// CreateShaderModule creates a module from SPIR-V. WGSL-only modules are
// rejected.
func (d *Device) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if len(desc.SPIRV) == 0 {
		return 0, fmt.Errorf("vulkan: shader %q has no SPIR-V: %w", desc.Label, gpucore.ErrUnsupported)
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(desc.SPIRV) * 4),
		PCode:    desc.SPIRV,
	}
	var m vk.ShaderModule
	if err := check(vk.CreateShaderModule(d.dev, &info, nil, &m), "create shader "+desc.Label); err != nil {
		return 0, err
	}
	return gpucore.ShaderModuleID(d.shaders.Insert(m)), nil
}

// DestroyShaderModule releases a module.
func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	if m, ok := d.shaders.Remove(uint64(id)); ok {
		vk.DestroyShaderModule(d.dev, m, nil)
	}
}

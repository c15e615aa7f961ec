// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/deferred/gpucore"
)

type buffer struct {
	hal  hal.Buffer
	size uint64
}

type image struct {
	hal    hal.Texture
	desc   gpucore.ImageDesc
	format gputypes.TextureFormat

	// external images belong to a swapchain.
	external bool
}

type imageView struct {
	hal   hal.TextureView
	image gpucore.ImageID
}

// CreateBuffer creates a buffer. Host visibility is emulated with
// queue writes.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	hb, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: bufferUsage(desc.Usage, desc.HostVisible),
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	return gpucore.BufferID(d.buffers.Insert(&buffer{hal: hb, size: desc.Size})), nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(b gpucore.BufferID) {
	if buf, ok := d.buffers.Remove(uint64(b)); ok {
		d.dev.DestroyBuffer(buf.hal)
	}
}

// WriteBuffer writes data at offset through the queue.
func (d *Device) WriteBuffer(b gpucore.BufferID, offset uint64, data []byte) error {
	buf, ok := d.buffers.Get(uint64(b))
	if !ok {
		return invalid("buffer", uint64(b))
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("wgpu: write of %d bytes at %d overflows buffer of %d: %w",
			len(data), offset, buf.size, gpucore.ErrAllocation)
	}
	d.queue.WriteBuffer(buf.hal, offset, data)
	return nil
}

// CreateImage creates a 2D texture with desc.Layers array layers.
func (d *Device) CreateImage(desc *gpucore.ImageDesc) (gpucore.ImageID, error) {
	format := textureFormat(desc.Format)
	if format == gputypes.TextureFormatUndefined {
		return 0, fmt.Errorf("wgpu: image %q format %s: %w", desc.Label, desc.Format, gpucore.ErrUnsupported)
	}
	layers := max(desc.Layers, 1)
	samples := max(desc.Samples, 1)
	tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Extent.Width, Height: desc.Extent.Height, DepthOrArrayLayers: layers},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         textureUsage(desc.Usage),
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create image %q: %w", desc.Label, err)
	}
	return gpucore.ImageID(d.images.Insert(&image{hal: tex, desc: *desc, format: format})), nil
}

// DestroyImage releases an image. Swapchain images are released with
// their swapchain.
func (d *Device) DestroyImage(img gpucore.ImageID) {
	im, ok := d.images.Get(uint64(img))
	if !ok || im.external {
		return
	}
	d.images.Remove(uint64(img))
	d.dev.DestroyTexture(im.hal)
}

// WriteImage uploads one layer of tightly packed texels.
func (d *Device) WriteImage(img gpucore.ImageID, layer uint32, data []byte) error {
	im, ok := d.images.Get(uint64(img))
	if !ok {
		return invalid("image", uint64(img))
	}
	w, h := im.desc.Extent.Width, im.desc.Extent.Height
	row := w * uint32(im.desc.Format.TexelSize())
	if uint64(len(data)) != uint64(row)*uint64(h) {
		return fmt.Errorf("wgpu: image %q expects %d bytes per layer, got %d: %w",
			im.desc.Label, row*h, len(data), gpucore.ErrAllocation)
	}
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: im.hal, MipLevel: 0, Origin: hal.Origin3D{Z: layer}},
		data,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: row, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	return nil
}

// CreateImageView creates a view of a layer range.
func (d *Device) CreateImageView(desc *gpucore.ImageViewDesc) (gpucore.ImageViewID, error) {
	im, ok := d.images.Get(uint64(desc.Image))
	if !ok {
		return 0, invalid("image", uint64(desc.Image))
	}
	count := max(desc.LayerCount, 1)
	aspect := gputypes.TextureAspectAll
	if desc.Aspect == gpucore.AspectDepth && desc.Format.HasStencil() {
		aspect = gputypes.TextureAspectDepthOnly
	}
	view, err := d.dev.CreateTextureView(im.hal, &hal.TextureViewDescriptor{
		Label:           desc.Label,
		Format:          textureFormat(desc.Format),
		Dimension:       viewDimension(desc.Array || count > 1),
		Aspect:          aspect,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  desc.BaseLayer,
		ArrayLayerCount: count,
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create view %q: %w", desc.Label, err)
	}
	return gpucore.ImageViewID(d.views.Insert(&imageView{hal: view, image: desc.Image})), nil
}

// DestroyImageView releases a view.
func (d *Device) DestroyImageView(v gpucore.ImageViewID) {
	if view, ok := d.views.Remove(uint64(v)); ok {
		d.dev.DestroyTextureView(view.hal)
	}
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	mode := addressMode(desc.Address)
	s, err := d.dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: mode,
		AddressModeV: mode,
		AddressModeW: mode,
		MagFilter:    filterMode(desc.MagFilter),
		MinFilter:    filterMode(desc.MinFilter),
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create sampler %q: %w", desc.Label, err)
	}
	return gpucore.SamplerID(d.samplers.Insert(s)), nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(s gpucore.SamplerID) {
	if hs, ok := d.samplers.Remove(uint64(s)); ok {
		d.dev.DestroySampler(hs)
	}
}

// pushDecl is the WGSL declaration push constants are rewritten to.
const pushDecl = "@group(1) @binding(0) var<uniform>"

// CreateShaderModule creates a module from WGSL or SPIR-V. WGSL push
// constant blocks are moved to the uniform emulating them.
func (d *Device) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	src := hal.ShaderSource{SPIRV: desc.SPIRV}
	if desc.WGSL != "" {
		src = hal.ShaderSource{WGSL: rewritePushConstants(desc.WGSL)}
	}
	m, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: desc.Label, Source: src})
	if err != nil {
		return 0, fmt.Errorf("wgpu: compile %q: %w", desc.Label, err)
	}
	return gpucore.ShaderModuleID(d.shaders.Insert(m)), nil
}

func rewritePushConstants(wgsl string) string {
	return strings.ReplaceAll(wgsl, "var<push_constant>", pushDecl)
}

// DestroyShaderModule releases a module.
func (d *Device) DestroyShaderModule(m gpucore.ShaderModuleID) {
	if hm, ok := d.shaders.Remove(uint64(m)); ok {
		d.dev.DestroyShaderModule(hm)
	}
}

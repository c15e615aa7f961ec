package soft

import (
	"github.com/gogpu/deferred/gpucore"
)

type buffer struct {
	desc  gpucore.BufferDesc
	data  []byte
	owner owner
}

type image struct {
	desc      gpucore.ImageDesc
	layers    [][]byte
	swapchain bool
	owner     owner
}

type imageView struct {
	desc gpucore.ImageViewDesc
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if err := d.fault("CreateBuffer"); err != nil {
		return 0, err
	}
	if desc.Size == 0 {
		return 0, validation("buffer %q has zero size", desc.Label)
	}
	b := &buffer{desc: *desc, data: make([]byte, desc.Size)}
	return gpucore.BufferID(d.buffers.Insert(b)), nil
}

// BufferDesc returns the descriptor a buffer was created with.
func (d *Device) BufferDesc(id gpucore.BufferID) (gpucore.BufferDesc, bool) {
	b, ok := d.buffers.Get(uint64(id))
	if !ok {
		return gpucore.BufferDesc{}, false
	}
	return b.desc, true
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(b gpucore.BufferID) { d.buffers.Remove(uint64(b)) }

// WriteBuffer copies data into a host-visible buffer.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	if err := d.fault("WriteBuffer"); err != nil {
		return err
	}
	b, ok := d.buffers.Get(uint64(id))
	if !ok {
		return invalid("buffer", uint64(id))
	}
	if !b.desc.HostVisible {
		return validation("write to buffer %q that is not host visible", b.desc.Label)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return validation("write of %d bytes at %d overflows buffer %q (%d bytes)",
			len(data), offset, b.desc.Label, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

// BufferData returns a copy of the buffer contents.
func (d *Device) BufferData(id gpucore.BufferID) []byte {
	if b, ok := d.buffers.Get(uint64(id)); ok {
		return append([]byte(nil), b.data...)
	}
	return nil
}

// CreateImage allocates an image.
func (d *Device) CreateImage(desc *gpucore.ImageDesc) (gpucore.ImageID, error) {
	if err := d.fault("CreateImage"); err != nil {
		return 0, err
	}
	if desc.Extent.Empty() {
		return 0, validation("image %q has empty extent", desc.Label)
	}
	if desc.Format == gpucore.FormatUndefined {
		return 0, validation("image %q has undefined format", desc.Label)
	}
	img := &image{desc: *desc}
	if img.desc.Layers == 0 {
		img.desc.Layers = 1
	}
	img.layers = make([][]byte, img.desc.Layers)
	return gpucore.ImageID(d.images.Insert(img)), nil
}

// DestroyImage releases an image. Swapchain images are owned by their
// swapchain and ignored here.
func (d *Device) DestroyImage(id gpucore.ImageID) {
	if img, ok := d.images.Get(uint64(id)); ok && !img.swapchain {
		d.images.Remove(uint64(id))
	}
}

// WriteImage stores tightly packed texels for one layer.
func (d *Device) WriteImage(id gpucore.ImageID, layer uint32, data []byte) error {
	if err := d.fault("WriteImage"); err != nil {
		return err
	}
	img, ok := d.images.Get(uint64(id))
	if !ok {
		return invalid("image", uint64(id))
	}
	if layer >= img.desc.Layers {
		return validation("write to layer %d of image %q with %d layers", layer, img.desc.Label, img.desc.Layers)
	}
	want := int(img.desc.Extent.Width) * int(img.desc.Extent.Height) * img.desc.Format.TexelSize()
	if len(data) != want {
		return validation("image %q layer upload has %d bytes, want %d", img.desc.Label, len(data), want)
	}
	img.layers[layer] = append([]byte(nil), data...)
	return nil
}

// ImageData returns the last upload to a layer of an image.
func (d *Device) ImageData(id gpucore.ImageID, layer uint32) []byte {
	img, ok := d.images.Get(uint64(id))
	if !ok || layer >= uint32(len(img.layers)) {
		return nil
	}
	return img.layers[layer]
}

// ImageDesc returns the descriptor an image was created with.
func (d *Device) ImageDesc(id gpucore.ImageID) (gpucore.ImageDesc, bool) {
	img, ok := d.images.Get(uint64(id))
	if !ok {
		return gpucore.ImageDesc{}, false
	}
	return img.desc, true
}

// CreateImageView creates a view of an image.
func (d *Device) CreateImageView(desc *gpucore.ImageViewDesc) (gpucore.ImageViewID, error) {
	if err := d.fault("CreateImageView"); err != nil {
		return 0, err
	}
	img, ok := d.images.Get(uint64(desc.Image))
	if !ok {
		return 0, invalid("image", uint64(desc.Image))
	}
	count := desc.LayerCount
	if count == 0 {
		count = 1
	}
	if desc.BaseLayer+count > img.desc.Layers {
		return 0, validation("view %q selects layers %d..%d of %d",
			desc.Label, desc.BaseLayer, desc.BaseLayer+count, img.desc.Layers)
	}
	return gpucore.ImageViewID(d.views.Insert(&imageView{desc: *desc})), nil
}

// DestroyImageView releases an image view.
func (d *Device) DestroyImageView(v gpucore.ImageViewID) { d.views.Remove(uint64(v)) }

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	if err := d.fault("CreateSampler"); err != nil {
		return 0, err
	}
	return gpucore.SamplerID(d.samplers.Insert(*desc)), nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(s gpucore.SamplerID) { d.samplers.Remove(uint64(s)) }

// CreateShaderModule accepts SPIR-V or WGSL without compiling it.
func (d *Device) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if err := d.fault("CreateShaderModule"); err != nil {
		return 0, err
	}
	if len(desc.SPIRV) == 0 && desc.WGSL == "" {
		return 0, validation("shader module %q has no code", desc.Label)
	}
	return gpucore.ShaderModuleID(d.shaders.Insert(*desc)), nil
}

// DestroyShaderModule releases a shader module.
func (d *Device) DestroyShaderModule(m gpucore.ShaderModuleID) { d.shaders.Remove(uint64(m)) }

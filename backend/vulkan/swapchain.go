// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/deferred/gpucore"
)

type swapchain struct {
	vk     vk.Swapchain
	desc   gpucore.SwapchainDesc
	images []gpucore.ImageID
}

func (d *Device) surfaceFormats() []vk.SurfaceFormat {
	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, nil)
	out := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, out)
	for i := range out {
		out[i].Deref()
	}
	return out
}

func (d *Device) presentModes() []vk.PresentMode {
	var count uint32
	vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.surface, &count, nil)
	out := make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.surface, &count, out)
	return out
}

// chooseFormat keeps want when the surface offers it. Otherwise it takes
// the first offered format this package knows, preferring sRGB.
func chooseFormat(want gpucore.Format, offered []vk.SurfaceFormat) (gpucore.Format, vk.SurfaceFormat, error) {
	var fallback *vk.SurfaceFormat
	for i := range offered {
		sf := offered[i]
		if sf.Format == vk.FormatUndefined && want != gpucore.FormatUndefined {
			return want, vk.SurfaceFormat{Format: format(want), ColorSpace: vk.ColorSpaceSrgbNonlinear}, nil
		}
		f := gpuFormat(sf.Format)
		if f == gpucore.FormatUndefined {
			continue
		}
		if f == want {
			return f, sf, nil
		}
		if fallback == nil || (f == gpucore.FormatBGRA8Srgb || f == gpucore.FormatRGBA8Srgb) {
			fallback = &offered[i]
		}
	}
	if fallback == nil {
		return gpucore.FormatUndefined, vk.SurfaceFormat{}, fmt.Errorf("vulkan: no usable surface format: %w", gpucore.ErrUnsupported)
	}
	return gpuFormat(fallback.Format), *fallback, nil
}

// CreateSwapchain creates a swapchain on the device surface. desc.Old, if
// set, is retired but must still be destroyed by the caller.
func (d *Device) CreateSwapchain(desc *gpucore.SwapchainDesc) (gpucore.SwapchainID, error) {
	if d.surface == vk.NullSurface {
		return 0, fmt.Errorf("vulkan: headless device has no surface: %w", gpucore.ErrUnsupported)
	}
	if desc.Extent.Empty() {
		return 0, fmt.Errorf("vulkan: swapchain %q has empty extent: %w", desc.Label, gpucore.ErrOutOfDate)
	}
	old := vk.NullSwapchain
	if desc.Old != gpucore.InvalidID {
		sc, ok := d.swapchains.Get(uint64(desc.Old))
		if !ok {
			return 0, invalid("old swapchain", uint64(desc.Old))
		}
		old = sc.vk
	}

	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, d.surface, &caps), "surface capabilities"); err != nil {
		return 0, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	ext := extent(desc.Extent)
	if caps.CurrentExtent.Width != math.MaxUint32 {
		ext = caps.CurrentExtent
	} else {
		ext.Width = min(max(ext.Width, caps.MinImageExtent.Width), caps.MaxImageExtent.Width)
		ext.Height = min(max(ext.Height, caps.MinImageExtent.Height), caps.MaxImageExtent.Height)
	}
	if ext.Width == 0 || ext.Height == 0 {
		return 0, fmt.Errorf("vulkan: surface is minimized: %w", gpucore.ErrOutOfDate)
	}

	count := max(desc.ImageCount, caps.MinImageCount)
	if caps.MaxImageCount > 0 {
		count = min(count, caps.MaxImageCount)
	}
	gf, sf, err := chooseFormat(desc.Format, d.surfaceFormats())
	if err != nil {
		return 0, err
	}
	mode := vk.PresentModeFifo
	for _, m := range d.presentModes() {
		if m == presentMode(desc.PresentMode) {
			mode = m
			break
		}
	}
	usage := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	if caps.SupportedUsageFlags&vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) != 0 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    count,
		ImageFormat:      sf.Format,
		ImageColorSpace:  sf.ColorSpace,
		ImageExtent:      ext,
		ImageArrayLayers: 1,
		ImageUsage:       usage,
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      mode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	var handle vk.Swapchain
	if err := check(vk.CreateSwapchain(d.dev, &info, nil, &handle), "create swapchain "+desc.Label); err != nil {
		return 0, err
	}

	sc := &swapchain{vk: handle, desc: *desc}
	sc.desc.Format = gf
	sc.desc.Extent = gpucore.Extent2D{Width: ext.Width, Height: ext.Height}

	var n uint32
	vk.GetSwapchainImages(d.dev, handle, &n, nil)
	imgs := make([]vk.Image, n)
	vk.GetSwapchainImages(d.dev, handle, &n, imgs)
	sc.desc.ImageCount = n
	for _, img := range imgs {
		im := &image{
			desc: gpucore.ImageDesc{
				Label:  desc.Label,
				Extent: sc.desc.Extent,
				Layers: 1,
				Format: gf,
				Usage:  gpucore.ImageUsageColorAttachment | gpucore.ImageUsageTransferDst,
			},
			vk:       img,
			external: true,
		}
		sc.images = append(sc.images, gpucore.ImageID(d.images.Insert(im)))
	}
	d.log.Debug("vulkan: swapchain created", "label", desc.Label,
		"width", ext.Width, "height", ext.Height, "images", n, "format", gf)
	return gpucore.SwapchainID(d.swapchains.Insert(sc)), nil
}

// DestroySwapchain releases a swapchain. Its images go with it.
func (d *Device) DestroySwapchain(id gpucore.SwapchainID) {
	sc, ok := d.swapchains.Remove(uint64(id))
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.Remove(uint64(img))
	}
	vk.DestroySwapchain(d.dev, sc.vk, nil)
}

// SwapchainImages returns the images of a swapchain in index order.
func (d *Device) SwapchainImages(id gpucore.SwapchainID) ([]gpucore.ImageID, error) {
	sc, ok := d.swapchains.Get(uint64(id))
	if !ok {
		return nil, invalid("swapchain", uint64(id))
	}
	return append([]gpucore.ImageID(nil), sc.images...), nil
}

// AcquireNextImage acquires an image and signals signal when it is ready.
// A suboptimal swapchain still yields its image.
func (d *Device) AcquireNextImage(id gpucore.SwapchainID, timeout time.Duration, signal gpucore.SemaphoreID) (uint32, error) {
	sc, ok := d.swapchains.Get(uint64(id))
	if !ok {
		return 0, invalid("swapchain", uint64(id))
	}
	sem, ok := d.semaphores.Get(uint64(signal))
	if !ok {
		return 0, invalid("semaphore", uint64(signal))
	}
	var idx uint32
	res := vk.AcquireNextImage(d.dev, sc.vk, uint64(max(timeout, 0).Nanoseconds()), sem, vk.Fence(vk.NullHandle), &idx)
	if res == vk.Suboptimal {
		d.log.Debug("vulkan: suboptimal swapchain", "label", sc.desc.Label)
		return idx, nil
	}
	if err := check(res, "acquire image"); err != nil {
		return 0, err
	}
	return idx, nil
}

// Present queues image index for presentation. A suboptimal swapchain is
// reported as out of date so the caller rebuilds it.
func (d *Device) Present(q gpucore.QueueID, id gpucore.SwapchainID, index uint32, waits []gpucore.SemaphoreID) error {
	qu, err := d.lookupQueue(q)
	if err != nil {
		return err
	}
	sc, ok := d.swapchains.Get(uint64(id))
	if !ok {
		return invalid("swapchain", uint64(id))
	}
	sems := make([]vk.Semaphore, len(waits))
	for i, w := range waits {
		s, ok := d.semaphores.Get(uint64(w))
		if !ok {
			return invalid("semaphore", uint64(w))
		}
		sems[i] = s
	}
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(sems)),
		PWaitSemaphores:    sems,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.vk},
		PImageIndices:      []uint32{index},
	}
	res := vk.QueuePresent(qu.vk, &info)
	if res == vk.Suboptimal {
		return fmt.Errorf("vulkan: present image %d: suboptimal: %w", index, gpucore.ErrOutOfDate)
	}
	return check(res, "present")
}

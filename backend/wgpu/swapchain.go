// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred/gpucore"
)

// swapchain is a ring of offscreen images. Presenting hands the image view
// to Options.Present, which owns the actual surface.
type swapchain struct {
	desc      gpucore.SwapchainDesc
	images    []gpucore.ImageID
	views     []gpucore.ImageViewID
	next      uint32
	acquired  map[uint32]bool
	outOfDate bool
}

// surfaceFormat maps the host surface format back to a gpucore format.
func surfaceFormat(f gputypes.TextureFormat) gpucore.Format {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return gpucore.FormatRGBA8Unorm
	case gputypes.TextureFormatRGBA8UnormSrgb:
		return gpucore.FormatRGBA8Srgb
	case gputypes.TextureFormatBGRA8UnormSrgb:
		return gpucore.FormatBGRA8Srgb
	}
	return gpucore.FormatBGRA8Unorm
}

// CreateSwapchain creates the image ring. FormatUndefined picks the
// surface format.
func (d *Device) CreateSwapchain(desc *gpucore.SwapchainDesc) (gpucore.SwapchainID, error) {
	if desc.Extent.Empty() {
		return 0, fmt.Errorf("wgpu: swapchain %q has empty extent: %w", desc.Label, gpucore.ErrOutOfDate)
	}
	if desc.Old != gpucore.InvalidID {
		old, ok := d.swapchains.Get(uint64(desc.Old))
		if !ok {
			return 0, invalid("old swapchain", uint64(desc.Old))
		}
		old.outOfDate = true
	}
	sc := &swapchain{desc: *desc, acquired: make(map[uint32]bool)}
	if sc.desc.Format == gpucore.FormatUndefined {
		sc.desc.Format = surfaceFormat(d.opts.SurfaceFormat)
	}
	sc.desc.ImageCount = max(sc.desc.ImageCount, 2)

	for i := uint32(0); i < sc.desc.ImageCount; i++ {
		img, err := d.CreateImage(&gpucore.ImageDesc{
			Label:  fmt.Sprintf("%s[%d]", desc.Label, i),
			Extent: desc.Extent,
			Layers: 1,
			Format: sc.desc.Format,
			Usage: gpucore.ImageUsageColorAttachment | gpucore.ImageUsageSampled |
				gpucore.ImageUsageTransferSrc | gpucore.ImageUsageTransferDst,
		})
		if err != nil {
			d.destroyImages(sc)
			return 0, err
		}
		view, err := d.CreateImageView(&gpucore.ImageViewDesc{
			Label:      fmt.Sprintf("%s[%d]", desc.Label, i),
			Image:      img,
			Format:     sc.desc.Format,
			Aspect:     gpucore.AspectColor,
			LayerCount: 1,
		})
		if err != nil {
			d.DestroyImage(img)
			d.destroyImages(sc)
			return 0, err
		}
		im, _ := d.images.Get(uint64(img))
		im.external = true
		sc.images = append(sc.images, img)
		sc.views = append(sc.views, view)
	}
	d.log.Debug("wgpu: swapchain created", "label", desc.Label,
		"width", desc.Extent.Width, "height", desc.Extent.Height, "images", len(sc.images))
	return gpucore.SwapchainID(d.swapchains.Insert(sc)), nil
}

func (d *Device) destroyImages(sc *swapchain) {
	for _, v := range sc.views {
		d.DestroyImageView(v)
	}
	for _, img := range sc.images {
		if im, ok := d.images.Remove(uint64(img)); ok {
			d.dev.DestroyTexture(im.hal)
		}
	}
	sc.images, sc.views = nil, nil
}

// DestroySwapchain releases a swapchain and its images.
func (d *Device) DestroySwapchain(id gpucore.SwapchainID) {
	if sc, ok := d.swapchains.Remove(uint64(id)); ok {
		d.destroyImages(sc)
	}
}

// SwapchainImages returns the images of a swapchain in index order.
func (d *Device) SwapchainImages(id gpucore.SwapchainID) ([]gpucore.ImageID, error) {
	sc, ok := d.swapchains.Get(uint64(id))
	if !ok {
		return nil, invalid("swapchain", uint64(id))
	}
	return append([]gpucore.ImageID(nil), sc.images...), nil
}

// Invalidate makes the swapchain report ErrOutOfDate until it is replaced.
// Hosts call it when their surface is resized.
func (d *Device) Invalidate(id gpucore.SwapchainID) {
	if sc, ok := d.swapchains.Get(uint64(id)); ok {
		sc.outOfDate = true
	}
}

// AcquireNextImage hands out images round robin. Acquiring while every
// image is still held times out.
func (d *Device) AcquireNextImage(id gpucore.SwapchainID, _ time.Duration, signal gpucore.SemaphoreID) (uint32, error) {
	sc, ok := d.swapchains.Get(uint64(id))
	if !ok {
		return 0, invalid("swapchain", uint64(id))
	}
	if sc.outOfDate {
		return 0, gpucore.ErrOutOfDate
	}
	sem, ok := d.semaphores.Get(uint64(signal))
	if !ok {
		return 0, invalid("semaphore", uint64(signal))
	}
	if sem.signaled {
		return 0, fmt.Errorf("wgpu: acquire signals already signaled semaphore %q: %w", sem.label, gpucore.ErrSemaphore)
	}
	if len(sc.acquired) == len(sc.images) {
		return 0, gpucore.ErrTimeout
	}
	idx := sc.next
	for sc.acquired[idx] {
		idx = (idx + 1) % uint32(len(sc.images))
	}
	sc.next = (idx + 1) % uint32(len(sc.images))
	sc.acquired[idx] = true
	sem.signaled = true
	return idx, nil
}

// Present consumes waits and hands the image to Options.Present.
func (d *Device) Present(q gpucore.QueueID, id gpucore.SwapchainID, index uint32, waits []gpucore.SemaphoreID) error {
	if err := d.checkQueue(q); err != nil {
		return err
	}
	sc, ok := d.swapchains.Get(uint64(id))
	if !ok {
		return invalid("swapchain", uint64(id))
	}
	if index >= uint32(len(sc.images)) || !sc.acquired[index] {
		return fmt.Errorf("wgpu: present of unacquired image %d: %w", index, gpucore.ErrInvalidHandle)
	}
	for _, w := range waits {
		sem, ok := d.semaphores.Get(uint64(w))
		if !ok {
			return invalid("semaphore", uint64(w))
		}
		if !sem.signaled {
			return fmt.Errorf("wgpu: present waits on unsignaled semaphore %q: %w", sem.label, gpucore.ErrSemaphore)
		}
	}
	for _, w := range waits {
		sem, _ := d.semaphores.Get(uint64(w))
		sem.signaled = false
	}
	delete(sc.acquired, index)
	if sc.outOfDate {
		return gpucore.ErrOutOfDate
	}
	if d.opts.Present == nil {
		return nil
	}
	v, ok := d.views.Get(uint64(sc.views[index]))
	if !ok {
		return invalid("image view", uint64(sc.views[index]))
	}
	if err := d.opts.Present(v.hal, sc.desc.Extent.Width, sc.desc.Extent.Height); err != nil {
		return fmt.Errorf("wgpu: present image %d: %w", index, err)
	}
	return nil
}

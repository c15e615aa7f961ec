package soft

import (
	"time"

	"github.com/gogpu/deferred/gpucore"
)

type swapchain struct {
	desc      gpucore.SwapchainDesc
	images    []gpucore.ImageID
	next      uint32
	outOfDate bool
	presented []uint32
}

// CreateSwapchain creates a swapchain with desc.ImageCount images (at
// least two).
func (d *Device) CreateSwapchain(desc *gpucore.SwapchainDesc) (gpucore.SwapchainID, error) {
	if err := d.fault("CreateSwapchain"); err != nil {
		return 0, err
	}
	if desc.Extent.Empty() {
		return 0, validation("swapchain %q has empty extent", desc.Label)
	}
	if desc.Format == gpucore.FormatUndefined {
		return 0, validation("swapchain %q has undefined format", desc.Label)
	}
	if desc.Old != gpucore.InvalidID && !d.swapchains.Contains(uint64(desc.Old)) {
		return 0, invalid("old swapchain", uint64(desc.Old))
	}
	sc := &swapchain{desc: *desc}
	if sc.desc.ImageCount < 2 {
		sc.desc.ImageCount = 2
	}
	for i := uint32(0); i < sc.desc.ImageCount; i++ {
		img := &image{
			desc: gpucore.ImageDesc{
				Label:  desc.Label,
				Extent: desc.Extent,
				Layers: 1,
				Format: desc.Format,
				Usage:  gpucore.ImageUsageColorAttachment | gpucore.ImageUsageTransferDst,
			},
			layers:    make([][]byte, 1),
			swapchain: true,
		}
		sc.images = append(sc.images, gpucore.ImageID(d.images.Insert(img)))
	}
	return gpucore.SwapchainID(d.swapchains.Insert(sc)), nil
}

// DestroySwapchain releases a swapchain and its images.
func (d *Device) DestroySwapchain(id gpucore.SwapchainID) {
	sc, ok := d.swapchains.Remove(uint64(id))
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.Remove(uint64(img))
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

// StallAcquire makes AcquireNextImage time out while on is true.
func (d *Device) StallAcquire(on bool) { d.stalled = on }

// SetOutOfDate makes AcquireNextImage and Present on sc report
// ErrOutOfDate until the swapchain is replaced.
func (d *Device) SetOutOfDate(id gpucore.SwapchainID) {
	if sc, ok := d.swapchains.Get(uint64(id)); ok {
		sc.outOfDate = true
	}
}

// Presented returns the image indices presented on sc, in order.
func (d *Device) Presented(id gpucore.SwapchainID) []uint32 {
	if sc, ok := d.swapchains.Get(uint64(id)); ok {
		return append([]uint32(nil), sc.presented...)
	}
	return nil
}

// AcquireNextImage hands out images round robin.
func (d *Device) AcquireNextImage(id gpucore.SwapchainID, _ time.Duration, signal gpucore.SemaphoreID) (uint32, error) {
	if err := d.fault("AcquireNextImage"); err != nil {
		return 0, err
	}
	sc, ok := d.swapchains.Get(uint64(id))
	if !ok {
		return 0, invalid("swapchain", uint64(id))
	}
	if sc.outOfDate {
		return 0, gpucore.ErrOutOfDate
	}
	if d.stalled {
		return 0, gpucore.ErrTimeout
	}
	sem, ok := d.semaphores.Get(uint64(signal))
	if !ok {
		return 0, invalid("semaphore", uint64(signal))
	}
	if sem.signaled {
		return 0, semaphoreMisuse("acquire signals already signaled semaphore %q", sem.label)
	}
	sem.signaled = true
	idx := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	d.events = append(d.events, Event{
		Kind:       EventAcquire,
		Swapchain:  id,
		Image:      idx,
		Semaphores: []gpucore.SemaphoreID{signal},
	})
	return idx, nil
}

// Present consumes waits and records the presentation.
func (d *Device) Present(q gpucore.QueueID, id gpucore.SwapchainID, index uint32, waits []gpucore.SemaphoreID) error {
	if err := d.fault("Present"); err != nil {
		return err
	}
	qs, ok := d.queues.Get(uint64(q))
	if !ok {
		return invalid("queue", uint64(q))
	}
	if !qs.caps.Has(gpucore.QueuePresent) {
		return validation("present on queue without present capability")
	}
	sc, ok := d.swapchains.Get(uint64(id))
	if !ok {
		return invalid("swapchain", uint64(id))
	}
	if index >= uint32(len(sc.images)) {
		return validation("present of image %d of %d", index, len(sc.images))
	}
	for _, w := range waits {
		sem, ok := d.semaphores.Get(uint64(w))
		if !ok {
			return invalid("semaphore", uint64(w))
		}
		if !sem.signaled {
			return semaphoreMisuse("present waits on unsignaled semaphore %q", sem.label)
		}
	}
	for _, w := range waits {
		sem, _ := d.semaphores.Get(uint64(w))
		sem.signaled = false
	}
	if sc.outOfDate {
		return gpucore.ErrOutOfDate
	}
	sc.presented = append(sc.presented, index)
	d.events = append(d.events, Event{
		Kind:       EventPresent,
		Queue:      q,
		Swapchain:  id,
		Image:      index,
		Semaphores: append([]gpucore.SemaphoreID(nil), waits...),
	})
	return nil
}

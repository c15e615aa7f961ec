// Package swapchain manages the ring of presentable images and the two
// semaphores that bracket every frame: ImageReady, signaled by acquire, and
// RenderReady, waited by present.
package swapchain

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/queue"
)

// ErrNotAcquired is returned by Present for an image that was not acquired.
var ErrNotAcquired = errors.New("swapchain: image not acquired")

// Swapchain is a driver swapchain plus one color view per image.
type Swapchain struct {
	drv  gpucore.Driver
	id   gpucore.SwapchainID
	desc gpucore.SwapchainDesc

	images []gpucore.ImageID
	views  []gpucore.ImageViewID

	imageReady  gpucore.SemaphoreID
	renderReady gpucore.SemaphoreID

	// acquired is the index handed out by the last successful Acquire, or -1.
	acquired int
}

// New creates the swapchain, its image views and its two semaphores. When
// desc.Old is set the old swapchain handle is passed to the driver, but
// destroying the old Swapchain stays the caller's job.
func New(drv gpucore.Driver, desc gpucore.SwapchainDesc) (sc *Swapchain, err error) {
	sc = &Swapchain{drv: drv, desc: desc, acquired: -1}
	defer func() {
		if err != nil {
			sc.Destroy()
			sc = nil
		}
	}()

	if sc.id, err = drv.CreateSwapchain(&desc); err != nil {
		return sc, fmt.Errorf("create swapchain: %w", err)
	}
	if sc.images, err = drv.SwapchainImages(sc.id); err != nil {
		return sc, fmt.Errorf("swapchain images: %w", err)
	}
	sc.desc.ImageCount = uint32(len(sc.images))
	for i, img := range sc.images {
		v, err := drv.CreateImageView(&gpucore.ImageViewDesc{
			Label:  fmt.Sprintf("%s[%d]", desc.Label, i),
			Image:  img,
			Format: desc.Format,
			Aspect: gpucore.AspectColor,
		})
		if err != nil {
			return sc, fmt.Errorf("swapchain view %d: %w", i, err)
		}
		sc.views = append(sc.views, v)
	}
	if sc.imageReady, err = drv.CreateSemaphore("image-ready"); err != nil {
		return sc, err
	}
	if sc.renderReady, err = drv.CreateSemaphore("render-ready"); err != nil {
		return sc, err
	}
	return sc, nil
}

// ID returns the driver handle.
func (sc *Swapchain) ID() gpucore.SwapchainID { return sc.id }

// ImageCount returns the number of presentable images.
func (sc *Swapchain) ImageCount() int { return len(sc.images) }

// Extent returns the image size.
func (sc *Swapchain) Extent() gpucore.Extent2D { return sc.desc.Extent }

// Format returns the image format.
func (sc *Swapchain) Format() gpucore.Format { return sc.desc.Format }

// Image returns image i.
func (sc *Swapchain) Image(i int) gpucore.ImageID { return sc.images[i] }

// View returns the color view of image i.
func (sc *Swapchain) View(i int) gpucore.ImageViewID { return sc.views[i] }

// ImageReady is signaled when an acquired image may be rendered to.
func (sc *Swapchain) ImageReady() gpucore.SemaphoreID { return sc.imageReady }

// RenderReady must be signaled by the last pass before Present.
func (sc *Swapchain) RenderReady() gpucore.SemaphoreID { return sc.renderReady }

// Acquire requests the next image. ImageReady is signaled when it returns
// Signaled. A timeout is reported as TimedOut with a nil error; an
// out-of-date swapchain returns gpucore.ErrOutOfDate.
func (sc *Swapchain) Acquire(timeout time.Duration) (uint32, queue.WaitResult, error) {
	idx, err := sc.drv.AcquireNextImage(sc.id, timeout, sc.imageReady)
	switch {
	case errors.Is(err, gpucore.ErrTimeout):
		return 0, queue.TimedOut, nil
	case err != nil:
		return 0, queue.Signaled, fmt.Errorf("acquire: %w", err)
	}
	sc.acquired = int(idx)
	return idx, queue.Signaled, nil
}

// Present queues image index on q after RenderReady.
func (sc *Swapchain) Present(q *queue.Queue, index uint32) error {
	return sc.PresentAfter(q, index, sc.renderReady)
}

// PresentAfter queues image index on q after wait, for frames whose last
// pass signals a semaphore other than RenderReady.
func (sc *Swapchain) PresentAfter(q *queue.Queue, index uint32, wait gpucore.SemaphoreID) error {
	if sc.acquired != int(index) {
		return fmt.Errorf("present image %d: %w", index, ErrNotAcquired)
	}
	sc.acquired = -1
	if err := sc.drv.Present(q.ID(), sc.id, index, []gpucore.SemaphoreID{wait}); err != nil {
		return fmt.Errorf("present image %d: %w", index, err)
	}
	return nil
}

// Destroy releases the views, semaphores and swapchain.
func (sc *Swapchain) Destroy() {
	for _, v := range sc.views {
		sc.drv.DestroyImageView(v)
	}
	sc.views = nil
	if sc.imageReady != gpucore.InvalidID {
		sc.drv.DestroySemaphore(sc.imageReady)
		sc.imageReady = gpucore.InvalidID
	}
	if sc.renderReady != gpucore.InvalidID {
		sc.drv.DestroySemaphore(sc.renderReady)
		sc.renderReady = gpucore.InvalidID
	}
	if sc.id != gpucore.InvalidID {
		sc.drv.DestroySwapchain(sc.id)
		sc.id = gpucore.InvalidID
	}
	sc.images = nil
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/handle"
)

// idleTimeout bounds WaitIdle and QueueWaitIdle.
const idleTimeout = 10 * time.Second

// ErrNoHAL is returned by NewFromProvider when the provider does not expose
// HAL objects.
var ErrNoHAL = errors.New("wgpu: provider does not expose HAL device and queue")

// Options configures a Device.
type Options struct {
	// Name is reported in DeviceInfo. Defaults to "wgpu".
	Name string

	// SurfaceFormat is the format swapchain images are created with when
	// the swapchain asks for FormatUndefined.
	SurfaceFormat gputypes.TextureFormat

	// Present receives the view of every presented swapchain image. Nil
	// makes presentation a no-op, which suits headless use.
	Present func(view hal.TextureView, width, height uint32) error

	// Logger receives driver diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Device is a gpucore.Driver over a hal.Device and its queue.
type Device struct {
	opts Options
	log  *slog.Logger

	dev      hal.Device
	queue    hal.Queue
	instance hal.Instance
	owned    bool

	// timeline is signaled with the serial of every submission.
	timeline hal.Fence
	serial   uint64
	done     uint64
	inflight []inflight

	pushLayout hal.BindGroupLayout

	queues       handle.Arena[uint32]
	pools        handle.Arena[*cmdPool]
	cmdBuffers   handle.Arena[*cmdBuffer]
	semaphores   handle.Arena[*semaphore]
	fences       handle.Arena[*fence]
	buffers      handle.Arena[*buffer]
	images       handle.Arena[*image]
	views        handle.Arena[*imageView]
	samplers     handle.Arena[hal.Sampler]
	shaders      handle.Arena[hal.ShaderModule]
	renderPasses handle.Arena[*gpucore.RenderPassDesc]
	framebuffers handle.Arena[*gpucore.FramebufferDesc]
	layouts      handle.Arena[*pipelineLayout]
	pipelines    handle.Arena[*pipeline]
	setLayouts   handle.Arena[*setLayout]
	descPools    handle.Arena[*descPool]
	descSets     handle.Arena[*descSet]
	swapchains   handle.Arena[*swapchain]

	queueID gpucore.QueueID
}

// inflight holds what a submission needs until its serial completes.
type inflight struct {
	serial  uint64
	cmds    []hal.CommandBuffer
	push    hal.Buffer
	pushBG  hal.BindGroup
	release []func()
}

var _ gpucore.Driver = (*Device)(nil)

// NewFromHAL wraps an open hal device and queue. The caller keeps ownership
// of both; Destroy releases only what the driver created.
func NewFromHAL(dev hal.Device, queue hal.Queue, opts Options) (*Device, error) {
	if dev == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: nil device or queue: %w", gpucore.ErrInvalidHandle)
	}
	if opts.Name == "" {
		opts.Name = "wgpu"
	}
	if opts.SurfaceFormat == gputypes.TextureFormatUndefined {
		opts.SurfaceFormat = gputypes.TextureFormatBGRA8Unorm
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	d := &Device{opts: opts, log: log, dev: dev, queue: queue}

	timeline, err := dev.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("wgpu: create timeline fence: %w", err)
	}
	d.timeline = timeline

	d.pushLayout, err = dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "push_constants",
		Entries: []gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment | gputypes.ShaderStageCompute,
			Buffer: &gputypes.BufferBindingLayout{
				Type:             gputypes.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   pushSlot,
			},
		}},
	})
	if err != nil {
		dev.DestroyFence(timeline)
		return nil, fmt.Errorf("wgpu: create push constant layout: %w", err)
	}
	d.queueID = gpucore.QueueID(d.queues.Insert(0))
	return d, nil
}

// NewFromProvider shares the device of a host window. The provider must
// expose its HAL objects through HalDevice and HalQueue; its surface format
// becomes the swapchain format.
func NewFromProvider(p gpucontext.DeviceProvider, opts Options) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := p.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrNoHAL, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrNoHAL, hp.HalQueue())
	}
	if f := p.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		opts.SurfaceFormat = f
	}
	return NewFromHAL(dev, queue, opts)
}

// Open creates a standalone device on the first suitable Vulkan adapter.
func Open(opts Options) (*Device, error) {
	be, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("wgpu: vulkan hal backend not available: %w", gpucore.ErrUnsupported)
	}
	instance, err := be.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: no adapters: %w", gpucore.ErrUnsupported)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}
	if opts.Name == "" {
		opts.Name = selected.Info.Name
	}
	d, err := NewFromHAL(openDev.Device, openDev.Queue, opts)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	d.log.Info("wgpu: device opened", "adapter", selected.Info.Name)
	return d, nil
}

// Info describes the device.
func (d *Device) Info() gpucore.DeviceInfo {
	return gpucore.DeviceInfo{
		Name:                            d.opts.Name,
		Backend:                         "wgpu",
		MaxComputeWorkgroupSize:         [3]uint32{256, 256, 64},
		MinUniformBufferOffsetAlignment: pushSlot,
		DefaultTimeout:                  time.Second,
	}
}

// QueueFamilies reports the single queue WebGPU exposes.
func (d *Device) QueueFamilies() []gpucore.QueueFamily {
	return []gpucore.QueueFamily{{
		Index: 0,
		Caps:  gpucore.QueueGraphics | gpucore.QueueCompute | gpucore.QueueTransfer | gpucore.QueuePresent,
		Count: 1,
	}}
}

// GetQueue returns the device queue.
func (d *Device) GetQueue(family, index uint32) (gpucore.QueueID, error) {
	if family != 0 || index != 0 {
		return 0, fmt.Errorf("wgpu: queue %d of family %d: %w", index, family, gpucore.ErrInvalidHandle)
	}
	return d.queueID, nil
}

func (d *Device) checkQueue(q gpucore.QueueID) error {
	if !d.queues.Contains(uint64(q)) {
		return invalid("queue", uint64(q))
	}
	return nil
}

// WaitIdle waits for every submission.
func (d *Device) WaitIdle() error {
	ok, err := d.waitSerial(d.serial, idleTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("wgpu: wait idle after %v: %w", idleTimeout, gpucore.ErrTimeout)
	}
	return nil
}

// QueueWaitIdle waits for every submission on q.
func (d *Device) QueueWaitIdle(q gpucore.QueueID) error {
	if err := d.checkQueue(q); err != nil {
		return err
	}
	return d.WaitIdle()
}

// waitSerial waits until the timeline reaches serial and releases the
// resources of completed submissions.
func (d *Device) waitSerial(serial uint64, timeout time.Duration) (bool, error) {
	if serial > d.done {
		ok, err := d.dev.Wait(d.timeline, serial, timeout)
		if err != nil {
			return false, fmt.Errorf("wgpu: wait for serial %d: %w", serial, err)
		}
		if !ok {
			return false, nil
		}
		d.done = serial
	}
	d.reclaim()
	return true, nil
}

func (d *Device) reclaim() {
	keep := d.inflight[:0]
	for _, f := range d.inflight {
		if f.serial > d.done {
			keep = append(keep, f)
			continue
		}
		d.release(f)
		for _, fn := range f.release {
			fn()
		}
	}
	d.inflight = keep
}

// Destroy waits for outstanding work and releases the driver's objects.
// An owned device and instance are destroyed too.
func (d *Device) Destroy() {
	if d.dev == nil {
		return
	}
	if err := d.WaitIdle(); err != nil {
		d.log.Warn("wgpu: destroy with pending work", "err", err)
	}
	d.dev.DestroyBindGroupLayout(d.pushLayout)
	d.dev.DestroyFence(d.timeline)
	if d.owned {
		d.dev.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.dev = nil
}

// HAL returns the underlying device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.dev, d.queue }

func invalid(kind string, id uint64) error {
	return fmt.Errorf("wgpu: %s %#x: %w", kind, id, gpucore.ErrInvalidHandle)
}

package soft

import (
	"fmt"
	"time"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/handle"
)

// Options configures a soft Device.
type Options struct {
	// Name is reported in DeviceInfo. Defaults to "soft".
	Name string

	// Families overrides the default queue families: family 0 with every
	// capability and two queues, family 1 compute only.
	Families []gpucore.QueueFamily

	// DefaultTimeout is reported in DeviceInfo. Defaults to 100ms.
	DefaultTimeout time.Duration
}

// Device is an in-memory gpucore.Driver.
type Device struct {
	opts Options

	queues       handle.Arena[*queueState]
	queueIndex   map[[2]uint32]gpucore.QueueID
	pools        handle.Arena[*poolState]
	cmdBuffers   handle.Arena[*cmdBuffer]
	semaphores   handle.Arena[*semaphore]
	fences       handle.Arena[*fence]
	buffers      handle.Arena[*buffer]
	images       handle.Arena[*image]
	views        handle.Arena[*imageView]
	samplers     handle.Arena[gpucore.SamplerDesc]
	shaders      handle.Arena[gpucore.ShaderModuleDesc]
	renderPasses handle.Arena[*gpucore.RenderPassDesc]
	framebuffers handle.Arena[*gpucore.FramebufferDesc]
	layouts      handle.Arena[*gpucore.PipelineLayoutDesc]
	pipelines    handle.Arena[*pipeline]
	setLayouts   handle.Arena[*gpucore.DescriptorSetLayoutDesc]
	descPools    handle.Arena[*descPool]
	descSets     handle.Arena[*descSet]
	swapchains   handle.Arena[*swapchain]

	events   []Event
	faults   map[string]error
	held     map[gpucore.QueueID]bool
	stalled  bool
	destroyd bool
}

var _ gpucore.Driver = (*Device)(nil)

// New creates a soft device.
func New(opts Options) *Device {
	if opts.Name == "" {
		opts.Name = "soft"
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 100 * time.Millisecond
	}
	if len(opts.Families) == 0 {
		opts.Families = []gpucore.QueueFamily{
			{Index: 0, Caps: gpucore.QueueGraphics | gpucore.QueueCompute | gpucore.QueueTransfer | gpucore.QueuePresent, Count: 2},
			{Index: 1, Caps: gpucore.QueueCompute | gpucore.QueueTransfer, Count: 1},
		}
	}
	return &Device{
		opts:       opts,
		queueIndex: make(map[[2]uint32]gpucore.QueueID),
		faults:     make(map[string]error),
		held:       make(map[gpucore.QueueID]bool),
	}
}

// Info describes the device.
func (d *Device) Info() gpucore.DeviceInfo {
	return gpucore.DeviceInfo{
		Name:                            d.opts.Name,
		Backend:                         "soft",
		MaxComputeWorkgroupSize:         [3]uint32{256, 256, 64},
		MinUniformBufferOffsetAlignment: 256,
		DefaultTimeout:                  d.opts.DefaultTimeout,
	}
}

// QueueFamilies lists the configured queue families.
func (d *Device) QueueFamilies() []gpucore.QueueFamily {
	out := make([]gpucore.QueueFamily, len(d.opts.Families))
	copy(out, d.opts.Families)
	return out
}

// GetQueue returns the queue at index of family. Repeated calls return the
// same ID.
func (d *Device) GetQueue(family, index uint32) (gpucore.QueueID, error) {
	if err := d.fault("GetQueue"); err != nil {
		return 0, err
	}
	var fam *gpucore.QueueFamily
	for i := range d.opts.Families {
		if d.opts.Families[i].Index == family {
			fam = &d.opts.Families[i]
		}
	}
	if fam == nil || index >= fam.Count {
		return 0, fmt.Errorf("soft: queue %d of family %d: %w", index, family, gpucore.ErrInvalidHandle)
	}
	key := [2]uint32{family, index}
	if id, ok := d.queueIndex[key]; ok {
		return id, nil
	}
	id := gpucore.QueueID(d.queues.Insert(&queueState{family: family, caps: fam.Caps}))
	d.queueIndex[key] = id
	return id, nil
}

// WaitIdle drains every queue.
func (d *Device) WaitIdle() error {
	if err := d.fault("WaitIdle"); err != nil {
		return err
	}
	d.queues.Each(func(id uint64, q *queueState) { d.drain(q) })
	d.events = append(d.events, Event{Kind: EventDeviceIdle})
	return nil
}

// Destroy marks the device destroyed.
func (d *Device) Destroy() { d.destroyd = true }

// Destroyed reports whether Destroy was called.
func (d *Device) Destroyed() bool { return d.destroyd }

// FailNext makes the next call of the named Driver method return err
// (ErrInjected when err is nil).
func (d *Device) FailNext(method string, err error) {
	if err == nil {
		err = ErrInjected
	}
	d.faults[method] = err
}

func (d *Device) fault(method string) error {
	if err, ok := d.faults[method]; ok {
		delete(d.faults, method)
		return fmt.Errorf("soft: %s: %w", method, err)
	}
	return nil
}

// Events returns a copy of the event log.
func (d *Device) Events() []Event {
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// ClearEvents empties the event log.
func (d *Device) ClearEvents() { d.events = d.events[:0] }

// LiveObjects returns the number of live objects per kind. Tests use it to
// check that teardown released everything.
func (d *Device) LiveObjects() map[string]int {
	return map[string]int{
		"commandPool":         d.pools.Len(),
		"commandBuffer":       d.cmdBuffers.Len(),
		"semaphore":           d.semaphores.Len(),
		"fence":               d.fences.Len(),
		"buffer":              d.buffers.Len(),
		"image":               d.images.Len(),
		"imageView":           d.views.Len(),
		"sampler":             d.samplers.Len(),
		"shaderModule":        d.shaders.Len(),
		"renderPass":          d.renderPasses.Len(),
		"framebuffer":         d.framebuffers.Len(),
		"pipelineLayout":      d.layouts.Len(),
		"pipeline":            d.pipelines.Len(),
		"descriptorSetLayout": d.setLayouts.Len(),
		"descriptorPool":      d.descPools.Len(),
		"descriptorSet":       d.descSets.Len(),
		"swapchain":           d.swapchains.Len(),
	}
}

// TotalLive returns the sum of LiveObjects.
func (d *Device) TotalLive() int {
	n := 0
	for _, v := range d.LiveObjects() {
		n += v
	}
	return n
}

func invalid(kind string, id uint64) error {
	return fmt.Errorf("soft: %s %#x: %w", kind, id, gpucore.ErrInvalidHandle)
}

func validation(format string, args ...any) error {
	return fmt.Errorf("soft: %s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

func semaphoreMisuse(format string, args ...any) error {
	return fmt.Errorf("soft: %s: %w: %w", fmt.Sprintf(format, args...), gpucore.ErrSemaphore, ErrValidation)
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/handle"
)

const (
	validationLayer    = "VK_LAYER_KHRONOS_validation"
	swapchainExtension = "VK_KHR_swapchain"

	// idleTimeout bounds the one-shot uploads.
	idleTimeout = 10 * time.Second
)

// Surface is a presentation surface owned by the host window.
type Surface interface {
	// InstanceProcAddr returns vkGetInstanceProcAddr of the host's loader,
	// or nil to use the system loader.
	InstanceProcAddr() unsafe.Pointer

	// InstanceExtensions lists the instance extensions the surface needs.
	InstanceExtensions() []string

	// CreateSurface creates the surface on instance.
	CreateSurface(instance vk.Instance) (vk.Surface, error)
}

// Options configures a Device.
type Options struct {
	// AppName is reported to the driver in VkApplicationInfo.
	AppName string

	// Surface enables presentation. Without it the device is headless and
	// swapchain calls fail with ErrUnsupported.
	Surface Surface

	// Validation enables the Khronos validation layer.
	Validation bool

	// Logger receives driver diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Device is a gpucore.Driver over a Vulkan logical device.
type Device struct {
	opts Options
	log  *slog.Logger

	instance vk.Instance
	surface  vk.Surface
	gpu      vk.PhysicalDevice
	dev      vk.Device
	memProps vk.PhysicalDeviceMemoryProperties
	info     gpucore.DeviceInfo
	families []gpucore.QueueFamily

	// uploadPool records one-shot staging copies on uploadQueue.
	uploadPool  vk.CommandPool
	uploadQueue vk.Queue

	queues       handle.Arena[*queue]
	pools        handle.Arena[*cmdPool]
	cmdBuffers   handle.Arena[*cmdBuffer]
	semaphores   handle.Arena[vk.Semaphore]
	fences       handle.Arena[vk.Fence]
	buffers      handle.Arena[*buffer]
	images       handle.Arena[*image]
	views        handle.Arena[vk.ImageView]
	samplers     handle.Arena[vk.Sampler]
	shaders      handle.Arena[vk.ShaderModule]
	renderPasses handle.Arena[*renderPass]
	framebuffers handle.Arena[vk.Framebuffer]
	layouts      handle.Arena[*pipelineLayout]
	pipelines    handle.Arena[*pipeline]
	setLayouts   handle.Arena[vk.DescriptorSetLayout]
	descPools    handle.Arena[*descPool]
	descSets     handle.Arena[*descSet]
	swapchains   handle.Arena[*swapchain]

	// queueIDs maps family<<32|index to the queue handle.
	queueIDs map[uint64]gpucore.QueueID
}

type queue struct {
	vk     vk.Queue
	family uint32
}

var _ gpucore.Driver = (*Device)(nil)

var (
	loaderOnce sync.Once
	loaderErr  error
)

// loadVulkan initializes the loader once per process.
func loadVulkan(procAddr unsafe.Pointer) error {
	loaderOnce.Do(func() {
		if procAddr != nil {
			vk.SetGetInstanceProcAddr(procAddr)
		} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loaderErr = fmt.Errorf("vulkan: load loader: %w: %w", err, gpucore.ErrUnsupported)
			return
		}
		if err := vk.Init(); err != nil {
			loaderErr = fmt.Errorf("vulkan: init: %w: %w", err, gpucore.ErrUnsupported)
		}
	})
	return loaderErr
}

// Open creates an instance and a logical device on the best adapter.
func Open(opts Options) (*Device, error) {
	if opts.AppName == "" {
		opts.AppName = "deferred"
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	var procAddr unsafe.Pointer
	if opts.Surface != nil {
		procAddr = opts.Surface.InstanceProcAddr()
	}
	if err := loadVulkan(procAddr); err != nil {
		return nil, err
	}

	d := &Device{opts: opts, log: log, queueIDs: make(map[uint64]gpucore.QueueID)}
	if err := d.createInstance(); err != nil {
		return nil, err
	}
	if opts.Surface != nil {
		s, err := opts.Surface.CreateSurface(d.instance)
		if err != nil {
			d.teardown()
			return nil, fmt.Errorf("vulkan: create surface: %w", err)
		}
		d.surface = s
	}
	if err := d.selectPhysicalDevice(); err != nil {
		d.teardown()
		return nil, err
	}
	if err := d.createDevice(); err != nil {
		d.teardown()
		return nil, err
	}
	log.Info("vulkan: device opened", "adapter", d.info.Name, "families", len(d.families),
		"present", d.surface != vk.NullSurface)
	return d, nil
}

func (d *Device) createInstance() error {
	app := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   cstr(d.opts.AppName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        cstr("gogpu/deferred"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}
	var exts, layers []string
	if d.opts.Surface != nil {
		exts = cstrs(d.opts.Surface.InstanceExtensions())
	}
	if d.opts.Validation {
		layers = []string{cstr(validationLayer)}
	}
	info := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &app,
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: exts,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}
	var instance vk.Instance
	if err := check(vk.CreateInstance(&info, nil, &instance), "create instance"); err != nil {
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return fmt.Errorf("vulkan: init instance: %w", err)
	}
	d.instance = instance
	return nil
}

// selectPhysicalDevice prefers a discrete GPU with a graphics family that
// can present to the surface, if there is one.
func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(d.instance, &count, nil), "enumerate devices"); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("vulkan: no physical devices: %w", gpucore.ErrUnsupported)
	}
	gpus := make([]vk.PhysicalDevice, count)
	if err := check(vk.EnumeratePhysicalDevices(d.instance, &count, gpus), "enumerate devices"); err != nil {
		return err
	}

	best, bestScore := -1, -1
	var bestFamilies []gpucore.QueueFamily
	for i, gpu := range gpus {
		families := d.queryFamilies(gpu)
		usable := false
		for _, f := range families {
			if f.Caps.Has(gpucore.QueueGraphics) && (d.surface == vk.NullSurface || f.Caps.Has(gpucore.QueuePresent)) {
				usable = true
				break
			}
		}
		if !usable {
			continue
		}
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()
		score := 0
		switch props.DeviceType {
		case vk.PhysicalDeviceTypeDiscreteGpu:
			score = 3
		case vk.PhysicalDeviceTypeIntegratedGpu:
			score = 2
		case vk.PhysicalDeviceTypeVirtualGpu:
			score = 1
		}
		if score > bestScore {
			best, bestScore, bestFamilies = i, score, families
		}
	}
	if best < 0 {
		return fmt.Errorf("vulkan: no device with a graphics queue: %w", gpucore.ErrUnsupported)
	}
	d.gpu = gpus[best]
	d.families = bestFamilies

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.gpu, &props)
	props.Deref()
	props.Limits.Deref()
	d.info = gpucore.DeviceInfo{
		Name:                            vk.ToString(props.DeviceName[:]),
		Backend:                         "vulkan",
		MaxComputeWorkgroupSize:         props.Limits.MaxComputeWorkGroupSize,
		MinUniformBufferOffsetAlignment: uint64(props.Limits.MinUniformBufferOffsetAlignment),
		DefaultTimeout:                  time.Second,
	}
	vk.GetPhysicalDeviceMemoryProperties(d.gpu, &d.memProps)
	d.memProps.Deref()
	return nil
}

func (d *Device) queryFamilies(gpu vk.PhysicalDevice) []gpucore.QueueFamily {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)

	families := make([]gpucore.QueueFamily, 0, count)
	for i := range props {
		props[i].Deref()
		caps := queueCaps(props[i].QueueFlags)
		if d.surface != vk.NullSurface {
			var supported vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(gpu, uint32(i), d.surface, &supported)
			if supported == vk.True {
				caps |= gpucore.QueuePresent
			}
		}
		// One queue per family is created.
		families = append(families, gpucore.QueueFamily{Index: uint32(i), Caps: caps, Count: 1})
	}
	return families
}

func (d *Device) createDevice() error {
	priority := []float32{1}
	infos := make([]vk.DeviceQueueCreateInfo, len(d.families))
	for i, f := range d.families {
		infos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: f.Index,
			QueueCount:       1,
			PQueuePriorities: priority,
		}
	}
	var exts []string
	if d.surface != vk.NullSurface {
		exts = []string{cstr(swapchainExtension)}
	}
	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(infos)),
		PQueueCreateInfos:       infos,
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: exts,
	}
	var dev vk.Device
	if err := check(vk.CreateDevice(d.gpu, &info, nil, &dev), "create device"); err != nil {
		return err
	}
	d.dev = dev

	graphics := -1
	for _, f := range d.families {
		var q vk.Queue
		vk.GetDeviceQueue(dev, f.Index, 0, &q)
		d.queueIDs[uint64(f.Index)<<32] = gpucore.QueueID(d.queues.Insert(&queue{vk: q, family: f.Index}))
		if graphics < 0 && f.Caps.Has(gpucore.QueueGraphics) {
			graphics = int(f.Index)
			d.uploadQueue = q
		}
	}
	pool := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: uint32(graphics),
	}
	return check(vk.CreateCommandPool(dev, &pool, nil, &d.uploadPool), "create upload pool")
}

// Info describes the device.
func (d *Device) Info() gpucore.DeviceInfo { return d.info }

// QueueFamilies lists the families, one queue each.
func (d *Device) QueueFamilies() []gpucore.QueueFamily {
	return append([]gpucore.QueueFamily(nil), d.families...)
}

// GetQueue returns queue index of family.
func (d *Device) GetQueue(family, index uint32) (gpucore.QueueID, error) {
	id, ok := d.queueIDs[uint64(family)<<32|uint64(index)]
	if !ok {
		return 0, fmt.Errorf("vulkan: queue %d of family %d: %w", index, family, gpucore.ErrInvalidHandle)
	}
	return id, nil
}

func (d *Device) lookupQueue(q gpucore.QueueID) (*queue, error) {
	qu, ok := d.queues.Get(uint64(q))
	if !ok {
		return nil, invalid("queue", uint64(q))
	}
	return qu, nil
}

// WaitIdle waits for the whole device.
func (d *Device) WaitIdle() error {
	return check(vk.DeviceWaitIdle(d.dev), "device wait idle")
}

// QueueWaitIdle waits for q.
func (d *Device) QueueWaitIdle(q gpucore.QueueID) error {
	qu, err := d.lookupQueue(q)
	if err != nil {
		return err
	}
	return check(vk.QueueWaitIdle(qu.vk), "queue wait idle")
}

// Destroy waits for the device and releases the device, surface and
// instance.
func (d *Device) Destroy() {
	if d.dev == nil {
		return
	}
	if err := d.WaitIdle(); err != nil {
		d.log.Warn("vulkan: destroy with pending work", "err", err)
	}
	d.teardown()
}

func (d *Device) teardown() {
	if d.dev != nil {
		if d.uploadPool != vk.CommandPool(vk.NullHandle) {
			vk.DestroyCommandPool(d.dev, d.uploadPool, nil)
		}
		vk.DestroyDevice(d.dev, nil)
		d.dev = nil
	}
	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

// check maps a VkResult to a gpucore error.
func check(res vk.Result, what string) error {
	switch res {
	case vk.Success:
		return nil
	case vk.Timeout, vk.NotReady:
		return fmt.Errorf("vulkan: %s: %w", what, gpucore.ErrTimeout)
	case vk.ErrorOutOfDate:
		return fmt.Errorf("vulkan: %s: %w", what, gpucore.ErrOutOfDate)
	case vk.ErrorDeviceLost:
		return fmt.Errorf("vulkan: %s: %w", what, gpucore.ErrDeviceLost)
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory:
		return fmt.Errorf("vulkan: %s: %w", what, gpucore.ErrAllocation)
	}
	return fmt.Errorf("vulkan: %s: %w", what, vk.Error(res))
}

func invalid(kind string, id uint64) error {
	return fmt.Errorf("vulkan: %s %#x: %w", kind, id, gpucore.ErrInvalidHandle)
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/deferred/gpucore"
)

// newNoopDevice wraps a noop hal device.
func newNoopDevice(t *testing.T, opts Options) *Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	d, err := NewFromHAL(openDev.Device, openDev.Queue, opts)
	if err != nil {
		t.Fatalf("NewFromHAL: %v", err)
	}
	t.Cleanup(func() {
		d.Destroy()
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return d
}

const pushShader = `
struct Push { tint: vec4<f32> }
var<push_constant> push: Push;
@vertex fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
	return vec4<f32>(f32(i), 0.0, 0.0, 1.0);
}
@fragment fn fs_main() -> @location(0) vec4<f32> { return push.tint; }
`

// scene is a one-subpass pass drawing with push constants into a 4x4 target.
type scene struct {
	d      *Device
	queue  gpucore.QueueID
	pool   gpucore.CommandPoolID
	rp     gpucore.RenderPassID
	fb     gpucore.FramebufferID
	gfx    gpucore.PipelineID
	layout gpucore.PipelineLayoutID
	set    gpucore.DescriptorSetID
	target gpucore.ImageID
}

func newScene(t *testing.T, d *Device) *scene {
	t.Helper()
	s := &scene{d: d}
	var err error
	if s.queue, err = d.GetQueue(0, 0); err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	if s.pool, err = d.CreateCommandPool(&gpucore.CommandPoolDesc{Family: 0, Resettable: true}); err != nil {
		t.Fatalf("CreateCommandPool: %v", err)
	}
	s.target, err = d.CreateImage(&gpucore.ImageDesc{
		Label:  "target",
		Extent: gpucore.Extent2D{Width: 4, Height: 4},
		Format: gpucore.FormatRGBA8Unorm,
		Usage:  gpucore.ImageUsageColorAttachment | gpucore.ImageUsageSampled,
	})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	view, err := d.CreateImageView(&gpucore.ImageViewDesc{Image: s.target, Format: gpucore.FormatRGBA8Unorm, Aspect: gpucore.AspectColor})
	if err != nil {
		t.Fatalf("CreateImageView: %v", err)
	}
	s.rp, err = d.CreateRenderPass(&gpucore.RenderPassDesc{
		Label:       "scene",
		Attachments: []gpucore.AttachmentDesc{{Format: gpucore.FormatRGBA8Unorm, LoadOp: gpucore.LoadOpClear, StoreOp: gpucore.StoreOpStore}},
		Subpasses: []gpucore.SubpassDesc{{
			Color: []gpucore.AttachmentRef{{Attachment: 0, Layout: gpucore.LayoutColorAttachment}},
		}},
	})
	if err != nil {
		t.Fatalf("CreateRenderPass: %v", err)
	}
	s.fb, err = d.CreateFramebuffer(&gpucore.FramebufferDesc{
		RenderPass:  s.rp,
		Attachments: []gpucore.ImageViewID{view},
		Extent:      gpucore.Extent2D{Width: 4, Height: 4},
		Layers:      1,
	})
	if err != nil {
		t.Fatalf("CreateFramebuffer: %v", err)
	}
	sl, err := d.CreateDescriptorSetLayout(&gpucore.DescriptorSetLayoutDesc{
		Bindings: []gpucore.DescriptorBinding{{Binding: 0, Type: gpucore.DescriptorUniformBuffer, Count: 1, Stages: gpucore.ShaderGraphics}},
	})
	if err != nil {
		t.Fatalf("CreateDescriptorSetLayout: %v", err)
	}
	s.layout, err = d.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
		SetLayouts:    []gpucore.DescriptorSetLayoutID{sl},
		PushConstants: []gpucore.PushConstantRange{{Stages: gpucore.ShaderFragment, Size: 16}},
	})
	if err != nil {
		t.Fatalf("CreatePipelineLayout: %v", err)
	}
	mod, err := d.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "push", Stage: gpucore.ShaderGraphics, WGSL: pushShader})
	if err != nil {
		t.Fatalf("CreateShaderModule: %v", err)
	}
	s.gfx, err = d.CreateGraphicsPipeline(&gpucore.GraphicsPipelineDesc{
		Layout:     s.layout,
		RenderPass: s.rp,
		Vertex:     gpucore.ShaderStageDesc{Module: mod, EntryPoint: "vs_main"},
		Fragment:   gpucore.ShaderStageDesc{Module: mod, EntryPoint: "fs_main"},
		Targets:    []gpucore.ColorTarget{{Format: gpucore.FormatRGBA8Unorm}},
	})
	if err != nil {
		t.Fatalf("CreateGraphicsPipeline: %v", err)
	}
	pool, err := d.CreateDescriptorPool(&gpucore.DescriptorPoolDesc{MaxSets: 1})
	if err != nil {
		t.Fatalf("CreateDescriptorPool: %v", err)
	}
	sets, err := d.AllocateDescriptorSets(pool, sl, 1)
	if err != nil {
		t.Fatalf("AllocateDescriptorSets: %v", err)
	}
	s.set = sets[0]
	ubo, err := d.CreateBuffer(&gpucore.BufferDesc{Size: 64, Usage: gpucore.BufferUsageUniform, HostVisible: true})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	err = d.UpdateDescriptorSets([]gpucore.DescriptorWrite{{
		Set: s.set, Binding: 0, Type: gpucore.DescriptorUniformBuffer, Buffer: ubo, Range: 64,
	}})
	if err != nil {
		t.Fatalf("UpdateDescriptorSets: %v", err)
	}
	return s
}

func (s *scene) record(t *testing.T, usage gpucore.CommandBufferUsage) gpucore.CommandBufferID {
	t.Helper()
	cb, err := s.d.AllocateCommandBuffer(s.pool)
	if err != nil {
		t.Fatalf("AllocateCommandBuffer: %v", err)
	}
	r, err := s.d.BeginCommandBuffer(cb, usage)
	if err != nil {
		t.Fatalf("BeginCommandBuffer: %v", err)
	}
	r.BeginRenderPass(&gpucore.RenderPassBegin{
		RenderPass:  s.rp,
		Framebuffer: s.fb,
		Clear:       []gpucore.ClearValue{gpucore.ClearColor(0, 0, 0, 1)},
	})
	r.BindPipeline(gpucore.BindGraphics, s.gfx)
	r.BindDescriptorSets(gpucore.BindGraphics, s.layout, 0, []gpucore.DescriptorSetID{s.set})
	r.PushConstants(s.layout, gpucore.ShaderFragment, 0, make([]byte, 16))
	r.Draw(3, 1, 0, 0)
	r.PushConstants(s.layout, gpucore.ShaderFragment, 0, make([]byte, 16))
	r.Draw(3, 1, 0, 0)
	r.EndRenderPass()
	if err := s.d.EndCommandBuffer(cb); err != nil {
		t.Fatalf("EndCommandBuffer: %v", err)
	}
	return cb
}

func TestNewFromHALRejectsNil(t *testing.T) {
	if _, err := NewFromHAL(nil, nil, Options{}); !errors.Is(err, gpucore.ErrInvalidHandle) {
		t.Errorf("err = %v, want ErrInvalidHandle", err)
	}
}

func TestDeviceInfoAndQueues(t *testing.T) {
	d := newNoopDevice(t, Options{Name: "noop"})
	if info := d.Info(); info.Name != "noop" || info.Backend != "wgpu" {
		t.Errorf("Info = %+v", info)
	}
	fams := d.QueueFamilies()
	if len(fams) != 1 || !fams[0].Caps.Has(gpucore.QueueGraphics|gpucore.QueueCompute|gpucore.QueuePresent) {
		t.Fatalf("QueueFamilies = %+v", fams)
	}
	if _, err := d.GetQueue(1, 0); !errors.Is(err, gpucore.ErrInvalidHandle) {
		t.Errorf("GetQueue(1, 0): err = %v", err)
	}
	if _, err := d.CreateCommandPool(&gpucore.CommandPoolDesc{Family: 2}); !errors.Is(err, gpucore.ErrInvalidHandle) {
		t.Errorf("pool on missing family: err = %v", err)
	}
}

func TestWriteBufferBounds(t *testing.T) {
	d := newNoopDevice(t, Options{})
	buf, err := d.CreateBuffer(&gpucore.BufferDesc{Size: 8, Usage: gpucore.BufferUsageUniform, HostVisible: true})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	if err := d.WriteBuffer(buf, 4, make([]byte, 4)); err != nil {
		t.Errorf("in-bounds write: %v", err)
	}
	if err := d.WriteBuffer(buf, 4, make([]byte, 8)); !errors.Is(err, gpucore.ErrAllocation) {
		t.Errorf("overflowing write: err = %v, want ErrAllocation", err)
	}
	d.DestroyBuffer(buf)
	if err := d.WriteBuffer(buf, 0, []byte{1}); !errors.Is(err, gpucore.ErrInvalidHandle) {
		t.Errorf("write to destroyed buffer: err = %v", err)
	}
}

func TestWriteImageSize(t *testing.T) {
	d := newNoopDevice(t, Options{})
	img, err := d.CreateImage(&gpucore.ImageDesc{
		Extent: gpucore.Extent2D{Width: 2, Height: 2},
		Layers: 2,
		Format: gpucore.FormatRGBA8Unorm,
		Usage:  gpucore.ImageUsageSampled | gpucore.ImageUsageTransferDst,
	})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	if err := d.WriteImage(img, 1, make([]byte, 16)); err != nil {
		t.Errorf("WriteImage: %v", err)
	}
	if err := d.WriteImage(img, 0, make([]byte, 15)); !errors.Is(err, gpucore.ErrAllocation) {
		t.Errorf("short WriteImage: err = %v", err)
	}
	if _, err := d.CreateImage(&gpucore.ImageDesc{Extent: gpucore.Extent2D{Width: 1, Height: 1}}); !errors.Is(err, gpucore.ErrUnsupported) {
		t.Errorf("undefined format: err = %v", err)
	}
}

func TestPipelineLayoutPushConstants(t *testing.T) {
	d := newNoopDevice(t, Options{})
	sl, err := d.CreateDescriptorSetLayout(&gpucore.DescriptorSetLayoutDesc{
		Bindings: []gpucore.DescriptorBinding{{Binding: 0, Type: gpucore.DescriptorStorageBuffer, Count: 1, Stages: gpucore.ShaderCompute}},
	})
	if err != nil {
		t.Fatalf("CreateDescriptorSetLayout: %v", err)
	}
	tests := []struct {
		name    string
		sets    []gpucore.DescriptorSetLayoutID
		push    []gpucore.PushConstantRange
		wantErr bool
	}{
		{"no push", []gpucore.DescriptorSetLayoutID{sl, sl}, nil, false},
		{"push with one set", []gpucore.DescriptorSetLayoutID{sl}, []gpucore.PushConstantRange{{Stages: gpucore.ShaderCompute, Size: 64}}, false},
		{"push without sets", nil, []gpucore.PushConstantRange{{Stages: gpucore.ShaderCompute, Size: 64}}, true},
		{"push too large", []gpucore.DescriptorSetLayoutID{sl}, []gpucore.PushConstantRange{{Stages: gpucore.ShaderCompute, Offset: 128, Size: 256}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{SetLayouts: tt.sets, PushConstants: tt.push})
			if tt.wantErr && !errors.Is(err, gpucore.ErrUnsupported) {
				t.Errorf("err = %v, want ErrUnsupported", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDescriptorSetBindGroup(t *testing.T) {
	d := newNoopDevice(t, Options{})
	sl, _ := d.CreateDescriptorSetLayout(&gpucore.DescriptorSetLayoutDesc{
		Bindings: []gpucore.DescriptorBinding{
			{Binding: 0, Type: gpucore.DescriptorUniformBuffer, Count: 1, Stages: gpucore.ShaderFragment},
			{Binding: 1, Type: gpucore.DescriptorSampler, Count: 1, Stages: gpucore.ShaderFragment},
		},
	})
	pool, _ := d.CreateDescriptorPool(&gpucore.DescriptorPoolDesc{MaxSets: 1})
	sets, err := d.AllocateDescriptorSets(pool, sl, 1)
	if err != nil {
		t.Fatalf("AllocateDescriptorSets: %v", err)
	}
	if _, err := d.AllocateDescriptorSets(pool, sl, 1); !errors.Is(err, gpucore.ErrAllocation) {
		t.Errorf("allocation past MaxSets: err = %v", err)
	}
	buf, _ := d.CreateBuffer(&gpucore.BufferDesc{Size: 16, Usage: gpucore.BufferUsageUniform})
	smp, _ := d.CreateSampler(&gpucore.SamplerDesc{MagFilter: gpucore.FilterLinear, MinFilter: gpucore.FilterLinear})

	_ = d.UpdateDescriptorSets([]gpucore.DescriptorWrite{{Set: sets[0], Binding: 0, Type: gpucore.DescriptorUniformBuffer, Buffer: buf, Range: 16}})
	if _, err := d.bindGroup(sets[0]); !errors.Is(err, gpucore.ErrInvalidHandle) {
		t.Fatalf("bind group with unwritten binding: err = %v", err)
	}
	_ = d.UpdateDescriptorSets([]gpucore.DescriptorWrite{{Set: sets[0], Binding: 1, Type: gpucore.DescriptorSampler, Sampler: smp}})
	first, err := d.bindGroup(sets[0])
	if err != nil {
		t.Fatalf("bindGroup: %v", err)
	}
	again, _ := d.bindGroup(sets[0])
	if first != again {
		t.Error("clean set rebuilt its bind group")
	}
	_ = d.UpdateDescriptorSets([]gpucore.DescriptorWrite{{Set: sets[0], Binding: 1, Type: gpucore.DescriptorSampler, Sampler: smp}})
	if _, err := d.bindGroup(sets[0]); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if len(d.inflight) != 1 {
		t.Errorf("replaced bind group not retired: %d pending releases", len(d.inflight))
	}
	d.DestroyDescriptorPool(pool)
	if _, err := d.bindGroup(sets[0]); !errors.Is(err, gpucore.ErrInvalidHandle) {
		t.Errorf("set outlived its pool: err = %v", err)
	}
}

func TestRecordingValidation(t *testing.T) {
	d := newNoopDevice(t, Options{})
	s := newScene(t, d)
	cb, _ := d.AllocateCommandBuffer(s.pool)
	r, err := d.BeginCommandBuffer(cb, gpucore.UsageOneTimeSubmit)
	if err != nil {
		t.Fatalf("BeginCommandBuffer: %v", err)
	}
	if _, err := d.BeginCommandBuffer(cb, gpucore.UsageOneTimeSubmit); !errors.Is(err, gpucore.ErrNotRecording) {
		t.Errorf("double begin: err = %v", err)
	}
	r.BeginRenderPass(&gpucore.RenderPassBegin{RenderPass: s.rp, Framebuffer: s.fb})
	if err := d.EndCommandBuffer(cb); !errors.Is(err, gpucore.ErrNotRecording) {
		t.Errorf("end inside render pass: err = %v", err)
	}
	if err := d.Submit(s.queue, []gpucore.SubmitBatch{{CommandBuffers: []gpucore.CommandBufferID{cb}}}, gpucore.InvalidID); !errors.Is(err, gpucore.ErrNotRecording) {
		t.Errorf("submit of unfinished buffer: err = %v", err)
	}
}

func TestSubmitSemaphoresAndFence(t *testing.T) {
	d := newNoopDevice(t, Options{})
	s := newScene(t, d)
	cb := s.record(t, gpucore.UsageOneTimeSubmit)
	acquired, _ := d.CreateSemaphore("acquired")
	rendered, _ := d.CreateSemaphore("rendered")
	fence, _ := d.CreateFence(false)

	batch := []gpucore.SubmitBatch{{
		Waits:          []gpucore.Wait{{Semaphore: acquired, Stage: gpucore.StageColorAttachmentOutput}},
		CommandBuffers: []gpucore.CommandBufferID{cb},
		Signals:        []gpucore.SemaphoreID{rendered},
	}}
	if err := d.Submit(s.queue, batch, fence); !errors.Is(err, gpucore.ErrSemaphore) {
		t.Fatalf("wait on unsignaled semaphore: err = %v", err)
	}
	if ok, _ := d.WaitFence(fence, 0); ok {
		t.Fatal("rejected submission signaled the fence")
	}

	d.semaphores.Set(uint64(acquired), &semaphore{label: "acquired", signaled: true})
	if err := d.Submit(s.queue, batch, fence); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ok, err := d.WaitFence(fence, d.Info().DefaultTimeout); err != nil || !ok {
		t.Fatalf("WaitFence = %v, %v", ok, err)
	}
	if sem, _ := d.semaphores.Get(uint64(rendered)); !sem.signaled {
		t.Error("signal semaphore not signaled")
	}
	if sem, _ := d.semaphores.Get(uint64(acquired)); sem.signaled {
		t.Error("wait semaphore not consumed")
	}
	if err := d.Submit(s.queue, nil, fence); !errors.Is(err, gpucore.ErrInvalidHandle) {
		t.Errorf("submit with signaled fence: err = %v", err)
	}
	if err := d.Submit(s.queue, batch[:0], gpucore.InvalidID); err != nil {
		t.Errorf("empty submit: %v", err)
	}

	// One-time buffers must be re-recorded.
	_ = d.ResetFence(fence)
	again := []gpucore.SubmitBatch{{CommandBuffers: []gpucore.CommandBufferID{cb}}}
	if err := d.Submit(s.queue, again, fence); !errors.Is(err, gpucore.ErrNotRecording) {
		t.Errorf("resubmit of one-time buffer: err = %v", err)
	}
	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	if len(d.inflight) != 0 {
		t.Errorf("%d submissions not reclaimed after WaitIdle", len(d.inflight))
	}
}

func TestSimultaneousBufferResubmits(t *testing.T) {
	d := newNoopDevice(t, Options{})
	s := newScene(t, d)
	cb := s.record(t, gpucore.UsageSimultaneous)
	batch := []gpucore.SubmitBatch{{CommandBuffers: []gpucore.CommandBufferID{cb}}}
	for i := range 3 {
		if err := d.Submit(s.queue, batch, gpucore.InvalidID); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if d.serial != 3 {
		t.Errorf("serial = %d, want 3", d.serial)
	}
	if err := d.QueueWaitIdle(s.queue); err != nil {
		t.Fatalf("QueueWaitIdle: %v", err)
	}
}

func TestSwapchainPresent(t *testing.T) {
	type presented struct{ w, h uint32 }
	var got []presented
	d := newNoopDevice(t, Options{
		SurfaceFormat: gputypes.TextureFormatBGRA8UnormSrgb,
		Present: func(view hal.TextureView, w, h uint32) error {
			if view == nil {
				t.Error("nil view presented")
			}
			got = append(got, presented{w, h})
			return nil
		},
	})
	q, _ := d.GetQueue(0, 0)
	sc, err := d.CreateSwapchain(&gpucore.SwapchainDesc{Label: "sc", Extent: gpucore.Extent2D{Width: 8, Height: 6}})
	if err != nil {
		t.Fatalf("CreateSwapchain: %v", err)
	}
	images, _ := d.SwapchainImages(sc)
	if len(images) != 2 {
		t.Fatalf("images = %d, want 2", len(images))
	}
	if im, _ := d.images.Get(uint64(images[0])); im.desc.Format != gpucore.FormatBGRA8Srgb {
		t.Errorf("swapchain format = %v, want surface format", im.desc.Format)
	}
	d.DestroyImage(images[0])
	if !d.images.Contains(uint64(images[0])) {
		t.Fatal("DestroyImage released a swapchain image")
	}

	sems := make([]gpucore.SemaphoreID, 3)
	for i := range sems {
		sems[i], _ = d.CreateSemaphore("acquire")
	}
	i0, err := d.AcquireNextImage(sc, 0, sems[0])
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	i1, _ := d.AcquireNextImage(sc, 0, sems[1])
	if i0 == i1 {
		t.Fatal("acquired the same image twice")
	}
	if _, err := d.AcquireNextImage(sc, 0, sems[2]); !errors.Is(err, gpucore.ErrTimeout) {
		t.Errorf("acquire with every image held: err = %v", err)
	}
	if err := d.Present(q, sc, i0, []gpucore.SemaphoreID{sems[0]}); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if err := d.Present(q, sc, i0, nil); !errors.Is(err, gpucore.ErrInvalidHandle) {
		t.Errorf("present of released image: err = %v", err)
	}
	if len(got) != 1 || got[0] != (presented{8, 6}) {
		t.Errorf("presented = %+v", got)
	}

	d.Invalidate(sc)
	if _, err := d.AcquireNextImage(sc, 0, sems[2]); !errors.Is(err, gpucore.ErrOutOfDate) {
		t.Errorf("acquire on invalidated swapchain: err = %v", err)
	}
	next, err := d.CreateSwapchain(&gpucore.SwapchainDesc{Label: "sc2", Extent: gpucore.Extent2D{Width: 4, Height: 4}, Old: sc})
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	d.DestroySwapchain(sc)
	if d.images.Contains(uint64(images[0])) {
		t.Error("swapchain images outlived the swapchain")
	}
	if _, err := d.AcquireNextImage(next, 0, sems[2]); err != nil {
		t.Errorf("acquire on new swapchain: %v", err)
	}
	if _, err := d.CreateSwapchain(&gpucore.SwapchainDesc{Extent: gpucore.Extent2D{Width: 0, Height: 4}}); !errors.Is(err, gpucore.ErrOutOfDate) {
		t.Errorf("empty extent: err = %v", err)
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	d := newNoopDevice(t, Options{})
	d.Destroy()
	d.Destroy()
}

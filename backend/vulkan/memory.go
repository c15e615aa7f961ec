// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/deferred/gpucore"
)

const (
	hostMemory   = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	deviceMemory = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
)

// memoryType finds a type allowed by bits that has every flag of want.
func (d *Device) memoryType(bits uint32, want vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < d.memProps.MemoryTypeCount; i++ {
		t := d.memProps.MemoryTypes[i]
		t.Deref()
		if bits&(1<<i) != 0 && t.PropertyFlags&want == want {
			return i, nil
		}
	}
	return 0, fmt.Errorf("vulkan: no memory type with flags %#x in mask %#x: %w", want, bits, gpucore.ErrAllocation)
}

func (d *Device) allocate(req vk.MemoryRequirements, want vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	req.Deref()
	idx, err := d.memoryType(req.MemoryTypeBits, want)
	if err != nil {
		return vk.NullDeviceMemory, err
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: idx,
	}
	var mem vk.DeviceMemory
	if err := check(vk.AllocateMemory(d.dev, &info, nil, &mem), "allocate memory"); err != nil {
		return vk.NullDeviceMemory, err
	}
	return mem, nil
}

// newBuffer creates a buffer with bound memory.
func (d *Device) newBuffer(size uint64, usage vk.BufferUsageFlags, want vk.MemoryPropertyFlags, families []uint32) (vk.Buffer, vk.DeviceMemory, error) {
	mode, shared := sharing(families)
	info := vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		Size:                  vk.DeviceSize(size),
		Usage:                 usage,
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(shared)),
		PQueueFamilyIndices:   shared,
	}
	var buf vk.Buffer
	if err := check(vk.CreateBuffer(d.dev, &info, nil, &buf), "create buffer"); err != nil {
		return vk.Buffer(vk.NullHandle), vk.NullDeviceMemory, err
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.dev, buf, &req)
	mem, err := d.allocate(req, want)
	if err != nil {
		vk.DestroyBuffer(d.dev, buf, nil)
		return vk.Buffer(vk.NullHandle), vk.NullDeviceMemory, err
	}
	if err := check(vk.BindBufferMemory(d.dev, buf, mem, 0), "bind buffer memory"); err != nil {
		vk.FreeMemory(d.dev, mem, nil)
		vk.DestroyBuffer(d.dev, buf, nil)
		return vk.Buffer(vk.NullHandle), vk.NullDeviceMemory, err
	}
	return buf, mem, nil
}

// writeHost copies data into mapped host memory.
func (d *Device) writeHost(mem vk.DeviceMemory, offset uint64, data []byte) error {
	var ptr unsafe.Pointer
	res := vk.MapMemory(d.dev, mem, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr)
	if err := check(res, "map memory"); err != nil {
		return err
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(d.dev, mem)
	return nil
}

// staged fills a temporary host buffer with data and runs record with it
// in a one-shot command buffer.
func (d *Device) staged(data []byte, record func(cb vk.CommandBuffer, src vk.Buffer)) error {
	src, mem, err := d.newBuffer(uint64(len(data)), vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), hostMemory, nil)
	if err != nil {
		return err
	}
	defer func() {
		vk.DestroyBuffer(d.dev, src, nil)
		vk.FreeMemory(d.dev, mem, nil)
	}()
	if err := d.writeHost(mem, 0, data); err != nil {
		return err
	}
	return d.oneShot(func(cb vk.CommandBuffer) { record(cb, src) })
}

// oneShot records and runs a command buffer on the upload queue and waits
// for it.
func (d *Device) oneShot(record func(cb vk.CommandBuffer)) error {
	alloc := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.uploadPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cbs := make([]vk.CommandBuffer, 1)
	if err := check(vk.AllocateCommandBuffers(d.dev, &alloc, cbs), "allocate upload buffer"); err != nil {
		return err
	}
	defer vk.FreeCommandBuffers(d.dev, d.uploadPool, 1, cbs)

	begin := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check(vk.BeginCommandBuffer(cbs[0], &begin), "begin upload"); err != nil {
		return err
	}
	record(cbs[0])
	if err := check(vk.EndCommandBuffer(cbs[0]), "end upload"); err != nil {
		return err
	}

	var fence vk.Fence
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if err := check(vk.CreateFence(d.dev, &info, nil, &fence), "create upload fence"); err != nil {
		return err
	}
	defer vk.DestroyFence(d.dev, fence, nil)
	submit := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cbs,
	}}
	if err := check(vk.QueueSubmit(d.uploadQueue, 1, submit, fence), "submit upload"); err != nil {
		return err
	}
	return check(vk.WaitForFences(d.dev, 1, []vk.Fence{fence}, vk.True, uint64(idleTimeout.Nanoseconds())), "wait upload")
}

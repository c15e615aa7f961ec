// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/deferred/gpucore"
)

// CreateSemaphore creates a binary semaphore.
func (d *Device) CreateSemaphore(label string) (gpucore.SemaphoreID, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var s vk.Semaphore
	if err := check(vk.CreateSemaphore(d.dev, &info, nil, &s), "create semaphore "+label); err != nil {
		return 0, err
	}
	return gpucore.SemaphoreID(d.semaphores.Insert(s)), nil
}

// DestroySemaphore releases a semaphore.
func (d *Device) DestroySemaphore(id gpucore.SemaphoreID) {
	if s, ok := d.semaphores.Remove(uint64(id)); ok {
		vk.DestroySemaphore(d.dev, s, nil)
	}
}

// CreateFence creates a fence, optionally signaled.
func (d *Device) CreateFence(signaled bool) (gpucore.FenceID, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := check(vk.CreateFence(d.dev, &info, nil, &f), "create fence"); err != nil {
		return 0, err
	}
	return gpucore.FenceID(d.fences.Insert(f)), nil
}

// DestroyFence releases a fence.
func (d *Device) DestroyFence(id gpucore.FenceID) {
	if f, ok := d.fences.Remove(uint64(id)); ok {
		vk.DestroyFence(d.dev, f, nil)
	}
}

// WaitFence waits up to timeout. An expired timeout is not an error.
func (d *Device) WaitFence(id gpucore.FenceID, timeout time.Duration) (bool, error) {
	f, ok := d.fences.Get(uint64(id))
	if !ok {
		return false, invalid("fence", uint64(id))
	}
	res := vk.WaitForFences(d.dev, 1, []vk.Fence{f}, vk.True, uint64(max(timeout, 0).Nanoseconds()))
	if res == vk.Timeout {
		return false, nil
	}
	if err := check(res, "wait fence"); err != nil {
		return false, err
	}
	return true, nil
}

// ResetFence returns a fence to the unsignaled state.
func (d *Device) ResetFence(id gpucore.FenceID) error {
	f, ok := d.fences.Get(uint64(id))
	if !ok {
		return invalid("fence", uint64(id))
	}
	return check(vk.ResetFences(d.dev, 1, []vk.Fence{f}), "reset fence")
}

// Submit translates batches into VkSubmitInfos and submits them in one
// call.
func (d *Device) Submit(q gpucore.QueueID, batches []gpucore.SubmitBatch, fid gpucore.FenceID) error {
	qu, err := d.lookupQueue(q)
	if err != nil {
		return err
	}
	fence := vk.Fence(vk.NullHandle)
	if fid != gpucore.InvalidID {
		f, ok := d.fences.Get(uint64(fid))
		if !ok {
			return invalid("fence", uint64(fid))
		}
		fence = f
	}

	var submitted []*cmdBuffer
	infos := make([]vk.SubmitInfo, len(batches))
	for bi, b := range batches {
		waits := make([]vk.Semaphore, len(b.Waits))
		waitStages := make([]vk.PipelineStageFlags, len(b.Waits))
		for i, w := range b.Waits {
			s, ok := d.semaphores.Get(uint64(w.Semaphore))
			if !ok {
				return invalid("semaphore", uint64(w.Semaphore))
			}
			waits[i], waitStages[i] = s, stageMask(w.Stage)
		}
		cbs := make([]vk.CommandBuffer, len(b.CommandBuffers))
		for i, id := range b.CommandBuffers {
			cb, ok := d.cmdBuffers.Get(uint64(id))
			if !ok {
				return invalid("command buffer", uint64(id))
			}
			if !cb.ready {
				return fmt.Errorf("vulkan: batch %d submits unfinished command buffer %#x: %w",
					bi, uint64(id), gpucore.ErrNotRecording)
			}
			cbs[i] = cb.vk
			submitted = append(submitted, cb)
		}
		signals := make([]vk.Semaphore, len(b.Signals))
		for i, id := range b.Signals {
			s, ok := d.semaphores.Get(uint64(id))
			if !ok {
				return invalid("semaphore", uint64(id))
			}
			signals[i] = s
		}
		infos[bi] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(waits)),
			PWaitSemaphores:      waits,
			PWaitDstStageMask:    waitStages,
			CommandBufferCount:   uint32(len(cbs)),
			PCommandBuffers:      cbs,
			SignalSemaphoreCount: uint32(len(signals)),
			PSignalSemaphores:    signals,
		}
	}
	if err := check(vk.QueueSubmit(qu.vk, uint32(len(infos)), infos, fence), "queue submit"); err != nil {
		return err
	}
	for _, cb := range submitted {
		if cb.usage == gpucore.UsageOneTimeSubmit {
			cb.ready = false
		}
	}
	d.log.Debug("vulkan: submit", "family", qu.family, "batches", len(batches), "buffers", len(submitted))
	return nil
}

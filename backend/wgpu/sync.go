// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/deferred/gpucore"
)

// semaphore tracks a pending signal. The single WebGPU queue executes in
// submission order, so signals only need to be checked, not waited on.
type semaphore struct {
	label    string
	signaled bool
}

// fence completes when the timeline reaches serial.
type fence struct {
	signaled bool
	pending  bool
	serial   uint64
}

// CreateSemaphore creates a semaphore.
func (d *Device) CreateSemaphore(label string) (gpucore.SemaphoreID, error) {
	return gpucore.SemaphoreID(d.semaphores.Insert(&semaphore{label: label})), nil
}

// DestroySemaphore releases a semaphore.
func (d *Device) DestroySemaphore(s gpucore.SemaphoreID) { d.semaphores.Remove(uint64(s)) }

// CreateFence creates a fence.
func (d *Device) CreateFence(signaled bool) (gpucore.FenceID, error) {
	return gpucore.FenceID(d.fences.Insert(&fence{signaled: signaled})), nil
}

// DestroyFence releases a fence.
func (d *Device) DestroyFence(f gpucore.FenceID) { d.fences.Remove(uint64(f)) }

// WaitFence waits up to timeout for the submission that signals f.
func (d *Device) WaitFence(f gpucore.FenceID, timeout time.Duration) (bool, error) {
	fc, ok := d.fences.Get(uint64(f))
	if !ok {
		return false, invalid("fence", uint64(f))
	}
	if fc.signaled {
		return true, nil
	}
	if !fc.pending {
		return false, nil
	}
	ok, err := d.waitSerial(fc.serial, timeout)
	if err != nil {
		return false, err
	}
	if ok {
		fc.signaled, fc.pending = true, false
	}
	return ok, nil
}

// ResetFence returns a fence to the unsignaled state.
func (d *Device) ResetFence(f gpucore.FenceID) error {
	fc, ok := d.fences.Get(uint64(f))
	if !ok {
		return invalid("fence", uint64(f))
	}
	fc.signaled, fc.pending = false, false
	return nil
}

// Submit validates batches, replays their command lists into one hal
// command buffer and submits it against the next timeline serial.
func (d *Device) Submit(q gpucore.QueueID, batches []gpucore.SubmitBatch, f gpucore.FenceID) error {
	if err := d.checkQueue(q); err != nil {
		return err
	}
	var fc *fence
	if f != gpucore.InvalidID {
		var ok bool
		if fc, ok = d.fences.Get(uint64(f)); !ok {
			return invalid("fence", uint64(f))
		}
		if fc.signaled || fc.pending {
			return fmt.Errorf("wgpu: submit with unreset fence %#x: %w", uint64(f), gpucore.ErrInvalidHandle)
		}
	}

	sigState := make(map[gpucore.SemaphoreID]bool)
	signaled := func(id gpucore.SemaphoreID) (*semaphore, bool, error) {
		sem, ok := d.semaphores.Get(uint64(id))
		if !ok {
			return nil, false, invalid("semaphore", uint64(id))
		}
		if v, ok := sigState[id]; ok {
			return sem, v, nil
		}
		return sem, sem.signaled, nil
	}
	var cmds []*cmdBuffer
	pushes := 0
	for bi, b := range batches {
		for _, w := range b.Waits {
			sem, on, err := signaled(w.Semaphore)
			if err != nil {
				return err
			}
			if !on {
				return fmt.Errorf("wgpu: batch %d waits on unsignaled semaphore %q: %w", bi, sem.label, gpucore.ErrSemaphore)
			}
			sigState[w.Semaphore] = false
		}
		for _, id := range b.CommandBuffers {
			cb, ok := d.cmdBuffers.Get(uint64(id))
			if !ok {
				return invalid("command buffer", uint64(id))
			}
			if !cb.ready {
				return fmt.Errorf("wgpu: batch %d submits unfinished command buffer %#x: %w",
					bi, uint64(id), gpucore.ErrNotRecording)
			}
			cmds = append(cmds, cb)
			pushes += countPushes(cb.cmds)
		}
		for _, s := range b.Signals {
			sem, on, err := signaled(s)
			if err != nil {
				return err
			}
			if on {
				return fmt.Errorf("wgpu: batch %d signals already signaled semaphore %q: %w", bi, sem.label, gpucore.ErrSemaphore)
			}
			sigState[s] = true
		}
	}

	fl := inflight{serial: d.serial + 1}
	if len(cmds) > 0 {
		var err error
		if fl, err = d.encode(cmds, pushes, fl); err != nil {
			return err
		}
	}
	if err := d.queue.Submit(fl.cmds, d.timeline, fl.serial); err != nil {
		d.release(fl)
		return fmt.Errorf("wgpu: submit serial %d: %w", fl.serial, err)
	}
	d.serial = fl.serial
	d.inflight = append(d.inflight, fl)

	for id, on := range sigState {
		sem, _ := d.semaphores.Get(uint64(id))
		sem.signaled = on
	}
	for _, cb := range cmds {
		if cb.usage == gpucore.UsageOneTimeSubmit {
			cb.ready = false
		}
	}
	if fc != nil {
		fc.pending, fc.serial = true, fl.serial
	}
	d.log.Debug("wgpu: submit", "serial", fl.serial, "batches", len(batches), "pushes", pushes)
	return nil
}

// encode replays cmds into a hal command buffer. Push constants get one
// dynamic uniform buffer with a slot per push.
func (d *Device) encode(cmds []*cmdBuffer, pushes int, fl inflight) (inflight, error) {
	if pushes > 0 {
		buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
			Label: "push_constants",
			Size:  uint64(pushes * pushSlot),
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fl, fmt.Errorf("wgpu: push constant buffer: %w", err)
		}
		fl.push = buf
		fl.pushBG, err = d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  "push_constants",
			Layout: d.pushLayout,
			Entries: []gputypes.BindGroupEntry{{
				Binding:  0,
				Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: pushSlot},
			}},
		})
		if err != nil {
			d.release(fl)
			return inflight{serial: fl.serial}, fmt.Errorf("wgpu: push constant bind group: %w", err)
		}
	}

	label := fmt.Sprintf("submit_%d", fl.serial)
	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		d.release(fl)
		return inflight{serial: fl.serial}, fmt.Errorf("wgpu: create encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		d.release(fl)
		return inflight{serial: fl.serial}, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	e := newEncoding(d, enc, fl.pushBG)
	for _, cb := range cmds {
		if err := e.replay(cb.cmds); err != nil {
			enc.DiscardEncoding()
			d.release(fl)
			return inflight{serial: fl.serial}, err
		}
	}
	hcb, err := enc.EndEncoding()
	if err != nil {
		d.release(fl)
		return inflight{serial: fl.serial}, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	if fl.push != nil {
		d.queue.WriteBuffer(fl.push, 0, e.pushData)
	}
	fl.cmds = []hal.CommandBuffer{hcb}
	return fl, nil
}

// release frees the objects of a submission that never reached the queue.
func (d *Device) release(fl inflight) {
	for _, cb := range fl.cmds {
		d.dev.FreeCommandBuffer(cb)
	}
	if fl.pushBG != nil {
		d.dev.DestroyBindGroup(fl.pushBG)
	}
	if fl.push != nil {
		d.dev.DestroyBuffer(fl.push)
	}
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements gpucore.Driver on top of the gogpu/wgpu HAL.
//
// WebGPU has no render pass objects, semaphores or push constants, so the
// driver emulates the explicit model:
//
//   - Command buffers record into a command list that is replayed into a
//     hal.CommandEncoder at submission. Each subpass becomes one hal render
//     pass; load and store operations follow the first and last use of each
//     attachment.
//   - The device has a single queue, so binary semaphores are bookkeeping
//     only: they are validated for signal/consume discipline and ordering
//     comes from submission order.
//   - Fences map to serials on one timeline hal.Fence.
//   - Push constants live in a dynamic-offset uniform buffer bound at group
//     1. WGSL modules declaring var<push_constant> are rewritten to read it.
//   - Swapchain images are offscreen textures. Options.Present hands the
//     presented view to the host, which copies it to its surface.
//
// # Opening
//
// NewFromProvider shares the device of a host window through
// gpucontext.DeviceProvider. The registered "wgpu" backend uses the provider
// from backend.Options when there is one and otherwise opens a standalone
// Vulkan device through hal.GetBackend.
package wgpu

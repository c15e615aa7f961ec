// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vulkan implements gpucore.Driver directly on Vulkan through the
// vulkan-go bindings. It requires cgo and a Vulkan loader at run time.
//
// Every gpucore object maps onto its Vulkan counterpart one to one: render
// passes keep their subpasses, semaphores and fences are real, and command
// buffers are recorded as the Recorder is called. One queue is created per
// queue family.
//
// Without Options.Surface the device is headless. Swapchain calls then
// fail with gpucore.ErrUnsupported.
//
// Shader modules must carry SPIR-V.
package vulkan

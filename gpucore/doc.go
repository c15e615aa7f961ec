// Package gpucore provides the backend-neutral vocabulary of the deferred
// renderer.
//
// The package defines the [Driver] interface, an explicit command-buffer API
// in the Vulkan style, together with opaque resource IDs, enums and
// descriptors. The same orchestration code runs on every backend:
//   - backend/soft: in-memory recording driver (tests, headless runs)
//   - backend/wgpu: gogpu/wgpu HAL (Pure Go WebGPU)
//   - backend/vulkan: vulkan-go bindings
//
// # Architecture
//
// The orchestration layers (command pools, queues, swapchain, render pass
// builder, render steps, frame chain) speak only gpucore. Thin drivers
// translate calls to the native API.
//
//	               +------------------+
//	               |     deferred     |
//	               | (frame renderer) |
//	               +--------+---------+
//	                        |
//	               +--------v---------+
//	               |     gpucore      |
//	               | (Driver/Recorder)|
//	               +--------+---------+
//	                        |
//	      +-----------------+-----------------+
//	      |                 |                 |
//	+-----v-----+     +-----v-----+     +-----v-----+
//	|   soft    |     |   wgpu    |     |  vulkan   |
//	| (memory)  |     |(hal.Device|     | (vk.*)    |
//	+-----------+     +-----------+     +-----------+
//
// # Handles
//
// Every resource is named by an opaque uint64 ID. Drivers allocate IDs from a
// generation-checked arena, so an ID that outlives its object is rejected
// with [ErrInvalidHandle] instead of aliasing a newer object. The zero value
// of every ID type is [InvalidID].
//
// # Synchronization
//
// Semaphores order queue operations against each other. Fences signal the
// CPU. A driver never treats an expired wait as success: [Driver.WaitFence]
// reports false and [Driver.AcquireNextImage] returns [ErrTimeout].
package gpucore

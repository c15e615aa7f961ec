// Package backend selects a gpucore.Driver implementation at runtime.
//
// # Backend Registration
//
// Backends register a Factory from their init() functions, so importing a
// backend package for side effects makes it available:
//
//	import (
//		_ "github.com/gogpu/deferred/backend/soft"
//		_ "github.com/gogpu/deferred/backend/vulkan"
//	)
//
// # Backend Selection
//
// Use Default to open the best backend that works on this machine, or Open
// to request one by name:
//
//	drv, name, err := backend.Default(backend.Options{Provider: provider})
//
//	drv, err := backend.Open(backend.BackendSoft, backend.Options{})
//
// # Available Backends
//
//   - "vulkan": native Vulkan via vulkan-go (requires a Vulkan loader and a
//     vulkan.Surface provider)
//   - "wgpu": Pure Go gogpu/wgpu HAL (shares the device of a gpucontext
//     provider when one is given)
//   - "soft": in-memory validating driver (always available)
package backend

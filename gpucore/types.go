package gpucore

// Resource IDs
//
// These opaque IDs represent driver objects. Each driver maintains a
// generation-checked mapping between IDs and native objects.

// QueueID is an opaque handle to a device queue.
type QueueID uint64

// CommandPoolID is an opaque handle to a command pool.
type CommandPoolID uint64

// CommandBufferID is an opaque handle to a primary command buffer.
type CommandBufferID uint64

// SemaphoreID is an opaque handle to a binary semaphore.
type SemaphoreID uint64

// FenceID is an opaque handle to a fence.
type FenceID uint64

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// ImageID is an opaque handle to an image.
type ImageID uint64

// ImageViewID is an opaque handle to an image view.
type ImageViewID uint64

// SamplerID is an opaque handle to a sampler.
type SamplerID uint64

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// RenderPassID is an opaque handle to a compiled render pass.
type RenderPassID uint64

// FramebufferID is an opaque handle to a framebuffer.
type FramebufferID uint64

// DescriptorSetLayoutID is an opaque handle to a descriptor set layout.
type DescriptorSetLayoutID uint64

// DescriptorPoolID is an opaque handle to a descriptor pool.
type DescriptorPoolID uint64

// DescriptorSetID is an opaque handle to a descriptor set.
type DescriptorSetID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// PipelineID is an opaque handle to a graphics or compute pipeline.
type PipelineID uint64

// SwapchainID is an opaque handle to a swapchain.
type SwapchainID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Extent2D is a size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Empty reports whether either dimension is zero.
func (e Extent2D) Empty() bool { return e.Width == 0 || e.Height == 0 }

// Rect2D is a pixel rectangle.
type Rect2D struct {
	X, Y   int32
	Extent Extent2D
}

// Viewport maps normalized device coordinates to framebuffer pixels.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// FullViewport returns a viewport covering e with the [0, 1] depth range.
func FullViewport(e Extent2D) Viewport {
	return Viewport{Width: float32(e.Width), Height: float32(e.Height), MaxDepth: 1}
}

// ClearValue is the value a cleared attachment is filled with. Color is used
// for color attachments, Depth and Stencil for depth-stencil attachments.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// ClearColor returns a color clear value.
func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

// ClearDepth returns a depth-stencil clear value.
func ClearDepth(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil}
}

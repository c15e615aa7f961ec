package gpucore

import "time"

// Driver abstracts over the explicit graphics API implementations.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying an unknown or already destroyed ID is a no-op
//   - Using a destroyed ID returns ErrInvalidHandle
//
// A Driver is used from one goroutine at a time. The orchestration layers
// above it are single-threaded by construction.
type Driver interface {
	// === Device ===

	// Info describes the opened device.
	Info() DeviceInfo

	// QueueFamilies lists the queue families of the device.
	QueueFamilies() []QueueFamily

	// GetQueue returns queue index of the given family.
	GetQueue(family, index uint32) (QueueID, error)

	// WaitIdle blocks until every queue of the device is idle.
	WaitIdle() error

	// Destroy releases the device. Every resource must already be destroyed.
	Destroy()

	// === Command pools and buffers ===

	CreateCommandPool(desc *CommandPoolDesc) (CommandPoolID, error)
	DestroyCommandPool(pool CommandPoolID)

	// ResetCommandPool returns every buffer of the pool to the initial state,
	// optionally releasing backing memory.
	ResetCommandPool(pool CommandPoolID, release bool) error

	AllocateCommandBuffer(pool CommandPoolID) (CommandBufferID, error)
	FreeCommandBuffer(pool CommandPoolID, cb CommandBufferID)

	// BeginCommandBuffer starts recording and returns the command sink.
	BeginCommandBuffer(cb CommandBufferID, usage CommandBufferUsage) (Recorder, error)
	EndCommandBuffer(cb CommandBufferID) error
	ResetCommandBuffer(cb CommandBufferID, release bool) error

	// === Synchronization ===

	CreateSemaphore(label string) (SemaphoreID, error)
	DestroySemaphore(s SemaphoreID)

	CreateFence(signaled bool) (FenceID, error)
	DestroyFence(f FenceID)

	// WaitFence blocks up to timeout. It reports true when the fence is
	// signaled and false when the timeout expired first.
	WaitFence(f FenceID, timeout time.Duration) (bool, error)
	ResetFence(f FenceID) error

	// === Queues ===

	// Submit enqueues batches on q. The fence, if valid, is signaled when
	// every batch has completed.
	Submit(q QueueID, batches []SubmitBatch, fence FenceID) error
	QueueWaitIdle(q QueueID) error

	// === Swapchain ===

	CreateSwapchain(desc *SwapchainDesc) (SwapchainID, error)
	DestroySwapchain(sc SwapchainID)
	SwapchainImages(sc SwapchainID) ([]ImageID, error)

	// AcquireNextImage returns the index of the next presentable image and
	// arranges for signal to be signaled when it is ready. It returns
	// ErrTimeout when no image became available in time and ErrOutOfDate
	// when the swapchain must be recreated.
	AcquireNextImage(sc SwapchainID, timeout time.Duration, signal SemaphoreID) (uint32, error)

	// Present queues image index of sc for presentation after waits.
	Present(q QueueID, sc SwapchainID, index uint32, waits []SemaphoreID) error

	// === Resources ===

	CreateBuffer(desc *BufferDesc) (BufferID, error)
	DestroyBuffer(b BufferID)

	// WriteBuffer copies data into a host-visible buffer at offset.
	WriteBuffer(b BufferID, offset uint64, data []byte) error

	CreateImage(desc *ImageDesc) (ImageID, error)
	DestroyImage(img ImageID)

	// WriteImage uploads tightly packed texels to one layer of an image.
	WriteImage(img ImageID, layer uint32, data []byte) error

	CreateImageView(desc *ImageViewDesc) (ImageViewID, error)
	DestroyImageView(v ImageViewID)

	CreateSampler(desc *SamplerDesc) (SamplerID, error)
	DestroySampler(s SamplerID)

	// === Passes and pipelines ===

	CreateRenderPass(desc *RenderPassDesc) (RenderPassID, error)
	DestroyRenderPass(rp RenderPassID)

	CreateFramebuffer(desc *FramebufferDesc) (FramebufferID, error)
	DestroyFramebuffer(fb FramebufferID)

	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)
	DestroyShaderModule(m ShaderModuleID)

	CreatePipelineLayout(desc *PipelineLayoutDesc) (PipelineLayoutID, error)
	DestroyPipelineLayout(l PipelineLayoutID)

	CreateGraphicsPipeline(desc *GraphicsPipelineDesc) (PipelineID, error)
	CreateComputePipeline(desc *ComputePipelineDesc) (PipelineID, error)
	DestroyPipeline(p PipelineID)

	// === Descriptors ===

	CreateDescriptorSetLayout(desc *DescriptorSetLayoutDesc) (DescriptorSetLayoutID, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayoutID)

	CreateDescriptorPool(desc *DescriptorPoolDesc) (DescriptorPoolID, error)

	// DestroyDescriptorPool frees the pool and every set allocated from it.
	DestroyDescriptorPool(p DescriptorPoolID)

	AllocateDescriptorSets(pool DescriptorPoolID, layout DescriptorSetLayoutID, count int) ([]DescriptorSetID, error)
	UpdateDescriptorSets(writes []DescriptorWrite) error
}

// Recorder receives the commands of one command buffer while it is
// recording. Commands are validated when the buffer is ended or submitted,
// not per call, mirroring explicit APIs.
type Recorder interface {
	BeginRenderPass(begin *RenderPassBegin)
	NextSubpass()
	EndRenderPass()

	BindPipeline(point PipelineBindPoint, p PipelineID)
	BindDescriptorSets(point PipelineBindPoint, layout PipelineLayoutID, first uint32, sets []DescriptorSetID)
	BindVertexBuffers(first uint32, buffers []BufferID, offsets []uint64)
	BindIndexBuffer(b BufferID, offset uint64, format IndexFormat)
	PushConstants(layout PipelineLayoutID, stages ShaderStage, offset uint32, data []byte)

	SetViewport(v Viewport)
	SetScissor(r Rect2D)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)

	PipelineBarrier(barriers []ImageBarrier)
}

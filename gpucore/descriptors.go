package gpucore

import (
	"slices"
	"time"
)

// SharedFamilies returns the distinct families of fams in ascending order,
// or nil when fewer than two remain and the resource is exclusive.
func SharedFamilies(fams []uint32) []uint32 {
	out := slices.Clone(fams)
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) < 2 {
		return nil
	}
	return out
}

// QueueFamily describes one queue family of a device.
type QueueFamily struct {
	// Index is the family index used by GetQueue and CommandPoolDesc.
	Index uint32

	// Caps is the set of operations the family supports.
	Caps QueueCaps

	// Count is the number of queues in the family.
	Count uint32
}

// CommandPoolDesc describes a command pool.
type CommandPoolDesc struct {
	// Label is an optional debug label.
	Label string

	// Family is the queue family whose queues execute the pool's buffers.
	Family uint32

	// Resettable allows individual buffers to be reset.
	Resettable bool

	// Transient hints that buffers are re-recorded frequently.
	Transient bool
}

// Wait is one semaphore wait of a submission batch.
type Wait struct {
	Semaphore SemaphoreID
	Stage     PipelineStage
}

// SubmitBatch is one batch of a queue submission.
type SubmitBatch struct {
	Waits          []Wait
	CommandBuffers []CommandBufferID
	Signals        []SemaphoreID
}

// BufferDesc describes a GPU buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage is a bitmask of BufferUsage flags.
	Usage BufferUsage

	// HostVisible requests memory the CPU can write directly.
	HostVisible bool

	// Families lists the queue families that access the buffer. With two
	// or more distinct families it is shared concurrently; otherwise it
	// belongs to the first family that uses it.
	Families []uint32
}

// ImageDesc describes an image.
type ImageDesc struct {
	// Label is an optional debug label.
	Label string

	Extent Extent2D
	Layers uint32
	Format Format
	Usage  ImageUsage

	// Samples is the sample count. Zero means one.
	Samples uint32

	// Families lists the queue families that access the image, with the
	// same rules as BufferDesc.Families.
	Families []uint32
}

// ImageViewDesc describes a view of an image.
type ImageViewDesc struct {
	// Label is an optional debug label.
	Label string

	Image  ImageID
	Format Format
	Aspect ImageAspect

	// BaseLayer and LayerCount select the array layers. A LayerCount of
	// zero selects one layer.
	BaseLayer  uint32
	LayerCount uint32

	// Array views the layers as an array even when LayerCount is one.
	Array bool
}

// SamplerDesc describes a sampler.
type SamplerDesc struct {
	// Label is an optional debug label.
	Label string

	MagFilter Filter
	MinFilter Filter
	Address   AddressMode
}

// FramebufferDesc describes a framebuffer.
type FramebufferDesc struct {
	// Label is an optional debug label.
	Label string

	RenderPass  RenderPassID
	Attachments []ImageViewID
	Extent      Extent2D
	Layers      uint32
}

// AttachmentDesc describes one attachment of a render pass.
type AttachmentDesc struct {
	Format         Format
	Samples        uint32
	LoadOp         LoadOp
	StoreOp        StoreOp
	StencilLoadOp  LoadOp
	StencilStoreOp StoreOp
	InitialLayout  ImageLayout
	FinalLayout    ImageLayout
}

// AttachmentRef references an attachment from a subpass. Attachment is
// AttachmentUnused for an empty slot.
type AttachmentRef struct {
	Attachment uint32
	Layout     ImageLayout
}

// Unused reports whether the reference is an empty slot.
func (r AttachmentRef) Unused() bool { return r.Attachment == AttachmentUnused }

// SubpassDesc lists the attachment references of one subpass.
//
// Color, Resolve and DepthStencil are index aligned: Resolve entry i
// resolves Color entry i, and DepthStencil is padded with unused references
// up to the number of color references declared before its real entry.
type SubpassDesc struct {
	BindPoint    PipelineBindPoint
	Input        []AttachmentRef
	Color        []AttachmentRef
	Resolve      []AttachmentRef
	DepthStencil []AttachmentRef
	Preserve     []uint32
}

// DepthAttachment returns the first used depth-stencil reference.
func (s *SubpassDesc) DepthAttachment() (AttachmentRef, bool) {
	for _, r := range s.DepthStencil {
		if !r.Unused() {
			return r, true
		}
	}
	return AttachmentRef{Attachment: AttachmentUnused}, false
}

// SubpassDependency orders two subpasses (or a subpass and the outside of
// the render pass).
type SubpassDependency struct {
	SrcSubpass uint32
	DstSubpass uint32
	SrcStage   PipelineStage
	DstStage   PipelineStage
	SrcAccess  Access
	DstAccess  Access
	ByRegion   bool
}

// RenderPassDesc describes a render pass graph.
type RenderPassDesc struct {
	// Label is an optional debug label.
	Label string

	Attachments  []AttachmentDesc
	Subpasses    []SubpassDesc
	Dependencies []SubpassDependency
}

// RenderPassBegin starts a render pass instance on a command buffer.
type RenderPassBegin struct {
	RenderPass  RenderPassID
	Framebuffer FramebufferID
	Area        Rect2D

	// Clear has one entry per attachment; entries for attachments without
	// LoadOpClear are ignored.
	Clear []ClearValue
}

// DescriptorBinding declares one binding of a descriptor set layout.
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage

	// Layered marks image bindings that take array views.
	Layered bool

	// Format is the texel format of a storage image binding. Drivers that
	// declare storage images by format need it.
	Format Format
}

// DescriptorSetLayoutDesc describes a descriptor set layout.
type DescriptorSetLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	Bindings []DescriptorBinding
}

// DescriptorPoolSize is the capacity of a descriptor pool for one type.
type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

// DescriptorPoolDesc describes a descriptor pool.
type DescriptorPoolDesc struct {
	// Label is an optional debug label.
	Label string

	MaxSets uint32
	Sizes   []DescriptorPoolSize
}

// DescriptorWrite updates one binding of a descriptor set. Exactly one of
// Buffer or ImageView (with Sampler for combined image samplers) is set,
// except for DescriptorSampler writes which only carry Sampler.
type DescriptorWrite struct {
	Set          DescriptorSetID
	Binding      uint32
	ArrayElement uint32
	Type         DescriptorType

	Buffer BufferID
	Offset uint64
	Range  uint64

	ImageView ImageViewID
	Sampler   SamplerID
	Layout    ImageLayout
}

// ImageBarrier transitions an image between layouts inside a command buffer.
type ImageBarrier struct {
	Image      ImageID
	Aspect     ImageAspect
	BaseLayer  uint32
	LayerCount uint32
	OldLayout  ImageLayout
	NewLayout  ImageLayout
	SrcStage   PipelineStage
	DstStage   PipelineStage
	SrcAccess  Access
	DstAccess  Access
}

// SwapchainDesc describes a swapchain.
type SwapchainDesc struct {
	// Label is an optional debug label.
	Label string

	Extent      Extent2D
	Format      Format
	ImageCount  uint32
	PresentMode PresentMode

	// Old is the swapchain being replaced, or InvalidID.
	Old SwapchainID
}

// DeviceInfo describes the device a driver opened.
type DeviceInfo struct {
	Name    string
	Backend string

	// MaxComputeWorkgroupSize is the maximum workgroup size per dimension.
	MaxComputeWorkgroupSize [3]uint32

	// MinUniformBufferOffsetAlignment is the required alignment of uniform
	// buffer binding offsets.
	MinUniformBufferOffsetAlignment uint64

	// DefaultTimeout is a wait timeout suited to the backend.
	DefaultTimeout time.Duration
}

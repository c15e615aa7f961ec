package gpucore

// Format specifies the texel format of an image or attachment.
type Format uint32

// Image formats.
const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatRGBA8Srgb
	FormatBGRA8Unorm
	FormatBGRA8Srgb
	FormatR32Float
	FormatRG32Float
	FormatRGBA16Float
	FormatRGBA32Float
	FormatDepth32Float
	FormatDepth24PlusStencil8
)

var formatNames = [...]string{
	FormatUndefined:           "undefined",
	FormatRGBA8Unorm:          "rgba8unorm",
	FormatRGBA8Srgb:           "rgba8srgb",
	FormatBGRA8Unorm:          "bgra8unorm",
	FormatBGRA8Srgb:           "bgra8srgb",
	FormatR32Float:            "r32float",
	FormatRG32Float:           "rg32float",
	FormatRGBA16Float:         "rgba16float",
	FormatRGBA32Float:         "rgba32float",
	FormatDepth32Float:        "depth32float",
	FormatDepth24PlusStencil8: "depth24plus-stencil8",
}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "unknown"
}

// IsDepth reports whether f has a depth aspect.
func (f Format) IsDepth() bool {
	return f == FormatDepth32Float || f == FormatDepth24PlusStencil8
}

// HasStencil reports whether f has a stencil aspect.
func (f Format) HasStencil() bool { return f == FormatDepth24PlusStencil8 }

// TexelSize returns the size of one texel in bytes.
func (f Format) TexelSize() int {
	switch f {
	case FormatRGBA8Unorm, FormatRGBA8Srgb, FormatBGRA8Unorm, FormatBGRA8Srgb,
		FormatR32Float, FormatDepth32Float, FormatDepth24PlusStencil8:
		return 4
	case FormatRG32Float, FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	}
	return 0
}

// ImageUsage is a bitmask specifying how an image will be used.
type ImageUsage uint32

// Image usage flags.
const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
	ImageUsageInputAttachment
)

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
)

// QueueCaps is a bitmask of queue family capabilities.
type QueueCaps uint32

// Queue capabilities.
const (
	QueueGraphics QueueCaps = 1 << iota
	QueueCompute
	QueueTransfer
	QueuePresent
)

// Has reports whether c contains every capability in want.
func (c QueueCaps) Has(want QueueCaps) bool { return c&want == want }

func (c QueueCaps) String() string {
	if c == 0 {
		return "none"
	}
	s := ""
	for _, p := range []struct {
		bit  QueueCaps
		name string
	}{
		{QueueGraphics, "graphics"},
		{QueueCompute, "compute"},
		{QueueTransfer, "transfer"},
		{QueuePresent, "present"},
	} {
		if c&p.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += p.name
		}
	}
	return s
}

// PipelineStage is a bitmask of pipeline stages used by semaphore waits and
// dependencies.
type PipelineStage uint32

// Pipeline stages.
const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageVertexShader
	StageEarlyFragmentTests
	StageFragmentShader
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
	StageAllCommands
)

// Access is a bitmask of memory access types.
type Access uint32

// Memory access types.
const (
	AccessShaderRead Access = 1 << iota
	AccessShaderWrite
	AccessInputAttachmentRead
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessTransferRead
	AccessTransferWrite
	AccessMemoryRead
)

// ImageLayout is the memory layout of an image subresource.
type ImageLayout uint32

// Image layouts.
const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresentSrc
)

// LoadOp selects what happens to an attachment at the start of a subpass
// that first uses it.
type LoadOp uint32

// Load operations.
const (
	LoadOpDontCare LoadOp = iota
	LoadOpLoad
	LoadOpClear
)

// StoreOp selects what happens to an attachment at the end of the render pass.
type StoreOp uint32

// Store operations.
const (
	StoreOpDontCare StoreOp = iota
	StoreOpStore
)

// Special attachment and subpass indices.
const (
	// AttachmentUnused marks an attachment reference slot that is not used.
	AttachmentUnused = ^uint32(0)

	// SubpassExternal names the implicit subpass outside the render pass.
	SubpassExternal = ^uint32(0)
)

// DescriptorType is the kind of resource a descriptor binding holds.
type DescriptorType uint32

// Descriptor types.
const (
	DescriptorUniformBuffer DescriptorType = iota + 1
	DescriptorStorageBuffer
	DescriptorSampledImage
	DescriptorStorageImage
	DescriptorSampler
	DescriptorCombinedImageSampler
	DescriptorInputAttachment
)

// ShaderStage is a bitmask of shader stages.
type ShaderStage uint32

// Shader stages.
const (
	ShaderVertex ShaderStage = 1 << iota
	ShaderFragment
	ShaderCompute

	ShaderGraphics = ShaderVertex | ShaderFragment
)

// PipelineBindPoint selects the graphics or compute binding slots.
type PipelineBindPoint uint32

// Pipeline bind points.
const (
	BindGraphics PipelineBindPoint = iota
	BindCompute
)

// IndexFormat is the element type of an index buffer.
type IndexFormat uint32

// Index formats.
const (
	IndexUint16 IndexFormat = iota
	IndexUint32
)

// CommandBufferUsage selects how a recorded command buffer may be submitted.
type CommandBufferUsage uint32

// Command buffer usages.
const (
	// UsageOneTimeSubmit buffers are submitted once and then re-recorded.
	UsageOneTimeSubmit CommandBufferUsage = iota

	// UsageSimultaneous buffers may be resubmitted without re-recording.
	UsageSimultaneous
)

// Topology is the primitive assembly mode.
type Topology uint32

// Primitive topologies.
const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
)

// CullMode selects which faces are discarded.
type CullMode uint32

// Cull modes.
const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// CompareOp is a depth comparison function.
type CompareOp uint32

// Compare operations.
const (
	CompareNever CompareOp = iota
	CompareLess
	CompareLessEqual
	CompareGreater
	CompareAlways
)

// BlendMode is the color blend equation of a color target.
type BlendMode uint32

// Blend modes.
const (
	BlendNone BlendMode = iota
	BlendAdditive
	BlendAlpha
)

// VertexFormat is the type of a vertex attribute.
type VertexFormat uint32

// Vertex formats.
const (
	VertexFloat32x2 VertexFormat = iota + 1
	VertexFloat32x3
	VertexFloat32x4
)

// Size returns the attribute size in bytes.
func (v VertexFormat) Size() uint32 {
	switch v {
	case VertexFloat32x2:
		return 8
	case VertexFloat32x3:
		return 12
	case VertexFloat32x4:
		return 16
	}
	return 0
}

// Filter is a texture sampling filter.
type Filter uint32

// Filters.
const (
	FilterNearest Filter = iota
	FilterLinear
)

// AddressMode selects how out-of-range texture coordinates are handled.
type AddressMode uint32

// Address modes.
const (
	AddressClampToEdge AddressMode = iota
	AddressRepeat
	AddressClampToBorder
)

// ImageAspect selects the aspect of an image a view or barrier covers.
type ImageAspect uint32

// Image aspects.
const (
	AspectColor ImageAspect = 1 << iota
	AspectDepth
	AspectStencil
)

// PresentMode selects the swapchain presentation engine behavior.
type PresentMode uint32

// Present modes.
const (
	PresentFIFO PresentMode = iota
	PresentMailbox
	PresentImmediate
)

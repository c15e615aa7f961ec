package gpucore

// ShaderModuleDesc describes a shader module. Exactly one of SPIRV or WGSL
// is set; drivers that only consume SPIR-V reject WGSL with ErrUnsupported.
type ShaderModuleDesc struct {
	// Label is an optional debug label.
	Label string

	// Stage is the stage the module's entry point runs in.
	Stage ShaderStage

	// SPIRV is SPIR-V bytecode as uint32 words.
	SPIRV []uint32

	// WGSL is WGSL source text.
	WGSL string
}

// ShaderStageDesc names the entry point of a shader module.
type ShaderStageDesc struct {
	Module     ShaderModuleID
	EntryPoint string
}

// PushConstantRange declares a push constant block.
type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

// PipelineLayoutDesc describes a pipeline layout.
type PipelineLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// SetLayouts are the descriptor set layouts, indexed by set number.
	SetLayouts []DescriptorSetLayoutID

	// PushConstants are the push constant ranges.
	PushConstants []PushConstantRange
}

// VertexAttribute describes one attribute of a vertex buffer.
type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
	Offset   uint32
}

// VertexLayout describes one vertex buffer binding.
type VertexLayout struct {
	Stride     uint32
	Instance   bool
	Attributes []VertexAttribute
}

// DepthState configures depth testing. A nil *DepthState disables it.
type DepthState struct {
	Format  Format
	Test    bool
	Write   bool
	Compare CompareOp
}

// ColorTarget configures one color attachment of a graphics pipeline.
type ColorTarget struct {
	Format Format
	Blend  BlendMode
}

// GraphicsPipelineDesc describes a graphics pipeline.
type GraphicsPipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the pipeline layout.
	Layout PipelineLayoutID

	// RenderPass and Subpass select the subpass the pipeline is used in.
	RenderPass RenderPassID
	Subpass    uint32

	// Vertex and Fragment are the shader stages. Fragment may be zero for
	// depth-only pipelines.
	Vertex   ShaderStageDesc
	Fragment ShaderStageDesc

	// VertexBuffers describes the vertex input. Empty for full-screen passes
	// that generate vertices in the shader.
	VertexBuffers []VertexLayout

	Topology Topology
	CullMode CullMode

	// Depth configures depth testing; nil disables it.
	Depth *DepthState

	// Targets has one entry per color attachment of the subpass.
	Targets []ColorTarget

	// Samples is the rasterization sample count. Zero means one.
	Samples uint32
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the pipeline layout.
	Layout PipelineLayoutID

	// Compute is the compute shader stage.
	Compute ShaderStageDesc
}

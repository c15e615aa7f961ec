package step

import (
	"fmt"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/command"
	"github.com/gogpu/deferred/internal/renderpass"
	"github.com/gogpu/deferred/internal/uniform"
	"github.com/gogpu/deferred/scene"
)

// Geometry rasterizes every object into the G-buffer. It keeps one
// descriptor set per material slot; objects push their object and material
// indices.
type Geometry struct {
	base
}

// NewGeometry returns the geometry step.
func NewGeometry() *Geometry {
	return &Geometry{base{name: "geometry", queue: Graphics}}
}

func (s *Geometry) SetupRenderPass(ctx *Context) error {
	b := renderpass.NewBuilder("geometry")
	if err := b.StartConstruction(); err != nil {
		return err
	}
	for _, f := range GBufferFormats {
		a, err := b.AddAttachment(gpucore.AttachmentDesc{
			Format:        f,
			Samples:       1,
			LoadOp:        gpucore.LoadOpClear,
			StoreOp:       gpucore.StoreOpStore,
			InitialLayout: gpucore.LayoutUndefined,
			FinalLayout:   gpucore.LayoutShaderReadOnly,
		})
		if err != nil {
			return err
		}
		if err := b.AddAttachmentRef(renderpass.Color, a, gpucore.LayoutColorAttachment); err != nil {
			return err
		}
	}
	depth, err := b.AddAttachment(gpucore.AttachmentDesc{
		Format:        DepthFormat,
		Samples:       1,
		LoadOp:        gpucore.LoadOpClear,
		StoreOp:       gpucore.StoreOpStore,
		InitialLayout: gpucore.LayoutUndefined,
		FinalLayout:   gpucore.LayoutShaderReadOnly,
	})
	if err != nil {
		return err
	}
	if err := b.AddAttachmentRef(renderpass.DepthStencil, depth, gpucore.LayoutDepthStencilAttachment); err != nil {
		return err
	}
	if _, err := b.FinishSubpass(); err != nil {
		return err
	}
	if err := b.AddSubpassDependency(gpucore.SubpassDependency{
		SrcSubpass: 0,
		DstSubpass: gpucore.SubpassExternal,
		SrcStage:   gpucore.StageColorAttachmentOutput | gpucore.StageLateFragmentTests,
		DstStage:   gpucore.StageFragmentShader,
		SrcAccess:  gpucore.AccessColorAttachmentWrite | gpucore.AccessDepthStencilWrite,
		DstAccess:  gpucore.AccessShaderRead,
	}); err != nil {
		return err
	}
	rp, err := b.FinishRenderPass(ctx.Driver)
	if err != nil {
		return err
	}
	s.ownRenderPass(rp)

	t := ctx.Targets
	views := make([]gpucore.ImageViewID, 0, GBufferCount+1)
	for _, a := range t.GBuffer {
		views = append(views, a.View)
	}
	return s.framebuffer(ctx, "gbuffer", t.Extent(), append(views, t.Depth.View)...)
}

func (s *Geometry) SetupShaders(ctx *Context) error {
	return s.loadGraphics(ctx, "geometry.vert", "geometry.frag")
}

func (s *Geometry) SetupDescriptors(ctx *Context) error {
	return s.descriptors(ctx, max(ctx.Uniforms.Limits().MaxMaterials, 1),
		uniformBinding(0, gpucore.ShaderVertex),
		uniformBinding(1, gpucore.ShaderVertex),
		uniformBinding(2, gpucore.ShaderFragment),
		textureBinding(3, gpucore.ShaderFragment),
		samplerBinding(4, gpucore.ShaderFragment),
	)
}

func (s *Geometry) SetupPipelineLayout(ctx *Context) error {
	return s.pipelineLayout(ctx, gpucore.PushConstantRange{Stages: gpucore.ShaderGraphics, Size: 8})
}

func (s *Geometry) SetupPipeline(ctx *Context) error {
	targets := make([]gpucore.ColorTarget, 0, GBufferCount)
	for _, f := range GBufferFormats {
		targets = append(targets, gpucore.ColorTarget{Format: f})
	}
	var err error
	s.pipeline, err = ctx.Driver.CreateGraphicsPipeline(&gpucore.GraphicsPipelineDesc{
		Label:         s.name,
		Layout:        s.layout,
		RenderPass:    s.rp.ID(),
		Vertex:        s.vert,
		Fragment:      s.frag,
		VertexBuffers: []gpucore.VertexLayout{scene.VertexLayout()},
		Topology:      gpucore.TopologyTriangleList,
		CullMode:      gpucore.CullBack,
		Depth:         &gpucore.DepthState{Format: DepthFormat, Test: true, Write: true, Compare: gpucore.CompareLess},
		Targets:       targets,
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	return nil
}

// UpdateDescriptorSets binds material slot i to set i. Slots without a
// material, or whose material has no texture, sample the white texture.
func (s *Geometry) UpdateDescriptorSets(ctx *Context) error {
	var writes []gpucore.DescriptorWrite
	for i, set := range s.sets {
		tex := ctx.Targets.White.View
		if ctx.Scene != nil && i < len(ctx.Scene.Materials) && ctx.Scene.Materials[i].Texture != gpucore.InvalidID {
			tex = ctx.Scene.Materials[i].Texture
		}
		writes = append(writes,
			uniformWrite(ctx, set, 0, uniform.Camera),
			uniformWrite(ctx, set, 1, uniform.Objects),
			uniformWrite(ctx, set, 2, uniform.Materials),
			textureWrite(set, 3, tex),
			samplerWrite(set, 4, ctx.Targets.Sampler),
		)
	}
	return ctx.Driver.UpdateDescriptorSets(writes)
}

func (s *Geometry) WriteCmdBuff(ctx *Context) error {
	t := ctx.Targets
	clear := make([]gpucore.ClearValue, 0, GBufferCount+1)
	for range GBufferCount {
		clear = append(clear, gpucore.ClearColor(0, 0, 0, 0))
	}
	clear = append(clear, gpucore.ClearDepth(1, 0))

	return s.record(ctx, 1, func(_ int, cb *command.CommandBuffer) error {
		if err := beginPass(cb, s.rp, s.framebuffers[0], t.Extent(), clear...); err != nil {
			return err
		}
		if ctx.Scene == nil {
			return cb.EndRenderPass()
		}
		rec := cb.Recorder()
		rec.BindPipeline(gpucore.BindGraphics, s.pipeline)
		for i, o := range ctx.Scene.Objects {
			rec.BindDescriptorSets(gpucore.BindGraphics, s.layout, 0, s.sets[o.Material:o.Material+1])
			rec.PushConstants(s.layout, gpucore.ShaderGraphics, 0, pushU32(uint32(i), uint32(o.Material)))
			drawMesh(rec, o.Mesh, 1)
		}
		return cb.EndRenderPass()
	})
}

func (s *Geometry) Destroy(ctx *Context) { s.destroy(ctx) }

// drawMesh binds a mesh and draws it instanced.
func drawMesh(rec gpucore.Recorder, m *scene.Mesh, instances uint32) {
	rec.BindVertexBuffers(0, []gpucore.BufferID{m.VertexBuffer}, []uint64{0})
	rec.BindIndexBuffer(m.IndexBuffer, 0, m.IndexFormat)
	rec.DrawIndexed(m.IndexCount, instances, 0, 0, 0)
}

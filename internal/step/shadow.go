package step

import (
	"fmt"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/command"
	"github.com/gogpu/deferred/internal/renderpass"
	"github.com/gogpu/deferred/internal/uniform"
	"github.com/gogpu/deferred/scene"
)

// Shadow renders depth moments for every shadow-casting directional light,
// one render pass instance per light into its own layer. With no
// shadow-casting lights it records an empty buffer.
type Shadow struct {
	base
}

// NewShadow returns the shadow step.
func NewShadow() *Shadow {
	return &Shadow{base{name: "shadow", queue: Graphics}}
}

func (s *Shadow) SetupRenderPass(ctx *Context) error {
	b := renderpass.NewBuilder("shadow")
	if err := b.StartConstruction(); err != nil {
		return err
	}
	moments, err := b.AddAttachment(gpucore.AttachmentDesc{
		Format:        MomentsFormat,
		Samples:       1,
		LoadOp:        gpucore.LoadOpClear,
		StoreOp:       gpucore.StoreOpStore,
		InitialLayout: gpucore.LayoutUndefined,
		FinalLayout:   gpucore.LayoutShaderReadOnly,
	})
	if err != nil {
		return err
	}
	depth, err := b.AddAttachment(gpucore.AttachmentDesc{
		Format:        DepthFormat,
		Samples:       1,
		LoadOp:        gpucore.LoadOpClear,
		StoreOp:       gpucore.StoreOpDontCare,
		InitialLayout: gpucore.LayoutUndefined,
		FinalLayout:   gpucore.LayoutDepthStencilAttachment,
	})
	if err != nil {
		return err
	}
	if err := b.AddAttachmentRef(renderpass.Color, moments, gpucore.LayoutColorAttachment); err != nil {
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
		SrcStage:   gpucore.StageColorAttachmentOutput,
		DstStage:   gpucore.StageComputeShader | gpucore.StageFragmentShader,
		SrcAccess:  gpucore.AccessColorAttachmentWrite,
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
	size := gpucore.Extent2D{Width: t.ShadowSize(), Height: t.ShadowSize()}
	for i, layer := range t.Moments.Layers {
		if err := s.framebuffer(ctx, fmt.Sprintf("shadow[%d]", i), size, layer, t.ShadowDepth.View); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shadow) SetupShaders(ctx *Context) error {
	return s.loadGraphics(ctx, "shadow.vert", "shadow.frag")
}

func (s *Shadow) SetupDescriptors(ctx *Context) error {
	return s.descriptors(ctx, 1,
		uniformBinding(0, gpucore.ShaderVertex),
		uniformBinding(1, gpucore.ShaderVertex),
	)
}

func (s *Shadow) SetupPipelineLayout(ctx *Context) error {
	return s.pipelineLayout(ctx, gpucore.PushConstantRange{Stages: gpucore.ShaderVertex, Size: 8})
}

func (s *Shadow) SetupPipeline(ctx *Context) error {
	var err error
	s.pipeline, err = ctx.Driver.CreateGraphicsPipeline(&gpucore.GraphicsPipelineDesc{
		Label:         s.name,
		Layout:        s.layout,
		RenderPass:    s.rp.ID(),
		Vertex:        s.vert,
		Fragment:      s.frag,
		VertexBuffers: []gpucore.VertexLayout{scene.VertexLayout()},
		Topology:      gpucore.TopologyTriangleList,
		CullMode:      gpucore.CullNone,
		Depth:         &gpucore.DepthState{Format: DepthFormat, Test: true, Write: true, Compare: gpucore.CompareLess},
		Targets:       []gpucore.ColorTarget{{Format: MomentsFormat}},
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	return nil
}

func (s *Shadow) UpdateDescriptorSets(ctx *Context) error {
	set := s.sets[0]
	return ctx.Driver.UpdateDescriptorSets([]gpucore.DescriptorWrite{
		uniformWrite(ctx, set, 0, uniform.Objects),
		uniformWrite(ctx, set, 1, uniform.Directional),
	})
}

func (s *Shadow) WriteCmdBuff(ctx *Context) error {
	lights := ctx.shadowLights()
	if len(lights) > len(s.framebuffers) {
		return fmt.Errorf("%d shadow lights, %d shadow layers", len(lights), len(s.framebuffers))
	}
	size := gpucore.Extent2D{Width: ctx.Targets.ShadowSize(), Height: ctx.Targets.ShadowSize()}
	return s.record(ctx, 1, func(_ int, cb *command.CommandBuffer) error {
		for layer, light := range lights {
			if err := beginPass(cb, s.rp, s.framebuffers[layer], size,
				gpucore.ClearColor(1, 1, 0, 0), gpucore.ClearDepth(1, 0)); err != nil {
				return err
			}
			rec := cb.Recorder()
			rec.BindPipeline(gpucore.BindGraphics, s.pipeline)
			rec.BindDescriptorSets(gpucore.BindGraphics, s.layout, 0, s.sets)
			for i, o := range ctx.Scene.Objects {
				rec.PushConstants(s.layout, gpucore.ShaderVertex, 0, pushU32(uint32(i), uint32(light)))
				drawMesh(rec, o.Mesh, 1)
			}
			if err := cb.EndRenderPass(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Shadow) Destroy(ctx *Context) { s.destroy(ctx) }

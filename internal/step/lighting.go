package step

import (
	"fmt"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/command"
	"github.com/gogpu/deferred/internal/renderpass"
	"github.com/gogpu/deferred/internal/uniform"
	"github.com/gogpu/deferred/scene"
)

// GlobalLight clears the lighting target and adds one full-screen pass per
// directional light. Shadows are sampled from the blurred maps when blur
// is enabled and from the raw moments otherwise, so a blur toggle needs a
// Refresh of this step.
type GlobalLight struct {
	base
}

// NewGlobalLight returns the global light step.
func NewGlobalLight() *GlobalLight {
	return &GlobalLight{base{name: "global", queue: Graphics}}
}

func (s *GlobalLight) SetupRenderPass(ctx *Context) error {
	rp, err := lightingPass(ctx.Driver, "global light", gpucore.LoadOpClear,
		gpucore.LayoutUndefined, gpucore.LayoutColorAttachment)
	if err != nil {
		return err
	}
	s.ownRenderPass(rp)
	return s.framebuffer(ctx, "global light", ctx.Targets.Extent(), ctx.Targets.Lighting.View)
}

func (s *GlobalLight) SetupShaders(ctx *Context) error {
	return s.loadGraphics(ctx, "fullscreen.vert", "global.frag")
}

func (s *GlobalLight) SetupDescriptors(ctx *Context) error {
	return s.descriptors(ctx, 1,
		uniformBinding(0, gpucore.ShaderFragment),
		uniformBinding(1, gpucore.ShaderFragment),
		uniformBinding(2, gpucore.ShaderFragment),
		textureBinding(3, gpucore.ShaderFragment),
		textureBinding(4, gpucore.ShaderFragment),
		textureBinding(5, gpucore.ShaderFragment),
		textureBinding(6, gpucore.ShaderFragment),
		layeredBinding(7, gpucore.ShaderFragment),
		samplerBinding(8, gpucore.ShaderFragment),
	)
}

func (s *GlobalLight) SetupPipelineLayout(ctx *Context) error {
	return s.pipelineLayout(ctx, gpucore.PushConstantRange{Stages: gpucore.ShaderFragment, Size: 4})
}

func (s *GlobalLight) SetupPipeline(ctx *Context) error {
	return s.fullscreenPipeline(ctx, LightingFormat, gpucore.BlendAdditive)
}

// ShadowSource returns the view the step binds for shadow lookups under
// the given control block.
func ShadowSource(t *Targets, ctl *uniform.ShaderControl) gpucore.ImageViewID {
	if ctl.BlurEnabled {
		return t.Blurred.View
	}
	return t.Moments.View
}

func (s *GlobalLight) UpdateDescriptorSets(ctx *Context) error {
	set := s.sets[0]
	writes := []gpucore.DescriptorWrite{
		uniformWrite(ctx, set, 0, uniform.Camera),
		uniformWrite(ctx, set, 1, uniform.Directional),
		uniformWrite(ctx, set, 2, uniform.Control),
	}
	writes = append(writes, gbufferWrites(ctx, set, 3, GBufferCount)...)
	writes = append(writes,
		textureWrite(set, 7, ShadowSource(ctx.Targets, ctx.Control)),
		samplerWrite(set, 8, ctx.Targets.Sampler),
	)
	return ctx.Driver.UpdateDescriptorSets(writes)
}

func (s *GlobalLight) WriteCmdBuff(ctx *Context) error {
	var lights []scene.DirectionalLight
	if ctx.Scene != nil {
		lights = ctx.Scene.Directional
	}
	return s.record(ctx, 1, func(_ int, cb *command.CommandBuffer) error {
		if err := beginPass(cb, s.rp, s.framebuffers[0], ctx.Targets.Extent(), gpucore.ClearColor(0, 0, 0, 1)); err != nil {
			return err
		}
		rec := cb.Recorder()
		rec.BindPipeline(gpucore.BindGraphics, s.pipeline)
		rec.BindDescriptorSets(gpucore.BindGraphics, s.layout, 0, s.sets)
		for i := range lights {
			rec.PushConstants(s.layout, gpucore.ShaderFragment, 0, pushU32(uint32(i)))
			rec.Draw(3, 1, 0, 0)
		}
		return cb.EndRenderPass()
	})
}

func (s *GlobalLight) Destroy(ctx *Context) { s.destroy(ctx) }

// LocalLight draws one instanced light volume (a cube scaled by the light
// radius) per point light, accumulating into the lighting target. It loads
// the target through the shared lighting pass, or clears it with its own
// pass when the global light step is disabled.
type LocalLight struct {
	base

	clearRP *renderpass.RenderPass
	clearFB gpucore.FramebufferID
	volume  *scene.Mesh
}

// NewLocalLight returns the local light step.
func NewLocalLight() *LocalLight {
	return &LocalLight{base: base{name: "local", queue: Graphics}}
}

func (s *LocalLight) SetupRenderPass(ctx *Context) error {
	// The load pass belongs to the targets.
	s.rp = ctx.Targets.LightingLoad
	rp, err := lightingPass(ctx.Driver, "local light clear", gpucore.LoadOpClear,
		gpucore.LayoutUndefined, gpucore.LayoutColorAttachment)
	if err != nil {
		return err
	}
	s.clearRP = rp
	s.clearFB, err = ctx.Driver.CreateFramebuffer(&gpucore.FramebufferDesc{
		Label:       "local light clear",
		RenderPass:  rp.ID(),
		Attachments: []gpucore.ImageViewID{ctx.Targets.Lighting.View},
		Extent:      ctx.Targets.Extent(),
		Layers:      1,
	})
	if err != nil {
		return fmt.Errorf("create framebuffer: %w", err)
	}
	return nil
}

func (s *LocalLight) SetupShaders(ctx *Context) error {
	return s.loadGraphics(ctx, "local.vert", "local.frag")
}

func (s *LocalLight) SetupDescriptors(ctx *Context) error {
	return s.descriptors(ctx, 1,
		uniformBinding(0, gpucore.ShaderVertex),
		uniformBinding(1, gpucore.ShaderGraphics),
		textureBinding(2, gpucore.ShaderFragment),
		textureBinding(3, gpucore.ShaderFragment),
		textureBinding(4, gpucore.ShaderFragment),
	)
}

func (s *LocalLight) SetupPipelineLayout(ctx *Context) error {
	return s.pipelineLayout(ctx)
}

func (s *LocalLight) SetupPipeline(ctx *Context) error {
	verts, idx := scene.Cube()
	m, err := scene.NewMesh(ctx.Driver, "light volume", verts, idx)
	if err != nil {
		return err
	}
	s.volume = m
	s.pipeline, err = ctx.Driver.CreateGraphicsPipeline(&gpucore.GraphicsPipelineDesc{
		Label:         s.name,
		Layout:        s.layout,
		RenderPass:    s.rp.ID(),
		Vertex:        s.vert,
		Fragment:      s.frag,
		VertexBuffers: []gpucore.VertexLayout{scene.VertexLayout()},
		Topology:      gpucore.TopologyTriangleList,
		// Back faces only so volumes containing the camera still shade.
		CullMode: gpucore.CullFront,
		Targets:  []gpucore.ColorTarget{{Format: LightingFormat, Blend: gpucore.BlendAdditive}},
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	return nil
}

func (s *LocalLight) UpdateDescriptorSets(ctx *Context) error {
	set := s.sets[0]
	writes := []gpucore.DescriptorWrite{
		uniformWrite(ctx, set, 0, uniform.Camera),
		uniformWrite(ctx, set, 1, uniform.Points),
	}
	writes = append(writes, gbufferWrites(ctx, set, 2, GAlbedo+1)...)
	return ctx.Driver.UpdateDescriptorSets(writes)
}

func (s *LocalLight) WriteCmdBuff(ctx *Context) error {
	var n int
	if ctx.Scene != nil {
		n = len(ctx.Scene.Points)
	}
	rp, fb := s.rp, ctx.Targets.LightingFB
	var clear []gpucore.ClearValue
	if !ctx.Control.GlobalEnabled {
		rp, fb = s.clearRP, s.clearFB
		clear = []gpucore.ClearValue{gpucore.ClearColor(0, 0, 0, 1)}
	}
	return s.record(ctx, 1, func(_ int, cb *command.CommandBuffer) error {
		if err := beginPass(cb, rp, fb, ctx.Targets.Extent(), clear...); err != nil {
			return err
		}
		if n > 0 {
			rec := cb.Recorder()
			rec.BindPipeline(gpucore.BindGraphics, s.pipeline)
			rec.BindDescriptorSets(gpucore.BindGraphics, s.layout, 0, s.sets)
			drawMesh(rec, s.volume, uint32(n))
		}
		return cb.EndRenderPass()
	})
}

func (s *LocalLight) Destroy(ctx *Context) {
	if s.volume != nil {
		s.volume.Destroy(ctx.Driver)
		s.volume = nil
	}
	if s.clearFB != gpucore.InvalidID {
		ctx.Driver.DestroyFramebuffer(s.clearFB)
		s.clearFB = gpucore.InvalidID
	}
	if s.clearRP != nil {
		s.clearRP.Destroy()
		s.clearRP = nil
	}
	s.destroy(ctx)
}

// Ambient adds the ambient term and leaves the lighting target ready for
// sampling by Final.
type Ambient struct {
	base
}

// NewAmbient returns the ambient step.
func NewAmbient() *Ambient {
	return &Ambient{base{name: "ambient", queue: Graphics}}
}

func (s *Ambient) SetupRenderPass(ctx *Context) error {
	rp, err := lightingPass(ctx.Driver, "ambient", gpucore.LoadOpLoad,
		gpucore.LayoutColorAttachment, gpucore.LayoutShaderReadOnly)
	if err != nil {
		return err
	}
	s.ownRenderPass(rp)
	return s.framebuffer(ctx, "ambient", ctx.Targets.Extent(), ctx.Targets.Lighting.View)
}

func (s *Ambient) SetupShaders(ctx *Context) error {
	return s.loadGraphics(ctx, "fullscreen.vert", "ambient.frag")
}

func (s *Ambient) SetupDescriptors(ctx *Context) error {
	return s.descriptors(ctx, 1,
		uniformBinding(0, gpucore.ShaderFragment),
		uniformBinding(1, gpucore.ShaderFragment),
		textureBinding(2, gpucore.ShaderFragment),
	)
}

func (s *Ambient) SetupPipelineLayout(ctx *Context) error { return s.pipelineLayout(ctx) }

func (s *Ambient) SetupPipeline(ctx *Context) error {
	return s.fullscreenPipeline(ctx, LightingFormat, gpucore.BlendAdditive)
}

func (s *Ambient) UpdateDescriptorSets(ctx *Context) error {
	set := s.sets[0]
	return ctx.Driver.UpdateDescriptorSets([]gpucore.DescriptorWrite{
		uniformWrite(ctx, set, 0, uniform.Camera),
		uniformWrite(ctx, set, 1, uniform.Control),
		textureWrite(set, 2, ctx.Targets.GBuffer[GAlbedo].View),
	})
}

func (s *Ambient) WriteCmdBuff(ctx *Context) error {
	return s.record(ctx, 1, func(_ int, cb *command.CommandBuffer) error {
		if err := beginPass(cb, s.rp, s.framebuffers[0], ctx.Targets.Extent()); err != nil {
			return err
		}
		s.drawFullscreen(cb)
		return cb.EndRenderPass()
	})
}

func (s *Ambient) Destroy(ctx *Context) { s.destroy(ctx) }

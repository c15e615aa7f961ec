package step

import (
	"errors"
	"fmt"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/command"
	"github.com/gogpu/deferred/internal/uniform"
)

var errNoSwapchain = errors.New("step: context has no swapchain")

// presenter is the shared part of the two steps that write swapchain
// images: one framebuffer and one command buffer per image.
type presenter struct {
	base
}

func (p *presenter) setupPresentPass(ctx *Context, label string, load gpucore.LoadOp) error {
	sc := ctx.Swapchain
	if sc == nil {
		return errNoSwapchain
	}
	rp, err := presentPass(ctx.Driver, label, sc.Format(), load)
	if err != nil {
		return err
	}
	p.ownRenderPass(rp)
	for i := range sc.ImageCount() {
		if err := p.framebuffer(ctx, fmt.Sprintf("%s[%d]", label, i), sc.Extent(), sc.View(i)); err != nil {
			return err
		}
	}
	return nil
}

func (p *presenter) recordPerImage(ctx *Context, clear ...gpucore.ClearValue) error {
	sc := ctx.Swapchain
	return p.record(ctx, sc.ImageCount(), func(i int, cb *command.CommandBuffer) error {
		if err := beginPass(cb, p.rp, p.framebuffers[i], sc.Extent(), clear...); err != nil {
			return err
		}
		p.drawFullscreen(cb)
		return cb.EndRenderPass()
	})
}

// Final tonemaps the lighting target, or shows a debug view, into the
// acquired swapchain image.
type Final struct {
	presenter
}

// NewFinal returns the final step.
func NewFinal() *Final {
	return &Final{presenter{base{name: "final", queue: Graphics}}}
}

func (s *Final) SetupRenderPass(ctx *Context) error {
	return s.setupPresentPass(ctx, "final", gpucore.LoadOpDontCare)
}

func (s *Final) SetupShaders(ctx *Context) error {
	return s.loadGraphics(ctx, "fullscreen.vert", "final.frag")
}

func (s *Final) SetupDescriptors(ctx *Context) error {
	return s.descriptors(ctx, 1,
		uniformBinding(0, gpucore.ShaderFragment),
		textureBinding(1, gpucore.ShaderFragment),
		textureBinding(2, gpucore.ShaderFragment),
		textureBinding(3, gpucore.ShaderFragment),
		textureBinding(4, gpucore.ShaderFragment),
		textureBinding(5, gpucore.ShaderFragment),
		layeredBinding(6, gpucore.ShaderFragment),
		samplerBinding(7, gpucore.ShaderFragment),
	)
}

func (s *Final) SetupPipelineLayout(ctx *Context) error { return s.pipelineLayout(ctx) }

func (s *Final) SetupPipeline(ctx *Context) error {
	return s.fullscreenPipeline(ctx, ctx.Swapchain.Format(), gpucore.BlendNone)
}

func (s *Final) UpdateDescriptorSets(ctx *Context) error {
	set := s.sets[0]
	t := ctx.Targets
	writes := []gpucore.DescriptorWrite{
		uniformWrite(ctx, set, 0, uniform.Control),
		textureWrite(set, 1, t.Lighting.View),
	}
	writes = append(writes, gbufferWrites(ctx, set, 2, GBufferCount)...)
	writes = append(writes,
		textureWrite(set, 6, t.Moments.View),
		samplerWrite(set, 7, t.Sampler),
	)
	return ctx.Driver.UpdateDescriptorSets(writes)
}

func (s *Final) WriteCmdBuff(ctx *Context) error { return s.recordPerImage(ctx) }

func (s *Final) Destroy(ctx *Context) { s.destroy(ctx) }

// Splash shows the letterboxed splash image while no scene is set. It is
// not part of the frame chain; DrawSplash submits it on its own.
type Splash struct {
	presenter
}

// NewSplash returns the splash step.
func NewSplash() *Splash {
	return &Splash{presenter{base{name: "splash", queue: Graphics}}}
}

func (s *Splash) SetupRenderPass(ctx *Context) error {
	return s.setupPresentPass(ctx, "splash", gpucore.LoadOpClear)
}

func (s *Splash) SetupShaders(ctx *Context) error {
	return s.loadGraphics(ctx, "fullscreen.vert", "splash.frag")
}

func (s *Splash) SetupDescriptors(ctx *Context) error {
	return s.descriptors(ctx, 1,
		textureBinding(0, gpucore.ShaderFragment),
		samplerBinding(1, gpucore.ShaderFragment),
	)
}

func (s *Splash) SetupPipelineLayout(ctx *Context) error { return s.pipelineLayout(ctx) }

func (s *Splash) SetupPipeline(ctx *Context) error {
	return s.fullscreenPipeline(ctx, ctx.Swapchain.Format(), gpucore.BlendNone)
}

func (s *Splash) UpdateDescriptorSets(ctx *Context) error {
	set := s.sets[0]
	return ctx.Driver.UpdateDescriptorSets([]gpucore.DescriptorWrite{
		textureWrite(set, 0, ctx.Targets.Splash.View),
		samplerWrite(set, 1, ctx.Targets.Sampler),
	})
}

func (s *Splash) WriteCmdBuff(ctx *Context) error {
	return s.recordPerImage(ctx, gpucore.ClearColor(0, 0, 0, 1))
}

func (s *Splash) Destroy(ctx *Context) { s.destroy(ctx) }

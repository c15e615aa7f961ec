package step

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/command"
	"github.com/gogpu/deferred/internal/renderpass"
	"github.com/gogpu/deferred/internal/uniform"
)

func uniformBinding(binding uint32, stages gpucore.ShaderStage) gpucore.DescriptorBinding {
	return gpucore.DescriptorBinding{Binding: binding, Type: gpucore.DescriptorUniformBuffer, Count: 1, Stages: stages}
}

func textureBinding(binding uint32, stages gpucore.ShaderStage) gpucore.DescriptorBinding {
	return gpucore.DescriptorBinding{Binding: binding, Type: gpucore.DescriptorSampledImage, Count: 1, Stages: stages}
}

func layeredBinding(binding uint32, stages gpucore.ShaderStage) gpucore.DescriptorBinding {
	b := textureBinding(binding, stages)
	b.Layered = true
	return b
}

func samplerBinding(binding uint32, stages gpucore.ShaderStage) gpucore.DescriptorBinding {
	return gpucore.DescriptorBinding{Binding: binding, Type: gpucore.DescriptorSampler, Count: 1, Stages: stages}
}

func storageBinding(binding uint32, stages gpucore.ShaderStage, f gpucore.Format) gpucore.DescriptorBinding {
	return gpucore.DescriptorBinding{Binding: binding, Type: gpucore.DescriptorStorageImage, Count: 1, Stages: stages, Format: f}
}

func uniformWrite(ctx *Context, set gpucore.DescriptorSetID, binding uint32, k uniform.Kind) gpucore.DescriptorWrite {
	return gpucore.DescriptorWrite{
		Set:     set,
		Binding: binding,
		Type:    gpucore.DescriptorUniformBuffer,
		Buffer:  ctx.Uniforms.Buffer(k),
		Range:   ctx.Uniforms.Size(k),
	}
}

func textureWrite(set gpucore.DescriptorSetID, binding uint32, view gpucore.ImageViewID) gpucore.DescriptorWrite {
	return gpucore.DescriptorWrite{
		Set:       set,
		Binding:   binding,
		Type:      gpucore.DescriptorSampledImage,
		ImageView: view,
		Layout:    gpucore.LayoutShaderReadOnly,
	}
}

func samplerWrite(set gpucore.DescriptorSetID, binding uint32, s gpucore.SamplerID) gpucore.DescriptorWrite {
	return gpucore.DescriptorWrite{Set: set, Binding: binding, Type: gpucore.DescriptorSampler, Sampler: s}
}

func storageWrite(set gpucore.DescriptorSetID, binding uint32, view gpucore.ImageViewID) gpucore.DescriptorWrite {
	return gpucore.DescriptorWrite{
		Set:       set,
		Binding:   binding,
		Type:      gpucore.DescriptorStorageImage,
		ImageView: view,
		Layout:    gpucore.LayoutGeneral,
	}
}

// gbufferWrites binds the G-buffer channels to consecutive bindings from
// first, in channel order up to count channels.
func gbufferWrites(ctx *Context, set gpucore.DescriptorSetID, first uint32, count int) []gpucore.DescriptorWrite {
	out := make([]gpucore.DescriptorWrite, 0, count)
	for i := range count {
		out = append(out, textureWrite(set, first+uint32(i), ctx.Targets.GBuffer[i].View))
	}
	return out
}

func pushU32(v ...uint32) []byte {
	b := make([]byte, 0, 4*len(v))
	for _, x := range v {
		b = binary.LittleEndian.AppendUint32(b, x)
	}
	return b
}

// fullArea returns the render area covering e.
func fullArea(e gpucore.Extent2D) gpucore.Rect2D { return gpucore.Rect2D{Extent: e} }

// beginPass starts a render pass instance and sets a full viewport.
func beginPass(cb *command.CommandBuffer, rp *renderpass.RenderPass, fb gpucore.FramebufferID, e gpucore.Extent2D, clear ...gpucore.ClearValue) error {
	if err := cb.StartRenderPass(&gpucore.RenderPassBegin{
		RenderPass:  rp.ID(),
		Framebuffer: fb,
		Area:        fullArea(e),
		Clear:       clear,
	}); err != nil {
		return err
	}
	rec := cb.Recorder()
	rec.SetViewport(gpucore.FullViewport(e))
	rec.SetScissor(fullArea(e))
	return nil
}

// singleColorPass builds a one-subpass pass over one color attachment.
func singleColorPass(drv gpucore.Driver, label string, format gpucore.Format, load gpucore.LoadOp, initial, final gpucore.ImageLayout, dstStage gpucore.PipelineStage, dstAccess gpucore.Access) (*renderpass.RenderPass, error) {
	b := renderpass.NewBuilder(label)
	if err := b.StartConstruction(); err != nil {
		return nil, err
	}
	color, err := b.AddAttachment(gpucore.AttachmentDesc{
		Format:        format,
		Samples:       1,
		LoadOp:        load,
		StoreOp:       gpucore.StoreOpStore,
		InitialLayout: initial,
		FinalLayout:   final,
	})
	if err != nil {
		return nil, err
	}
	if err := b.AddAttachmentRef(renderpass.Color, color, gpucore.LayoutColorAttachment); err != nil {
		return nil, err
	}
	if _, err := b.FinishSubpass(); err != nil {
		return nil, err
	}
	for _, dep := range []gpucore.SubpassDependency{
		{
			SrcSubpass: gpucore.SubpassExternal,
			DstSubpass: 0,
			SrcStage:   gpucore.StageColorAttachmentOutput,
			DstStage:   gpucore.StageColorAttachmentOutput,
			DstAccess:  gpucore.AccessColorAttachmentWrite,
		},
		{
			SrcSubpass: 0,
			DstSubpass: gpucore.SubpassExternal,
			SrcStage:   gpucore.StageColorAttachmentOutput,
			DstStage:   dstStage,
			SrcAccess:  gpucore.AccessColorAttachmentWrite,
			DstAccess:  dstAccess,
		},
	} {
		if err := b.AddSubpassDependency(dep); err != nil {
			return nil, err
		}
	}
	rp, err := b.FinishRenderPass(drv)
	if err != nil {
		return nil, fmt.Errorf("build %s pass: %w", label, err)
	}
	return rp, nil
}

// lightingPass builds a pass over the lighting target.
func lightingPass(drv gpucore.Driver, label string, load gpucore.LoadOp, initial, final gpucore.ImageLayout) (*renderpass.RenderPass, error) {
	return singleColorPass(drv, label, LightingFormat, load, initial, final,
		gpucore.StageColorAttachmentOutput|gpucore.StageFragmentShader,
		gpucore.AccessColorAttachmentRead|gpucore.AccessShaderRead)
}

// presentPass builds a pass writing a swapchain image for presentation.
func presentPass(drv gpucore.Driver, label string, format gpucore.Format, load gpucore.LoadOp) (*renderpass.RenderPass, error) {
	return singleColorPass(drv, label, format, load, gpucore.LayoutUndefined, gpucore.LayoutPresentSrc,
		gpucore.StageBottomOfPipe, 0)
}

// fullscreenPipeline creates a pipeline drawing a generated full-screen
// triangle into the step's single color target.
func (b *base) fullscreenPipeline(ctx *Context, format gpucore.Format, blend gpucore.BlendMode) error {
	var err error
	b.pipeline, err = ctx.Driver.CreateGraphicsPipeline(&gpucore.GraphicsPipelineDesc{
		Label:      b.name,
		Layout:     b.layout,
		RenderPass: b.rp.ID(),
		Vertex:     b.vert,
		Fragment:   b.frag,
		Topology:   gpucore.TopologyTriangleList,
		CullMode:   gpucore.CullNone,
		Targets:    []gpucore.ColorTarget{{Format: format, Blend: blend}},
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	return nil
}

// drawFullscreen binds the step's pipeline and set and draws the
// full-screen triangle.
func (b *base) drawFullscreen(cb *command.CommandBuffer) {
	rec := cb.Recorder()
	rec.BindPipeline(gpucore.BindGraphics, b.pipeline)
	rec.BindDescriptorSets(gpucore.BindGraphics, b.layout, 0, b.sets[:1])
	rec.Draw(3, 1, 0, 0)
}

package step

import (
	"fmt"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/command"
	"github.com/gogpu/deferred/internal/uniform"
)

// blurGroup is the workgroup edge length of blur.comp.
const blurGroup = 16

// Blur runs a separable gaussian over every used shadow layer on the
// compute queue: horizontal from Moments into Temp, then vertical from Temp
// into Blurred. Each layer has two descriptor sets, one per direction.
type Blur struct {
	base
}

// NewBlur returns the blur step.
func NewBlur() *Blur {
	return &Blur{base{name: "blur", queue: Compute}}
}

// SetupRenderPass is a no-op: blur runs outside any render pass.
func (s *Blur) SetupRenderPass(*Context) error { return nil }

func (s *Blur) SetupShaders(ctx *Context) error {
	var err error
	s.comp, err = ctx.Shaders.Load("blur.comp", gpucore.ShaderCompute)
	return err
}

func (s *Blur) SetupDescriptors(ctx *Context) error {
	return s.descriptors(ctx, 2*int(ctx.Targets.ShadowLayers()),
		uniformBinding(0, gpucore.ShaderCompute),
		textureBinding(1, gpucore.ShaderCompute),
		samplerBinding(2, gpucore.ShaderCompute),
		storageBinding(3, gpucore.ShaderCompute, MomentsFormat),
	)
}

func (s *Blur) SetupPipelineLayout(ctx *Context) error {
	return s.pipelineLayout(ctx, gpucore.PushConstantRange{Stages: gpucore.ShaderCompute, Size: 4})
}

func (s *Blur) SetupPipeline(ctx *Context) error {
	lim := ctx.Driver.Info().MaxComputeWorkgroupSize
	if lim[0] < blurGroup || lim[1] < blurGroup {
		return fmt.Errorf("workgroup %dx%d exceeds device limit %v: %w", blurGroup, blurGroup, lim, gpucore.ErrUnsupported)
	}
	var err error
	s.pipeline, err = ctx.Driver.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:   s.name,
		Layout:  s.layout,
		Compute: s.comp,
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	return nil
}

func (s *Blur) UpdateDescriptorSets(ctx *Context) error {
	t := ctx.Targets
	var writes []gpucore.DescriptorWrite
	for layer := range t.ShadowLayers() {
		h, v := s.sets[2*layer], s.sets[2*layer+1]
		writes = append(writes,
			uniformWrite(ctx, h, 0, uniform.Control),
			textureWrite(h, 1, t.Moments.Layers[layer]),
			samplerWrite(h, 2, t.Sampler),
			storageWrite(h, 3, t.Temp.Layers[layer]),

			uniformWrite(ctx, v, 0, uniform.Control),
			textureWrite(v, 1, t.Temp.Layers[layer]),
			samplerWrite(v, 2, t.Sampler),
			storageWrite(v, 3, t.Blurred.Layers[layer]),
		)
		// Temp is read in the general layout it was written in.
		writes[len(writes)-3].Layout = gpucore.LayoutGeneral
	}
	return ctx.Driver.UpdateDescriptorSets(writes)
}

func (s *Blur) WriteCmdBuff(ctx *Context) error {
	lights := ctx.shadowLights()
	t := ctx.Targets
	size := t.ShadowSize()
	groups := (size + blurGroup - 1) / blurGroup
	return s.record(ctx, 1, func(_ int, cb *command.CommandBuffer) error {
		if len(lights) == 0 {
			return nil
		}
		n := uint32(len(lights))
		rec := cb.Recorder()
		rec.PipelineBarrier([]gpucore.ImageBarrier{
			toGeneral(t.Temp.Image, n),
			toGeneral(t.Blurred.Image, n),
		})
		rec.BindPipeline(gpucore.BindCompute, s.pipeline)
		for layer := range n {
			rec.BindDescriptorSets(gpucore.BindCompute, s.layout, 0, s.sets[2*layer:2*layer+1])
			rec.PushConstants(s.layout, gpucore.ShaderCompute, 0, pushU32(0))
			rec.Dispatch(groups, groups, 1)
			rec.PipelineBarrier([]gpucore.ImageBarrier{{
				Image:      t.Temp.Image,
				Aspect:     gpucore.AspectColor,
				BaseLayer:  layer,
				LayerCount: 1,
				OldLayout:  gpucore.LayoutGeneral,
				NewLayout:  gpucore.LayoutGeneral,
				SrcStage:   gpucore.StageComputeShader,
				DstStage:   gpucore.StageComputeShader,
				SrcAccess:  gpucore.AccessShaderWrite,
				DstAccess:  gpucore.AccessShaderRead,
			}})
			rec.BindDescriptorSets(gpucore.BindCompute, s.layout, 0, s.sets[2*layer+1:2*layer+2])
			rec.PushConstants(s.layout, gpucore.ShaderCompute, 0, pushU32(1))
			rec.Dispatch(groups, groups, 1)
		}
		rec.PipelineBarrier([]gpucore.ImageBarrier{{
			Image:      t.Blurred.Image,
			Aspect:     gpucore.AspectColor,
			LayerCount: n,
			OldLayout:  gpucore.LayoutGeneral,
			NewLayout:  gpucore.LayoutShaderReadOnly,
			SrcStage:   gpucore.StageComputeShader,
			DstStage:   gpucore.StageFragmentShader,
			SrcAccess:  gpucore.AccessShaderWrite,
			DstAccess:  gpucore.AccessShaderRead,
		}})
		return nil
	})
}

func toGeneral(img gpucore.ImageID, layers uint32) gpucore.ImageBarrier {
	return gpucore.ImageBarrier{
		Image:      img,
		Aspect:     gpucore.AspectColor,
		LayerCount: layers,
		OldLayout:  gpucore.LayoutUndefined,
		NewLayout:  gpucore.LayoutGeneral,
		SrcStage:   gpucore.StageTopOfPipe,
		DstStage:   gpucore.StageComputeShader,
		DstAccess:  gpucore.AccessShaderWrite,
	}
}

func (s *Blur) Destroy(ctx *Context) { s.destroy(ctx) }

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"errors"
	"testing"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/deferred/gpucore"
)

func TestFormatRoundTrip(t *testing.T) {
	for f := range formats {
		if got := gpuFormat(format(f)); got != f {
			t.Errorf("gpuFormat(format(%v)) = %v", f, got)
		}
	}
	if got := format(gpucore.FormatUndefined); got != vk.FormatUndefined {
		t.Errorf("format(Undefined) = %v", got)
	}
	if got := gpuFormat(vk.FormatR8Unorm); got != gpucore.FormatUndefined {
		t.Errorf("gpuFormat(R8Unorm) = %v, want Undefined", got)
	}
}

func TestImageLayout(t *testing.T) {
	tests := []struct {
		in   gpucore.ImageLayout
		want vk.ImageLayout
	}{
		{gpucore.LayoutUndefined, vk.ImageLayoutUndefined},
		{gpucore.LayoutColorAttachment, vk.ImageLayoutColorAttachmentOptimal},
		{gpucore.LayoutDepthStencilAttachment, vk.ImageLayoutDepthStencilAttachmentOptimal},
		{gpucore.LayoutDepthStencilReadOnly, vk.ImageLayoutDepthStencilReadOnlyOptimal},
		{gpucore.LayoutShaderReadOnly, vk.ImageLayoutShaderReadOnlyOptimal},
		{gpucore.LayoutPresentSrc, vk.ImageLayoutPresentSrc},
	}
	for _, tt := range tests {
		if got := imageLayout(tt.in); got != tt.want {
			t.Errorf("imageLayout(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFlagMaps(t *testing.T) {
	u := imageUsages.apply(gpucore.ImageUsageColorAttachment | gpucore.ImageUsageInputAttachment)
	want := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageInputAttachmentBit)
	if u != want {
		t.Errorf("image usage = %#x, want %#x", u, want)
	}
	if got := bufferUsages.apply(0); got != 0 {
		t.Errorf("empty buffer usage = %#x", got)
	}
	a := accesses.apply(gpucore.AccessColorAttachmentWrite | gpucore.AccessInputAttachmentRead)
	if a != vk.AccessFlags(vk.AccessColorAttachmentWriteBit|vk.AccessInputAttachmentReadBit) {
		t.Errorf("access = %#x", a)
	}
	if got := shaderStages.apply(gpucore.ShaderGraphics); got != vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit) {
		t.Errorf("graphics stages = %#x", got)
	}
}

func TestStageMaskNeverEmpty(t *testing.T) {
	if got := stageMask(0); got != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) {
		t.Errorf("stageMask(0) = %#x, want top of pipe", got)
	}
	got := stageMask(gpucore.StageColorAttachmentOutput | gpucore.StageFragmentShader)
	want := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageFragmentShaderBit)
	if got != want {
		t.Errorf("stageMask = %#x, want %#x", got, want)
	}
}

func TestFormatAspect(t *testing.T) {
	tests := []struct {
		in   gpucore.Format
		want vk.ImageAspectFlags
	}{
		{gpucore.FormatRGBA16Float, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
		{gpucore.FormatDepth32Float, vk.ImageAspectFlags(vk.ImageAspectDepthBit)},
		{gpucore.FormatDepth24PlusStencil8, vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)},
	}
	for _, tt := range tests {
		if got := formatAspect(tt.in); got != tt.want {
			t.Errorf("formatAspect(%v) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestBlendAttachment(t *testing.T) {
	if s := blendAttachment(gpucore.BlendNone); s.BlendEnable != vk.False {
		t.Error("BlendNone enables blending")
	}
	s := blendAttachment(gpucore.BlendAdditive)
	if s.BlendEnable != vk.True || s.SrcColorBlendFactor != vk.BlendFactorOne || s.DstColorBlendFactor != vk.BlendFactorOne {
		t.Errorf("additive blend = %+v", s)
	}
	if s := blendAttachment(gpucore.BlendAlpha); s.DstColorBlendFactor != vk.BlendFactorOneMinusSrcAlpha {
		t.Errorf("alpha blend dst factor = %v", s.DstColorBlendFactor)
	}
}

func TestQueueCaps(t *testing.T) {
	c := queueCaps(vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit))
	if !c.Has(gpucore.QueueGraphics) || !c.Has(gpucore.QueueCompute) || c.Has(gpucore.QueueTransfer) {
		t.Errorf("queueCaps = %v", c)
	}
	if c.Has(gpucore.QueuePresent) {
		t.Error("present must come from the surface query")
	}
}

func TestChooseFormat(t *testing.T) {
	offered := []vk.SurfaceFormat{
		{Format: vk.FormatR8Unorm},
		{Format: vk.FormatB8g8r8a8Unorm},
		{Format: vk.FormatB8g8r8a8Srgb},
	}
	tests := []struct {
		name string
		want gpucore.Format
		got  gpucore.Format
	}{
		{"exact", gpucore.FormatBGRA8Unorm, gpucore.FormatBGRA8Unorm},
		{"undefined prefers srgb", gpucore.FormatUndefined, gpucore.FormatBGRA8Srgb},
		{"unoffered falls back", gpucore.FormatRGBA16Float, gpucore.FormatBGRA8Srgb},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, sf, err := chooseFormat(tt.want, offered)
			if err != nil {
				t.Fatal(err)
			}
			if f != tt.got || sf.Format != format(tt.got) {
				t.Errorf("chooseFormat(%v) = %v (%v), want %v", tt.want, f, sf.Format, tt.got)
			}
		})
	}

	if _, _, err := chooseFormat(gpucore.FormatUndefined, offered[:1]); !errors.Is(err, gpucore.ErrUnsupported) {
		t.Errorf("no known format: err = %v, want ErrUnsupported", err)
	}
	free := []vk.SurfaceFormat{{Format: vk.FormatUndefined}}
	if f, _, err := chooseFormat(gpucore.FormatRGBA8Srgb, free); err != nil || f != gpucore.FormatRGBA8Srgb {
		t.Errorf("surface without preference: %v, %v", f, err)
	}
}

func TestSharing(t *testing.T) {
	tests := []struct {
		name     string
		families []uint32
		mode     vk.SharingMode
		shared   int
	}{
		{"none", nil, vk.SharingModeExclusive, 0},
		{"one", []uint32{2}, vk.SharingModeExclusive, 0},
		{"duplicate", []uint32{0, 0}, vk.SharingModeExclusive, 0},
		{"graphics and compute", []uint32{2, 0}, vk.SharingModeConcurrent, 2},
	}
	for _, tt := range tests {
		mode, shared := sharing(tt.families)
		if mode != tt.mode || len(shared) != tt.shared {
			t.Errorf("%s: sharing(%v) = %v, %v", tt.name, tt.families, mode, shared)
		}
	}
}

func TestCheckMapsResults(t *testing.T) {
	tests := []struct {
		res  vk.Result
		want error
	}{
		{vk.Timeout, gpucore.ErrTimeout},
		{vk.ErrorOutOfDate, gpucore.ErrOutOfDate},
		{vk.ErrorDeviceLost, gpucore.ErrDeviceLost},
		{vk.ErrorOutOfDeviceMemory, gpucore.ErrAllocation},
	}
	for _, tt := range tests {
		if err := check(tt.res, "op"); !errors.Is(err, tt.want) {
			t.Errorf("check(%v) = %v, want %v", tt.res, err, tt.want)
		}
	}
	if err := check(vk.Success, "op"); err != nil {
		t.Errorf("check(Success) = %v", err)
	}
}

func TestCstr(t *testing.T) {
	if got := cstr("main"); got != "main\x00" {
		t.Errorf("cstr = %q", got)
	}
	if got := cstr("main\x00"); got != "main\x00" {
		t.Errorf("cstr double terminates: %q", got)
	}
}

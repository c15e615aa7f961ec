// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/deferred/gpucore"
)

func TestTextureFormat(t *testing.T) {
	tests := []struct {
		in   gpucore.Format
		want gputypes.TextureFormat
	}{
		{gpucore.FormatRGBA8Unorm, gputypes.TextureFormatRGBA8Unorm},
		{gpucore.FormatBGRA8Srgb, gputypes.TextureFormatBGRA8UnormSrgb},
		{gpucore.FormatRG32Float, gputypes.TextureFormatRG32Float},
		{gpucore.FormatRGBA16Float, gputypes.TextureFormatRGBA16Float},
		{gpucore.FormatDepth32Float, gputypes.TextureFormatDepth32Float},
		{gpucore.FormatDepth24PlusStencil8, gputypes.TextureFormatDepth24PlusStencil8},
		{gpucore.FormatUndefined, gputypes.TextureFormatUndefined},
	}
	for _, tt := range tests {
		if got := textureFormat(tt.in); got != tt.want {
			t.Errorf("textureFormat(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSurfaceFormatRoundTrip(t *testing.T) {
	for _, f := range []gpucore.Format{
		gpucore.FormatRGBA8Unorm, gpucore.FormatRGBA8Srgb,
		gpucore.FormatBGRA8Unorm, gpucore.FormatBGRA8Srgb,
	} {
		if got := surfaceFormat(textureFormat(f)); got != f {
			t.Errorf("surfaceFormat(textureFormat(%v)) = %v", f, got)
		}
	}
}

func TestLayoutUsage(t *testing.T) {
	tests := []struct {
		in   gpucore.ImageLayout
		want gputypes.TextureUsage
	}{
		{gpucore.LayoutColorAttachment, gputypes.TextureUsageRenderAttachment},
		{gpucore.LayoutDepthStencilAttachment, gputypes.TextureUsageRenderAttachment},
		{gpucore.LayoutShaderReadOnly, gputypes.TextureUsageTextureBinding},
		{gpucore.LayoutDepthStencilReadOnly, gputypes.TextureUsageTextureBinding},
		{gpucore.LayoutGeneral, gputypes.TextureUsageStorageBinding},
		{gpucore.LayoutTransferDst, gputypes.TextureUsageCopyDst},
		{gpucore.LayoutUndefined, 0},
	}
	for _, tt := range tests {
		if got := layoutUsage(tt.in); got != tt.want {
			t.Errorf("layoutUsage(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestUsageFlags(t *testing.T) {
	u := textureUsage(gpucore.ImageUsageColorAttachment | gpucore.ImageUsageInputAttachment)
	if u&gputypes.TextureUsageRenderAttachment == 0 || u&gputypes.TextureUsageTextureBinding == 0 {
		t.Errorf("input color attachment usage = %v", u)
	}
	b := bufferUsage(gpucore.BufferUsageUniform, true)
	if b&gputypes.BufferUsageCopyDst == 0 {
		t.Error("host visible buffer is not writable by the queue")
	}
	if b := bufferUsage(gpucore.BufferUsageVertex, false); b&gputypes.BufferUsageCopyDst != 0 {
		t.Errorf("device local vertex buffer usage = %v", b)
	}
}

func TestLoadStoreOps(t *testing.T) {
	if loadOp(gpucore.LoadOpDontCare) != gputypes.LoadOpLoad {
		t.Error("don't care load should load")
	}
	if loadOp(gpucore.LoadOpClear) != gputypes.LoadOpClear {
		t.Error("clear load lost")
	}
	if storeOp(gpucore.StoreOpDontCare) != gputypes.StoreOpDiscard {
		t.Error("don't care store should discard")
	}
}

func TestBlendState(t *testing.T) {
	if blendState(gpucore.BlendNone) != nil {
		t.Error("opaque target has blend state")
	}
	add := blendState(gpucore.BlendAdditive)
	if add == nil || add.Color.SrcFactor != gputypes.BlendFactorOne || add.Color.DstFactor != gputypes.BlendFactorOne {
		t.Errorf("additive blend = %+v", add)
	}
}

func TestRewritePushConstants(t *testing.T) {
	src := "struct P { m: mat4x4<f32> }\nvar<push_constant> pc: P;\n"
	got := rewritePushConstants(src)
	if strings.Contains(got, "push_constant") {
		t.Fatalf("push constant declaration survived: %q", got)
	}
	if !strings.Contains(got, pushDecl+" pc: P;") {
		t.Errorf("rewritten source = %q", got)
	}
	if plain := "var<uniform> u: U;"; rewritePushConstants(plain) != plain {
		t.Error("source without push constants changed")
	}
}

func TestLastUses(t *testing.T) {
	rp := &gpucore.RenderPassDesc{
		Attachments: make([]gpucore.AttachmentDesc, 3),
		Subpasses: []gpucore.SubpassDesc{
			{
				Color:        []gpucore.AttachmentRef{{Attachment: 0}, {Attachment: 1}},
				DepthStencil: []gpucore.AttachmentRef{{Attachment: gpucore.AttachmentUnused}, {Attachment: 2}},
			},
			{
				Input: []gpucore.AttachmentRef{{Attachment: 0}},
				Color: []gpucore.AttachmentRef{{Attachment: 1}},
			},
		},
	}
	got := lastUses(rp)
	want := map[uint32]int{0: 1, 1: 1, 2: 0}
	for att, sp := range want {
		if got[att] != sp {
			t.Errorf("last use of attachment %d = %d, want %d", att, got[att], sp)
		}
	}
	if _, ok := got[gpucore.AttachmentUnused]; ok {
		t.Error("unused reference counted as a use")
	}
}

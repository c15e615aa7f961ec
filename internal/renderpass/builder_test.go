package renderpass

import (
	"errors"
	"testing"

	"github.com/gogpu/deferred/backend/soft"
	"github.com/gogpu/deferred/gpucore"
)

var (
	colorDesc = gpucore.AttachmentDesc{Format: gpucore.FormatRGBA16Float, LoadOp: gpucore.LoadOpClear, StoreOp: gpucore.StoreOpStore}
	depthDesc = gpucore.AttachmentDesc{Format: gpucore.FormatDepth32Float, LoadOp: gpucore.LoadOpClear}
)

func mustStart(t *testing.T, label string) *Builder {
	t.Helper()
	b := NewBuilder(label)
	if err := b.StartConstruction(); err != nil {
		t.Fatalf("StartConstruction: %v", err)
	}
	return b
}

func TestBuildGBufferPass(t *testing.T) {
	d := soft.New(soft.Options{})
	b := mustStart(t, "gbuffer")

	var colors []uint32
	for i := 0; i < 3; i++ {
		a, err := b.AddAttachment(colorDesc)
		if err != nil {
			t.Fatal(err)
		}
		colors = append(colors, a)
	}
	depth, _ := b.AddAttachment(depthDesc)
	for _, a := range colors {
		if err := b.AddAttachmentRef(Color, a, gpucore.LayoutColorAttachment); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.AddAttachmentRef(DepthStencil, depth, gpucore.LayoutDepthStencilAttachment); err != nil {
		t.Fatal(err)
	}
	if _, err := b.FinishSubpass(); err != nil {
		t.Fatal(err)
	}
	if err := b.AddSubpassDependency(gpucore.SubpassDependency{SrcSubpass: gpucore.SubpassExternal, DstSubpass: 0}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddSubpassDependency(gpucore.SubpassDependency{SrcSubpass: 0, DstSubpass: gpucore.SubpassExternal}); err != nil {
		t.Fatal(err)
	}
	rp, err := b.FinishRenderPass(d)
	if err != nil {
		t.Fatalf("FinishRenderPass: %v", err)
	}
	defer rp.Destroy()

	if !b.IsConstructed() {
		t.Error("IsConstructed() = false")
	}
	if got := len(rp.Attachments()); got != 4 {
		t.Errorf("len(Attachments()) = %d, want 4 (one per AddAttachment)", got)
	}
	sp := rp.Subpasses()[0]
	if len(sp.DepthStencil) != 4 {
		t.Fatalf("len(DepthStencil) = %d, want 4", len(sp.DepthStencil))
	}
	for i := 0; i < 3; i++ {
		if !sp.DepthStencil[i].Unused() {
			t.Errorf("DepthStencil[%d] = %+v, want unused placeholder", i, sp.DepthStencil[i])
		}
	}
	if sp.DepthStencil[3].Attachment != depth {
		t.Errorf("DepthStencil[3] = %d, want %d", sp.DepthStencil[3].Attachment, depth)
	}
	if f, ok := rp.DepthFormat(0); !ok || f != gpucore.FormatDepth32Float {
		t.Errorf("DepthFormat = %v, %v", f, ok)
	}
	if got := rp.ColorFormats(0); len(got) != 3 || got[0] != gpucore.FormatRGBA16Float {
		t.Errorf("ColorFormats = %v", got)
	}
	if _, ok := d.RenderPassDesc(rp.ID()); !ok {
		t.Error("driver has no render pass for ID")
	}
}

func TestDepthAlignmentAcrossSubpasses(t *testing.T) {
	b := mustStart(t, "two")
	c0, _ := b.AddAttachment(colorDesc)
	c1, _ := b.AddAttachment(colorDesc)
	depth, _ := b.AddAttachment(depthDesc)

	// Subpass 0: depth before any color.
	_ = b.AddAttachmentRef(DepthStencil, depth, gpucore.LayoutDepthStencilAttachment)
	_ = b.AddAttachmentRef(Color, c0, gpucore.LayoutColorAttachment)
	_, _ = b.FinishSubpass()

	// Subpass 1: two colors, then depth.
	_ = b.AddAttachmentRef(Color, c0, gpucore.LayoutColorAttachment)
	_ = b.AddAttachmentRef(Color, c1, gpucore.LayoutColorAttachment)
	_ = b.AddAttachmentRef(DepthStencil, depth, gpucore.LayoutDepthStencilReadOnly)
	_, _ = b.FinishSubpass()

	rp, err := b.FinishRenderPass(soft.New(soft.Options{}))
	if err != nil {
		t.Fatal(err)
	}
	subs := rp.Subpasses()
	if n := len(subs[0].DepthStencil); n != 1 {
		t.Errorf("subpass 0 DepthStencil len = %d, want 1", n)
	}
	ds := subs[1].DepthStencil
	if len(ds) != 3 || !ds[0].Unused() || !ds[1].Unused() || ds[2].Attachment != depth {
		t.Errorf("subpass 1 DepthStencil = %+v, want [unused unused %d]", ds, depth)
	}
}

func TestResolveRequiresColor(t *testing.T) {
	b := mustStart(t, "msaa")
	c, _ := b.AddAttachment(colorDesc)
	r, _ := b.AddAttachment(colorDesc)
	if err := b.AddAttachmentRef(Resolve, r, gpucore.LayoutColorAttachment); !errors.Is(err, ErrResolveWithoutColor) {
		t.Fatalf("resolve without color: err = %v", err)
	}
	_ = b.AddAttachmentRef(Color, c, gpucore.LayoutColorAttachment)
	if err := b.AddAttachmentRef(Resolve, r, gpucore.LayoutColorAttachment); err != nil {
		t.Fatalf("resolve with color: %v", err)
	}
	if err := b.AddAttachmentRef(Resolve, r, gpucore.LayoutColorAttachment); !errors.Is(err, ErrResolveWithoutColor) {
		t.Errorf("second resolve for one color: err = %v", err)
	}
}

func TestResolvePaddedToColorCount(t *testing.T) {
	b := mustStart(t, "msaa")
	c0, _ := b.AddAttachment(colorDesc)
	c1, _ := b.AddAttachment(colorDesc)
	r, _ := b.AddAttachment(colorDesc)
	_ = b.AddAttachmentRef(Color, c0, gpucore.LayoutColorAttachment)
	_ = b.AddAttachmentRef(Resolve, r, gpucore.LayoutColorAttachment)
	_ = b.AddAttachmentRef(Color, c1, gpucore.LayoutColorAttachment)
	_, _ = b.FinishSubpass()
	rp, err := b.FinishRenderPass(soft.New(soft.Options{}))
	if err != nil {
		t.Fatal(err)
	}
	res := rp.Subpasses()[0].Resolve
	if len(res) != 2 || res[0].Attachment != r || !res[1].Unused() {
		t.Errorf("Resolve = %+v", res)
	}
}

func TestDependencyRules(t *testing.T) {
	b := mustStart(t, "deps")
	_, _ = b.FinishSubpass()
	_, _ = b.FinishSubpass()

	tests := []struct {
		name string
		dep  gpucore.SubpassDependency
		want error
	}{
		{"forward", gpucore.SubpassDependency{SrcSubpass: 0, DstSubpass: 1}, nil},
		{"self", gpucore.SubpassDependency{SrcSubpass: 1, DstSubpass: 1}, nil},
		{"from external", gpucore.SubpassDependency{SrcSubpass: gpucore.SubpassExternal, DstSubpass: 0}, nil},
		{"to external", gpucore.SubpassDependency{SrcSubpass: 1, DstSubpass: gpucore.SubpassExternal}, nil},
		{"backward", gpucore.SubpassDependency{SrcSubpass: 1, DstSubpass: 0}, ErrBackwardDependency},
		{"external both", gpucore.SubpassDependency{SrcSubpass: gpucore.SubpassExternal, DstSubpass: gpucore.SubpassExternal}, ErrBackwardDependency},
		{"out of range", gpucore.SubpassDependency{SrcSubpass: 0, DstSubpass: 2}, ErrSubpassRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.AddSubpassDependency(tt.dep)
			if tt.want == nil && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestProtocolMisuse(t *testing.T) {
	b := NewBuilder("x")
	if _, err := b.AddAttachment(colorDesc); !errors.Is(err, ErrNotConstructing) {
		t.Errorf("AddAttachment before start: err = %v", err)
	}
	if _, err := b.FinishRenderPass(soft.New(soft.Options{})); !errors.Is(err, ErrNotConstructing) {
		t.Errorf("FinishRenderPass before start: err = %v", err)
	}

	_ = b.StartConstruction()
	if _, err := b.FinishRenderPass(soft.New(soft.Options{})); !errors.Is(err, ErrNoSubpasses) {
		t.Errorf("FinishRenderPass without subpasses: err = %v", err)
	}
	c, _ := b.AddAttachment(colorDesc)
	if err := b.AddAttachmentRef(Color, c+5, gpucore.LayoutColorAttachment); !errors.Is(err, ErrAttachmentRange) {
		t.Errorf("out of range ref: err = %v", err)
	}
	_ = b.AddAttachmentRef(Color, c, gpucore.LayoutColorAttachment)
	if _, err := b.FinishRenderPass(soft.New(soft.Options{})); !errors.Is(err, ErrUnfinishedSubpass) {
		t.Errorf("FinishRenderPass with open subpass: err = %v", err)
	}
	_, _ = b.FinishSubpass()
	if _, err := b.FinishRenderPass(soft.New(soft.Options{})); err != nil {
		t.Fatal(err)
	}
	if err := b.StartConstruction(); !errors.Is(err, ErrAlreadyConstructed) {
		t.Errorf("StartConstruction after construct: err = %v", err)
	}
	if _, err := b.AddAttachment(colorDesc); !errors.Is(err, ErrAlreadyConstructed) {
		t.Errorf("AddAttachment after construct: err = %v", err)
	}
}

func TestDuplicateDepthRejected(t *testing.T) {
	b := mustStart(t, "dd")
	d0, _ := b.AddAttachment(depthDesc)
	_ = b.AddAttachmentRef(DepthStencil, d0, gpucore.LayoutDepthStencilAttachment)
	if err := b.AddAttachmentRef(DepthStencil, d0, gpucore.LayoutDepthStencilAttachment); !errors.Is(err, ErrDuplicateDepth) {
		t.Errorf("second depth ref: err = %v", err)
	}
}

func TestInputAndPreserveRefs(t *testing.T) {
	b := mustStart(t, "io")
	c, _ := b.AddAttachment(colorDesc)
	out, _ := b.AddAttachment(colorDesc)
	_ = b.AddAttachmentRef(Color, c, gpucore.LayoutColorAttachment)
	_, _ = b.FinishSubpass()
	if err := b.AddInputRef(c, gpucore.LayoutShaderReadOnly); err != nil {
		t.Fatal(err)
	}
	_ = b.AddAttachmentRef(Color, out, gpucore.LayoutColorAttachment)
	_, _ = b.FinishSubpass()
	_ = b.AddPreserveRef(c)
	_, _ = b.FinishSubpass()
	if err := b.AddPreserveRef(gpucore.AttachmentUnused); !errors.Is(err, ErrAttachmentRange) {
		t.Errorf("unused preserve: err = %v", err)
	}

	rp, err := b.FinishRenderPass(soft.New(soft.Options{}))
	if err != nil {
		t.Fatal(err)
	}
	subs := rp.Subpasses()
	if len(subs) != 3 || len(subs[1].Input) != 1 || len(subs[2].Preserve) != 1 {
		t.Errorf("subpasses = %+v", subs)
	}
}

func TestDriverFailureKeepsConstruction(t *testing.T) {
	d := soft.New(soft.Options{})
	b := mustStart(t, "fail")
	_, _ = b.FinishSubpass()
	d.FailNext("CreateRenderPass", nil)
	if _, err := b.FinishRenderPass(d); !errors.Is(err, soft.ErrInjected) {
		t.Fatalf("err = %v", err)
	}
	if b.IsConstructed() {
		t.Error("IsConstructed() after driver failure")
	}
	if _, err := b.FinishRenderPass(d); err != nil {
		t.Errorf("retry: %v", err)
	}
}

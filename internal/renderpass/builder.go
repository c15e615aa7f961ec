// Package renderpass builds render pass graphs incrementally and compiles
// them into driver render passes.
//
// A Builder follows a fixed protocol:
//
//	b.StartConstruction()
//	color, _ := b.AddAttachment(colorDesc)
//	depth, _ := b.AddAttachment(depthDesc)
//	b.AddAttachmentRef(renderpass.Color, color, gpucore.LayoutColorAttachment)
//	b.AddAttachmentRef(renderpass.DepthStencil, depth, gpucore.LayoutDepthStencilAttachment)
//	b.FinishSubpass()
//	b.AddSubpassDependency(dep)
//	rp, err := b.FinishRenderPass(drv)
//
// The construction state is dropped once the pass is compiled.
package renderpass

import (
	"errors"
	"fmt"

	"github.com/gogpu/deferred/gpucore"
)

// Builder errors.
var (
	ErrNotConstructing     = errors.New("renderpass: StartConstruction not called")
	ErrAlreadyConstructed  = errors.New("renderpass: render pass already constructed")
	ErrResolveWithoutColor = errors.New("renderpass: resolve reference without color reference at the same index")
	ErrBackwardDependency  = errors.New("renderpass: dependency source after destination")
	ErrAttachmentRange     = errors.New("renderpass: attachment index out of range")
	ErrSubpassRange        = errors.New("renderpass: subpass index out of range")
	ErrDuplicateDepth      = errors.New("renderpass: subpass already has a depth-stencil reference")
	ErrNoSubpasses         = errors.New("renderpass: no finished subpass")
	ErrUnfinishedSubpass   = errors.New("renderpass: subpass has references but was not finished")
)

// RefKind tags an attachment reference added with AddAttachmentRef.
type RefKind uint8

// Reference kinds.
const (
	Color RefKind = iota
	Resolve
	DepthStencil
)

func (k RefKind) String() string {
	switch k {
	case Color:
		return "color"
	case Resolve:
		return "resolve"
	case DepthStencil:
		return "depth-stencil"
	}
	return fmt.Sprintf("RefKind(%d)", uint8(k))
}

type construction struct {
	attachments  []gpucore.AttachmentDesc
	subpasses    []gpucore.SubpassDesc
	current      gpucore.SubpassDesc
	touched      bool
	dependencies []gpucore.SubpassDependency
}

// Builder accumulates a render pass graph.
type Builder struct {
	label       string
	c           *construction
	constructed bool
}

// NewBuilder returns a builder for a render pass labelled label.
func NewBuilder(label string) *Builder { return &Builder{label: label} }

// IsConstructed reports whether FinishRenderPass completed.
func (b *Builder) IsConstructed() bool { return b.constructed }

// StartConstruction begins a new graph. Calling it again before
// FinishRenderPass discards the partial graph.
func (b *Builder) StartConstruction() error {
	if b.constructed {
		return ErrAlreadyConstructed
	}
	b.c = &construction{}
	return nil
}

func (b *Builder) building() error {
	if b.constructed {
		return ErrAlreadyConstructed
	}
	if b.c == nil {
		return ErrNotConstructing
	}
	return nil
}

func (b *Builder) checkAttachment(a uint32) error {
	if a != gpucore.AttachmentUnused && a >= uint32(len(b.c.attachments)) {
		return fmt.Errorf("%w: %d of %d", ErrAttachmentRange, a, len(b.c.attachments))
	}
	return nil
}

// AddAttachment appends an attachment and returns its index.
func (b *Builder) AddAttachment(desc gpucore.AttachmentDesc) (uint32, error) {
	if err := b.building(); err != nil {
		return 0, err
	}
	b.c.attachments = append(b.c.attachments, desc)
	return uint32(len(b.c.attachments) - 1), nil
}

// AddAttachmentRef adds a color, resolve or depth-stencil reference to the
// current subpass.
//
// A resolve reference is only legal when a color reference exists at the
// index it will occupy. A depth-stencil reference is preceded by unused
// placeholders up to the current color reference count.
func (b *Builder) AddAttachmentRef(kind RefKind, attachment uint32, layout gpucore.ImageLayout) error {
	if err := b.building(); err != nil {
		return err
	}
	if err := b.checkAttachment(attachment); err != nil {
		return err
	}
	sp := &b.c.current
	ref := gpucore.AttachmentRef{Attachment: attachment, Layout: layout}
	switch kind {
	case Color:
		sp.Color = append(sp.Color, ref)
	case Resolve:
		if len(sp.Resolve) >= len(sp.Color) {
			return ErrResolveWithoutColor
		}
		sp.Resolve = append(sp.Resolve, ref)
	case DepthStencil:
		if _, ok := sp.DepthAttachment(); ok && !ref.Unused() {
			return ErrDuplicateDepth
		}
		for len(sp.DepthStencil) < len(sp.Color) {
			sp.DepthStencil = append(sp.DepthStencil, unused())
		}
		sp.DepthStencil = append(sp.DepthStencil, ref)
	default:
		return fmt.Errorf("renderpass: unknown reference kind %s", kind)
	}
	b.c.touched = true
	return nil
}

// AddInputRef adds an input attachment reference to the current subpass.
func (b *Builder) AddInputRef(attachment uint32, layout gpucore.ImageLayout) error {
	if err := b.building(); err != nil {
		return err
	}
	if err := b.checkAttachment(attachment); err != nil {
		return err
	}
	b.c.current.Input = append(b.c.current.Input, gpucore.AttachmentRef{Attachment: attachment, Layout: layout})
	b.c.touched = true
	return nil
}

// AddPreserveRef marks an attachment the current subpass does not use but
// whose contents must survive it.
func (b *Builder) AddPreserveRef(attachment uint32) error {
	if err := b.building(); err != nil {
		return err
	}
	if attachment == gpucore.AttachmentUnused {
		return fmt.Errorf("%w: preserve reference cannot be unused", ErrAttachmentRange)
	}
	if err := b.checkAttachment(attachment); err != nil {
		return err
	}
	b.c.current.Preserve = append(b.c.current.Preserve, attachment)
	b.c.touched = true
	return nil
}

// FinishSubpass closes the current subpass and starts the next one. It
// returns the index of the closed subpass.
func (b *Builder) FinishSubpass() (uint32, error) {
	if err := b.building(); err != nil {
		return 0, err
	}
	sp := b.c.current
	if len(sp.Resolve) > 0 {
		for len(sp.Resolve) < len(sp.Color) {
			sp.Resolve = append(sp.Resolve, unused())
		}
	}
	b.c.subpasses = append(b.c.subpasses, sp)
	b.c.current = gpucore.SubpassDesc{}
	b.c.touched = false
	return uint32(len(b.c.subpasses) - 1), nil
}

// AddSubpassDependency orders two finished subpasses, or a finished subpass
// and gpucore.SubpassExternal.
func (b *Builder) AddSubpassDependency(dep gpucore.SubpassDependency) error {
	if err := b.building(); err != nil {
		return err
	}
	n := uint32(len(b.c.subpasses))
	for _, i := range []uint32{dep.SrcSubpass, dep.DstSubpass} {
		if i != gpucore.SubpassExternal && i >= n {
			return fmt.Errorf("%w: %d of %d", ErrSubpassRange, i, n)
		}
	}
	if dep.SrcSubpass != gpucore.SubpassExternal && dep.DstSubpass != gpucore.SubpassExternal &&
		dep.SrcSubpass > dep.DstSubpass {
		return fmt.Errorf("%w: %d -> %d", ErrBackwardDependency, dep.SrcSubpass, dep.DstSubpass)
	}
	if dep.SrcSubpass == gpucore.SubpassExternal && dep.DstSubpass == gpucore.SubpassExternal {
		return fmt.Errorf("%w: external -> external", ErrBackwardDependency)
	}
	b.c.dependencies = append(b.c.dependencies, dep)
	return nil
}

// FinishRenderPass compiles the graph on drv and drops the construction
// state. On error the construction state is kept so the caller can inspect
// or retry.
func (b *Builder) FinishRenderPass(drv gpucore.Driver) (*RenderPass, error) {
	if err := b.building(); err != nil {
		return nil, err
	}
	if b.c.touched {
		return nil, ErrUnfinishedSubpass
	}
	if len(b.c.subpasses) == 0 {
		return nil, ErrNoSubpasses
	}
	desc := gpucore.RenderPassDesc{
		Label:        b.label,
		Attachments:  b.c.attachments,
		Subpasses:    b.c.subpasses,
		Dependencies: b.c.dependencies,
	}
	id, err := drv.CreateRenderPass(&desc)
	if err != nil {
		return nil, fmt.Errorf("create render pass %q: %w", b.label, err)
	}
	b.c = nil
	b.constructed = true
	return &RenderPass{drv: drv, id: id, desc: desc}, nil
}

func unused() gpucore.AttachmentRef {
	return gpucore.AttachmentRef{Attachment: gpucore.AttachmentUnused, Layout: gpucore.LayoutUndefined}
}

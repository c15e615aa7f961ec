package renderpass

import (
	"github.com/gogpu/deferred/gpucore"
)

// RenderPass is a compiled, immutable render pass.
type RenderPass struct {
	drv  gpucore.Driver
	id   gpucore.RenderPassID
	desc gpucore.RenderPassDesc
}

// ID returns the driver handle.
func (rp *RenderPass) ID() gpucore.RenderPassID { return rp.id }

// Label returns the debug label.
func (rp *RenderPass) Label() string { return rp.desc.Label }

// Attachments returns the attachment descriptions in index order.
func (rp *RenderPass) Attachments() []gpucore.AttachmentDesc { return rp.desc.Attachments }

// Subpasses returns the subpass reference sets in order.
func (rp *RenderPass) Subpasses() []gpucore.SubpassDesc { return rp.desc.Subpasses }

// Dependencies returns the subpass dependencies.
func (rp *RenderPass) Dependencies() []gpucore.SubpassDependency { return rp.desc.Dependencies }

// ColorCount returns the number of color references of subpass i.
func (rp *RenderPass) ColorCount(i int) int { return len(rp.desc.Subpasses[i].Color) }

// ColorFormats returns the formats of the color attachments of subpass i,
// with FormatUndefined for unused slots.
func (rp *RenderPass) ColorFormats(i int) []gpucore.Format {
	refs := rp.desc.Subpasses[i].Color
	out := make([]gpucore.Format, len(refs))
	for j, r := range refs {
		if !r.Unused() {
			out[j] = rp.desc.Attachments[r.Attachment].Format
		}
	}
	return out
}

// DepthFormat returns the depth attachment format of subpass i.
func (rp *RenderPass) DepthFormat(i int) (gpucore.Format, bool) {
	sp := rp.desc.Subpasses[i]
	ref, ok := sp.DepthAttachment()
	if !ok {
		return gpucore.FormatUndefined, false
	}
	return rp.desc.Attachments[ref.Attachment].Format, true
}

// Destroy releases the driver render pass.
func (rp *RenderPass) Destroy() {
	if rp.id != gpucore.InvalidID {
		rp.drv.DestroyRenderPass(rp.id)
		rp.id = gpucore.InvalidID
	}
}

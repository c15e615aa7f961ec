package soft

import (
	"slices"

	"github.com/gogpu/deferred/gpucore"
)

// owner is the queue family an exclusive resource belongs to. Exclusive
// resources are claimed by the first family that submits work using them.
type owner struct {
	family uint32
	set    bool
}

// resource names a buffer or an image.
type resource struct {
	image bool
	id    uint64
}

// touched returns the buffers and images the commands of cb access:
// framebuffer attachments, bound descriptors, vertex and index buffers and
// barrier targets.
func (d *Device) touched(cb *cmdBuffer) []resource {
	var out []resource
	addView := func(v gpucore.ImageViewID) {
		if iv, ok := d.views.Get(uint64(v)); ok {
			out = append(out, resource{image: true, id: uint64(iv.desc.Image)})
		}
	}
	for _, c := range cb.cmds {
		switch c.Op {
		case OpBeginRenderPass:
			if fb, ok := d.framebuffers.Get(uint64(c.Framebuffer)); ok {
				for _, v := range fb.Attachments {
					addView(v)
				}
			}
		case OpBindDescriptorSets:
			for _, id := range c.Sets {
				s, ok := d.descSets.Get(uint64(id))
				if !ok {
					continue
				}
				for _, w := range s.writes {
					if w.Buffer != gpucore.InvalidID {
						out = append(out, resource{id: uint64(w.Buffer)})
					}
					if w.ImageView != gpucore.InvalidID {
						addView(w.ImageView)
					}
				}
			}
		case OpBindVertexBuffers, OpBindIndexBuffer:
			for _, b := range c.Buffers {
				out = append(out, resource{id: uint64(b)})
			}
		case OpPipelineBarrier:
			for _, b := range c.Barriers {
				out = append(out, resource{image: true, id: uint64(b.Image)})
			}
		}
	}
	return out
}

// ownership returns the label, sharing families and owner of r. ok is false
// for destroyed resources.
func (d *Device) ownership(r resource) (label string, shared []uint32, o *owner, ok bool) {
	if r.image {
		img, ok := d.images.Get(r.id)
		if !ok {
			return "", nil, nil, false
		}
		return "image " + img.desc.Label, gpucore.SharedFamilies(img.desc.Families), &img.owner, true
	}
	b, ok := d.buffers.Get(r.id)
	if !ok {
		return "", nil, nil, false
	}
	return "buffer " + b.desc.Label, gpucore.SharedFamilies(b.desc.Families), &b.owner, true
}

// checkOwnership validates that family may use every resource touched by
// cb. claims collects first uses of exclusive resources; Submit commits
// them once the whole submission is accepted.
func (d *Device) checkOwnership(family uint32, cb *cmdBuffer, claims map[resource]uint32) error {
	for _, r := range d.touched(cb) {
		label, shared, o, ok := d.ownership(r)
		if !ok {
			continue
		}
		if shared != nil {
			if !slices.Contains(shared, family) {
				return validation("%s shared by families %v used on family %d", label, shared, family)
			}
			continue
		}
		owned, set := o.family, o.set
		if f, ok := claims[r]; ok {
			owned, set = f, true
		}
		if set && owned != family {
			return validation("exclusive %s owned by family %d used on family %d", label, owned, family)
		}
		claims[r] = family
	}
	return nil
}

func (d *Device) commitOwnership(claims map[resource]uint32) {
	for r, f := range claims {
		if _, _, o, ok := d.ownership(r); ok {
			*o = owner{family: f, set: true}
		}
	}
}

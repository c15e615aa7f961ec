package uniform

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/scene"
)

// Kind names one uniform block.
type Kind int

// Uniform blocks.
const (
	Camera Kind = iota
	Objects
	Materials
	Directional
	Points
	Control
	numKinds
)

var kindNames = [...]string{"camera", "objects", "materials", "directional", "points", "control"}

func (k Kind) String() string {
	if k >= 0 && k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ErrDestroyed is returned by Upload after Destroy.
var ErrDestroyed = errors.New("uniform: buffers destroyed")

// Buffers owns one host-visible uniform buffer per Kind, sized for the
// given limits.
type Buffers struct {
	drv   gpucore.Driver
	lim   scene.Limits
	ids   [numKinds]gpucore.BufferID
	sizes [numKinds]uint64
}

// Sizes returns the buffer size of every Kind for lim.
func Sizes(lim scene.Limits) [numKinds]uint64 {
	// Arrays are never empty so an empty scene still binds a valid range.
	n := func(c int) uint64 { return uint64(max(c, 1)) }
	return [numKinds]uint64{
		Camera:      CameraSize,
		Objects:     n(lim.MaxObjects) * ObjectStride,
		Materials:   n(lim.MaxMaterials) * MaterialStride,
		Directional: arrayHeader + n(lim.MaxDirectional)*DirectionalStride,
		Points:      arrayHeader + n(lim.MaxPoints)*PointStride,
		Control:     ControlSize,
	}
}

// New creates the buffers, shared by the given queue families. On failure
// nothing is left allocated.
func New(drv gpucore.Driver, lim scene.Limits, families ...uint32) (*Buffers, error) {
	b := &Buffers{drv: drv, lim: lim, sizes: Sizes(lim)}
	for k := range numKinds {
		id, err := drv.CreateBuffer(&gpucore.BufferDesc{
			Label:       k.String() + " uniforms",
			Size:        b.sizes[k],
			Usage:       gpucore.BufferUsageUniform | gpucore.BufferUsageTransferDst,
			HostVisible: true,
			Families:    families,
		})
		if err != nil {
			b.Destroy()
			return nil, fmt.Errorf("uniform: create %s buffer: %w", k, err)
		}
		b.ids[k] = id
	}
	return b, nil
}

// Buffer returns the buffer of a block.
func (b *Buffers) Buffer(k Kind) gpucore.BufferID { return b.ids[k] }

// Size returns the size of a block's buffer.
func (b *Buffers) Size(k Kind) uint64 { return b.sizes[k] }

// Limits returns the capacity the buffers were sized for.
func (b *Buffers) Limits() scene.Limits { return b.lim }

// Upload writes every block for one frame. The scene must already satisfy
// Validate against the buffers' limits.
func (b *Buffers) Upload(s *scene.Scene, ctl *ShaderControl, aspect float32) error {
	if b.ids[Camera] == gpucore.InvalidID {
		return ErrDestroyed
	}
	center, extent := bounds(s)
	blocks := [numKinds][]byte{
		Camera:      CameraBlock(s.Camera, s.Ambient, aspect),
		Objects:     ObjectBlock(s.Objects),
		Materials:   MaterialBlock(s.Materials),
		Directional: DirectionalBlock(s.Directional, center, extent),
		Points:      PointBlock(s.Points),
		Control:     ctl.Block(),
	}
	for k, data := range blocks {
		if len(data) == 0 {
			continue
		}
		if err := b.drv.WriteBuffer(b.ids[k], 0, data); err != nil {
			return fmt.Errorf("uniform: upload %s: %w", Kind(k), err)
		}
	}
	return nil
}

// UploadControl writes only the control block.
func (b *Buffers) UploadControl(ctl *ShaderControl) error {
	if b.ids[Control] == gpucore.InvalidID {
		return ErrDestroyed
	}
	if err := b.drv.WriteBuffer(b.ids[Control], 0, ctl.Block()); err != nil {
		return fmt.Errorf("uniform: upload %s: %w", Control, err)
	}
	return nil
}

// Destroy releases every buffer. It is safe to call more than once.
func (b *Buffers) Destroy() {
	for k, id := range b.ids {
		if id != gpucore.InvalidID {
			b.drv.DestroyBuffer(id)
			b.ids[k] = gpucore.InvalidID
		}
	}
}

// bounds returns the center and half size of the box holding every object
// origin, used to fit the directional shadow frusta.
func bounds(s *scene.Scene) (mgl32.Vec3, float32) {
	if len(s.Objects) == 0 {
		return mgl32.Vec3{}, 10
	}
	lo := s.Objects[0].Model.Col(3).Vec3()
	hi := lo
	for _, o := range s.Objects[1:] {
		p := o.Model.Col(3).Vec3()
		for i := range 3 {
			lo[i] = min(lo[i], p[i])
			hi[i] = max(hi[i], p[i])
		}
	}
	center := lo.Add(hi).Mul(0.5)
	// Pad so objects of unit size at the corners stay inside.
	return center, hi.Sub(lo).Len()/2 + 2
}

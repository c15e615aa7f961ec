package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred/gpucore"
)

// Material is the surface description of an object.
type Material struct {
	Albedo    mgl32.Vec4
	Roughness float32
	Metallic  float32

	// Texture is an optional albedo texture view. InvalidID uses Albedo alone.
	Texture gpucore.ImageViewID
}

// Object is one drawable instance.
type Object struct {
	Name     string
	Mesh     *Mesh
	Material int
	Model    mgl32.Mat4
}

// DirectionalLight is a light at infinity. Shadow-casting directional
// lights get one shadow-map layer each.
type DirectionalLight struct {
	Direction   mgl32.Vec3
	Color       mgl32.Vec3
	Intensity   float32
	CastsShadow bool
}

// PointLight is a local light drawn as a light volume.
type PointLight struct {
	Position  mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32

	// Attenuation: 1 / (Constant + Linear*d + Quadratic*d*d).
	Constant  float32
	Linear    float32
	Quadratic float32
}

// Scene is everything one frame draws.
type Scene struct {
	Camera      Camera
	Objects     []Object
	Materials   []Material
	Directional []DirectionalLight
	Points      []PointLight
	Ambient     mgl32.Vec3

	// version is bumped by Touch so the renderer can spot in-place edits.
	version uint64
}

// Version returns the modification counter.
func (s *Scene) Version() uint64 { return s.version }

// Touch marks the scene modified.
func (s *Scene) Touch() { s.version++ }

// ShadowLights returns the indices of the shadow-casting directional lights.
func (s *Scene) ShadowLights() []int {
	var out []int
	for i, l := range s.Directional {
		if l.CastsShadow {
			out = append(out, i)
		}
	}
	return out
}

// Limits bounds the amount of content a renderer can hold.
type Limits struct {
	MaxObjects      int
	MaxMaterials    int
	MaxDirectional  int
	MaxPoints       int
	MaxShadowLights int
}

// ErrTooLarge is returned by Validate when a scene exceeds the limits.
var ErrTooLarge = errors.New("scene: exceeds renderer limits")

// Validate checks the scene against lim and for dangling references.
func (s *Scene) Validate(lim Limits) error {
	checks := []struct {
		what string
		n    int
		max  int
	}{
		{"objects", len(s.Objects), lim.MaxObjects},
		{"materials", len(s.Materials), lim.MaxMaterials},
		{"directional lights", len(s.Directional), lim.MaxDirectional},
		{"point lights", len(s.Points), lim.MaxPoints},
		{"shadow lights", len(s.ShadowLights()), lim.MaxShadowLights},
	}
	for _, c := range checks {
		if c.n > c.max {
			return fmt.Errorf("%w: %d %s, limit %d", ErrTooLarge, c.n, c.what, c.max)
		}
	}
	for i, o := range s.Objects {
		if o.Mesh == nil {
			return fmt.Errorf("scene: object %d (%q) has no mesh", i, o.Name)
		}
		if o.Material < 0 || o.Material >= len(s.Materials) {
			return fmt.Errorf("scene: object %d (%q) uses material %d of %d", i, o.Name, o.Material, len(s.Materials))
		}
	}
	return nil
}

// Builder constructs a Scene with a fluent API.
type Builder struct {
	s *Scene
}

// NewBuilder returns a builder for an empty scene with the default camera
// and a dim ambient term.
func NewBuilder() *Builder {
	return &Builder{s: &Scene{
		Camera:  DefaultCamera(),
		Ambient: mgl32.Vec3{0.03, 0.03, 0.03},
	}}
}

// Camera sets the camera.
func (b *Builder) Camera(c Camera) *Builder {
	b.s.Camera = c
	return b
}

// Ambient sets the ambient light color.
func (b *Builder) Ambient(c mgl32.Vec3) *Builder {
	b.s.Ambient = c
	return b
}

// Material appends a material; its index is the number of materials added
// before it.
func (b *Builder) Material(m Material) *Builder {
	b.s.Materials = append(b.s.Materials, m)
	return b
}

// Object appends an object.
func (b *Builder) Object(name string, mesh *Mesh, material int, model mgl32.Mat4) *Builder {
	b.s.Objects = append(b.s.Objects, Object{Name: name, Mesh: mesh, Material: material, Model: model})
	return b
}

// Directional appends a directional light.
func (b *Builder) Directional(l DirectionalLight) *Builder {
	b.s.Directional = append(b.s.Directional, l)
	return b
}

// Point appends a point light.
func (b *Builder) Point(l PointLight) *Builder {
	b.s.Points = append(b.s.Points, l)
	return b
}

// Build returns the scene. The builder must not be used afterwards.
func (b *Builder) Build() *Scene {
	s := b.s
	b.s = nil
	return s
}

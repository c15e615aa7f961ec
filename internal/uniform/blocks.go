package uniform

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred/scene"
)

// Block sizes and array strides in bytes.
const (
	CameraSize        = 4*64 + 2*16
	ObjectStride      = 2 * 64
	MaterialStride    = 32
	DirectionalStride = 16 + 16 + 64 + 16
	PointStride       = 32
	ControlSize       = 32 + MaxBlurTaps*4

	// arrayHeader precedes every light array: a u32 count padded to 16.
	arrayHeader = 16
)

// Array lengths compiled into the default shaders. Limits above these are
// rejected by the renderer configuration.
const (
	ShaderMaxObjects     = 256
	ShaderMaxMaterials   = 64
	ShaderMaxDirectional = 8
	ShaderMaxPoints      = 128
)

// CameraBlock returns the camera block: view, projection, view-projection,
// inverse view-projection, eye position and the scene ambient color.
func CameraBlock(c scene.Camera, ambient mgl32.Vec3, aspect float32) []byte {
	view := c.View()
	proj := c.Projection(aspect)
	vp := proj.Mul4(view)

	var w writer
	w.mat4(view)
	w.mat4(proj)
	w.mat4(vp)
	w.mat4(vp.Inv())
	w.vec3(c.Position, 1)
	w.vec3(ambient, 1)
	return w.bytes()
}

// ObjectBlock returns the per-object array: model matrix followed by the
// normal matrix (inverse transpose, widened to mat4).
func ObjectBlock(objects []scene.Object) []byte {
	var w writer
	for _, o := range objects {
		w.mat4(o.Model)
		w.mat4(o.Model.Inv().Transpose())
	}
	return w.bytes()
}

// MaterialBlock returns the material array.
func MaterialBlock(materials []scene.Material) []byte {
	var w writer
	for _, m := range materials {
		w.vec4(m.Albedo)
		w.f32(m.Roughness)
		w.f32(m.Metallic)
		w.b32(m.Texture != 0)
		w.f32(0)
	}
	return w.bytes()
}

// DirectionalBlock returns the directional light array. Shadow-casting
// lights get consecutive shadow layers in declaration order; the others
// carry layer -1.
func DirectionalBlock(lights []scene.DirectionalLight, center mgl32.Vec3, extent float32) []byte {
	var w writer
	w.u32(uint32(len(lights)))
	w.pad(arrayHeader)
	layer := 0
	for _, l := range lights {
		start := len(w.buf)
		w.vec3(l.Direction.Normalize(), 0)
		w.vec3(l.Color, l.Intensity)
		w.mat4(LightViewProj(l.Direction, center, extent))
		if l.CastsShadow {
			w.f32(float32(layer))
			layer++
		} else {
			w.f32(-1)
		}
		w.pad(start + DirectionalStride)
	}
	return w.bytes()
}

// PointBlock returns the point light array. The w component of the position
// is the light volume radius.
func PointBlock(lights []scene.PointLight) []byte {
	var w writer
	w.u32(uint32(len(lights)))
	w.pad(arrayHeader)
	for _, l := range lights {
		w.vec3(l.Position, LightRadius(l))
		w.vec3(l.Color, l.Intensity)
	}
	return w.bytes()
}

// LightViewProj returns the orthographic view-projection of a directional
// light covering a cube of half size extent around center.
func LightViewProj(dir, center mgl32.Vec3, extent float32) mgl32.Mat4 {
	d := dir.Normalize()
	up := mgl32.Vec3{0, 1, 0}
	if abs(d.Dot(up)) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	eye := center.Sub(d.Mul(2 * extent))
	view := mgl32.LookAtV(eye, center, up)
	proj := mgl32.Ortho(-extent, extent, -extent, extent, 0, 4*extent)
	return proj.Mul4(view)
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

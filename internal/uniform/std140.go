package uniform

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// writer appends std140 scalars, vectors and column-major matrices.
type writer struct {
	buf []byte
}

func (w *writer) align(n int) {
	for len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) f32(v float32) {
	w.align(4)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *writer) u32(v uint32) {
	w.align(4)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) b32(v bool) {
	if v {
		w.u32(1)
	} else {
		w.u32(0)
	}
}

func (w *writer) vec3(v mgl32.Vec3, fourth float32) {
	w.align(16)
	w.f32(v[0])
	w.f32(v[1])
	w.f32(v[2])
	w.f32(fourth)
}

func (w *writer) vec4(v mgl32.Vec4) {
	w.align(16)
	for _, f := range v {
		w.f32(f)
	}
}

func (w *writer) mat4(m mgl32.Mat4) {
	w.align(16)
	for _, f := range m {
		w.f32(f)
	}
}

// pad zero-fills up to size bytes.
func (w *writer) pad(size int) {
	for len(w.buf) < size {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) bytes() []byte { return w.buf }

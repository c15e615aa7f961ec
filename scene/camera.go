package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a perspective camera.
type Camera struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3

	// FovY is the vertical field of view in radians.
	FovY float32
	Near float32
	Far  float32
}

// DefaultCamera looks at the origin from (0, 2, 6) with a 60 degree field
// of view.
func DefaultCamera() Camera {
	return Camera{
		Position: mgl32.Vec3{0, 2, 6},
		Target:   mgl32.Vec3{0, 0, 0},
		Up:       mgl32.Vec3{0, 1, 0},
		FovY:     mgl32.DegToRad(60),
		Near:     0.1,
		Far:      100,
	}
}

// View returns the world-to-view matrix.
func (c Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Target, c.Up)
}

// Projection returns the view-to-clip matrix for the given aspect ratio,
// with Y flipped for a top-left framebuffer origin.
func (c Camera) Projection(aspect float32) mgl32.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	p := mgl32.Perspective(c.FovY, aspect, c.Near, c.Far)
	p[5] = -p[5]
	return p
}

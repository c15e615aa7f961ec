package scene

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred/gpucore"
)

// Vertex is the vertex format of every mesh.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
}

// VertexSize is the size of one packed Vertex in bytes.
const VertexSize = 32

// VertexLayout describes Vertex to a graphics pipeline.
func VertexLayout() gpucore.VertexLayout {
	return gpucore.VertexLayout{
		Stride: VertexSize,
		Attributes: []gpucore.VertexAttribute{
			{Location: 0, Format: gpucore.VertexFloat32x3, Offset: 0},
			{Location: 1, Format: gpucore.VertexFloat32x3, Offset: 12},
			{Location: 2, Format: gpucore.VertexFloat32x2, Offset: 24},
		},
	}
}

// Mesh references uploaded vertex and index buffers.
type Mesh struct {
	VertexBuffer gpucore.BufferID
	IndexBuffer  gpucore.BufferID
	IndexCount   uint32
	IndexFormat  gpucore.IndexFormat
}

// NewMesh uploads vertices and 32-bit indices into host-visible buffers.
func NewMesh(drv gpucore.Driver, label string, vertices []Vertex, indices []uint32) (*Mesh, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return nil, fmt.Errorf("scene: mesh %q is empty", label)
	}
	vdata := make([]byte, 0, len(vertices)*VertexSize)
	for _, v := range vertices {
		for _, f := range [...]float32{
			v.Position[0], v.Position[1], v.Position[2],
			v.Normal[0], v.Normal[1], v.Normal[2],
			v.UV[0], v.UV[1],
		} {
			vdata = binary.LittleEndian.AppendUint32(vdata, math.Float32bits(f))
		}
	}
	idata := make([]byte, 0, len(indices)*4)
	for _, i := range indices {
		idata = binary.LittleEndian.AppendUint32(idata, i)
	}

	m := &Mesh{IndexCount: uint32(len(indices)), IndexFormat: gpucore.IndexUint32}
	var err error
	if m.VertexBuffer, err = upload(drv, label+" vertices", gpucore.BufferUsageVertex, vdata); err != nil {
		return nil, err
	}
	if m.IndexBuffer, err = upload(drv, label+" indices", gpucore.BufferUsageIndex, idata); err != nil {
		drv.DestroyBuffer(m.VertexBuffer)
		return nil, err
	}
	return m, nil
}

func upload(drv gpucore.Driver, label string, usage gpucore.BufferUsage, data []byte) (gpucore.BufferID, error) {
	id, err := drv.CreateBuffer(&gpucore.BufferDesc{
		Label:       label,
		Size:        uint64(len(data)),
		Usage:       usage | gpucore.BufferUsageTransferDst,
		HostVisible: true,
	})
	if err != nil {
		return 0, fmt.Errorf("scene: create %s: %w", label, err)
	}
	if err := drv.WriteBuffer(id, 0, data); err != nil {
		drv.DestroyBuffer(id)
		return 0, fmt.Errorf("scene: upload %s: %w", label, err)
	}
	return id, nil
}

// Destroy releases the mesh buffers.
func (m *Mesh) Destroy(drv gpucore.Driver) {
	drv.DestroyBuffer(m.VertexBuffer)
	drv.DestroyBuffer(m.IndexBuffer)
	m.VertexBuffer, m.IndexBuffer = gpucore.InvalidID, gpucore.InvalidID
}

// Cube returns the 24 vertices and 36 indices of a unit cube centered on
// the origin.
func Cube() ([]Vertex, []uint32) {
	faces := []struct {
		n, u, v mgl32.Vec3
	}{
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
	}
	var (
		verts []Vertex
		idx   []uint32
	)
	for _, f := range faces {
		base := uint32(len(verts))
		c := f.n.Mul(0.5)
		for _, corner := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := c.Add(f.u.Mul(corner[0] * 0.5)).Add(f.v.Mul(corner[1] * 0.5))
			verts = append(verts, Vertex{
				Position: p,
				Normal:   f.n,
				UV:       mgl32.Vec2{(corner[0] + 1) / 2, (1 - corner[1]) / 2},
			})
		}
		idx = append(idx, base, base+1, base+2, base, base+2, base+3)
	}
	return verts, idx
}

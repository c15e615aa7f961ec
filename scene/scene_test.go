package scene

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred/backend/soft"
)

func testLimits() Limits {
	return Limits{MaxObjects: 4, MaxMaterials: 2, MaxDirectional: 2, MaxPoints: 4, MaxShadowLights: 1}
}

func TestBuilder(t *testing.T) {
	m := &Mesh{IndexCount: 3}
	s := NewBuilder().
		Material(Material{Albedo: mgl32.Vec4{1, 0, 0, 1}}).
		Object("a", m, 0, mgl32.Ident4()).
		Directional(DirectionalLight{Direction: mgl32.Vec3{0, -1, 0}, CastsShadow: true}).
		Directional(DirectionalLight{Direction: mgl32.Vec3{1, -1, 0}}).
		Point(PointLight{Constant: 1}).
		Build()

	if len(s.Objects) != 1 || len(s.Materials) != 1 || len(s.Points) != 1 {
		t.Fatalf("unexpected content: %+v", s)
	}
	if got := s.ShadowLights(); len(got) != 1 || got[0] != 0 {
		t.Errorf("ShadowLights() = %v, want [0]", got)
	}
	if err := s.Validate(testLimits()); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	m := &Mesh{IndexCount: 3}
	tests := []struct {
		name    string
		build   func(*Builder)
		tooBig  bool
		wantErr bool
	}{
		{"empty", func(*Builder) {}, false, false},
		{"missing mesh", func(b *Builder) {
			b.Material(Material{}).Object("x", nil, 0, mgl32.Ident4())
		}, false, true},
		{"dangling material", func(b *Builder) {
			b.Object("x", m, 0, mgl32.Ident4())
		}, false, true},
		{"too many shadow lights", func(b *Builder) {
			b.Directional(DirectionalLight{CastsShadow: true}).Directional(DirectionalLight{CastsShadow: true})
		}, true, true},
		{"too many points", func(b *Builder) {
			for range 5 {
				b.Point(PointLight{})
			}
		}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.build(b)
			err := b.Build().Validate(testLimits())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if errors.Is(err, ErrTooLarge) != tt.tooBig {
				t.Errorf("errors.Is(ErrTooLarge) = %v, want %v", !tt.tooBig, tt.tooBig)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	s := NewBuilder().Build()
	v := s.Version()
	s.Touch()
	if s.Version() == v {
		t.Error("Touch() did not change Version()")
	}
}

func TestCameraProjectionFlipsY(t *testing.T) {
	c := DefaultCamera()
	p := c.Projection(16.0 / 9.0)
	if p[5] >= 0 {
		t.Errorf("projection[5] = %v, want negative", p[5])
	}
	// A point in front of the camera lands inside the clip volume.
	clip := p.Mul4(c.View()).Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	ndc := clip.Vec3().Mul(1 / clip.W())
	for i, v := range ndc {
		if v < -1 || v > 1 {
			t.Errorf("ndc[%d] = %v, outside [-1, 1]", i, v)
		}
	}
}

func TestCube(t *testing.T) {
	v, idx := Cube()
	if len(v) != 24 || len(idx) != 36 {
		t.Fatalf("Cube() = %d vertices, %d indices", len(v), len(idx))
	}
	for _, i := range idx {
		if int(i) >= len(v) {
			t.Fatalf("index %d out of range", i)
		}
	}
	for _, vert := range v {
		if d := vert.Position.Dot(vert.Normal); d < 0.49 || d > 0.51 {
			t.Fatalf("vertex %v not on its face plane", vert)
		}
	}
}

func TestNewMesh(t *testing.T) {
	d := soft.New(soft.Options{})
	v, idx := Cube()
	m, err := NewMesh(d, "cube", v, idx)
	if err != nil {
		t.Fatalf("NewMesh() = %v", err)
	}
	if got := len(d.BufferData(m.VertexBuffer)); got != len(v)*VertexSize {
		t.Errorf("vertex buffer size = %d, want %d", got, len(v)*VertexSize)
	}
	if got := len(d.BufferData(m.IndexBuffer)); got != len(idx)*4 {
		t.Errorf("index buffer size = %d, want %d", got, len(idx)*4)
	}
	m.Destroy(d)
	if n := d.TotalLive(); n != 0 {
		t.Errorf("TotalLive() = %d after Destroy", n)
	}

	if _, err := NewMesh(d, "empty", nil, nil); err == nil {
		t.Error("NewMesh(empty) succeeded")
	}
	d.FailNext("WriteBuffer", nil)
	if _, err := NewMesh(d, "cube", v, idx); !errors.Is(err, soft.ErrInjected) {
		t.Errorf("NewMesh() with failing upload = %v", err)
	}
	if n := d.TotalLive(); n != 0 {
		t.Errorf("TotalLive() = %d after failed NewMesh", n)
	}
}

package uniform

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/deferred/backend/soft"
	"github.com/gogpu/deferred/scene"
)

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func u32At(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

func TestBlockSizes(t *testing.T) {
	cam := scene.DefaultCamera()
	if got := len(CameraBlock(cam, mgl32.Vec3{0.1, 0.1, 0.1}, 1)); got != CameraSize {
		t.Errorf("camera block = %d bytes, want %d", got, CameraSize)
	}
	objs := []scene.Object{{Model: mgl32.Ident4()}, {Model: mgl32.Translate3D(1, 2, 3)}}
	if got := len(ObjectBlock(objs)); got != 2*ObjectStride {
		t.Errorf("object block = %d bytes, want %d", got, 2*ObjectStride)
	}
	mats := []scene.Material{{}, {}, {}}
	if got := len(MaterialBlock(mats)); got != 3*MaterialStride {
		t.Errorf("material block = %d bytes, want %d", got, 3*MaterialStride)
	}
	dirs := []scene.DirectionalLight{{Direction: mgl32.Vec3{0, -1, 0}}, {Direction: mgl32.Vec3{1, -1, 0}}}
	if got := len(DirectionalBlock(dirs, mgl32.Vec3{}, 10)); got != arrayHeader+2*DirectionalStride {
		t.Errorf("directional block = %d bytes, want %d", got, arrayHeader+2*DirectionalStride)
	}
	pts := []scene.PointLight{{Constant: 1}}
	if got := len(PointBlock(pts)); got != arrayHeader+PointStride {
		t.Errorf("point block = %d bytes, want %d", got, arrayHeader+PointStride)
	}
	ctl := DefaultShaderControl()
	if got := len(ctl.Block()); got != ControlSize {
		t.Errorf("control block = %d bytes, want %d", got, ControlSize)
	}
}

func TestObjectBlockLayout(t *testing.T) {
	b := ObjectBlock([]scene.Object{{Model: mgl32.Translate3D(1, 2, 3)}})
	// Column-major: translation lives in elements 12..14.
	for i, want := range []float32{1, 2, 3} {
		if got := f32At(b, (12+i)*4); got != want {
			t.Errorf("model[%d] = %v, want %v", 12+i, got, want)
		}
	}
}

func TestDirectionalShadowLayers(t *testing.T) {
	dirs := []scene.DirectionalLight{
		{Direction: mgl32.Vec3{0, -1, 0}, CastsShadow: true},
		{Direction: mgl32.Vec3{1, -1, 0}},
		{Direction: mgl32.Vec3{-1, -1, 0}, CastsShadow: true},
	}
	b := DirectionalBlock(dirs, mgl32.Vec3{}, 10)
	if n := u32At(b, 0); n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
	layerOffset := 16 + 16 + 64
	for i, want := range []float32{0, -1, 1} {
		if got := f32At(b, arrayHeader+i*DirectionalStride+layerOffset); got != want {
			t.Errorf("light %d layer = %v, want %v", i, got, want)
		}
	}
}

func TestControlBlock(t *testing.T) {
	ctl := DefaultShaderControl()
	ctl.BlurEnabled = false
	ctl.DebugView = ViewNormal
	ctl.BlurRadius = 100
	b := ctl.Block()
	if u32At(b, 0) != 0 || u32At(b, 4) != 1 {
		t.Errorf("toggles = %d,%d, want 0,1", u32At(b, 0), u32At(b, 4))
	}
	if got := DebugView(u32At(b, 8)); got != ViewNormal {
		t.Errorf("debug view = %v, want %v", got, ViewNormal)
	}
	if got := u32At(b, 12); got != MaxBlurTaps-1 {
		t.Errorf("radius = %d, want clamped %d", got, MaxBlurTaps-1)
	}
}

func TestBlurWeights(t *testing.T) {
	for _, r := range []int{0, 1, 4, 15, 40} {
		w := BlurWeights(r)
		if len(w) != clampRadius(r)+1 {
			t.Fatalf("BlurWeights(%d) has %d taps", r, len(w))
		}
		sum := w[0]
		for i := 1; i < len(w); i++ {
			sum += 2 * w[i]
			if w[i] > w[i-1] {
				t.Errorf("BlurWeights(%d) not decreasing at %d", r, i)
			}
		}
		if sum < 0.999 || sum > 1.001 {
			t.Errorf("BlurWeights(%d) sums to %v", r, sum)
		}
	}
}

func TestLightRadius(t *testing.T) {
	tests := []struct {
		name  string
		light scene.PointLight
		check func(float32) bool
	}{
		{"dark", scene.PointLight{Constant: 1, Quadratic: 1}, func(r float32) bool { return r == 0 }},
		{"quadratic", scene.PointLight{Color: mgl32.Vec3{1, 1, 1}, Intensity: 1, Constant: 1, Linear: 0.7, Quadratic: 1.8}, func(r float32) bool { return r > 5 && r < 5.2 }},
		{"linear", scene.PointLight{Color: mgl32.Vec3{1, 0, 0}, Intensity: 1, Constant: 1, Linear: 1}, func(r float32) bool { return r > 50 && r < 52 }},
		{"unattenuated", scene.PointLight{Color: mgl32.Vec3{1, 1, 1}, Intensity: 1}, func(r float32) bool { return r > 1e30 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r := LightRadius(tt.light); !tt.check(r) {
				t.Errorf("LightRadius() = %v", r)
			}
		})
	}
}

func TestBuffersUpload(t *testing.T) {
	d := soft.New(soft.Options{})
	lim := scene.Limits{MaxObjects: 2, MaxMaterials: 1, MaxDirectional: 1, MaxPoints: 2, MaxShadowLights: 1}
	b, err := New(d, lim)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	s := scene.NewBuilder().
		Material(scene.Material{Albedo: mgl32.Vec4{1, 1, 1, 1}}).
		Object("a", &scene.Mesh{}, 0, mgl32.Translate3D(1, 0, 0)).
		Point(scene.PointLight{Color: mgl32.Vec3{1, 1, 1}, Intensity: 1, Constant: 1, Quadratic: 1}).
		Build()
	ctl := DefaultShaderControl()
	if err := b.Upload(s, &ctl, 16.0/9.0); err != nil {
		t.Fatalf("Upload() = %v", err)
	}
	if n := u32At(d.BufferData(b.Buffer(Points)), 0); n != 1 {
		t.Errorf("point count = %d, want 1", n)
	}
	if got := f32At(d.BufferData(b.Buffer(Objects)), 12*4); got != 1 {
		t.Errorf("object translation x = %v, want 1", got)
	}

	ctl.GlobalEnabled = false
	if err := b.UploadControl(&ctl); err != nil {
		t.Fatalf("UploadControl() = %v", err)
	}
	if got := u32At(d.BufferData(b.Buffer(Control)), 4); got != 0 {
		t.Errorf("global toggle = %d after UploadControl, want 0", got)
	}

	b.Destroy()
	b.Destroy()
	if n := d.TotalLive(); n != 0 {
		t.Errorf("TotalLive() = %d after Destroy", n)
	}
	if err := b.Upload(s, &ctl, 1); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Upload() after Destroy = %v, want ErrDestroyed", err)
	}
}

func TestNewCleansUpOnFailure(t *testing.T) {
	d := soft.New(soft.Options{})
	lim := scene.Limits{MaxObjects: 1}
	if _, err := New(d, lim); err != nil {
		t.Fatalf("New() = %v", err)
	}
	before := d.TotalLive()
	d.FailNext("CreateBuffer", nil)
	if _, err := New(d, lim); !errors.Is(err, soft.ErrInjected) {
		t.Fatalf("New() = %v, want injected failure", err)
	}
	if d.TotalLive() != before {
		t.Errorf("TotalLive() = %d, want %d", d.TotalLive(), before)
	}
}

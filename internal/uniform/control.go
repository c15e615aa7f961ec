package uniform

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/gogpu/deferred/scene"
)

// DebugView selects what the final pass shows.
type DebugView uint32

// Debug views.
const (
	ViewLit DebugView = iota
	ViewPosition
	ViewNormal
	ViewAlbedo
	ViewMaterial
	ViewShadow
)

func (v DebugView) String() string {
	switch v {
	case ViewLit:
		return "lit"
	case ViewPosition:
		return "position"
	case ViewNormal:
		return "normal"
	case ViewAlbedo:
		return "albedo"
	case ViewMaterial:
		return "material"
	case ViewShadow:
		return "shadow"
	}
	return fmt.Sprintf("DebugView(%d)", uint32(v))
}

// MaxBlurTaps is the largest blur kernel half width plus one.
const MaxBlurTaps = 16

// ShaderControl is the caller-owned block passed to every DrawFrame. The
// renderer rewires the frame chain when BlurEnabled or GlobalEnabled
// changes between frames.
type ShaderControl struct {
	BlurEnabled   bool
	GlobalEnabled bool
	DebugView     DebugView

	// BlurRadius is the half width of the shadow blur kernel, clamped to
	// [1, MaxBlurTaps-1].
	BlurRadius int

	Exposure        float32
	Gamma           float32
	AmbientStrength float32
}

// DefaultShaderControl enables every pass.
func DefaultShaderControl() ShaderControl {
	return ShaderControl{
		BlurEnabled:     true,
		GlobalEnabled:   true,
		BlurRadius:      4,
		Exposure:        1,
		Gamma:           2.2,
		AmbientStrength: 1,
	}
}

// Block packs the control block, including the blur weights.
func (c *ShaderControl) Block() []byte {
	radius := clampRadius(c.BlurRadius)
	var w writer
	w.b32(c.BlurEnabled)
	w.b32(c.GlobalEnabled)
	w.u32(uint32(c.DebugView))
	w.u32(uint32(radius))
	w.f32(c.Exposure)
	w.f32(c.Gamma)
	w.f32(c.AmbientStrength)
	w.pad(32)
	for _, wt := range BlurWeights(radius) {
		w.f32(wt)
	}
	w.pad(ControlSize)
	return w.bytes()
}

func clampRadius(r int) int {
	return max(1, min(r, MaxBlurTaps-1))
}

// BlurWeights returns the center and one-sided weights of a normalized
// gaussian of the given half width, sigma = radius/2.
func BlurWeights(radius int) []float32 {
	radius = clampRadius(radius)
	sigma := float32(radius) / 2
	w := make([]float32, radius+1)
	var sum float32
	for i := range w {
		x := float32(i)
		w[i] = math32.Exp(-(x * x) / (2 * sigma * sigma))
		if i == 0 {
			sum += w[i]
		} else {
			sum += 2 * w[i]
		}
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// lightThreshold is the brightness below which a point light is considered
// dark.
const lightThreshold = 5.0 / 256.0

// LightRadius returns the distance at which the attenuated brightness of l
// falls below lightThreshold. A light without attenuation gets
// math32.MaxFloat32.
func LightRadius(l scene.PointLight) float32 {
	peak := max(l.Color[0], l.Color[1], l.Color[2]) * l.Intensity
	if peak <= 0 {
		return 0
	}
	target := peak/lightThreshold - l.Constant
	if target <= 0 {
		return 0
	}
	switch {
	case l.Quadratic > 0:
		disc := l.Linear*l.Linear + 4*l.Quadratic*target
		return (-l.Linear + math32.Sqrt(disc)) / (2 * l.Quadratic)
	case l.Linear > 0:
		return target / l.Linear
	}
	return math32.MaxFloat32
}

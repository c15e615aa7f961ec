// Command deferreddemo drives the deferred renderer headless for a fixed
// number of frames and prints frame statistics.
//
// Usage:
//
//	deferreddemo [-config file.yaml] [-backend soft] [-frames 120]
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"time"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/deferred"
	"github.com/gogpu/deferred/backend"
	_ "github.com/gogpu/deferred/backend/soft"
	_ "github.com/gogpu/deferred/backend/vulkan"
	_ "github.com/gogpu/deferred/backend/wgpu"
	"github.com/gogpu/deferred/internal/uniform"
	"github.com/gogpu/deferred/scene"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML or TOML config file")
		backendArg = flag.String("backend", backend.BackendSoft, "driver backend (soft, wgpu, vulkan; empty picks the best)")
		frames     = flag.Int("frames", 120, "scene frames to draw")
		splashes   = flag.Int("splash", 3, "splash frames drawn before the scene")
		width      = flag.Uint("width", 0, "swapchain width (overrides config)")
		height     = flag.Uint("height", 0, "swapchain height (overrides config)")
		grid       = flag.Int("grid", 3, "cubes per side of the scene grid")
		lights     = flag.Int("lights", 4, "point lights")
		toggleAt   = flag.Int("toggle-at", 40, "frame at which blur is switched off (0 disables)")
		resizeAt   = flag.Int("resize-at", 80, "frame at which the swapchain is resized (0 disables)")
		view       = flag.Uint("view", 0, "debug view (0 lit, 1 position, 2 normal, 3 albedo, 4 material, 5 shadow)")
		shaderDir  = flag.String("shaders", "", "shader directory (default: embedded WGSL)")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	deferred.SetLogger(log)

	cfg := deferred.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = deferred.LoadConfig(*configPath); err != nil {
			fatal(log, "load config", err)
		}
	}
	cfg.Backend = *backendArg
	if *width > 0 {
		cfg.Width = uint32(*width)
	}
	if *height > 0 {
		cfg.Height = uint32(*height)
	}
	if *shaderDir != "" {
		cfg.ShaderDir = *shaderDir
	}

	r, err := deferred.Open(cfg, deferred.WithSplash(splashImage(256, 128)))
	if err != nil {
		fatal(log, "open renderer", err)
	}

	for range *splashes {
		if err := r.DrawSplash(); err != nil && !errors.Is(err, deferred.ErrTimeout) {
			fatal(log, "draw splash", err)
		}
	}

	s, meshes, err := buildScene(r, *grid, *lights, cfg.Limits())
	if err != nil {
		fatal(log, "build scene", err)
	}
	defer func() {
		r.Destroy()
		for _, m := range meshes {
			m.Destroy(r.Driver())
		}
	}()
	if err := r.SetScene(s); err != nil {
		fatal(log, "set scene", err)
	}

	ctl := uniform.DefaultShaderControl()
	ctl.BlurEnabled = cfg.BlurEnabled
	ctl.GlobalEnabled = cfg.GlobalLightEnabled
	ctl.DebugView = uniform.DebugView(*view)

	start := time.Now()
	var worst time.Duration
	for i := 1; i <= *frames; i++ {
		if i == *toggleAt {
			ctl.BlurEnabled = false
			log.Info("demo: blur off", "frame", i)
		}
		if i == *resizeAt {
			e := r.Extent()
			if err := r.Resize(int(e.Width/2), int(e.Height/2)); err != nil {
				fatal(log, "resize", err)
			}
		}
		orbit(&s.Camera, float32(i)/float32(max(*frames, 1)))
		if err := r.DrawFrame(&ctl); err != nil {
			if errors.Is(err, deferred.ErrTimeout) {
				continue
			}
			fatal(log, "draw frame", err)
		}
		worst = max(worst, r.Stats().LastFrame)
	}
	report(r.Stats(), time.Since(start), worst)
}

// buildScene lays out an n×n grid of cubes on a floor, a shadow-casting
// sun and a ring of point lights, trimmed to lim.
func buildScene(r *deferred.Renderer, n, points int, lim scene.Limits) (*scene.Scene, []*scene.Mesh, error) {
	verts, idx := scene.Cube()
	cube, err := scene.NewMesh(r.Driver(), "cube", verts, idx)
	if err != nil {
		return nil, nil, err
	}
	b := scene.NewBuilder().
		Ambient(mgl32.Vec3{0.05, 0.05, 0.08}).
		Material(scene.Material{Albedo: mgl32.Vec4{0.8, 0.8, 0.8, 1}, Roughness: 0.9}).
		Material(scene.Material{Albedo: mgl32.Vec4{0.9, 0.3, 0.2, 1}, Roughness: 0.4, Metallic: 0.2})

	objects := 0
	if objects < lim.MaxObjects {
		b.Object("floor", cube, 0, mgl32.Translate3D(0, -0.75, 0).Mul4(mgl32.Scale3D(float32(n)*2, 0.5, float32(n)*2)))
		objects++
	}
	mat := min(1, lim.MaxMaterials-1)
	for x := range n {
		for z := range n {
			if objects == lim.MaxObjects {
				break
			}
			pos := mgl32.Vec3{float32(2*x - n + 1), 0, float32(2*z - n + 1)}
			b.Object(fmt.Sprintf("cube-%d-%d", x, z), cube, mat, mgl32.Translate3D(pos.X(), pos.Y(), pos.Z()))
			objects++
		}
	}
	if lim.MaxDirectional > 0 {
		b.Directional(scene.DirectionalLight{
			Direction:   mgl32.Vec3{-0.4, -1, -0.3}.Normalize(),
			Color:       mgl32.Vec3{1, 0.95, 0.85},
			Intensity:   1,
			CastsShadow: lim.MaxShadowLights > 0,
		})
	}
	points = min(points, lim.MaxPoints)
	for i := range points {
		a := 2 * math32.Pi * float32(i) / float32(points)
		b.Point(scene.PointLight{
			Position:  mgl32.Vec3{float32(n) * math32.Cos(a), 1, float32(n) * math32.Sin(a)},
			Color:     mgl32.Vec3{0.5 + 0.5*math32.Cos(a), 0.6, 0.5 + 0.5*math32.Sin(a)},
			Intensity: 2,
			Constant:  1,
			Linear:    0.35,
			Quadratic: 0.44,
		})
	}
	s := b.Build()
	s.Camera = scene.DefaultCamera()
	s.Camera.Position = mgl32.Vec3{0, float32(n) + 2, float32(n)*2 + 4}
	return s, []*scene.Mesh{cube}, nil
}

// orbit moves the camera around the origin; t in [0, 1] is one revolution.
func orbit(c *scene.Camera, t float32) {
	r := mgl32.Vec2{c.Position.X(), c.Position.Z()}.Len()
	a := t * 2 * math32.Pi
	c.Position = mgl32.Vec3{r * math32.Sin(a), c.Position.Y(), r * math32.Cos(a)}
}

// splashImage is a vertical gradient with a centered band.
func splashImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		shade := uint8(32 + 160*y/h)
		for x := range w {
			c := color.RGBA{shade / 3, shade / 2, shade, 255}
			if y > h/3 && y < 2*h/3 && x > w/8 && x < 7*w/8 {
				c = color.RGBA{230, 230, 240, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func report(st deferred.FrameStats, elapsed, worst time.Duration) {
	p := message.NewPrinter(language.English)
	fps := 0.0
	if elapsed > 0 {
		fps = float64(st.Frames) / elapsed.Seconds()
	}
	p.Printf("frames:      %d\n", st.Frames)
	p.Printf("splashes:    %d\n", st.Splashes)
	p.Printf("submissions: %d\n", st.Submissions)
	p.Printf("timeouts:    %d\n", st.Timeouts)
	p.Printf("rebuilds:    %d\n", st.Rebuilds)
	p.Printf("elapsed:     %v (%.1f frames/s)\n", elapsed.Round(time.Millisecond), fps)
	p.Printf("worst frame: %v\n", worst)
}

func fatal(log *slog.Logger, what string, err error) {
	log.Error("demo: "+what, "err", err)
	os.Exit(1)
}

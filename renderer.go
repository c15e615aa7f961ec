package deferred

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gogpu/deferred/backend"
	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/chain"
	"github.com/gogpu/deferred/internal/command"
	"github.com/gogpu/deferred/internal/queue"
	"github.com/gogpu/deferred/internal/shader"
	"github.com/gogpu/deferred/internal/step"
	"github.com/gogpu/deferred/internal/swapchain"
	"github.com/gogpu/deferred/internal/uniform"
	"github.com/gogpu/deferred/scene"
	"github.com/gogpu/deferred/shaders"
)

// Toggles are the optional passes of a frame.
type Toggles struct {
	// Blur smooths the shadow maps on the compute queue.
	Blur bool

	// GlobalLight adds the directional lights. When off, the local light
	// pass clears the lighting target itself.
	GlobalLight bool
}

// frameLinks is the submission order of a scene frame. The stage is where
// each pass waits on its predecessor.
var frameLinks = []struct {
	name     string
	stage    gpucore.PipelineStage
	optional bool
}{
	{"geometry", gpucore.StageColorAttachmentOutput, false},
	{"shadow", gpucore.StageColorAttachmentOutput, false},
	{"blur", gpucore.StageComputeShader, true},
	{"global", gpucore.StageFragmentShader | gpucore.StageColorAttachmentOutput, true},
	{"local", gpucore.StageFragmentShader | gpucore.StageColorAttachmentOutput, false},
	{"ambient", gpucore.StageFragmentShader | gpucore.StageColorAttachmentOutput, false},
	{"final", gpucore.StageFragmentShader | gpucore.StageColorAttachmentOutput, false},
}

// The final pass signals the swapchain's render-ready semaphore; the splash
// pass has a semaphore of its own.
const (
	finalLink  = "final"
	splashLink = "splash"
)

// Renderer orchestrates the deferred frame: it owns the queues, command
// pools, uniform buffers, swapchain, targets and the eight passes, and
// submits them as one semaphore chain per frame.
//
// Renderer methods serialize on a mutex. The renderer is still meant to be
// driven from one goroutine; the lock only keeps misuse from corrupting
// state.
type Renderer struct {
	mu   sync.Mutex
	cfg  Config
	opts options
	log  *slog.Logger

	drv        gpucore.Driver
	ownsDriver bool

	queues   *queue.Allocator
	graphics *queue.Queue
	compute  *queue.Queue
	gpool    *command.Pool
	cpool    *command.Pool
	shaders  *shader.Library
	uniforms *uniform.Buffers

	// Rebuilt with the swapchain.
	sc      *swapchain.Swapchain
	targets *step.Targets
	sems    map[string]gpucore.SemaphoreID
	chain   *chain.Chain
	steps   []step.Step
	byName  map[string]step.Step
	splash  *step.Splash
	ctx     step.Context

	control uniform.ShaderControl
	toggles Toggles

	scene        *scene.Scene
	sceneVersion uint64

	extent gpucore.Extent2D
	resize atomic.Pointer[gpucore.Extent2D]
	// stale is set when the swapchain must be rebuilt before the next frame.
	stale       bool
	staleReason string

	stats  FrameStats
	closed bool
}

// New creates a renderer on drv. The caller keeps ownership of drv.
func New(drv gpucore.Driver, cfg Config, opts ...Option) (*Renderer, error) {
	if drv == nil {
		return nil, errors.New("deferred: nil driver")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Renderer{cfg: cfg, drv: drv, log: cfg.Logger}
	for _, o := range opts {
		o(&r.opts)
	}
	if r.log == nil {
		r.log = Logger()
	}
	r.extent = gpucore.Extent2D{Width: cfg.Width, Height: cfg.Height}
	if w := r.opts.window; w != nil {
		if e, ok := extentOf(w.Size()); ok && !e.Empty() {
			r.extent = e
		}
	}
	if err := r.init(); err != nil {
		r.release()
		return nil, err
	}
	if w := r.opts.window; w != nil {
		w.OnResize(r.requestResize)
	}
	return r, nil
}

// Open opens the backend named by cfg.Backend, or the best registered one
// when it is empty, and creates a renderer that owns the driver. Backends
// register themselves when their package is imported:
//
//	import _ "github.com/gogpu/deferred/backend/vulkan"
func Open(cfg Config, opts ...Option) (*Renderer, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	bo := backend.Options{Validation: cfg.Validation, Provider: o.provider, Logger: log}
	var (
		drv  gpucore.Driver
		name = cfg.Backend
		err  error
	)
	if name == "" {
		drv, name, err = backend.Default(bo)
	} else {
		drv, err = backend.Open(name, bo)
	}
	if err != nil {
		return nil, fmt.Errorf("deferred: open backend: %w", err)
	}
	log.Info("deferred: backend opened", "backend", name)
	r, err := New(drv, cfg, opts...)
	if err != nil {
		drv.Destroy()
		return nil, err
	}
	r.ownsDriver = true
	return r, nil
}

func extentOf(w, h int) (gpucore.Extent2D, bool) {
	if w < 0 || h < 0 {
		return gpucore.Extent2D{}, false
	}
	return gpucore.Extent2D{Width: uint32(w), Height: uint32(h)}, true
}

func (r *Renderer) init() error {
	var err error
	if r.queues, err = queue.NewAllocator(r.drv); err != nil {
		return fmt.Errorf("deferred: queues: %w", err)
	}
	if r.graphics, err = r.queues.Claim(gpucore.QueueGraphics | gpucore.QueuePresent); err != nil {
		return fmt.Errorf("deferred: graphics queue: %w", err)
	}
	r.compute = r.graphics
	if r.cfg.AsyncCompute {
		if q, err := r.queues.Claim(gpucore.QueueCompute); err == nil {
			r.compute = q
		} else {
			r.log.Info("deferred: no free compute queue, blur shares the graphics queue")
		}
	}

	if r.gpool, err = command.NewPool(r.drv, &gpucore.CommandPoolDesc{
		Label:      "graphics",
		Family:     r.graphics.Family(),
		Resettable: true,
	}); err != nil {
		return fmt.Errorf("deferred: %w", err)
	}
	r.cpool = r.gpool
	if r.compute.Family() != r.graphics.Family() {
		if r.cpool, err = command.NewPool(r.drv, &gpucore.CommandPoolDesc{
			Label:      "compute",
			Family:     r.compute.Family(),
			Resettable: true,
		}); err != nil {
			return fmt.Errorf("deferred: %w", err)
		}
	}

	r.shaders = shader.NewLibrary(r.drv, r.shaderFS(), r.cfg.EntryPoint, nil)
	if r.uniforms, err = uniform.New(r.drv, r.cfg.Limits(), r.families()...); err != nil {
		return fmt.Errorf("deferred: %w", err)
	}

	r.control = uniform.DefaultShaderControl()
	r.control.BlurEnabled = r.cfg.BlurEnabled
	r.control.GlobalEnabled = r.cfg.GlobalLightEnabled
	r.toggles = Toggles{Blur: r.cfg.BlurEnabled, GlobalLight: r.cfg.GlobalLightEnabled}

	if err := r.build(gpucore.InvalidID); err != nil {
		return err
	}
	info := r.drv.Info()
	r.log.Info("deferred: renderer ready",
		"device", info.Name,
		"backend", info.Backend,
		"extent", r.extent,
		"images", r.sc.ImageCount(),
		"asyncCompute", r.compute != r.graphics)
	return nil
}

// families returns the queue families that share the blur inputs and
// outputs and the uniform buffers. It is nil when blur runs on the
// graphics family.
func (r *Renderer) families() []uint32 {
	return gpucore.SharedFamilies([]uint32{r.graphics.Family(), r.compute.Family()})
}

func (r *Renderer) shaderFS() fs.FS {
	switch {
	case r.opts.shaders != nil:
		return r.opts.shaders
	case r.cfg.ShaderDir != "":
		return os.DirFS(r.cfg.ShaderDir)
	}
	return shaders.FS
}

// build creates the swapchain and everything sized by it: targets,
// semaphores, the chain and the steps. On failure everything it created is
// destroyed again.
func (r *Renderer) build(old gpucore.SwapchainID) (err error) {
	defer func() {
		if err != nil {
			r.teardownFrame()
			if r.sc != nil {
				r.sc.Destroy()
				r.sc = nil
			}
		}
	}()
	mode, err := parsePresentMode(r.cfg.PresentMode)
	if err != nil {
		return err
	}
	if r.sc, err = swapchain.New(r.drv, gpucore.SwapchainDesc{
		Label:       "swapchain",
		Extent:      r.extent,
		Format:      gpucore.FormatBGRA8Unorm,
		ImageCount:  r.cfg.ImageCount,
		PresentMode: mode,
		Old:         old,
	}); err != nil {
		r.sc = nil
		return fmt.Errorf("deferred: %w", err)
	}
	if r.targets, err = step.NewTargets(r.drv, step.TargetConfig{
		Extent:       r.sc.Extent(),
		ShadowSize:   r.cfg.ShadowMapSize,
		ShadowLayers: uint32(r.cfg.MaxShadowLights),
		Splash:       r.opts.splash,
		Families:     r.families(),
	}); err != nil {
		return fmt.Errorf("deferred: %w", err)
	}
	if err = r.buildChain(); err != nil {
		return err
	}

	r.ctx = step.Context{
		Driver:       r.drv,
		Shaders:      r.shaders,
		Uniforms:     r.uniforms,
		Targets:      r.targets,
		Swapchain:    r.sc,
		GraphicsPool: r.gpool,
		ComputePool:  r.cpool,
		Scene:        r.scene,
		Control:      &r.control,
	}
	r.splash = step.NewSplash()
	r.steps = []step.Step{
		step.NewGeometry(),
		step.NewShadow(),
		step.NewBlur(),
		step.NewGlobalLight(),
		step.NewLocalLight(),
		step.NewAmbient(),
		step.NewFinal(),
	}
	r.byName = make(map[string]step.Step, len(r.steps))
	for _, s := range r.steps {
		r.byName[s.Name()] = s
	}
	for _, s := range append([]step.Step{r.splash}, r.steps...) {
		if err = step.Setup(&r.ctx, s); err != nil {
			return fmt.Errorf("deferred: %w", err)
		}
	}
	if r.scene != nil {
		r.sceneVersion = r.scene.Version()
	}
	return nil
}

func (r *Renderer) buildChain() error {
	r.sems = make(map[string]gpucore.SemaphoreID)
	names := []string{splashLink}
	for _, l := range frameLinks {
		if l.name != finalLink {
			names = append(names, l.name)
		}
	}
	for _, name := range names {
		s, err := r.drv.CreateSemaphore(name)
		if err != nil {
			return fmt.Errorf("deferred: semaphore %s: %w", name, err)
		}
		r.sems[name] = s
	}
	c := chain.New(r.sc.ImageReady())
	for _, l := range frameLinks {
		signal := r.sems[l.name]
		if l.name == finalLink {
			signal = r.sc.RenderReady()
		}
		if _, err := c.Append(l.name, signal, l.stage, l.optional); err != nil {
			return err
		}
	}
	r.chain = c
	return r.wire(r.toggles)
}

// wire applies t to the chain.
func (r *Renderer) wire(t Toggles) error {
	if err := r.chain.SetEnabled("blur", t.Blur); err != nil {
		return err
	}
	if err := r.chain.SetEnabled("global", t.GlobalLight); err != nil {
		return err
	}
	r.log.Debug("deferred: chain wired", "chain", r.chain.String())
	return nil
}

// teardownFrame destroys what build created, except the swapchain.
func (r *Renderer) teardownFrame() {
	for _, s := range r.steps {
		s.Destroy(&r.ctx)
	}
	if r.splash != nil {
		r.splash.Destroy(&r.ctx)
	}
	r.steps, r.byName, r.splash = nil, nil, nil
	if r.targets != nil {
		r.targets.Destroy()
		r.targets = nil
	}
	for _, s := range r.sems {
		r.drv.DestroySemaphore(s)
	}
	r.sems, r.chain = nil, nil
}

// release destroys everything in shutdown order.
func (r *Renderer) release() {
	if r.queues != nil {
		if err := r.drain(); err != nil {
			r.log.Warn("deferred: drain before shutdown", "err", err)
		}
	}
	r.teardownFrame()
	if r.cpool != nil && r.cpool != r.gpool {
		r.cpool.Destroy()
	}
	if r.gpool != nil {
		r.gpool.Destroy()
	}
	r.gpool, r.cpool = nil, nil
	if r.uniforms != nil {
		r.uniforms.Destroy()
		r.uniforms = nil
	}
	if r.shaders != nil {
		r.shaders.Destroy()
		r.shaders = nil
	}
	if r.sc != nil {
		r.sc.Destroy()
		r.sc = nil
	}
	if r.queues != nil {
		r.queues.Destroy()
		r.queues = nil
	}
	if r.ownsDriver {
		r.drv.Destroy()
	}
}

// drain waits until every queue and the device are idle.
func (r *Renderer) drain() error {
	if err := r.queues.WaitIdle(); err != nil {
		return fmt.Errorf("deferred: drain: %w", err)
	}
	if err := r.drv.WaitIdle(); err != nil {
		return fmt.Errorf("deferred: drain: %w", err)
	}
	return nil
}

func (r *Renderer) markStale(reason string) {
	if !r.stale {
		r.log.Warn("deferred: swapchain needs rebuild", "reason", reason)
	}
	r.stale, r.staleReason = true, reason
}

// rebuild recreates the swapchain and everything sized by it. Device,
// queues, pools, shaders and uniform buffers persist.
func (r *Renderer) rebuild(reason string) error {
	if err := r.drain(); err != nil {
		return err
	}
	if e := r.resize.Swap(nil); e != nil {
		r.extent = *e
	}
	if r.extent.Empty() {
		// Minimized: keep the old swapchain until the window has a size.
		r.stale, r.staleReason = true, "minimized"
		return nil
	}
	old := r.sc
	var oldID gpucore.SwapchainID
	if old != nil {
		oldID = old.ID()
	}
	r.teardownFrame()
	r.sc = nil
	err := r.build(oldID)
	if old != nil {
		old.Destroy()
	}
	if err != nil {
		r.stale, r.staleReason = true, "failed rebuild"
		return fmt.Errorf("deferred: rebuild: %w", err)
	}
	r.stale, r.staleReason = false, ""
	r.stats.Rebuilds++
	r.log.Info("deferred: swapchain rebuilt", "reason", reason, "extent", r.extent)
	return nil
}

// requestResize is the window resize callback. The rebuild happens on the
// next frame.
func (r *Renderer) requestResize(w, h int) {
	if e, ok := extentOf(w, h); ok {
		r.resize.Store(&e)
	}
}

// Resize rebuilds the swapchain, targets and steps for a new window size.
// A zero size suspends drawing until the next non-zero Resize.
func (r *Renderer) Resize(width, height int) error {
	e, ok := extentOf(width, height)
	if !ok {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.resize.Store(&e)
	return r.rebuild("resize")
}

// SetScene replaces the scene. Every descriptor set is rewritten and every
// command buffer re-recorded. A nil scene returns to the splash screen.
//
// The scene's meshes must have been created on the renderer's Driver. Edits
// to the scene made in place must be followed by Scene.Touch.
func (r *Renderer) SetScene(s *scene.Scene) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if s != nil {
		if err := s.Validate(r.cfg.Limits()); err != nil {
			return err
		}
	}
	if err := r.drain(); err != nil {
		return err
	}
	r.scene = s
	r.ctx.Scene = s
	if s == nil {
		r.log.Info("deferred: scene cleared")
		return nil
	}
	if err := r.refresh(r.steps...); err != nil {
		return err
	}
	r.sceneVersion = s.Version()
	r.log.Info("deferred: scene set",
		"objects", len(s.Objects),
		"directional", len(s.Directional),
		"points", len(s.Points),
		"shadowLights", len(s.ShadowLights()))
	return nil
}

func (r *Renderer) refresh(steps ...step.Step) error {
	for _, s := range steps {
		if err := step.Refresh(&r.ctx, s); err != nil {
			return fmt.Errorf("deferred: %w", err)
		}
	}
	return nil
}

// Configure switches the optional passes. The chain is rewired from t
// alone and the passes reading the toggles are re-recorded. DrawFrame
// applies the toggles of its control block the same way.
func (r *Renderer) Configure(t Toggles) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return r.applyToggles(t)
}

func (r *Renderer) applyToggles(t Toggles) error {
	r.control.BlurEnabled, r.control.GlobalEnabled = t.Blur, t.GlobalLight
	if t == r.toggles {
		return nil
	}
	if r.chain == nil {
		// Picked up by the next build.
		r.toggles = t
		return nil
	}
	if err := r.drain(); err != nil {
		return err
	}
	if err := r.wire(t); err != nil {
		return err
	}
	r.toggles = t
	return r.refresh(r.byName["global"], r.byName["local"])
}

// Toggles returns the pass toggles in effect.
func (r *Renderer) Toggles() Toggles {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.toggles
}

// Control returns a copy of the control block used when DrawFrame is
// called with nil.
func (r *Renderer) Control() uniform.ShaderControl {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.control
}

// Driver returns the driver meshes and textures must be created on.
func (r *Renderer) Driver() gpucore.Driver { return r.drv }

// Extent returns the current swapchain size.
func (r *Renderer) Extent() gpucore.Extent2D {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.extent
}

// Stats returns the frame counters.
func (r *Renderer) Stats() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Run draws frames with ctl until ctx is done or the window asks to close.
// Timed out frames are dropped and drawing continues; any other error
// stops the loop.
func (r *Renderer) Run(ctx context.Context, ctl *uniform.ShaderControl) error {
	w := r.opts.window
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w != nil && w.ShouldClose() {
			return nil
		}
		if err := r.DrawFrame(ctl); err != nil && !errors.Is(err, ErrTimeout) {
			return err
		}
	}
}

// Destroy waits for the device to go idle and releases everything. The
// driver is destroyed too when the renderer was created by Open.
func (r *Renderer) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.release()
	r.log.Info("deferred: renderer destroyed", "frames", r.stats.Frames)
}

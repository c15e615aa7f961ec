package deferred

import (
	"image"
	"io/fs"

	"github.com/gogpu/gpucontext"
)

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := deferred.New(drv, deferred.DefaultConfig(),
//	    deferred.WithWindow(win),
//	    deferred.WithSplash(logo))
type Option func(*options)

type options struct {
	window   Window
	shaders  fs.FS
	splash   image.Image
	provider gpucontext.DeviceProvider
}

// WithWindow sizes the swapchain from w and rebuilds it when w reports a
// resize. Run stops when w.ShouldClose reports true.
func WithWindow(w Window) Option {
	return func(o *options) {
		o.window = w
	}
}

// WithShaderFS loads shaders from fsys instead of Config.ShaderDir.
//
// Example:
//
//	r, err := deferred.New(drv, cfg, deferred.WithShaderFS(os.DirFS("build/spirv")))
func WithShaderFS(fsys fs.FS) Option {
	return func(o *options) {
		o.shaders = fsys
	}
}

// WithSplash sets the image shown by DrawSplash. It is letterboxed to the
// swapchain size.
func WithSplash(img image.Image) Option {
	return func(o *options) {
		o.splash = img
	}
}

// WithProvider hands the host's device provider to the backend opened by
// Open. The "wgpu" backend shares its device. The "vulkan" backend needs p
// to also implement vulkan.Surface; hosts without one open the driver with
// vulkan.Open and pass it to New.
func WithProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

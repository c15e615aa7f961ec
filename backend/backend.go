package backend

import (
	"errors"
	"log/slog"

	"github.com/gogpu/deferred/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoProvider is returned by backends that render into a host window
	// when Options.Provider is nil.
	ErrNoProvider = errors.New("backend: no device provider")
)

// Backend name constants.
const (
	// BackendVulkan is the name of the Vulkan backend (vulkan-go).
	BackendVulkan = "vulkan"
	// BackendWGPU is the name of the Pure Go backend (gogpu/wgpu hal).
	BackendWGPU = "wgpu"
	// BackendSoft is the name of the in-memory validating backend.
	BackendSoft = "soft"
)

// Options configures driver creation.
type Options struct {
	// Validation enables API validation where the backend supports it.
	Validation bool

	// Provider supplies an existing device, typically a
	// gpucontext.DeviceProvider from the host window. Backends that need
	// one return ErrNoProvider when it is nil.
	Provider any

	// Logger receives backend diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Factory opens a driver.
type Factory func(opts Options) (gpucore.Driver, error)

package backend

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/gogpu/deferred/gpucore"
)

var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)

	// preferred is the order Default tries backends in.
	preferred = []string{BackendVulkan, BackendWGPU, BackendSoft}
)

// Register makes a driver factory available under name, replacing any
// earlier registration. Backend packages call it from init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes name. Tests use it to isolate the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in priority order,
// followed by any others sorted by name.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var names []string
	for _, name := range preferred {
		if _, ok := backends[name]; ok {
			names = append(names, name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(backends)) {
		if !slices.Contains(preferred, name) {
			names = append(names, name)
		}
	}
	return names
}

// IsRegistered reports whether name has a factory.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens the named backend.
func Open(name string, opts Options) (gpucore.Driver, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	return factory(opts)
}

// Default opens the best available backend. Backends that fail to open are
// skipped; the joined errors are returned when none opens.
func Default(opts Options) (gpucore.Driver, string, error) {
	var errs []error
	for _, name := range Available() {
		drv, err := Open(name, opts)
		if err == nil {
			return drv, name, nil
		}
		if opts.Logger != nil {
			opts.Logger.Debug("backend unavailable", "backend", name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	if len(errs) == 0 {
		return nil, "", ErrBackendNotAvailable
	}
	return nil, "", errors.Join(append([]error{ErrBackendNotAvailable}, errs...)...)
}

// MustDefault opens the default backend or panics.
func MustDefault(opts Options) gpucore.Driver {
	drv, _, err := Default(opts)
	if err != nil {
		panic("backend: no backend available: " + err.Error())
	}
	return drv
}

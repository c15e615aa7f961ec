package backend

import (
	"errors"
	"testing"

	"github.com/gogpu/deferred/gpucore"
)

type stubDriver struct{ gpucore.Driver }

func withRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := backends
	backends = make(map[string]Factory)
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	})
}

func TestRegisterAndOpen(t *testing.T) {
	withRegistry(t)

	Register("test", func(Options) (gpucore.Driver, error) { return stubDriver{}, nil })
	if !IsRegistered("test") {
		t.Fatal("IsRegistered(test) = false")
	}
	if _, err := Open("test", Options{}); err != nil {
		t.Fatalf("Open(test) error = %v", err)
	}

	Unregister("test")
	if IsRegistered("test") {
		t.Error("IsRegistered(test) after Unregister = true")
	}
	if _, err := Open("test", Options{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(unregistered) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestAvailableOrder(t *testing.T) {
	withRegistry(t)

	noop := func(Options) (gpucore.Driver, error) { return stubDriver{}, nil }
	Register("zeta", noop)
	Register(BackendSoft, noop)
	Register(BackendVulkan, noop)
	Register("alpha", noop)

	got := Available()
	want := []string{BackendVulkan, BackendSoft, "alpha", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("Available() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Available()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDefaultSkipsFailingBackends(t *testing.T) {
	withRegistry(t)

	errNoLoader := errors.New("no loader")
	Register(BackendVulkan, func(Options) (gpucore.Driver, error) { return nil, errNoLoader })
	Register(BackendSoft, func(Options) (gpucore.Driver, error) { return stubDriver{}, nil })

	_, name, err := Default(Options{})
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if name != BackendSoft {
		t.Errorf("Default() picked %q, want %q", name, BackendSoft)
	}
}

func TestDefaultNoneAvailable(t *testing.T) {
	withRegistry(t)

	if _, _, err := Default(Options{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Default() on empty registry error = %v", err)
	}

	errBroken := errors.New("broken")
	Register(BackendWGPU, func(Options) (gpucore.Driver, error) { return nil, errBroken })
	_, _, err := Default(Options{})
	if !errors.Is(err, ErrBackendNotAvailable) || !errors.Is(err, errBroken) {
		t.Errorf("Default() error = %v, want both ErrBackendNotAvailable and the backend error", err)
	}
}

func TestMustDefaultPanics(t *testing.T) {
	withRegistry(t)

	defer func() {
		if recover() == nil {
			t.Error("MustDefault() did not panic with no backends")
		}
	}()
	MustDefault(Options{})
}

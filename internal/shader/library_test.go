package shader

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"path"
	"testing"
	"testing/fstest"

	"github.com/gogpu/naga"

	"github.com/gogpu/deferred/backend/soft"
	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/shaders"
)

// fakeSPIRV returns a minimal header-only SPIR-V module.
func fakeSPIRV() []byte {
	var b []byte
	for _, w := range []uint32{spirvMagic, 0x00010300, 0, 8, 0} {
		b = binary.LittleEndian.AppendUint32(b, w)
	}
	return b
}

func TestLoadPrefersSPIRV(t *testing.T) {
	d := soft.New(soft.Options{})
	compiled := 0
	fsys := fstest.MapFS{
		"a.vert.spv":  {Data: fakeSPIRV()},
		"a.vert.wgsl": {Data: []byte("@vertex fn main() {}")},
		"b.frag.wgsl": {Data: []byte("@fragment fn main() {}")},
	}
	lib := NewLibrary(d, fsys, "", func(string) ([]byte, error) {
		compiled++
		return fakeSPIRV(), nil
	})

	a, err := lib.Load("a.vert", gpucore.ShaderVertex)
	if err != nil {
		t.Fatalf("Load(a.vert) = %v", err)
	}
	if a.EntryPoint != DefaultEntryPoint {
		t.Errorf("EntryPoint = %q, want %q", a.EntryPoint, DefaultEntryPoint)
	}
	if compiled != 0 {
		t.Errorf("compiled %d times for a .spv shader", compiled)
	}
	if _, err := lib.Load("b.frag", gpucore.ShaderFragment); err != nil {
		t.Fatalf("Load(b.frag) = %v", err)
	}
	if compiled != 1 {
		t.Errorf("compiled %d times, want 1", compiled)
	}

	again, err := lib.Load("a.vert", gpucore.ShaderVertex)
	if err != nil || again.Module != a.Module {
		t.Errorf("second Load = %v, %v; want cached module %v", again.Module, err, a.Module)
	}
	if lib.Len() != 2 {
		t.Errorf("Len() = %d, want 2", lib.Len())
	}

	lib.Destroy()
	if n := d.TotalLive(); n != 0 {
		t.Errorf("TotalLive() = %d after Destroy", n)
	}
}

func TestLoadErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"short.spv":   {Data: []byte{1, 2, 3, 4}},
		"magic.spv":   {Data: make([]byte, 20)},
		"broken.wgsl": {Data: []byte("fn")},
	}
	errCompile := errors.New("parse error")
	tests := []struct {
		name string
		want error
	}{
		{"missing", ErrNotFound},
		{"short", ErrInvalidSPIRV},
		{"magic", ErrInvalidSPIRV},
		{"broken", errCompile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := NewLibrary(soft.New(soft.Options{}), fsys, "", func(string) ([]byte, error) {
				return nil, errCompile
			})
			if _, err := lib.Load(tt.name, gpucore.ShaderVertex); !errors.Is(err, tt.want) {
				t.Errorf("Load(%q) = %v, want %v", tt.name, err, tt.want)
			}
			if lib.Len() != 0 {
				t.Errorf("failed load was cached")
			}
		})
	}
}

func TestCustomEntryPoint(t *testing.T) {
	lib := NewLibrary(soft.New(soft.Options{}), fstest.MapFS{"x.spv": {Data: fakeSPIRV()}}, "vs_main", nil)
	s, err := lib.Load("x", gpucore.ShaderVertex)
	if err != nil {
		t.Fatal(err)
	}
	if s.EntryPoint != "vs_main" {
		t.Errorf("EntryPoint = %q, want vs_main", s.EntryPoint)
	}
}

func TestDriverFailureNotCached(t *testing.T) {
	d := soft.New(soft.Options{})
	lib := NewLibrary(d, fstest.MapFS{"x.spv": {Data: fakeSPIRV()}}, "", nil)
	d.FailNext("CreateShaderModule", nil)
	if _, err := lib.Load("x", gpucore.ShaderVertex); !errors.Is(err, soft.ErrInjected) {
		t.Fatalf("Load() = %v, want injected failure", err)
	}
	if _, err := lib.Load("x", gpucore.ShaderVertex); err != nil {
		t.Errorf("retry Load() = %v", err)
	}
}

func TestNagaCompile(t *testing.T) {
	const src = `@compute @workgroup_size(1)
fn main() {}
`
	lib := NewLibrary(soft.New(soft.Options{}), fstest.MapFS{"noop.comp.wgsl": {Data: []byte(src)}}, "", nil)
	if _, err := lib.Load("noop.comp", gpucore.ShaderCompute); err != nil {
		t.Fatalf("Load() = %v", err)
	}
}

func TestDefaultShadersCompile(t *testing.T) {
	stages := map[string]gpucore.ShaderStage{
		".vert": gpucore.ShaderVertex,
		".frag": gpucore.ShaderFragment,
		".comp": gpucore.ShaderCompute,
	}
	lib := NewLibrary(soft.New(soft.Options{}), shaders.FS, "", nil)
	for _, name := range shaders.Names {
		t.Run(name, func(t *testing.T) {
			stage, ok := stages[path.Ext(name)]
			if !ok {
				t.Fatalf("no stage for %q", name)
			}
			src, err := fs.ReadFile(shaders.FS, name+".wgsl")
			if err != nil {
				t.Fatal(err)
			}
			spirv, err := naga.Compile(string(src))
			if err != nil {
				t.Fatalf("naga.Compile(%s.wgsl) = %v", name, err)
			}
			if _, err := words(name, spirv); err != nil {
				t.Errorf("words() = %v", err)
			}
			if _, err := lib.Load(name, stage); err != nil {
				t.Errorf("Load() = %v", err)
			}
		})
	}
}

func TestCompiledModulesKeepSource(t *testing.T) {
	src := "@fragment fn main() {}"
	lib := NewLibrary(soft.New(soft.Options{}), fstest.MapFS{
		"a.frag.wgsl": {Data: []byte(src)},
		"b.frag.spv":  {Data: fakeSPIRV()},
	}, "", func(string) ([]byte, error) { return fakeSPIRV(), nil })

	if _, got, err := lib.read("a.frag"); err != nil || got != src {
		t.Errorf("read(a.frag) source = %q, %v; want %q", got, err, src)
	}
	if _, got, err := lib.read("b.frag"); err != nil || got != "" {
		t.Errorf("read(b.frag) source = %q, %v; want none", got, err)
	}
}

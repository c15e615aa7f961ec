// Package shader loads shader modules by name from a shader directory.
//
// For a name such as "geometry.vert" the library looks for
// "geometry.vert.spv" first and falls back to compiling
// "geometry.vert.wgsl" to SPIR-V with naga. Compiled modules also carry
// their WGSL source for drivers that consume it directly. Modules are cached
// per name and released together by Destroy.
package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"

	"github.com/gogpu/naga"

	"github.com/gogpu/deferred/gpucore"
)

// DefaultEntryPoint is the entry point used unless the library is created
// with another one.
const DefaultEntryPoint = "main"

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

var (
	// ErrNotFound is returned when neither a .spv nor a .wgsl file exists.
	ErrNotFound = errors.New("shader: not found")

	// ErrInvalidSPIRV is returned for SPIR-V files that are truncated or
	// lack the magic number.
	ErrInvalidSPIRV = errors.New("shader: invalid SPIR-V")
)

// Compiler turns WGSL source into SPIR-V bytes.
type Compiler func(source string) ([]byte, error)

// Library creates and caches shader modules.
type Library struct {
	drv     gpucore.Driver
	fsys    fs.FS
	entry   string
	compile Compiler
	modules map[string]gpucore.ShaderModuleID
}

// NewLibrary returns a library reading from fsys. An empty entry selects
// DefaultEntryPoint; a nil compile selects naga.Compile.
func NewLibrary(drv gpucore.Driver, fsys fs.FS, entry string, compile Compiler) *Library {
	if entry == "" {
		entry = DefaultEntryPoint
	}
	if compile == nil {
		compile = naga.Compile
	}
	return &Library{
		drv:     drv,
		fsys:    fsys,
		entry:   entry,
		compile: compile,
		modules: make(map[string]gpucore.ShaderModuleID),
	}
}

// EntryPoint returns the entry point used for every module.
func (l *Library) EntryPoint() string { return l.entry }

// Load returns the stage description of the named shader, creating the
// module on first use.
func (l *Library) Load(name string, stage gpucore.ShaderStage) (gpucore.ShaderStageDesc, error) {
	if id, ok := l.modules[name]; ok {
		return gpucore.ShaderStageDesc{Module: id, EntryPoint: l.entry}, nil
	}
	words, src, err := l.read(name)
	if err != nil {
		return gpucore.ShaderStageDesc{}, err
	}
	id, err := l.drv.CreateShaderModule(&gpucore.ShaderModuleDesc{
		Label: name,
		Stage: stage,
		SPIRV: words,
		WGSL:  src,
	})
	if err != nil {
		return gpucore.ShaderStageDesc{}, fmt.Errorf("shader: create module %q: %w", name, err)
	}
	l.modules[name] = id
	slogger().Debug("shader loaded", "name", name, "words", len(words))
	return gpucore.ShaderStageDesc{Module: id, EntryPoint: l.entry}, nil
}

// read returns the SPIR-V words of name and, when it was compiled, the
// WGSL source.
func (l *Library) read(name string) ([]uint32, string, error) {
	data, err := fs.ReadFile(l.fsys, name+".spv")
	if err == nil {
		w, err := words(name, data)
		return w, "", err
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("shader: read %s.spv: %w", name, err)
	}
	src, err := fs.ReadFile(l.fsys, name+".wgsl")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, "", fmt.Errorf("shader: read %s.wgsl: %w", name, err)
	}
	spirv, err := l.compile(string(src))
	if err != nil {
		return nil, "", fmt.Errorf("shader: compile %s.wgsl: %w", name, err)
	}
	w, err := words(name, spirv)
	return w, string(src), err
}

// words converts little-endian SPIR-V bytes to words.
func words(name string, data []byte) ([]uint32, error) {
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %s has %d bytes", ErrInvalidSPIRV, name, len(data))
	}
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if out[0] != spirvMagic {
		return nil, fmt.Errorf("%w: %s has magic %#08x", ErrInvalidSPIRV, name, out[0])
	}
	return out, nil
}

// Len returns the number of cached modules.
func (l *Library) Len() int { return len(l.modules) }

// Destroy releases every cached module.
func (l *Library) Destroy() {
	for name, id := range l.modules {
		l.drv.DestroyShaderModule(id)
		delete(l.modules, name)
	}
}

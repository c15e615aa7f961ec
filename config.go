package deferred

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/deferred/gpucore"
	"github.com/gogpu/deferred/internal/uniform"
	"github.com/gogpu/deferred/scene"
)

// Config holds renderer creation parameters.
type Config struct {
	// Backend names the driver backend Open uses. Empty selects the best
	// registered backend.
	Backend string

	// Validation enables driver API validation where supported.
	Validation bool

	// Width and Height size the swapchain when no Window is given.
	// Default: 1280x720
	Width, Height uint32

	// ImageCount is the requested number of swapchain images.
	// Default: 3
	ImageCount uint32

	// PresentMode is "fifo", "mailbox" or "immediate".
	// Default: "fifo"
	PresentMode string

	// ShadowMapSize is the edge length of one shadow map layer.
	// Default: 1024
	ShadowMapSize uint32

	// Scene capacity. The uniform buffers and shadow map layers are sized
	// from these; SetScene rejects scenes that exceed them.
	MaxObjects      int
	MaxMaterials    int
	MaxDirectional  int
	MaxPoints       int
	MaxShadowLights int

	// BlurEnabled and GlobalLightEnabled are the initial pass toggles.
	BlurEnabled        bool
	GlobalLightEnabled bool

	// AsyncCompute submits the blur pass on a dedicated compute queue when
	// the device has one.
	AsyncCompute bool

	// FenceTimeout bounds every wait on a queue submission.
	// Default: 1s
	FenceTimeout time.Duration

	// AcquireTimeout bounds swapchain image acquisition.
	// Default: 1s
	AcquireTimeout time.Duration

	// ShaderDir is the directory shaders are loaded from. Empty uses the
	// embedded default set. WithShaderFS overrides it.
	ShaderDir string

	// EntryPoint is the shader entry point. Default: "main"
	EntryPoint string

	// Logger overrides the package logger for one renderer.
	Logger *slog.Logger
}

// DefaultConfig returns a configuration suitable for a desktop window.
func DefaultConfig() Config {
	return Config{
		Width:              1280,
		Height:             720,
		ImageCount:         3,
		PresentMode:        "fifo",
		ShadowMapSize:      1024,
		MaxObjects:         uniform.ShaderMaxObjects,
		MaxMaterials:       uniform.ShaderMaxMaterials,
		MaxDirectional:     uniform.ShaderMaxDirectional,
		MaxPoints:          uniform.ShaderMaxPoints,
		MaxShadowLights:    4,
		BlurEnabled:        true,
		GlobalLightEnabled: true,
		AsyncCompute:       true,
		FenceTimeout:       time.Second,
		AcquireTimeout:     time.Second,
		EntryPoint:         "main",
	}
}

// ConfigError describes an invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "deferred: invalid config: " + e.Field + " " + e.Reason
}

// Validate checks the configuration and returns a *ConfigError for the
// first invalid field.
func (c *Config) Validate() error {
	if c.Width == 0 || c.Height == 0 {
		return &ConfigError{Field: "Width/Height", Reason: "must be positive"}
	}
	if c.ImageCount < 2 || c.ImageCount > 8 {
		return &ConfigError{Field: "ImageCount", Reason: "must be in [2, 8]"}
	}
	if _, err := parsePresentMode(c.PresentMode); err != nil {
		return &ConfigError{Field: "PresentMode", Reason: err.Error()}
	}
	if c.ShadowMapSize < 16 || c.ShadowMapSize > 8192 {
		return &ConfigError{Field: "ShadowMapSize", Reason: "must be in [16, 8192]"}
	}
	limits := []struct {
		field     string
		v, lo, hi int
	}{
		{"MaxObjects", c.MaxObjects, 1, uniform.ShaderMaxObjects},
		{"MaxMaterials", c.MaxMaterials, 1, uniform.ShaderMaxMaterials},
		{"MaxDirectional", c.MaxDirectional, 0, uniform.ShaderMaxDirectional},
		{"MaxPoints", c.MaxPoints, 0, uniform.ShaderMaxPoints},
		{"MaxShadowLights", c.MaxShadowLights, 0, c.MaxDirectional},
	}
	for _, l := range limits {
		if l.v < l.lo || l.v > l.hi {
			return &ConfigError{Field: l.field, Reason: fmt.Sprintf("must be in [%d, %d]", l.lo, l.hi)}
		}
	}
	if c.FenceTimeout <= 0 {
		return &ConfigError{Field: "FenceTimeout", Reason: "must be positive"}
	}
	if c.AcquireTimeout <= 0 {
		return &ConfigError{Field: "AcquireTimeout", Reason: "must be positive"}
	}
	return nil
}

// Limits returns the scene capacity.
func (c *Config) Limits() scene.Limits {
	return scene.Limits{
		MaxObjects:      c.MaxObjects,
		MaxMaterials:    c.MaxMaterials,
		MaxDirectional:  c.MaxDirectional,
		MaxPoints:       c.MaxPoints,
		MaxShadowLights: c.MaxShadowLights,
	}
}

func parsePresentMode(s string) (gpucore.PresentMode, error) {
	switch strings.ToLower(s) {
	case "", "fifo":
		return gpucore.PresentFIFO, nil
	case "mailbox":
		return gpucore.PresentMailbox, nil
	case "immediate":
		return gpucore.PresentImmediate, nil
	}
	return 0, fmt.Errorf("unknown present mode %q", s)
}

// fileConfig is the on-disk shape of Config. Durations are strings in
// time.ParseDuration syntax.
type fileConfig struct {
	Backend            string `yaml:"backend" toml:"backend"`
	Validation         bool   `yaml:"validation" toml:"validation"`
	Width              uint32 `yaml:"width" toml:"width"`
	Height             uint32 `yaml:"height" toml:"height"`
	ImageCount         uint32 `yaml:"image_count" toml:"image_count"`
	PresentMode        string `yaml:"present_mode" toml:"present_mode"`
	ShadowMapSize      uint32 `yaml:"shadow_map_size" toml:"shadow_map_size"`
	MaxObjects         int    `yaml:"max_objects" toml:"max_objects"`
	MaxMaterials       int    `yaml:"max_materials" toml:"max_materials"`
	MaxDirectional     int    `yaml:"max_directional" toml:"max_directional"`
	MaxPoints          int    `yaml:"max_points" toml:"max_points"`
	MaxShadowLights    int    `yaml:"max_shadow_lights" toml:"max_shadow_lights"`
	BlurEnabled        bool   `yaml:"blur" toml:"blur"`
	GlobalLightEnabled bool   `yaml:"global_light" toml:"global_light"`
	AsyncCompute       bool   `yaml:"async_compute" toml:"async_compute"`
	FenceTimeout       string `yaml:"fence_timeout" toml:"fence_timeout"`
	AcquireTimeout     string `yaml:"acquire_timeout" toml:"acquire_timeout"`
	ShaderDir          string `yaml:"shader_dir" toml:"shader_dir"`
	EntryPoint         string `yaml:"entry_point" toml:"entry_point"`
}

func toFile(c Config) fileConfig {
	return fileConfig{
		Backend:            c.Backend,
		Validation:         c.Validation,
		Width:              c.Width,
		Height:             c.Height,
		ImageCount:         c.ImageCount,
		PresentMode:        c.PresentMode,
		ShadowMapSize:      c.ShadowMapSize,
		MaxObjects:         c.MaxObjects,
		MaxMaterials:       c.MaxMaterials,
		MaxDirectional:     c.MaxDirectional,
		MaxPoints:          c.MaxPoints,
		MaxShadowLights:    c.MaxShadowLights,
		BlurEnabled:        c.BlurEnabled,
		GlobalLightEnabled: c.GlobalLightEnabled,
		AsyncCompute:       c.AsyncCompute,
		FenceTimeout:       c.FenceTimeout.String(),
		AcquireTimeout:     c.AcquireTimeout.String(),
		ShaderDir:          c.ShaderDir,
		EntryPoint:         c.EntryPoint,
	}
}

func (f fileConfig) config() (Config, error) {
	fence, err := time.ParseDuration(f.FenceTimeout)
	if err != nil {
		return Config{}, &ConfigError{Field: "fence_timeout", Reason: err.Error()}
	}
	acquire, err := time.ParseDuration(f.AcquireTimeout)
	if err != nil {
		return Config{}, &ConfigError{Field: "acquire_timeout", Reason: err.Error()}
	}
	return Config{
		Backend:            f.Backend,
		Validation:         f.Validation,
		Width:              f.Width,
		Height:             f.Height,
		ImageCount:         f.ImageCount,
		PresentMode:        f.PresentMode,
		ShadowMapSize:      f.ShadowMapSize,
		MaxObjects:         f.MaxObjects,
		MaxMaterials:       f.MaxMaterials,
		MaxDirectional:     f.MaxDirectional,
		MaxPoints:          f.MaxPoints,
		MaxShadowLights:    f.MaxShadowLights,
		BlurEnabled:        f.BlurEnabled,
		GlobalLightEnabled: f.GlobalLightEnabled,
		AsyncCompute:       f.AsyncCompute,
		FenceTimeout:       fence,
		AcquireTimeout:     acquire,
		ShaderDir:          f.ShaderDir,
		EntryPoint:         f.EntryPoint,
	}, nil
}

// ParseConfig decodes YAML or TOML data over DefaultConfig. Keys absent
// from data keep their defaults. format is "yaml" or "toml".
func ParseConfig(data []byte, format string) (Config, error) {
	f := toFile(DefaultConfig())
	var err error
	switch strings.ToLower(format) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &f)
	case "toml":
		err = toml.Unmarshal(data, &f)
	default:
		return Config{}, fmt.Errorf("deferred: unknown config format %q", format)
	}
	if err != nil {
		return Config{}, fmt.Errorf("deferred: parse %s config: %w", format, err)
	}
	c, err := f.config()
	if err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfig reads a .yaml, .yml or .toml file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("deferred: %w", err)
	}
	return ParseConfig(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// MarshalConfig encodes c as YAML or TOML.
func MarshalConfig(c Config, format string) ([]byte, error) {
	f := toFile(c)
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.Marshal(f)
	case "toml":
		return toml.Marshal(f)
	}
	return nil, fmt.Errorf("deferred: unknown config format %q", format)
}

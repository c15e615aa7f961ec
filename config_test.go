package deferred

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"zero width", func(c *Config) { c.Width = 0 }, "Width/Height"},
		{"one image", func(c *Config) { c.ImageCount = 1 }, "ImageCount"},
		{"nine images", func(c *Config) { c.ImageCount = 9 }, "ImageCount"},
		{"present mode", func(c *Config) { c.PresentMode = "vsync" }, "PresentMode"},
		{"tiny shadow map", func(c *Config) { c.ShadowMapSize = 8 }, "ShadowMapSize"},
		{"no objects", func(c *Config) { c.MaxObjects = 0 }, "MaxObjects"},
		{"too many points", func(c *Config) { c.MaxPoints = 1 << 20 }, "MaxPoints"},
		{"shadow lights over directional", func(c *Config) {
			c.MaxDirectional = 2
			c.MaxShadowLights = 3
		}, "MaxShadowLights"},
		{"fence timeout", func(c *Config) { c.FenceTimeout = 0 }, "FenceTimeout"},
		{"acquire timeout", func(c *Config) { c.AcquireTimeout = -time.Second }, "AcquireTimeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(&cfg)
			err := cfg.Validate()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestPresentModeCaseInsensitive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PresentMode = "Mailbox"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestParseConfigYAML(t *testing.T) {
	data := []byte(`
backend: soft
width: 800
height: 600
present_mode: mailbox
blur: false
fence_timeout: 250ms
max_shadow_lights: 2
`)
	cfg, err := ParseConfig(data, "yaml")
	if err != nil {
		t.Fatalf("ParseConfig() = %v", err)
	}
	if cfg.Backend != "soft" || cfg.Width != 800 || cfg.Height != 600 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.BlurEnabled {
		t.Error("blur: false not applied")
	}
	if cfg.FenceTimeout != 250*time.Millisecond {
		t.Errorf("FenceTimeout = %v", cfg.FenceTimeout)
	}
	// Absent keys keep their defaults.
	def := DefaultConfig()
	if cfg.ImageCount != def.ImageCount || !cfg.GlobalLightEnabled || cfg.AcquireTimeout != def.AcquireTimeout {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestParseConfigTOML(t *testing.T) {
	data := []byte(`
width = 320
height = 240
image_count = 2
async_compute = false
acquire_timeout = "2s"
shader_dir = "shaders/spv"
`)
	cfg, err := ParseConfig(data, "toml")
	if err != nil {
		t.Fatalf("ParseConfig() = %v", err)
	}
	if cfg.Width != 320 || cfg.ImageCount != 2 || cfg.AsyncCompute {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.AcquireTimeout != 2*time.Second || cfg.ShaderDir != "shaders/spv" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
		want   string
	}{
		{"format", "width: 1", "json", "unknown config format"},
		{"syntax", "width: [", "yaml", "parse yaml"},
		{"duration", "fence_timeout: soon", "yaml", "fence_timeout"},
		{"invalid", "image_count = 20", "toml", "ImageCount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data), tt.format)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ParseConfig() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestMarshalConfigRoundTrip(t *testing.T) {
	in := DefaultConfig()
	in.Backend = "vulkan"
	in.FenceTimeout = 1500 * time.Millisecond
	in.BlurEnabled = false
	for _, format := range []string{"yaml", "toml"} {
		t.Run(format, func(t *testing.T) {
			data, err := MarshalConfig(in, format)
			if err != nil {
				t.Fatal(err)
			}
			out, err := ParseConfig(data, format)
			if err != nil {
				t.Fatalf("ParseConfig(MarshalConfig()) = %v\n%s", err, data)
			}
			if out != in {
				t.Errorf("round trip = %+v, want %+v", out, in)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "renderer.toml")
	if err := os.WriteFile(path, []byte("width = 640\nheight = 480\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() = %v", err)
	}
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("cfg = %+v", cfg)
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig(missing) = %v", err)
	}
}

func TestConfigLimits(t *testing.T) {
	cfg := testConfig()
	lim := cfg.Limits()
	if lim.MaxObjects != 8 || lim.MaxShadowLights != 2 || lim.MaxPoints != 8 {
		t.Errorf("Limits() = %+v", lim)
	}
}

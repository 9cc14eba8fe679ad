package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8888, cfg.Port)
	assert.Equal(t, float32(0.2), cfg.Drawing.Distance)
	assert.Equal(t, float32(0.002), cfg.Drawing.MinSegmentLength)
	assert.InDelta(t, math.Pi/3, float64(cfg.Drawing.Lens().FieldOfView), 1e-6)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "sketch.toml", `
device_name = "tablet"
port = 9000
peer = "sharedsketch://10.0.0.5:8888"
write_timeout = "750ms"

[drawing]
distance = 0.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tablet", cfg.DeviceName)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, float32(0.5), cfg.Drawing.Distance)
	assert.Equal(t, float32(0.75), cfg.Drawing.Aspect)
	assert.Equal(t, 750*time.Millisecond, cfg.WriteTimeout.Duration)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "sketch.yaml", `
device_name: phone
discovery: false
write_timeout: 2s
drawing:
  field_of_view: 45
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "phone", cfg.DeviceName)
	assert.False(t, cfg.Discovery)
	assert.Equal(t, 2*time.Second, cfg.WriteTimeout.Duration)
	assert.Equal(t, float32(45), cfg.Drawing.FieldOfView)
	assert.Equal(t, float32(0.2), cfg.Drawing.Distance)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	for _, name := range []string{"sketch.toml", "sketch.yml"} {
		data := "colour = \"pink\"\n"
		if filepath.Ext(name) == ".yml" {
			data = "colour: pink\n"
		}
		_, err := Load(writeFile(t, name, data))
		assert.ErrorIs(t, err, ErrInvalid, name)
	}
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"SKETCH_PORT":          "7000",
		"SKETCH_DISCOVERY":     "false",
		"SKETCH_DISTANCE":      "0.3",
		"SKETCH_WRITE_TIMEOUT": "2s",
		"SKETCH_DEVICE_NAME":   "phone",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := Default()
	require.NoError(t, applyEnv(&cfg, lookup))
	assert.Equal(t, 7000, cfg.Port)
	assert.False(t, cfg.Discovery)
	assert.Equal(t, "phone", cfg.DeviceName)
	assert.Equal(t, float32(0.3), cfg.Drawing.Distance)
	assert.Equal(t, 2*time.Second, cfg.WriteTimeout.Duration)

	env = map[string]string{"SKETCH_PORT": "eighty"}
	assert.ErrorIs(t, applyEnv(&cfg, lookup), ErrInvalid)
}

func TestParseLink(t *testing.T) {
	tests := []struct {
		link string
		want string
		ok   bool
	}{
		{"sharedsketch://192.168.1.4:8888", "192.168.1.4:8888", true},
		{"sharedsketch://192.168.1.4:8888/", "192.168.1.4:8888", true},
		{"10.0.0.1:9000", "10.0.0.1:9000", true},
		{"sharedsketch://[fe80::1]:8888", "[fe80::1]:8888", true},
		{"sharedsketch://host", "", false},
		{"sharedsketch://:8888", "", false},
		{"sharedsketch://host:0", "", false},
	}
	for _, tt := range tests {
		got, err := ParseLink(tt.link)
		if tt.ok {
			require.NoError(t, err, tt.link)
		} else {
			require.ErrorIs(t, err, ErrInvalid, tt.link)
		}
		assert.Equal(t, tt.want, got, tt.link)
	}
	link := ShareLink("10.0.0.2", 8888)
	assert.Equal(t, "sharedsketch://10.0.0.2:8888", link)
	assert.True(t, IsLink(link))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"distance", func(c *Config) { c.Drawing.Distance = 0 }},
		{"fov", func(c *Config) { c.Drawing.FieldOfView = 180 }},
		{"aspect", func(c *Config) { c.Drawing.Aspect = -1 }},
		{"timeout", func(c *Config) { c.WriteTimeout = Duration{} }},
		{"peer", func(c *Config) { c.Peer = "sharedsketch://nowhere" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

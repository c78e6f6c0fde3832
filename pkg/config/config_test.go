package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultBindAddress, cfg.Server.BindAddress)
	assert.Equal(t, DefaultRequestsPerMinute, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, DefaultModel, cfg.Model.Default)
	assert.InDelta(t, DefaultTemperature, cfg.Model.Temperature, 0.001)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultBindAddress, cfg.Server.BindAddress)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pocketdev.yaml")
	content := `
server:
  bind_address: "0.0.0.0:9000"
rate_limit:
  requests_per_minute: 120
model:
  default: "google/gemini-2.0-flash"
  temperature: 0.2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.BindAddress)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "google/gemini-2.0-flash", cfg.Model.Default)
	assert.InDelta(t, 0.2, cfg.Model.Temperature, 0.001)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pocketdev.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  bind_address: \"0.0.0.0:9000\"\n"), 0644))

	t.Setenv("POCKETDEV_BIND", "127.0.0.1:7777")
	t.Setenv("POCKETDEV_RATE_LIMIT", "30")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7777", cfg.Server.BindAddress)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero quota", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }, true},
		{"temperature too high", func(c *Config) { c.Model.Temperature = 1.5 }, true},
		{"relative workspace", func(c *Config) { c.Workspace = "relative/path" }, true},
		{"absolute workspace", func(c *Config) { c.Workspace = "/tmp" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultWorkspace(t *testing.T) {
	cfg := defaults()
	cfg.Workspace = "/srv/project"
	assert.Equal(t, "/srv/project", cfg.DefaultWorkspace())

	cfg.Workspace = ""
	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, cwd, cfg.DefaultWorkspace())
}

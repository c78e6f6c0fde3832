// Package config loads pocketdev configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation
const (
	DefaultBindAddress       = "127.0.0.1:8765"
	DefaultModel             = "meta/llama-3.1-405b-instruct"
	DefaultTemperature       = 0.7
	DefaultRequestsPerMinute = 60

	// MinSecretLength is the minimum recommended length for the JWT secret
	MinSecretLength = 32
)

// Config represents the complete pocketdev configuration
type Config struct {
	Server struct {
		BindAddress string `yaml:"bind_address"`
	} `yaml:"server"`

	Auth struct {
		JWTSecret  string `yaml:"jwt_secret"`
		PairingKey string `yaml:"pairing_key"`
	} `yaml:"auth"`

	RateLimit struct {
		RequestsPerMinute int `yaml:"requests_per_minute"`
	} `yaml:"rate_limit"`

	Model struct {
		BaseURL     string  `yaml:"base_url"`
		APIKey      string  `yaml:"api_key"`
		Default     string  `yaml:"default"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"model"`

	Workspace string `yaml:"workspace"`
	DataDir   string `yaml:"data_dir"`
}

// Load reads configuration from path (if it exists), applies defaults, and
// overlays environment variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fine, defaults + env only
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.BindAddress = DefaultBindAddress
	cfg.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	cfg.Model.Default = DefaultModel
	cfg.Model.Temperature = DefaultTemperature
	cfg.Model.BaseURL = "https://integrate.api.nvidia.com/v1"

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cfg.DataDir = filepath.Join(home, ".pocketdev")
	return cfg
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("POCKETDEV_BIND")); v != "" {
		cfg.Server.BindAddress = v
	}
	if v := os.Getenv("POCKETDEV_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("POCKETDEV_PAIRING_KEY"); v != "" {
		cfg.Auth.PairingKey = v
	}
	if v := strings.TrimSpace(os.Getenv("POCKETDEV_WORKSPACE")); v != "" {
		cfg.Workspace = v
	}
	if v := strings.TrimSpace(os.Getenv("POCKETDEV_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("POCKETDEV_MODEL_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("POCKETDEV_MODEL_BASE_URL")); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("POCKETDEV_MODEL")); v != "" {
		cfg.Model.Default = v
	}
	if v := strings.TrimSpace(os.Getenv("POCKETDEV_RATE_LIMIT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.RateLimit.RequestsPerMinute = parsed
		}
	}
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive, got %d", c.RateLimit.RequestsPerMinute)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be in [0,1], got %v", c.Model.Temperature)
	}
	if c.Workspace != "" && !filepath.IsAbs(c.Workspace) {
		return fmt.Errorf("workspace must be an absolute path, got %q", c.Workspace)
	}
	return nil
}

// DefaultWorkspace resolves the workspace root to use at startup: the
// configured path when set, otherwise the process working directory.
func (c *Config) DefaultWorkspace() string {
	if c.Workspace != "" {
		return c.Workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

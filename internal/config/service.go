package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvModelDir = "EMODIARY_MODEL_DIR"
	EnvDatabase = "EMODIARY_DB"
	EnvWorkers  = "EMODIARY_WORKERS"
)

// ServiceConfig configures the emodiary command.
type ServiceConfig struct {
	ModelDir  string `yaml:"model_dir"`
	Database  string `yaml:"database"`
	Workers   int    `yaml:"workers"`
	MaxLength int    `yaml:"max_length"` // overrides config.json when > 0
}

// DefaultServiceConfig returns the built-in service settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ModelDir: "models/emotion_model_onnx",
		Database: "emodiary.db",
		Workers:  runtime.NumCPU(),
	}
}

// LoadServiceConfig reads a YAML service configuration.
// Fields absent from the file keep their defaults. An empty path returns the defaults.
func LoadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: Path comes from trusted caller
	if err != nil {
		return cfg, fmt.Errorf("failed to read service config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultServiceConfig(), fmt.Errorf("failed to parse service config %s: %w", path, err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *ServiceConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvModelDir); ok && v != "" {
		c.ModelDir = v
	}
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		c.Database = v
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: invalid worker count %q", EnvWorkers, v)
		}
		c.Workers = n
	}
	return nil
}

// Package config loads the optional pagestore configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the CLI configuration. Command-line flags override any
// value loaded from the file.
type Config struct {
	// Database is the database file path; empty means in-memory.
	Database string `yaml:"database"`

	Log LogConfig `yaml:"log"`
}

// LogConfig mirrors the logger configuration knobs.
type LogConfig struct {
	Level      string `yaml:"level"`
	Pretty     bool   `yaml:"pretty"`
	WithCaller bool   `yaml:"with_caller"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads a YAML configuration file, filling unset fields with
// defaults. A missing file is not an error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. An empty path is a
// no-op.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads a YAML or TOML config file (by extension) and expands
// ${VAR} environment variables.
func Load(path string) (*FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg FeedConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parse config toml: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*FeedConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*FeedConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Encode renders cfg in the format implied by the extension of path.
func Encode(cfg *FeedConfig, path string) ([]byte, error) {
	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		return toml.Marshal(cfg)
	}
	return yaml.Marshal(cfg)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "TXROUTER_"

// Load loads configuration from multiple sources with priority:
// 1. Environment variables prefixed with TXROUTER_ (highest priority)
// 2. The YAML file at path, skipped when path is empty
// 3. Default values (lowest priority)
func Load(path string) (*Config, error) {
	var src koanf.Provider
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		src = file.Provider(path)
	}
	return load(src)
}

// Parse loads configuration from YAML bytes, with the same defaults and environment
// overrides as Load.
func Parse(data []byte) (*Config, error) {
	return load(rawbytes.Provider(data))
}

func load(src koanf.Provider) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if src != nil {
		if err := k.Load(src, yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config: %w", err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// TXROUTER_LOG_LEVEL -> log.level
			key = strings.TrimPrefix(key, envPrefix)
			return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name": "txrouter",
		"app.env":  EnvDevelopment,

		"log.level":  "info",
		"log.pretty": false,

		"transaction.synchronization": "on_actual",
		"transaction.timeout":         "0s",
		"transaction.slowbegin":       "200ms",
	}
	return k.Load(confmap.Provider(defaults, "."), nil)
}

// ErrSectionNotFound is returned by Unmarshal for a key absent from every source.
var ErrSectionNotFound = errors.New("config section not found")

// Unmarshal decodes the section at key into out, for configuration owned by
// other packages.
func (c *Config) Unmarshal(key string, out any) error {
	if c.k == nil || !c.k.Exists(key) {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, key)
	}
	return c.k.Unmarshal(key, out)
}

// Exists reports whether key was set by any source.
func (c *Config) Exists(key string) bool {
	return c.k != nil && c.k.Exists(key)
}

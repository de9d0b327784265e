// Package config loads the per-project .keygrd.yaml file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up at the scan root.
const FileName = ".keygrd.yaml"

// Config represents the keygrd configuration file.
type Config struct {
	// Expected is the path to the expected-key source, relative to the
	// scan root unless absolute.
	Expected string `yaml:"expected"`
	// Tracked optionally narrows validation to a subset of interest.
	Tracked string `yaml:"tracked"`

	// Policy is strict, lenient, or progressive.
	Policy string `yaml:"policy"`

	// RegistryClasses are the class names recognized as a constants
	// registry. Empty means the default set.
	RegistryClasses []string `yaml:"registry_classes"`
	// KeyWrappers are the key constructor names the literal and symbolic
	// shapes recognize. Empty means the default set.
	KeyWrappers []string `yaml:"key_wrappers"`

	Ignores  IgnoresConfig  `yaml:"ignores"`
	Patterns PatternsConfig `yaml:"patterns"`
	Baseline BaselineConfig `yaml:"baseline"`
	Cache    CacheConfig    `yaml:"cache"`

	// Parallel bounds the scan worker pool; 0 means the number of CPUs.
	Parallel int `yaml:"parallel"`
}

// IgnoresConfig lists folders left out of scanning.
type IgnoresConfig struct {
	Folders []string `yaml:"folders"`
}

// PatternsConfig holds key-level include/exclude pattern lists. Each entry
// is a regular expression when it compiles and a substring otherwise.
type PatternsConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// BaselineConfig drives the progressive policy.
type BaselineConfig struct {
	File string `yaml:"file"`
	// Grace is how long a removed key is tolerated, e.g. "336h".
	Grace string `yaml:"grace"`
}

// CacheConfig controls the per-file scan cache.
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	MaxAge  string `yaml:"max_age"`
}

// Defaults used when the config file is absent or leaves fields empty.
const (
	DefaultBaselineFile = ".keygrd-baseline.json"
	DefaultCacheDir     = ".keygrd-cache"
	DefaultGrace        = 14 * 24 * time.Hour
	DefaultCacheMaxAge  = 7 * 24 * time.Hour
)

// Load reads the config file from the given directory. A missing file
// yields the zero config, not an error.
func Load(rootPath string) (*Config, error) {
	configPath := filepath.Join(rootPath, FileName)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// CacheEnabled reports whether the scan cache should be used; it defaults
// to on.
func (c *Config) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}

// BaselineFile returns the configured baseline path or the default.
func (c *Config) BaselineFile() string {
	if c.Baseline.File != "" {
		return c.Baseline.File
	}
	return DefaultBaselineFile
}

// CacheDir returns the configured cache directory or the default.
func (c *Config) CacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return DefaultCacheDir
}

// GraceWindow parses the configured grace duration, falling back to the
// default on absence or parse failure.
func (c *Config) GraceWindow() time.Duration {
	return parseDuration(c.Baseline.Grace, DefaultGrace)
}

// CacheMaxAge parses the configured cache expiry, falling back to the
// default on absence or parse failure.
func (c *Config) CacheMaxAge() time.Duration {
	return parseDuration(c.Cache.MaxAge, DefaultCacheMaxAge)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

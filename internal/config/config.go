// Package config handles waddle configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// searchPathsFunc is overridden in tests to avoid picking up real config
// files on developer machines.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order: ./config.yaml,
// ~/.config/waddle/config.yaml, /etc/waddle/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "waddle", "config.yaml"))
	}

	paths = append(paths, "/etc/waddle/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches searchPathsFunc() and returns the first
// path that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds all waddle configuration.
type Config struct {
	JID        string           `yaml:"jid"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
	Bus        BusConfig        `yaml:"bus"`
	Connection ConnectionConfig `yaml:"connection"`
}

// BusConfig sizes the event bus's per-domain ring buffers.
type BusConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// ConnectionConfig controls the reconnect policy the connection manager
// applies when the transport reports a retryable failure.
type ConnectionConfig struct {
	MaxReconnectAttempts uint32 `yaml:"max_reconnect_attempts"` // 0 = infinite
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g. ${WADDLE_JID}) so credentials
	// can be kept out of the config file itself.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load and by Default.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Bus.BufferSize == 0 {
		c.Bus.BufferSize = 1024
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Bus.BufferSize < 1 {
		return fmt.Errorf("bus.buffer_size %d must be positive", c.Bus.BufferSize)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Default returns a default configuration suitable for a local smoke
// test against faketransport. All defaults are already applied.
func Default() *Config {
	cfg := &Config{JID: "alice@example.com"}
	cfg.applyDefaults()
	return cfg
}

package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// global holds the process-wide configuration.
	global atomic.Pointer[Config]

	// initMu serializes Initialize so concurrent callers see one load.
	initMu sync.Mutex
)

// Initialize loads configuration from path with environment overrides and
// installs it as the process-wide configuration. Once a configuration is
// installed, later calls are no-ops; use ReloadConfig to replace it.
func Initialize(path string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if global.Load() != nil {
		return nil
	}
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return err
	}
	global.Store(cfg)
	return nil
}

// GetConfig returns the process-wide configuration, or nil before
// Initialize succeeded. Safe for concurrent use.
func GetConfig() *Config {
	return global.Load()
}

// SetConfig installs cfg as the process-wide configuration. Intended for
// tests and for commands that build their configuration in code.
func SetConfig(cfg *Config) {
	global.Store(cfg)
}

// ReloadConfig reloads the configuration from path. The installed
// configuration is replaced only if loading and validation succeed.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	global.Store(cfg)
	return nil
}

// MustGetConfig returns the process-wide configuration and panics if none
// is installed.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}

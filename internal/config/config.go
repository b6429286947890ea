// Package config provides configuration loading for pipegate.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/pipegate/internal/contextcache"
)

// Config is the full pipegate configuration.
type Config struct {
	Storage StorageConfig `koanf:"storage"`
	Cache   CacheConfig   `koanf:"cache"`
	Logging LoggingConfig `koanf:"logging"`
	Server  ServerConfig  `koanf:"server"`
}

// StorageConfig locates the on-disk state root.
type StorageConfig struct {
	// Root holds all namespace partitions. Defaults to
	// ~/.config/pipegate/state.
	Root string `koanf:"root"`
}

// CacheConfig tunes the gathered-context cache.
type CacheConfig struct {
	// TTL overrides the default 7-day entry lifetime.
	TTL time.Duration `koanf:"ttl"`
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ServerConfig tunes the read-only status server.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Validate checks the configuration for unusable values. Called by
// LoadWithFile after defaults are applied.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root must not be empty")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative: %s", c.Cache.TTL)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console: %q", c.Logging.Format)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535: %d", c.Server.Port)
	}
	return nil
}

func defaultStateRoot(home string) string {
	return filepath.Join(home, ".config", "pipegate", "state")
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config, home string) {
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = defaultStateRoot(home)
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = contextcache.DefaultTTL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
}

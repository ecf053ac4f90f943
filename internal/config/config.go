package config

import (
	"fmt"
	"time"
)

// Config holds all replay server configuration
type Config struct {
	// HTTP server
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`

	// Snapshot persistence; empty keeps snapshots in memory only
	SnapshotDir string `mapstructure:"snapshot_dir"`

	// Sampling
	Seed int64 `mapstructure:"seed"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Addr:            ":8080",
		ShutdownTimeout: 30 * time.Second,
		MaxBodyBytes:    8 << 20,
		SnapshotDir:     "",
		Seed:            0, // 0 means seed from wall clock
		LogLevel:        "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}
	return nil
}

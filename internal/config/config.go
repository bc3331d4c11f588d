// Package config provides configuration loading for the facevec CLI.
package config

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/liliang-cn/facevec"
)

// Config holds the facevec CLI configuration
type Config struct {
	DB  DBConfig  `koanf:"db"`
	Log LogConfig `koanf:"log"`
}

// DBConfig configures the face database
type DBConfig struct {
	Path        string        `koanf:"path"`
	Dimension   int           `koanf:"dimension"`
	BusyTimeout time.Duration `koanf:"busy_timeout"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn or error
	Format string `koanf:"format"` // console or json
}

// Default returns the built-in configuration
func Default() *Config {
	db := facevec.DefaultConfig("faces.db")
	return &Config{
		DB: DBConfig{
			Path:        db.Path,
			Dimension:   db.Dimension,
			BusyTimeout: db.BusyTimeout,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Validate checks the configuration for values the database or logger would reject
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if c.DB.Dimension <= 0 {
		return fmt.Errorf("db.dimension must be positive, got %d", c.DB.Dimension)
	}
	if c.DB.BusyTimeout < 0 {
		return fmt.Errorf("db.busy_timeout must not be negative, got %s", c.DB.BusyTimeout)
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Facevec returns the database configuration
func (c *Config) Facevec() facevec.Config {
	return facevec.Config{
		Path:        c.DB.Path,
		Dimension:   c.DB.Dimension,
		BusyTimeout: c.DB.BusyTimeout,
	}
}

// ZapLevel parses the configured log level
func (c LogConfig) ZapLevel() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

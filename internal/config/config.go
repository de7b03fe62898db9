// Package config provides configuration loading for suggestctl.
//
// Configuration is loaded from an optional YAML file, then overridden by
// environment variables, with hardcoded defaults underneath.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete suggestctl configuration.
type Config struct {
	Model   ModelConfig   `koanf:"model"`
	Logging LoggingConfig `koanf:"logging"`
}

// ModelConfig holds model loading and matching configuration.
type ModelConfig struct {
	// Path is the model definition file; required for the suggest command.
	Path string `koanf:"path"`

	// MatchTimeout bounds a single regex evaluation.
	MatchTimeout time.Duration `koanf:"match_timeout"`
}

// LoggingConfig holds logger construction settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Development switches to zap's development config (console encoding,
	// stacktraces on warn).
	Development bool `koanf:"development"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Model.MatchTimeout <= 0 {
		return errors.New("model match_timeout must be positive")
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	return nil
}

// applyDefaults fills in zero values left after file and environment loading.
func applyDefaults(cfg *Config) {
	if cfg.Model.MatchTimeout == 0 {
		cfg.Model.MatchTimeout = 2 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

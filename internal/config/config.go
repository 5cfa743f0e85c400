// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Service is the gazed configuration. Command-line flags override it.
type Service struct {
	Port         int           `env:"GAZE_PORT" envDefault:"8080"`
	Mode         string        `env:"GAZE_MODE" envDefault:"default"`
	Window       time.Duration `env:"GAZE_WINDOW"` // zero keeps the mode's window
	LogLevel     string        `env:"GAZE_LOG_LEVEL" envDefault:"info"`
	PollInterval time.Duration `env:"GAZE_POLL_INTERVAL" envDefault:"33ms"`
	Debug        bool          `env:"GAZE_DEBUG"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the service config from the environment
func Load() (Service, error) {
	var cfg Service
	if err := ParseEnv(&cfg); err != nil {
		return Service{}, err
	}
	return cfg, nil
}

// Validator resolves the gaze config for the selected mode and window
func (s Service) Validator() (gaze.Config, error) {
	cfg, err := gaze.ConfigForMode(s.Mode)
	if err != nil {
		return gaze.Config{}, err
	}
	if s.Window > 0 {
		cfg.Window = s.Window
	}
	if err := cfg.Validate(); err != nil {
		return gaze.Config{}, err
	}
	return cfg, nil
}

// Addr returns the listen address
func (s Service) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

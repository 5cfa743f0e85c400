package gaze

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by New and Config.Validate for unusable settings.
var ErrInvalidConfig = errors.New("invalid gaze config")

// Default validator parameters.
const (
	DefaultWindow = 500 * time.Millisecond

	// Seed bounds for the inter-eye distance auto-calibration.
	DefaultMinEyeDistance = 0.1
	DefaultMaxEyeDistance = 0.275
)

// Config holds the tunable parameters of a Validator.
type Config struct {
	// Window is how far back the frame cache reaches.
	Window time.Duration

	// Initial inter-eye distance bounds, normalized pupil units.
	// The running minimum only shrinks and the maximum only grows.
	MinEyeDistance float64
	MaxEyeDistance float64
}

// DefaultConfig returns the configuration for general use: a 500ms window
// that rides out typical glitches.
func DefaultConfig() Config {
	return Config{
		Window:         DefaultWindow,
		MinEyeDistance: DefaultMinEyeDistance,
		MaxEyeDistance: DefaultMaxEyeDistance,
	}
}

// LowLatencyConfig returns a short window for fast-reacting input such as games.
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.Window = 30 * time.Millisecond
	return cfg
}

// TightConfig returns the shortest window; glitches surface almost immediately.
func TightConfig() Config {
	cfg := DefaultConfig()
	cfg.Window = 15 * time.Millisecond
	return cfg
}

// ConfigForMode returns the preset for a mode name: "default", "low-latency" or "tight".
func ConfigForMode(mode string) (Config, error) {
	switch mode {
	case "", "default":
		return DefaultConfig(), nil
	case "low-latency":
		return LowLatencyConfig(), nil
	case "tight":
		return TightConfig(), nil
	default:
		return Config{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, mode)
	}
}

// Validate checks that the configuration can drive a Validator.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %v", ErrInvalidConfig, c.Window)
	}
	if c.MinEyeDistance <= 0 || c.MaxEyeDistance <= 0 {
		return fmt.Errorf("%w: eye distance bounds must be positive", ErrInvalidConfig)
	}
	if c.MinEyeDistance > c.MaxEyeDistance {
		return fmt.Errorf("%w: min eye distance %.3f above max %.3f",
			ErrInvalidConfig, c.MinEyeDistance, c.MaxEyeDistance)
	}
	return nil
}

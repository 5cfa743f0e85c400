package gaze

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Window != 500*time.Millisecond {
		t.Errorf("Window = %v, want 500ms", cfg.Window)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid: %v", err)
	}
}

func TestPresetConfigs(t *testing.T) {
	def := DefaultConfig()
	low := LowLatencyConfig()
	tight := TightConfig()

	if low.Window >= def.Window {
		t.Error("LowLatencyConfig should have a shorter window than default")
	}
	if tight.Window >= low.Window {
		t.Error("TightConfig should have a shorter window than LowLatencyConfig")
	}
	for _, cfg := range []Config{low, tight} {
		if cfg.MinEyeDistance != def.MinEyeDistance || cfg.MaxEyeDistance != def.MaxEyeDistance {
			t.Error("presets should keep the default distance bounds")
		}
	}
}

func TestConfigForMode(t *testing.T) {
	tests := []struct {
		mode    string
		want    time.Duration
		wantErr bool
	}{
		{"", 500 * time.Millisecond, false},
		{"default", 500 * time.Millisecond, false},
		{"low-latency", 30 * time.Millisecond, false},
		{"tight", 15 * time.Millisecond, false},
		{"turbo", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg, err := ConfigForMode(tt.mode)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("ConfigForMode(%q) error = %v, want ErrInvalidConfig", tt.mode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ConfigForMode(%q) error: %v", tt.mode, err)
			}
			if cfg.Window != tt.want {
				t.Errorf("Window = %v, want %v", cfg.Window, tt.want)
			}
		})
	}
}

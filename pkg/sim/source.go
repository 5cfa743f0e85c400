// Package sim generates synthetic tracker frames. The stream is glitchy on
// purpose: failed frames, blinks and single-eye dropouts show up at the
// configured rates so consumers can exercise their fallback paths.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Config controls the synthetic stream
type Config struct {
	Seed         int64
	FrameRate    float64 // frames per second
	ScreenWidth  float64
	ScreenHeight float64

	// Seconds for one full sweep of the gaze target across the screen.
	Period float64

	// Per-frame probabilities.
	GlitchRate  float64 // frame reports FAIL or LOST
	BlinkRate   float64 // both eyes missing
	DropoutRate float64 // exactly one eye missing

	Noise         float64 // raw gaze jitter in pixels
	EyeSeparation float64 // normalized distance between pupils
}

// DefaultConfig returns a 60fps stream on a 1080p screen
func DefaultConfig() Config {
	return Config{
		Seed:          1,
		FrameRate:     60,
		ScreenWidth:   1920,
		ScreenHeight:  1080,
		Period:        4,
		GlitchRate:    0.05,
		BlinkRate:     0.02,
		DropoutRate:   0.05,
		Noise:         12,
		EyeSeparation: 0.18,
	}
}

// Validate checks the config for values the generator can't use
func (c Config) Validate() error {
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %v", c.FrameRate)
	}
	if c.Period <= 0 {
		return fmt.Errorf("period must be positive, got %v", c.Period)
	}
	rates := []struct {
		name string
		p    float64
	}{
		{"glitch", c.GlitchRate},
		{"blink", c.BlinkRate},
		{"dropout", c.DropoutRate},
	}
	for _, r := range rates {
		if r.p < 0 || r.p > 1 {
			return fmt.Errorf("%s rate must be in [0,1], got %v", r.name, r.p)
		}
	}
	return nil
}

// Source produces frames with deterministic content for a given seed.
// Not safe for concurrent use.
type Source struct {
	cfg    Config
	rng    *rand.Rand
	start  int64
	step   float64
	n      int64
	logger *slog.Logger

	smoothed gaze.Point2D
}

// NewSource creates a source whose first frame is stamped at start
func NewSource(cfg Config, start time.Time) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Source{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		start:  start.UnixMilli(),
		step:   1000 / cfg.FrameRate,
		logger: log.With("component", "sim"),
	}, nil
}

// Next returns the next frame in the stream
func (s *Source) Next() gaze.Frame {
	ts := s.start + int64(math.Round(float64(s.n)*s.step))
	t := float64(s.n) / s.cfg.FrameRate
	s.n++

	phase := 2 * math.Pi * t / s.cfg.Period
	// Lissajous path keeps both axes moving
	target := gaze.Point2D{
		X: s.cfg.ScreenWidth * (0.5 + 0.4*math.Sin(phase)),
		Y: s.cfg.ScreenHeight * (0.5 + 0.4*math.Sin(2*phase)),
	}

	if s.rng.Float64() < s.cfg.GlitchRate {
		state := gaze.StateTrackingFail
		if s.rng.Intn(2) == 0 {
			state = gaze.StateTrackingLost
		}
		return gaze.Frame{Timestamp: ts, State: state}
	}

	raw := gaze.Point2D{
		X: target.X + s.rng.NormFloat64()*s.cfg.Noise,
		Y: target.Y + s.rng.NormFloat64()*s.cfg.Noise,
	}
	if s.smoothed.IsZero() {
		s.smoothed = raw
	} else {
		s.smoothed = s.smoothed.Scale(0.8).Add(raw.Scale(0.2))
	}

	f := gaze.Frame{
		Timestamp: ts,
		State:     gaze.StateTrackingGaze | gaze.StateTrackingEyes | gaze.StateTrackingPresence,
		Fixated:   s.rng.Float64() < 0.3,
		Raw:       raw,
		Smoothed:  s.smoothed,
	}

	// User sways toward and away from the camera
	sep := s.cfg.EyeSeparation * (1 + 0.25*math.Sin(phase/3))
	center := gaze.Point2D{X: 0.5 + 0.05*math.Sin(phase/2), Y: 0.5}
	f.Left = gaze.Eye{
		PupilSize:   18 + s.rng.Float64()*4,
		PupilCenter: center.Sub(gaze.Point2D{X: sep / 2}),
		Raw:         raw,
		Smoothed:    s.smoothed,
	}
	f.Right = gaze.Eye{
		PupilSize:   18 + s.rng.Float64()*4,
		PupilCenter: center.Add(gaze.Point2D{X: sep / 2}),
		Raw:         raw,
		Smoothed:    s.smoothed,
	}

	switch r := s.rng.Float64(); {
	case r < s.cfg.BlinkRate:
		f.Left, f.Right = gaze.Eye{}, gaze.Eye{}
		f.State &^= gaze.StateTrackingEyes
	case r < s.cfg.BlinkRate+s.cfg.DropoutRate:
		if s.rng.Intn(2) == 0 {
			f.Left = gaze.Eye{}
		} else {
			f.Right = gaze.Eye{}
		}
	}
	return f
}

// Run emits frames on the returned channel at the configured rate until ctx
// is done, restamping them with wall-clock time. The channel is closed on exit.
func (s *Source) Run(ctx context.Context) <-chan gaze.Frame {
	out := make(chan gaze.Frame, 16)
	interval := time.Duration(s.step * float64(time.Millisecond))

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Info("simulated tracker started", "fps", s.cfg.FrameRate, "seed", s.cfg.Seed)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("simulated tracker stopped", "frames", s.n)
				return
			case now := <-ticker.C:
				f := s.Next()
				f.Timestamp = now.UnixMilli()
				select {
				case out <- f:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

package gaze

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-gaze/internal/log"
)

// Snapshot is the validator's last known good state. A published Snapshot
// is never modified; each Update publishes a new one.
type Snapshot struct {
	Raw      Point2D `json:"raw"`
	Smoothed Point2D `json:"smoothed"`
	HasGaze  bool    `json:"has_gaze"`

	// An eye is cleared, with its Valid flag false, when the current window
	// holds no valid reading for it.
	Left       Eye  `json:"left"`
	LeftValid  bool `json:"left_valid"`
	Right      Eye  `json:"right"`
	RightValid bool `json:"right_valid"`

	// HalfVector runs from the left pupil to the eye midpoint. It survives
	// updates without a two-eye frame and drives the single-eye fallback.
	HalfVector Point2D `json:"half_vector"`

	MinEyeDistance float64 `json:"min_eye_distance"`
	MaxEyeDistance float64 `json:"max_eye_distance"`
	Depth          float64 `json:"depth"`

	// Position is normalized: X and Y in [-1,1], Z is Depth.
	Position    Point3D `json:"position"`
	HasPosition bool    `json:"has_position"`

	EyeAngle float64 `json:"eye_angle"` // degrees
	HasAngle bool    `json:"has_angle"`

	Seq uint64 `json:"seq"`
}

// Stats summarises the frame cache.
type Stats struct {
	Frames            int           `json:"frames"`
	Window            time.Duration `json:"window"`
	AvgMillisPerFrame float64       `json:"avg_millis_per_frame"`
	AvgFPS            float64       `json:"avg_fps"`
	Updates           uint64        `json:"updates"`
	Rejected          uint64        `json:"rejected"`
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock sets the clock used for cache eviction.
func WithClock(c Clock) Option {
	return func(v *Validator) {
		v.clock = c
	}
}

// WithLogger sets the validator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = l
	}
}

// Validator keeps a time-windowed cache of frames and derives the latest
// trustworthy gaze and position estimates from it on every Update.
//
// Updates from several goroutines are serialized; frames should still arrive
// in timestamp order. All read accessors are safe for concurrent use.
type Validator struct {
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex // guards cache and counters
	cache    *FrameCache
	updates  uint64
	rejected uint64

	snap atomic.Pointer[Snapshot]
}

// New creates a validator for cfg.
func New(cfg Config, opts ...Option) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	if v.clock == nil {
		v.clock = SystemClock()
	}
	if v.logger == nil {
		v.logger = log.With("component", "gaze")
	}
	v.cache = NewFrameCache(cfg.Window, v.clock)
	v.snap.Store(&Snapshot{
		MinEyeDistance: cfg.MinEyeDistance,
		MaxEyeDistance: cfg.MaxEyeDistance,
	})
	return v, nil
}

// scan holds what one pass over the cache found.
type scan struct {
	twoEye    bool
	left      Eye
	right     Eye
	mid       Point2D
	half      Point2D
	distance  float64
	leftOnly  *Eye
	rightOnly *Eye

	gaze     bool
	raw      Point2D
	smoothed Point2D
}

// Update adds a frame and recomputes the snapshot from the cache.
func (v *Validator) Update(f Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()

	evicted := v.cache.Push(f)
	v.updates++
	if !f.State.Tracking() {
		v.rejected++
	}

	s := v.scanCache()

	prev := v.snap.Load()
	next := v.apply(*prev, s)
	next.Seq = v.updates
	v.snap.Store(&next)

	if (prev.LeftValid || prev.RightValid) && !next.LeftValid && !next.RightValid {
		v.logger.Debug("eyes lost", "frames", v.cache.Len(), "evicted", evicted)
	}
}

// scanCache walks the cache newest to oldest. Caller holds v.mu.
func (v *Validator) scanCache() scan {
	var s scan
	for i := v.cache.Len() - 1; i >= 0; i-- {
		f, _ := v.cache.At(i)

		if f.State.Tracking() {
			switch {
			case !s.twoEye && f.Left.Valid() && f.Right.Valid():
				s.twoEye = true
				s.left, s.right = f.Left, f.Right
				s.mid = f.Left.PupilCenter.Add(f.Right.PupilCenter).Scale(0.5)
				s.half = f.Right.PupilCenter.Sub(f.Left.PupilCenter).Scale(0.5)
				s.distance = f.Left.PupilCenter.Distance(f.Right.PupilCenter)
			case !s.twoEye && s.leftOnly == nil && f.Left.Valid():
				eye := f.Left
				s.leftOnly = &eye
			case !s.twoEye && s.rightOnly == nil && f.Right.Valid():
				eye := f.Right
				s.rightOnly = &eye
			}

			if !s.gaze && !f.Raw.IsZero() {
				s.gaze = true
				s.raw, s.smoothed = f.Raw, f.Smoothed
			}
		}

		if s.twoEye && s.gaze {
			break
		}
	}
	return s
}

// apply folds a scan result into a copy of the previous snapshot.
func (v *Validator) apply(snap Snapshot, s scan) Snapshot {
	if s.gaze {
		snap.Raw, snap.Smoothed = s.raw, s.smoothed
		snap.HasGaze = true
	}

	switch {
	case s.twoEye:
		left, right := s.left, s.right
		snap.Left, snap.LeftValid = left, true
		snap.Right, snap.RightValid = right, true
		snap.HalfVector = s.half

		snap.MinEyeDistance = math.Min(snap.MinEyeDistance, s.distance)
		snap.MaxEyeDistance = math.Max(snap.MaxEyeDistance, s.distance)
		snap.Depth = 1 - s.distance/snap.MaxEyeDistance

		snap.Position = normalizePosition(s.mid, snap.Depth)
		snap.HasPosition = true

		d := right.PupilCenter.Sub(left.PupilCenter)
		snap.EyeAngle = math.Atan2(d.Y, d.X) * 180 / math.Pi
		snap.HasAngle = true

	case s.leftOnly != nil:
		snap.Left, snap.LeftValid = *s.leftOnly, true
		snap.Right, snap.RightValid = Eye{}, false
		snap.Position = normalizePosition(s.leftOnly.PupilCenter.Add(snap.HalfVector), snap.Depth)
		snap.HasPosition = true

	case s.rightOnly != nil:
		snap.Left, snap.LeftValid = Eye{}, false
		snap.Right, snap.RightValid = *s.rightOnly, true
		snap.Position = normalizePosition(s.rightOnly.PupilCenter.Sub(snap.HalfVector), snap.Depth)
		snap.HasPosition = true

	default:
		snap.Left, snap.LeftValid = Eye{}, false
		snap.Right, snap.RightValid = Eye{}, false
	}
	return snap
}

// normalizePosition maps a unit-square point to [-1,1] and attaches depth.
func normalizePosition(p Point2D, depth float64) Point3D {
	return Point3D{
		X: p.X*2 - 1,
		Y: p.Y*2 - 1,
		Z: depth,
	}
}

// Snapshot returns the latest published snapshot.
func (v *Validator) Snapshot() Snapshot {
	return *v.snap.Load()
}

// LastValidRawGaze returns the most recent valid raw gaze point.
func (v *Validator) LastValidRawGaze() (Point2D, bool) {
	s := v.snap.Load()
	return s.Raw, s.HasGaze
}

// LastValidSmoothedGaze returns the smoothed gaze point from the same frame
// as LastValidRawGaze.
func (v *Validator) LastValidSmoothedGaze() (Point2D, bool) {
	s := v.snap.Load()
	return s.Smoothed, s.HasGaze
}

// LastValidLeftEye returns the left eye reading, if the window holds one.
func (v *Validator) LastValidLeftEye() (Eye, bool) {
	s := v.snap.Load()
	return s.Left, s.LeftValid
}

// LastValidRightEye returns the right eye reading, if the window holds one.
func (v *Validator) LastValidRightEye() (Eye, bool) {
	s := v.snap.Load()
	return s.Right, s.RightValid
}

// LastValidUserPosition returns the user's position in normalized
// right-handed 3D space relative to the device, approximated from the eyes.
func (v *Validator) LastValidUserPosition() (Point3D, bool) {
	s := v.snap.Load()
	return s.Position, s.HasPosition
}

// LastValidEyeAngle returns the angle of the left-to-right pupil vector in
// degrees. It is false until a frame with both eyes has been seen.
func (v *Validator) LastValidEyeAngle() (float64, bool) {
	s := v.snap.Load()
	return s.EyeAngle, s.HasAngle
}

// RawScreenPosition maps the last valid raw gaze point through m.
func (v *Validator) RawScreenPosition(m ScreenMapper) (Point2D, bool) {
	p, ok := v.LastValidRawGaze()
	return mapGaze(p, ok, m)
}

// SmoothedScreenPosition maps the last valid smoothed gaze point through m.
func (v *Validator) SmoothedScreenPosition(m ScreenMapper) (Point2D, bool) {
	p, ok := v.LastValidSmoothedGaze()
	return mapGaze(p, ok, m)
}

func mapGaze(p Point2D, ok bool, m ScreenMapper) (Point2D, bool) {
	if !ok || m == nil {
		return Point2D{}, false
	}
	return m(p), true
}

// AvgMillisPerFrame returns the mean time per cached frame, or -1 with fewer
// than two frames in the cache.
func (v *Validator) AvgMillisPerFrame() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.avgMillisLocked()
}

func (v *Validator) avgMillisLocked() float64 {
	n := v.cache.Len()
	if n < 2 {
		return -1
	}
	first, _ := v.cache.Oldest()
	last, _ := v.cache.Newest()
	return float64(last.Timestamp-first.Timestamp) / float64(n)
}

// AvgFPS returns the mean frame rate of the cache, or -1 when unknown.
func (v *Validator) AvgFPS() float64 {
	return fpsFromMillis(v.AvgMillisPerFrame())
}

func fpsFromMillis(ms float64) float64 {
	if ms > 0 {
		return 1000 / ms
	}
	return -1
}

// Stats returns cache statistics.
func (v *Validator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()

	ms := v.avgMillisLocked()
	return Stats{
		Frames:            v.cache.Len(),
		Window:            v.cache.Window(),
		AvgMillisPerFrame: ms,
		AvgFPS:            fpsFromMillis(ms),
		Updates:           v.updates,
		Rejected:          v.rejected,
	}
}

// Package gaze validates a live stream of eye-tracking frames and keeps the
// most recent trustworthy gaze point, user position and eye angle.
package gaze

import (
	"math"
	"time"
)

// Point2D is a 2D coordinate. The zero value means "no reading".
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsZero reports whether p is the absent sentinel.
func (p Point2D) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

// Add returns p+q.
func (p Point2D) Add(q Point2D) Point2D {
	return Point2D{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q.
func (p Point2D) Sub(q Point2D) Point2D {
	return Point2D{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p multiplied by k.
func (p Point2D) Scale(k float64) Point2D {
	return Point2D{X: p.X * k, Y: p.Y * k}
}

// Distance returns the Euclidean distance between p and q.
func (p Point2D) Distance(q Point2D) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Point3D is a 3D coordinate.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// State is the tracker's per-frame quality bitmask.
type State int

// Tracking state bits as reported by the tracker.
const (
	StateTrackingGaze     State = 1 << 0
	StateTrackingEyes     State = 1 << 1
	StateTrackingPresence State = 1 << 2
	StateTrackingFail     State = 1 << 3
	StateTrackingLost     State = 1 << 4
)

// NoTrackingMask disqualifies a frame from eye and gaze extraction.
const NoTrackingMask = StateTrackingFail | StateTrackingLost

// Tracking reports whether none of the NoTrackingMask bits are set.
func (s State) Tracking() bool {
	return s&NoTrackingMask == 0
}

// Eye is a single eye reading.
type Eye struct {
	PupilSize   float64 `json:"psize"`
	PupilCenter Point2D `json:"pcenter"` // normalized unit square
	Raw         Point2D `json:"raw"`
	Smoothed    Point2D `json:"avg"`
}

// Valid reports whether the eye carries a pupil position.
func (e Eye) Valid() bool {
	return !e.PupilCenter.IsZero()
}

// Frame is one tracking sample. Frames are treated as immutable once pushed.
type Frame struct {
	Timestamp int64   `json:"timestamp"` // milliseconds, same clock as the cache window
	State     State   `json:"state"`
	Fixated   bool    `json:"fix"`
	Raw       Point2D `json:"raw"`
	Smoothed  Point2D `json:"avg"`
	Left      Eye     `json:"lefteye"`
	Right     Eye     `json:"righteye"`
}

// Time returns the frame timestamp as a time.Time.
func (f Frame) Time() time.Time {
	return time.UnixMilli(f.Timestamp)
}

// ScreenMapper maps a gaze point into a target display's coordinate space.
// It is supplied by the integration layer.
type ScreenMapper func(Point2D) Point2D

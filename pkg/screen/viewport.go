// Package screen maps tracker gaze coordinates into an application viewport.
// It is the integration-side ScreenMapper for the gaze package.
package screen

import "github.com/teslashibe/go-gaze/pkg/gaze"

// Viewport describes where an application window sits on the tracked screen.
// All values are in screen pixels, origin top-left.
type Viewport struct {
	ScreenWidth  float64
	ScreenHeight float64

	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Fullscreen returns a viewport covering the whole screen.
func Fullscreen(width, height float64) Viewport {
	return Viewport{
		ScreenWidth:  width,
		ScreenHeight: height,
		Width:        width,
		Height:       height,
	}
}

// Denormalize converts a unit-square point into screen pixels.
func (v Viewport) Denormalize(p gaze.Point2D) gaze.Point2D {
	return gaze.Point2D{X: p.X * v.ScreenWidth, Y: p.Y * v.ScreenHeight}
}

// Map converts a screen-pixel gaze point into viewport coordinates with the
// origin at the viewport's bottom-left corner.
func (v Viewport) Map(p gaze.Point2D) gaze.Point2D {
	x := p.X - v.X
	y := p.Y - v.Y
	return gaze.Point2D{X: x, Y: v.Height - y}
}

// Contains reports whether a viewport-space point lies inside the viewport.
func (v Viewport) Contains(p gaze.Point2D) bool {
	return p.X >= 0 && p.X <= v.Width && p.Y >= 0 && p.Y <= v.Height
}

// Mapper returns v.Map as a gaze.ScreenMapper.
func (v Viewport) Mapper() gaze.ScreenMapper {
	return v.Map
}

package gaze

import "time"

// FrameCache is a FIFO buffer of frames bounded by elapsed time rather than
// by count. Stale frames are evicted from the front at push time only.
//
// FrameCache is not safe for concurrent use; Validator guards it.
type FrameCache struct {
	window time.Duration
	clock  Clock

	frames []Frame
	head   int // index of the oldest live frame
}

// NewFrameCache creates a cache that retains frames no older than window.
func NewFrameCache(window time.Duration, clock Clock) *FrameCache {
	if clock == nil {
		clock = SystemClock()
	}
	return &FrameCache{
		window: window,
		clock:  clock,
	}
}

// Push evicts every front frame older than the window, measured against the
// clock rather than the incoming frame, then appends f unconditionally.
// It returns the number of evicted frames.
func (c *FrameCache) Push(f Frame) int {
	now := c.clock.Now().UnixMilli()
	limit := c.window.Milliseconds()

	evicted := 0
	for c.head < len(c.frames) && now-c.frames[c.head].Timestamp > limit {
		c.frames[c.head] = Frame{}
		c.head++
		evicted++
	}

	// Reclaim the dead prefix once it dominates the backing array.
	if c.head > 0 && c.head >= len(c.frames)-c.head {
		n := copy(c.frames, c.frames[c.head:])
		clear(c.frames[n:])
		c.frames = c.frames[:n]
		c.head = 0
	}

	c.frames = append(c.frames, f)
	return evicted
}

// Len returns the number of retained frames.
func (c *FrameCache) Len() int {
	return len(c.frames) - c.head
}

// Window returns the retention window.
func (c *FrameCache) Window() time.Duration {
	return c.window
}

// Oldest returns the oldest retained frame.
func (c *FrameCache) Oldest() (Frame, bool) {
	return c.At(0)
}

// Newest returns the most recently pushed frame.
func (c *FrameCache) Newest() (Frame, bool) {
	return c.At(c.Len() - 1)
}

// At returns the frame at position i, where 0 is the oldest.
func (c *FrameCache) At(i int) (Frame, bool) {
	if i < 0 || i >= c.Len() {
		return Frame{}, false
	}
	return c.frames[c.head+i], true
}

package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/hub"
)

// GazeView is the JSON shape served to dashboard viewers
type GazeView struct {
	gaze.Snapshot
	ScreenRaw      *gaze.Point2D `json:"screen_raw,omitempty"`
	ScreenSmoothed *gaze.Point2D `json:"screen_smoothed,omitempty"`
}

func (s *Server) view(snap gaze.Snapshot) GazeView {
	v := GazeView{Snapshot: snap}
	if s.cfg.Viewport != nil && snap.HasGaze {
		raw := s.cfg.Viewport.Map(snap.Raw)
		smoothed := s.cfg.Viewport.Map(snap.Smoothed)
		v.ScreenRaw, v.ScreenSmoothed = &raw, &smoothed
	}
	return v
}

// handleHealth reports liveness and the current frame rate
func (s *Server) handleHealth(c *fiber.Ctx) error {
	stats := s.source.Stats()
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": s.cfg.Version,
		"fps":     stats.AvgFPS,
		"viewers": s.gazeHub.ClientCount(),
	})
}

// handleGaze returns the current snapshot
func (s *Server) handleGaze(c *fiber.Ctx) error {
	return c.JSON(s.view(s.source.Snapshot()))
}

// handleStats returns cache statistics
func (s *Server) handleStats(c *fiber.Ctx) error {
	stats := s.source.Stats()
	return c.JSON(fiber.Map{
		"frames":               stats.Frames,
		"window_ms":            stats.Window.Milliseconds(),
		"avg_millis_per_frame": stats.AvgMillisPerFrame,
		"avg_fps":              stats.AvgFPS,
		"updates":              stats.Updates,
		"rejected":             stats.Rejected,
		"viewers":              s.gazeHub.ClientCount(),
		"dropped_broadcasts":   s.gazeHub.Dropped(),
	})
}

// handleGazeWS streams snapshots to a viewer
func (s *Server) handleGazeWS(c *websocket.Conn) {
	client := hub.NewClient(s.gazeHub, c)
	if client == nil {
		return
	}
	client.Run()
}

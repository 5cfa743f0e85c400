// Package web serves a live view of the validator's snapshot.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/screen"
)

// Source is what the dashboard reads. *gaze.Validator satisfies it.
type Source interface {
	Snapshot() gaze.Snapshot
	Stats() gaze.Stats
}

// Config holds dashboard settings.
type Config struct {
	AppName      string
	PollInterval time.Duration    // how often the snapshot is sampled for viewers
	Viewport     *screen.Viewport // optional; adds screen-space gaze to views
	Version      string
	Debug        bool // log every request
}

// DefaultConfig returns a dashboard sampling at roughly display rate.
func DefaultConfig() Config {
	return Config{
		AppName:      "gazed",
		PollInterval: 33 * time.Millisecond,
		Version:      "dev",
	}
}

// Server is the dashboard server
type Server struct {
	app    *fiber.App
	cfg    Config
	source Source
	logger *slog.Logger

	gazeHub *hub.Hub
}

// NewServer creates a dashboard for source.
func NewServer(cfg Config, source Source) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}

	s := &Server{
		cfg:     cfg,
		source:  source,
		logger:  log.With("component", "web"),
		gazeHub: hub.New("gaze"),
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.Debug {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/gaze", s.handleGaze)
	api.Get("/stats", s.handleStats)

	app.Use("/ws/gaze", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/gaze", websocket.New(s.handleGazeWS))

	s.app = app
	return s
}

// App exposes the fiber app so other components can mount routes.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the viewer hub.
func (s *Server) Hub() *hub.Hub {
	return s.gazeHub
}

// Start runs the viewer hub and snapshot poller until ctx is done.
// It does not listen; call Listen for that.
func (s *Server) Start(ctx context.Context) {
	go s.gazeHub.Run(ctx)
	go s.poll(ctx)
}

// Listen serves HTTP on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("dashboard listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// poll samples the snapshot and broadcasts it whenever a new update landed.
func (s *Server) poll(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.source.Snapshot()
			if snap.Seq == lastSeq {
				continue
			}
			lastSeq = snap.Seq
			if err := s.gazeHub.BroadcastSeq(snap.Seq, s.view(snap)); err != nil {
				s.logger.Warn("encode snapshot", "error", err)
			}
		}
	}
}

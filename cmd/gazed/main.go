// gazed: gaze validation service
// Accepts tracker frames over WebSocket and serves the validated gaze snapshot
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/protocol"
	"github.com/teslashibe/go-gaze/pkg/screen"
	"github.com/teslashibe/go-gaze/pkg/web"
)

var version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.Mode, "mode", cfg.Mode, "Validator preset: default, low-latency, tight")
	flag.DurationVar(&cfg.Window, "window", cfg.Window, "Cache window (overrides the preset)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "Dashboard snapshot interval")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging and request logs")
	screenW := flag.Float64("screen-width", 0, "Screen width in pixels (enables screen-space gaze)")
	screenH := flag.Float64("screen-height", 0, "Screen height in pixels")
	flag.Parse()

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel)

	vcfg, err := cfg.Validator()
	if err != nil {
		log.Error("invalid validator config", "error", err)
		os.Exit(1)
	}

	validator, err := gaze.New(vcfg)
	if err != nil {
		log.Error("failed to create validator", "error", err)
		os.Exit(1)
	}

	webCfg := web.Config{
		AppName:      "gazed",
		PollInterval: cfg.PollInterval,
		Version:      version,
		Debug:        cfg.Debug,
	}
	if *screenW > 0 && *screenH > 0 {
		vp := screen.Fullscreen(*screenW, *screenH)
		webCfg.Viewport = &vp
	}
	server := web.NewServer(webCfg, validator)

	// Tracker ingest shares the dashboard's app
	trackers := ingest.NewHub(nil)
	trackers.OnFrame(func(_ string, frame gaze.Frame) {
		validator.Update(frame)
	})
	trackers.OnStatus(func(trackerID string, status *protocol.StatusData) {
		if webCfg.Viewport == nil && status.ScreenWidth > 0 && status.ScreenHeight > 0 {
			log.Info("tracker reports screen size; pass -screen-width/-screen-height to enable screen-space gaze",
				"tracker", trackerID, "width", status.ScreenWidth, "height", status.ScreenHeight)
		}
	})

	app := server.App()
	trackers.RegisterRoutes(app)
	trackers.RegisterAPIRoutes(app.Group("/api"))
	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.SendString(metrics(validator.Stats(), trackers.GetStats()))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)

	go func() {
		log.Info("gazed starting",
			"version", version,
			"addr", cfg.Addr(),
			"window", vcfg.Window,
			"ingest", fmt.Sprintf("ws://localhost:%d/ws/tracker", cfg.Port),
			"viewer", fmt.Sprintf("ws://localhost:%d/ws/gaze", cfg.Port))
		if err := server.Listen(cfg.Addr()); err != nil {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}

func metrics(v gaze.Stats, h ingest.Stats) string {
	return fmt.Sprintf(`# HELP gazed_trackers Connected tracker count
# TYPE gazed_trackers gauge
gazed_trackers %d

# HELP gazed_frames_received Total frames received from trackers
# TYPE gazed_frames_received counter
gazed_frames_received %d

# HELP gazed_parse_errors Total malformed tracker messages
# TYPE gazed_parse_errors counter
gazed_parse_errors %d

# HELP gazed_updates Total frames applied to the validator
# TYPE gazed_updates counter
gazed_updates %d

# HELP gazed_rejected Total frames with a failed tracking state
# TYPE gazed_rejected counter
gazed_rejected %d

# HELP gazed_window_frames Frames currently in the cache window
# TYPE gazed_window_frames gauge
gazed_window_frames %d
`, h.TrackerCount, h.FramesReceived, h.ParseErrors, v.Updates, v.Rejected, v.Frames)
}

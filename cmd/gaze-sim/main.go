// gaze-sim: synthetic eye tracker
// Streams a glitchy simulated gaze signal to a gazed ingest endpoint
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/protocol"
	"github.com/teslashibe/go-gaze/pkg/publisher"
	"github.com/teslashibe/go-gaze/pkg/sim"
)

func main() {
	defaults := sim.DefaultConfig()

	url := flag.String("url", "ws://localhost:8080/ws/tracker/sim", "gazed ingest URL")
	seed := flag.Int64("seed", defaults.Seed, "Random seed")
	fps := flag.Float64("fps", defaults.FrameRate, "Frames per second")
	glitch := flag.Float64("glitch", defaults.GlitchRate, "Probability of a failed frame")
	blink := flag.Float64("blink", defaults.BlinkRate, "Probability of both eyes missing")
	dropout := flag.Float64("dropout", defaults.DropoutRate, "Probability of one eye missing")
	calError := flag.Float64("calibration-error", 0.6, "Reported average calibration error in degrees")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log.Init(*logLevel)

	cfg := defaults
	cfg.Seed = *seed
	cfg.FrameRate = *fps
	cfg.GlitchRate = *glitch
	cfg.BlinkRate = *blink
	cfg.DropoutRate = *dropout

	src, err := sim.NewSource(cfg, time.Now())
	if err != nil {
		log.Error("invalid simulator config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := publisher.NewClient(*url)
	if err := client.Connect(ctx); err != nil {
		log.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	result := &calibration.Result{
		Succeeded:          true,
		AverageErrorDegree: *calError,
		AverageErrorLeft:   *calError,
		AverageErrorRight:  *calError,
	}
	rating, label := calibration.Rate(result)
	err = client.SendStatus(protocol.StatusData{
		Activated:    true,
		Calibrated:   true,
		Calibration:  result,
		FrameRate:    int(cfg.FrameRate),
		ScreenWidth:  int(cfg.ScreenWidth),
		ScreenHeight: int(cfg.ScreenHeight),
	})
	if err != nil {
		log.Error("status failed", "error", err)
		os.Exit(1)
	}
	log.Info("streaming", "url", *url, "fps", cfg.FrameRate, "calibration", label, "rating", rating)

	if err := client.Run(ctx, src.Run(ctx)); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("stream ended", "error", err)
		os.Exit(1)
	}
	log.Info("stopped", "sent", client.Sent())
}

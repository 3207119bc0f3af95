// safevision-backend: inference service for SafeVision Guide.
// Accepts camera frames over HTTP or WebSocket and answers with a
// spoken-ready verdict.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/safevision/internal/config"
	"github.com/teslashibe/safevision/internal/log"
	"github.com/teslashibe/safevision/pkg/backend"
	"github.com/teslashibe/safevision/pkg/detection"
)

var (
	port      = flag.Int("port", config.Int(config.EnvPort, 5000), "HTTP server port")
	analyzer  = flag.String("analyzer", backend.AnalyzerStatic, "Analyzer: static, random, yolo")
	modelPath = flag.String("model", detection.DefaultYOLOConfig().ModelPath, "YOLO ONNX model for the yolo analyzer")
	timeout   = flag.Duration("timeout", 10*time.Second, "Per-frame analysis timeout (0 = none)")
	level     = flag.String("log-level", config.String(config.EnvLogLevel, "info"), "Log level: debug, info, warn, error")
	access    = flag.Bool("access-log", false, "Log every request")
)

func main() {
	flag.Parse()
	log.Init(*level)
	logger := log.Component("backend")

	var detector detection.Detector
	if *analyzer == backend.AnalyzerYOLO {
		cfg := detection.DefaultYOLOConfig()
		cfg.ModelPath = *modelPath
		yolo, err := detection.NewYOLO(cfg, logger)
		if err != nil {
			logger.Error("failed to load detector", "error", err)
			os.Exit(1)
		}
		defer yolo.Close()
		detector = yolo
	}

	a, err := backend.NewAnalyzer(*analyzer, detector)
	if err != nil {
		logger.Error("analyzer", "error", err)
		os.Exit(1)
	}

	srv := backend.NewServer(
		backend.WithAnalyzer(a),
		backend.WithAnalyzeTimeout(*timeout),
		backend.WithAccessLog(*access),
		backend.WithLogger(logger),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr := fmt.Sprintf(":%d", *port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "analyzer", a.Name())
		errCh <- srv.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	stats := srv.Stats()
	logger.Info("stopped", "requests", stats.Requests, "errors", stats.Errors, "unsafe", stats.Unsafe)
}

// SafeVision Guide - camera navigation assistant.
// Samples the camera, asks the inference backend about each frame and
// speaks, vibrates and shows the verdict.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/safevision/internal/config"
	"github.com/teslashibe/safevision/internal/log"
	"github.com/teslashibe/safevision/pkg/assistant"
	"github.com/teslashibe/safevision/pkg/camera"
)

func main() {
	cfg, level := parseFlags()
	log.Init(level)
	logger := log.L()

	app, err := assistant.New(cfg, assistant.WithLogger(logger))
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	if err := app.Init(); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// parseFlags builds the config: defaults, then the YAML file, then flags,
// then environment overrides.
func parseFlags() (assistant.Config, string) {
	cfg := assistant.DefaultConfig()

	configPath := flag.String("config", config.String(config.EnvConfigFile, ""), "YAML config file")
	level := flag.String("log-level", config.String(config.EnvLogLevel, "info"), "Log level: debug, info, warn, error")
	backend := flag.String("backend", "", "Inference backend base URL (overrides "+config.EnvBackendURL+")")
	transport := flag.String("transport", "", "Backend transport: http, stream")
	encoding := flag.String("encoding", "", "Request body: json, multipart")
	cadence := flag.String("cadence", "", "Sampling cadence: interval, refresh")
	interval := flag.Duration("interval", 0, "Sampling interval for the interval cadence")
	timeout := flag.Duration("timeout", -1, "Dispatch timeout (0 = none)")
	device := flag.String("device", "", "Camera index, video file or stream URL (overrides "+config.EnvCameraDevice+")")
	preset := flag.String("preset", "", "Camera preset: default, 480p, 720p, 1080p, lowlight, selfie")
	ttsMode := flag.String("tts", "", "Speech: auto, elevenlabs, openai, espeak, none")
	ttsVoice := flag.String("tts-voice", "", "ElevenLabs voice preset or ID")
	dashboard := flag.String("dashboard", "", "Dashboard listen address (\"off\" disables)")
	static := flag.String("static", "", "Serve the dashboard page from this directory")
	autoStart := flag.Bool("start", false, "Start processing immediately")
	logHaptics := flag.Bool("log-haptics", false, "Log haptic pulses")
	flag.Parse()

	if err := cfg.LoadFile(*configPath); err != nil {
		log.Init(*level)
		log.Error("config file", "error", err)
		os.Exit(1)
	}

	if *preset != "" {
		if p := camera.GetPreset(*preset); p != nil {
			cfg.Camera = *p
		}
	}
	cfg.LoadEnvConfig()

	if *backend != "" {
		cfg.BackendURL = *backend
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *encoding != "" {
		cfg.Encoding = *encoding
	}
	if *cadence != "" {
		cfg.Cadence = *cadence
	}
	if *interval > 0 {
		cfg.Interval = *interval
	}
	if *timeout >= 0 {
		cfg.DispatchTimeout = *timeout
	}
	if *device != "" {
		cfg.SetDevice(*device)
	}
	if *ttsMode != "" {
		cfg.TTSMode = *ttsMode
	}
	if *ttsVoice != "" {
		cfg.TTSVoice = *ttsVoice
	}
	switch *dashboard {
	case "":
	case "off":
		cfg.DashboardAddr = ""
	default:
		cfg.DashboardAddr = *dashboard
	}
	if *static != "" {
		cfg.StaticDir = *static
	}
	if *autoStart {
		cfg.AutoStart = true
	}
	if *logHaptics {
		cfg.LogHaptics = true
	}
	return cfg, *level
}

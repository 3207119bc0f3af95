// Package assistant wires the camera, sampler, dispatcher and presenter into
// the running navigation assistant.
package assistant

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/safevision/internal/config"
	"github.com/teslashibe/safevision/pkg/camera"
	"github.com/teslashibe/safevision/pkg/dispatch"
	"github.com/teslashibe/safevision/pkg/sampler"
	"github.com/teslashibe/safevision/pkg/tts"
)

// Transports for reaching the backend.
const (
	TransportHTTP   = "http"
	TransportStream = "stream"
)

// TTS modes. Auto prefers ElevenLabs, then OpenAI, then espeak, using
// whichever have credentials.
const (
	TTSAuto       = "auto"
	TTSElevenLabs = "elevenlabs"
	TTSOpenAI     = "openai"
	TTSEspeak     = "espeak"
	TTSNone       = "none"
)

// Environment variables read by LoadEnvConfig.
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvElevenLabsKey = "ELEVENLABS_API_KEY"
	EnvElevenLabsVID = "ELEVENLABS_VOICE_ID"
)

// DefaultInterval matches the one-second capture cadence of the page.
const DefaultInterval = time.Second

// Config holds all configuration for the assistant.
// Flag parsing is done in cmd/safevision/main.go; this struct is data only.
type Config struct {
	// Backend
	BackendURL      string        `yaml:"backend_url"`
	Transport       string        `yaml:"transport"` // http, stream
	Encoding        string        `yaml:"encoding"`  // json, multipart
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`

	// Sampling
	Cadence   string        `yaml:"cadence"` // interval, refresh
	Interval  time.Duration `yaml:"interval"`
	AutoStart bool          `yaml:"auto_start"`

	Camera camera.Config `yaml:"camera"`

	// Speech
	TTSMode  string `yaml:"tts"`
	TTSVoice string `yaml:"tts_voice"`

	// Haptics logs vibration pulses when no dashboard is connected.
	LogHaptics bool `yaml:"log_haptics"`

	// Dashboard; empty disables it.
	DashboardAddr string `yaml:"dashboard_addr"`
	StaticDir     string `yaml:"static_dir"`

	// API keys come from the environment only.
	OpenAIKey     string `yaml:"-"`
	ElevenLabsKey string `yaml:"-"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		BackendURL:    config.DefaultBackendURL,
		Transport:     TransportHTTP,
		Encoding:      dispatch.EncodingJSON.String(),
		Cadence:       sampler.CadenceInterval.String(),
		Interval:      DefaultInterval,
		Camera:        camera.DefaultConfig(),
		TTSMode:       TTSAuto,
		DashboardAddr: ":" + config.DefaultDashboardPort,
	}
}

// LoadFile overlays a YAML file onto c. Missing files are ignored.
func (c *Config) LoadFile(path string) error {
	return config.LoadFile(path, c, true)
}

// LoadEnvConfig applies environment overrides.
// Call this after flag parsing.
func (c *Config) LoadEnvConfig() {
	if u := os.Getenv(config.EnvBackendURL); u != "" {
		c.BackendURL = u
	}
	if dev := os.Getenv(config.EnvCameraDevice); dev != "" {
		c.SetDevice(dev)
	}
	c.OpenAIKey = os.Getenv(EnvOpenAIKey)
	c.ElevenLabsKey = os.Getenv(EnvElevenLabsKey)

	if c.TTSVoice == "" {
		c.TTSVoice = os.Getenv(EnvElevenLabsVID)
	}
}

// SetDevice selects a camera by index or by file/stream URL.
func (c *Config) SetDevice(dev string) {
	if idx, err := strconv.Atoi(dev); err == nil {
		c.Camera.Source = ""
		if c.Camera.FacingMode == camera.FacingUser {
			c.Camera.FrontDevice = idx
		} else {
			c.Camera.RearDevice = idx
		}
		return
	}
	c.Camera.Source = dev
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return &ConfigError{Field: "BackendURL", Message: "backend URL is required (set " + config.EnvBackendURL + ")"}
	}
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		return &ConfigError{Field: "BackendURL", Message: fmt.Sprintf("backend URL %q must be http or https", c.BackendURL)}
	}
	if c.Transport != TransportHTTP && c.Transport != TransportStream {
		return &ConfigError{Field: "Transport", Message: fmt.Sprintf("unknown transport %q", c.Transport)}
	}
	if _, err := dispatch.ParseEncoding(c.Encoding); err != nil {
		return &ConfigError{Field: "Encoding", Message: err.Error()}
	}
	if _, err := sampler.ParseCadence(c.Cadence); err != nil {
		return &ConfigError{Field: "Cadence", Message: err.Error()}
	}
	if c.Interval <= 0 {
		return &ConfigError{Field: "Interval", Message: "interval must be positive"}
	}
	if c.DispatchTimeout < 0 {
		return &ConfigError{Field: "DispatchTimeout", Message: "dispatch timeout must not be negative"}
	}
	if problems := c.Camera.Validate(); len(problems) > 0 {
		return &ConfigError{Field: "Camera", Message: "camera: " + strings.Join(problems, "; ")}
	}

	switch c.TTSMode {
	case TTSAuto, TTSEspeak, TTSNone:
	case TTSOpenAI:
		if c.OpenAIKey == "" {
			return &ConfigError{Field: "OpenAIKey", Message: EnvOpenAIKey + " environment variable is required for OpenAI TTS"}
		}
	case TTSElevenLabs:
		if c.ElevenLabsKey == "" {
			return &ConfigError{Field: "ElevenLabsKey", Message: EnvElevenLabsKey + " environment variable is required for ElevenLabs TTS"}
		}
	default:
		return &ConfigError{Field: "TTSMode", Message: fmt.Sprintf("unknown tts mode %q", c.TTSMode)}
	}
	return nil
}

// voice returns the configured ElevenLabs voice, or the package default.
func (c *Config) voice() string {
	if c.TTSVoice != "" {
		return c.TTSVoice
	}
	return tts.DefaultElevenLabsVoice
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

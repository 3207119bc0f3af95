// Package camera owns the camera device: its configuration, the live stream
// handle, the permission state, and the still frames sampled from it.
package camera

import (
	"fmt"
	"strconv"
)

// Facing modes, named after the browser media constraint values.
const (
	FacingEnvironment = "environment" // rear camera
	FacingUser        = "user"        // front camera
)

// Resolution and quality limits accepted by Validate.
const (
	MinWidth     = 160
	MaxWidth     = 3840
	MinHeight    = 120
	MaxHeight    = 2160
	MaxFramerate = 120
)

// Config holds the camera configuration.
// It can be changed at runtime through Manager.
type Config struct {
	// Preferred resolution. Devices may deliver something else.
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`

	// Framerate is the requested capture rate; it also sets the refresh
	// cadence of the sampler.
	Framerate int `json:"framerate" yaml:"framerate"`

	// Quality is the JPEG quality 1-100 used for sampled frames.
	Quality int `json:"quality" yaml:"quality"`

	// FacingMode selects RearDevice ("environment") or FrontDevice ("user").
	FacingMode  string `json:"facing_mode" yaml:"facing_mode"`
	RearDevice  int    `json:"rear_device" yaml:"rear_device"`
	FrontDevice int    `json:"front_device" yaml:"front_device"`

	// Source overrides the device index with a video file or stream URL.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// DefaultConfig returns the rear camera at a 1280x720 hint, JPEG quality 80.
func DefaultConfig() Config {
	return Config{
		Width:       1280,
		Height:      720,
		Framerate:   30,
		Quality:     80,
		FacingMode:  FacingEnvironment,
		RearDevice:  0,
		FrontDevice: 1,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.FacingMode != FacingEnvironment && c.FacingMode != FacingUser {
		errors = append(errors, "facing_mode must be environment or user")
	}
	if c.RearDevice < 0 || c.FrontDevice < 0 {
		errors = append(errors, "device indices must not be negative")
	}

	return errors
}

// Constraints converts the config into the request passed to Device.Open.
func (c *Config) Constraints() Constraints {
	device := c.Source
	if device == "" {
		idx := c.RearDevice
		if c.FacingMode == FacingUser {
			idx = c.FrontDevice
		}
		device = strconv.Itoa(idx)
	}

	return Constraints{
		FacingMode: c.FacingMode,
		Width:      c.Width,
		Height:     c.Height,
		Framerate:  c.Framerate,
		Device:     device,
	}
}

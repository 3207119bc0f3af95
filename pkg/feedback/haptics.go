package feedback

import (
	"log/slog"
	"time"
)

// Haptics pulses a vibration output.
type Haptics interface {
	Available() bool
	Vibrate(d time.Duration)
}

// MultiHaptics pulses every available output.
type MultiHaptics []Haptics

// Available reports whether any output is available.
func (m MultiHaptics) Available() bool {
	for _, h := range m {
		if h != nil && h.Available() {
			return true
		}
	}
	return false
}

// Vibrate pulses each available output.
func (m MultiHaptics) Vibrate(d time.Duration) {
	for _, h := range m {
		if h != nil && h.Available() {
			h.Vibrate(d)
		}
	}
}

// LogHaptics records pulses in the log, for headless runs.
type LogHaptics struct {
	Logger *slog.Logger
}

// Available always reports true.
func (LogHaptics) Available() bool { return true }

// Vibrate logs the pulse.
func (h LogHaptics) Vibrate(d time.Duration) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("haptic pulse", "duration_ms", d.Milliseconds())
}

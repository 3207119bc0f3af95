package web

import (
	"time"

	"github.com/teslashibe/safevision/pkg/dispatch"
	"github.com/teslashibe/safevision/pkg/feedback"
	"github.com/teslashibe/safevision/pkg/protocol"
)

// Notifier shows dispatch toasts on connected dashboards.
type Notifier struct {
	s *Server
}

// Notifier returns a dispatch.Notifier backed by the events hub.
func (s *Server) Notifier() Notifier {
	return Notifier{s: s}
}

// Notify broadcasts t as a toast event.
func (n Notifier) Notify(t dispatch.Toast) {
	n.s.broadcast(n.s.eventsHub, protocol.TypeToast, protocol.ToastData{
		Level:   t.Level,
		Title:   t.Title,
		Message: t.Message,
	})
}

// Haptics pulses the vibration motor of connected browsers.
type Haptics struct {
	s *Server
}

// Haptics returns a feedback.Haptics backed by the events hub.
func (s *Server) Haptics() Haptics {
	return Haptics{s: s}
}

// Available reports whether any dashboard is listening for events.
func (h Haptics) Available() bool {
	return h.s.eventsHub.ClientCount() > 0
}

// Vibrate broadcasts a vibrate event for d.
func (h Haptics) Vibrate(d time.Duration) {
	h.s.broadcast(h.s.eventsHub, protocol.TypeVibrate, protocol.VibrateData{
		DurationMs: d.Milliseconds(),
	})
}

var (
	_ dispatch.Notifier = Notifier{}
	_ feedback.Haptics  = Haptics{}
)

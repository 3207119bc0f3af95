package dispatch

import (
	"log/slog"
	"sync"
)

// Toast levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Toast is a transient user-visible notification.
type Toast struct {
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Notifier surfaces toasts to the user.
type Notifier interface {
	Notify(t Toast)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Toast)

// Notify calls f(t).
func (f NotifierFunc) Notify(t Toast) { f(t) }

// LogNotifier writes toasts to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs t at a level matching t.Level.
func (n LogNotifier) Notify(t Toast) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch t.Level {
	case LevelError:
		logger.Error(t.Title, "message", t.Message)
	case LevelWarning:
		logger.Warn(t.Title, "message", t.Message)
	default:
		logger.Info(t.Title, "message", t.Message)
	}
}

// MultiNotifier fans a toast out to every notifier.
type MultiNotifier []Notifier

// Notify forwards t to each notifier in order.
func (m MultiNotifier) Notify(t Toast) {
	for _, n := range m {
		if n != nil {
			n.Notify(t)
		}
	}
}

// RecordingNotifier keeps every toast. Useful in tests.
type RecordingNotifier struct {
	mu     sync.Mutex
	toasts []Toast
}

// Notify records t.
func (r *RecordingNotifier) Notify(t Toast) {
	r.mu.Lock()
	r.toasts = append(r.toasts, t)
	r.mu.Unlock()
}

// Toasts returns a copy of the recorded toasts.
func (r *RecordingNotifier) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.toasts))
	copy(out, r.toasts)
	return out
}

// Count returns the number of recorded toasts.
func (r *RecordingNotifier) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.toasts)
}

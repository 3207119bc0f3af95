package camera

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Permission is the tri-state camera permission.
type Permission int

const (
	PermissionUnknown Permission = iota
	PermissionGranted
	PermissionDenied
)

// String returns the permission name.
func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// MarshalText encodes the permission by name.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Phase is the acquisition state machine:
//
//	Idle → Pending → {Granted, Denied}
//	Denied → Pending (Retry only)
//	Granted → Pending (Retry/Reconfigure)
//	any → Idle (Close)
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseGranted
	PhaseDenied
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseGranted:
		return "granted"
	case PhaseDenied:
		return "denied"
	default:
		return "idle"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is a snapshot of the acquirer, delivered to subscribers.
type State struct {
	Phase      Phase       `json:"phase"`
	Permission Permission  `json:"permission"`
	Error      string      `json:"error,omitempty"`
	Device     string      `json:"device"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Constraint Constraints `json:"-"`
}

// Acquirer owns the camera stream. It holds at most one stream at a time,
// always stops the previous stream before opening another, and stops the
// held stream on Close.
type Acquirer struct {
	device Device
	logger *slog.Logger

	// opMu serializes Acquire, Reconfigure and Close.
	opMu sync.Mutex

	mu          sync.RWMutex
	constraints Constraints
	stream      Stream
	phase       Phase
	permission  Permission
	err         error
	closed      bool
	cancel      context.CancelFunc
	subscribers []func(State)
}

// AcquirerOption configures an Acquirer.
type AcquirerOption func(*Acquirer)

// WithConstraints sets the constraints used by Acquire.
func WithConstraints(c Constraints) AcquirerOption {
	return func(a *Acquirer) { a.constraints = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) AcquirerOption {
	return func(a *Acquirer) { a.logger = l }
}

// NewAcquirer creates an acquirer for device. Nothing is opened until Acquire.
func NewAcquirer(device Device, opts ...AcquirerOption) *Acquirer {
	cfg := DefaultConfig()
	a := &Acquirer{
		device:      device,
		constraints: cfg.Constraints(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "camera.acquirer")
	return a
}

// Acquire opens the device, releasing any stream held from before.
// On failure the permission becomes denied and the returned error is an
// *AccessError whose message is user-facing.
func (a *Acquirer) Acquire(ctx context.Context) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	return a.acquireLocked(ctx)
}

// acquireLocked runs one acquisition. Callers hold opMu.
func (a *Acquirer) acquireLocked(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	constraints := a.constraints
	a.mu.Unlock()
	defer cancel()

	a.release()
	a.transition(func() {
		a.phase = PhasePending
	})

	a.logger.Info("requesting camera access",
		"device", constraints.Device,
		"facing", constraints.FacingMode,
		"width", constraints.Width,
		"height", constraints.Height,
	)

	stream, err := a.device.Open(ctx, constraints)
	if err == nil && ctx.Err() != nil {
		// Closed while the device was opening.
		_ = stream.Stop()
		err = ctx.Err()
	}
	if err != nil {
		accessErr := &AccessError{Device: constraints.Device, Cause: err}
		a.logger.Warn("camera access failed", "error", accessErr.Detail())
		a.transition(func() {
			a.phase = PhaseDenied
			a.permission = PermissionDenied
			a.err = accessErr
		})
		return accessErr
	}

	a.transition(func() {
		a.stream = stream
		a.phase = PhaseGranted
		a.permission = PermissionGranted
		a.err = nil
	})
	w, h := stream.Size()
	a.logger.Info("camera stream started", "device", constraints.Device, "width", w, "height", h)
	return nil
}

// Retry repeats acquisition; used from the denied state by explicit user
// action. It is identical to Acquire, including release-before-acquire.
func (a *Acquirer) Retry(ctx context.Context) error {
	return a.Acquire(ctx)
}

// Reconfigure swaps the constraints and, if a stream is held or the last
// attempt was denied, reacquires with them. An acquisition already pending
// finishes first, so its result is replaced by one using c.
func (a *Acquirer) Reconfigure(ctx context.Context, c Constraints) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	a.constraints = c
	reacquire := a.phase == PhaseGranted || a.phase == PhaseDenied
	a.mu.Unlock()

	if !reacquire {
		return nil
	}
	return a.acquireLocked(ctx)
}

// Close releases the stream unconditionally. Further Acquire calls fail
// with ErrClosed. Safe to call more than once.
func (a *Acquirer) Close() error {
	a.mu.Lock()
	a.closed = true
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	a.opMu.Lock()
	defer a.opMu.Unlock()

	err := a.release()
	a.transition(func() {
		a.phase = PhaseIdle
	})
	return err
}

// release stops the held stream, if any. Callers hold opMu.
func (a *Acquirer) release() error {
	a.mu.Lock()
	stream := a.stream
	a.stream = nil
	a.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		a.logger.Warn("camera stream stop failed", "error", err)
		return err
	}
	a.logger.Debug("camera stream released")
	return nil
}

// transition applies fn under the lock, then notifies subscribers.
func (a *Acquirer) transition(fn func()) {
	a.mu.Lock()
	fn()
	state := a.stateLocked()
	subs := make([]func(State), len(a.subscribers))
	copy(subs, a.subscribers)
	a.mu.Unlock()

	for _, sub := range subs {
		sub(state)
	}
}

// Subscribe registers fn for state changes. fn runs on the goroutine that
// caused the change and must not call back into Acquire or Close.
func (a *Acquirer) Subscribe(fn func(State)) {
	a.mu.Lock()
	a.subscribers = append(a.subscribers, fn)
	a.mu.Unlock()
}

// Stream returns the held stream, or nil.
func (a *Acquirer) Stream() Stream {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stream
}

// Snapshot samples the held stream. Returns ErrNotReady when no stream is held.
func (a *Acquirer) Snapshot(quality int) (*Frame, error) {
	stream := a.Stream()
	if stream == nil {
		return nil, ErrNotReady
	}
	return stream.Snapshot(quality)
}

// Framerate returns the held stream's framerate, falling back to the
// requested one.
func (a *Acquirer) Framerate() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stream != nil {
		if fps := a.stream.Framerate(); fps > 0 {
			return fps
		}
	}
	return float64(a.constraints.Framerate)
}

// Permission returns the tri-state permission.
func (a *Acquirer) Permission() Permission {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.permission
}

// Phase returns the current state-machine phase.
func (a *Acquirer) Phase() Phase {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.phase
}

// Err returns the last acquisition error, nil after a successful acquire.
func (a *Acquirer) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// State returns a snapshot of the acquirer.
func (a *Acquirer) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stateLocked()
}

func (a *Acquirer) stateLocked() State {
	s := State{
		Phase:      a.phase,
		Permission: a.permission,
		Device:     a.constraints.Device,
		Constraint: a.constraints,
	}
	if a.err != nil {
		s.Error = a.err.Error()
	}
	if a.stream != nil {
		s.Width, s.Height = a.stream.Size()
	}
	return s
}

// IsAccessError reports whether err came from a failed acquisition.
func IsAccessError(err error) bool {
	var ae *AccessError
	return errors.As(err, &ae)
}

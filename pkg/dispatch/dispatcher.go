// Package dispatch sends sampled frames to the inference backend and
// publishes the resulting verdicts.
package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/safevision/pkg/camera"
	"github.com/teslashibe/safevision/pkg/protocol"
)

// FailureToast is raised once for every failed dispatch.
var FailureToast = Toast{
	Level:   LevelError,
	Title:   "Error",
	Message: "Failed to process image",
}

// Stats counts dispatch outcomes.
type Stats struct {
	Sent      uint64        `json:"sent"`
	Succeeded uint64        `json:"succeeded"`
	Failed    uint64        `json:"failed"`
	LastRTT   time.Duration `json:"last_rtt_ns"`
}

// Dispatcher sends frames through a Transport and publishes each outcome
// to a Store. Dispatches may overlap; responses are published in arrival
// order.
type Dispatcher struct {
	transport Transport
	store     *Store
	notifier  Notifier
	timeout   time.Duration
	logger    *slog.Logger

	sent      atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	lastRTT   atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStore publishes into s instead of a private store.
func WithStore(s *Store) Option {
	return func(d *Dispatcher) { d.store = s }
}

// WithNotifier sets the failure notifier.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithTimeout bounds each dispatch. Zero, the default, waits indefinitely.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a dispatcher for transport.
func New(transport Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.store == nil {
		d.store = NewStore()
	}
	if d.notifier == nil {
		d.notifier = LogNotifier{Logger: d.logger}
	}
	d.logger = d.logger.With("component", "dispatch")
	return d
}

// Store returns the store verdicts are published to.
func (d *Dispatcher) Store() *Store {
	return d.store
}

// Dispatch sends frame and publishes the verdict. Any failure publishes the
// fallback verdict and raises exactly one toast. The processing flag is
// cleared on every path. The published verdict and the transport error are
// returned.
func (d *Dispatcher) Dispatch(ctx context.Context, frame *camera.Frame) (protocol.Verdict, error) {
	d.store.Begin()
	defer d.store.End()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	d.sent.Add(1)
	start := time.Now()

	verdict, err := d.send(ctx, frame)
	d.lastRTT.Store(int64(time.Since(start)))

	if err != nil {
		d.failed.Add(1)
		fallback := protocol.Fallback()
		d.store.Publish(fallback)
		d.notifier.Notify(FailureToast)
		d.logger.Warn("dispatch failed", "frame", frameID(frame), "error", err)
		return fallback, err
	}

	d.succeeded.Add(1)
	d.store.Publish(verdict)
	d.logger.Debug("dispatch complete",
		"frame", frame.ID,
		"safe", verdict.IsSafe,
		"rtt", time.Since(start),
	)
	return verdict, nil
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:      d.sent.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
		LastRTT:   time.Duration(d.lastRTT.Load()),
	}
}

func (d *Dispatcher) send(ctx context.Context, frame *camera.Frame) (protocol.Verdict, error) {
	if frame == nil {
		return protocol.Verdict{}, ErrNilFrame
	}
	return d.transport.Send(ctx, frame)
}

func frameID(f *camera.Frame) string {
	if f == nil {
		return ""
	}
	return f.ID
}

// Package sampler turns a live camera stream into a cadence of still frames.
package sampler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/safevision/pkg/camera"
)

// DefaultInterval is the fixed cadence between samples.
const DefaultInterval = time.Second

// Cadence selects how often the sampler fires.
type Cadence int

const (
	// CadenceInterval samples on a fixed wall-clock period.
	CadenceInterval Cadence = iota
	// CadenceRefresh samples once per source frame period (1/framerate).
	CadenceRefresh
)

// String returns the cadence name.
func (c Cadence) String() string {
	if c == CadenceRefresh {
		return "refresh"
	}
	return "interval"
}

// ParseCadence maps "interval" or "refresh" to a Cadence.
func ParseCadence(s string) (Cadence, error) {
	switch s {
	case "", "interval":
		return CadenceInterval, nil
	case "refresh", "frame":
		return CadenceRefresh, nil
	}
	return CadenceInterval, errors.New("sampler: unknown cadence " + s)
}

// Source produces snapshots. *camera.Acquirer satisfies it.
type Source interface {
	Snapshot(quality int) (*camera.Frame, error)
	Framerate() float64
}

// Sink receives each sampled frame on the sampler goroutine.
type Sink func(*camera.Frame)

// Stats counts sampler outcomes.
type Stats struct {
	Emitted uint64 `json:"emitted"`
	Skipped uint64 `json:"skipped"`
	Errors  uint64 `json:"errors"`
	Active  bool   `json:"active"`
	Cadence string `json:"cadence"`
}

// Sampler periodically snapshots a Source while active.
type Sampler struct {
	source   Source
	sink     Sink
	cadence  Cadence
	interval time.Duration
	quality  atomic.Int64
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	active  atomic.Bool
	emitted atomic.Uint64
	skipped atomic.Uint64
	errs    atomic.Uint64
	seq     atomic.Uint64
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithCadence selects the sampling cadence.
func WithCadence(c Cadence) Option {
	return func(s *Sampler) { s.cadence = c }
}

// WithInterval sets the period used by CadenceInterval.
func WithInterval(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithQuality sets the JPEG quality (1-100).
func WithQuality(q int) Option {
	return func(s *Sampler) {
		if q > 0 && q <= 100 {
			s.quality.Store(int64(q))
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) { s.logger = l }
}

// New creates an inactive sampler.
func New(source Source, sink Sink, opts ...Option) *Sampler {
	s := &Sampler{
		source:   source,
		sink:     sink,
		cadence:  CadenceInterval,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	s.quality.Store(camera.DefaultQuality)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sampler")
	return s
}

// Start activates sampling. It is a no-op when already active or closed.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.active.Store(true)

	go s.run(ctx, s.done)
	s.logger.Info("sampling started", "cadence", s.cadence.String(), "interval", s.period())
}

// Stop deactivates sampling and waits for the sampling goroutine to exit.
// No frame reaches the sink after Stop returns.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.active.Store(false)
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("sampling stopped")
}

// SetActive starts or stops sampling.
func (s *Sampler) SetActive(active bool) {
	if active {
		s.Start()
	} else {
		s.Stop()
	}
}

// Toggle flips the active state and returns the new value.
func (s *Sampler) Toggle() bool {
	if s.Active() {
		s.Stop()
		return false
	}
	s.Start()
	return s.Active()
}

// Active reports whether sampling is on.
func (s *Sampler) Active() bool {
	return s.active.Load()
}

// Close stops sampling permanently.
func (s *Sampler) Close() error {
	s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// SetQuality changes the JPEG quality of later snapshots.
func (s *Sampler) SetQuality(q int) {
	if q > 0 && q <= 100 {
		s.quality.Store(int64(q))
	}
}

// Stats returns a snapshot of the counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Emitted: s.emitted.Load(),
		Skipped: s.skipped.Load(),
		Errors:  s.errs.Load(),
		Active:  s.Active(),
		Cadence: s.cadence.String(),
	}
}

// period returns the time between ticks for the configured cadence.
func (s *Sampler) period() time.Duration {
	if s.cadence == CadenceRefresh {
		fps := s.source.Framerate()
		if fps <= 0 {
			fps = 30
		}
		return time.Duration(float64(time.Second) / fps)
	}
	return s.interval
}

func (s *Sampler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	period := s.period()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// The select above may pick a tick that raced with cancel.
		if ctx.Err() != nil {
			return
		}
		s.tick()

		if s.cadence == CadenceRefresh {
			if p := s.period(); p != period {
				period = p
				ticker.Reset(period)
			}
		}
	}
}

func (s *Sampler) tick() {
	frame, err := s.source.Snapshot(int(s.quality.Load()))
	switch {
	case err == nil:
	case errors.Is(err, camera.ErrNotReady), errors.Is(err, camera.ErrStreamStopped):
		s.skipped.Add(1)
		return
	default:
		s.errs.Add(1)
		s.logger.Warn("snapshot failed", "error", err)
		return
	}

	frame.Seq = s.seq.Add(1)
	s.emitted.Add(1)
	if s.sink != nil {
		s.sink(frame)
	}
}

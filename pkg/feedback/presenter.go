package feedback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/safevision/pkg/protocol"
)

// DefaultPulse is the vibration length for an unsafe verdict.
const DefaultPulse = 200 * time.Millisecond

// Presenter renders verdicts and fires speech and haptics once per
// distinct verdict. Repeating the same verdict re-renders without side
// effects.
type Presenter struct {
	speaker Speaker
	haptics Haptics
	pulse   time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	last     protocol.Verdict
	card     *Card
	onRender []func(*Card)
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithSpeaker sets the speech output.
func WithSpeaker(s Speaker) Option {
	return func(p *Presenter) { p.speaker = s }
}

// WithHaptics sets the haptic output.
func WithHaptics(h Haptics) Option {
	return func(p *Presenter) { p.haptics = h }
}

// WithPulse sets the vibration length for unsafe verdicts.
func WithPulse(d time.Duration) Option {
	return func(p *Presenter) {
		if d > 0 {
			p.pulse = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Presenter) { p.logger = l }
}

// NewPresenter creates a presenter. The placeholder verdict counts as
// already presented, so nothing fires until the first real verdict.
func NewPresenter(opts ...Option) *Presenter {
	p := &Presenter{
		pulse:  DefaultPulse,
		logger: slog.Default(),
		last:   protocol.Placeholder(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "feedback.presenter")
	return p
}

// OnRender registers fn to receive every rendered card (nil when hidden).
func (p *Presenter) OnRender(fn func(*Card)) {
	p.mu.Lock()
	p.onRender = append(p.onRender, fn)
	p.mu.Unlock()
}

// Update renders v and, if v differs from the last verdict, speaks the
// message and pulses haptics when v is unsafe.
func (p *Presenter) Update(v protocol.Verdict, processing bool) *Card {
	card := Render(v, processing)

	p.mu.Lock()
	changed := v != p.last
	p.last = v
	p.card = card
	listeners := make([]func(*Card), len(p.onRender))
	copy(listeners, p.onRender)
	p.mu.Unlock()

	if changed {
		p.effects(v)
	}
	for _, fn := range listeners {
		fn(card)
	}
	return card
}

// Card returns the most recently rendered card.
func (p *Presenter) Card() *Card {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.card
}

func (p *Presenter) effects(v protocol.Verdict) {
	if v.Message != "" && p.speaker != nil && p.speaker.Available() {
		p.speaker.Speak(v.Message)
	}
	if !v.IsSafe && p.haptics != nil && p.haptics.Available() {
		p.haptics.Vibrate(p.pulse)
	}
	p.logger.Debug("verdict presented", "message", v.Message, "safe", v.IsSafe)
}

package feedback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/safevision/pkg/audio"
	"github.com/teslashibe/safevision/pkg/tts"
)

// Speaker speaks text aloud. Speak must not block the caller.
type Speaker interface {
	Available() bool
	Speak(text string)
}

// Player plays synthesized audio. *audio.Player satisfies it.
type Player interface {
	Available() bool
	Play(ctx context.Context, data []byte, format audio.Format) error
}

// DefaultQueueSize bounds how many utterances wait behind the current one.
const DefaultQueueSize = 4

// TTSSpeaker synthesizes with a tts.Provider and plays through a Player on
// its own goroutine. When the queue is full the oldest waiting utterance
// is dropped, so speech never falls far behind the camera.
type TTSSpeaker struct {
	provider tts.Provider
	player   Player
	timeout  time.Duration
	logger   *slog.Logger

	queue  chan string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// SpeakerOption configures a TTSSpeaker.
type SpeakerOption func(*TTSSpeaker)

// WithQueueSize sets the number of utterances that may wait.
func WithQueueSize(n int) SpeakerOption {
	return func(s *TTSSpeaker) {
		if n > 0 {
			s.queue = make(chan string, n)
		}
	}
}

// WithSynthesisTimeout bounds each synthesis request.
func WithSynthesisTimeout(d time.Duration) SpeakerOption {
	return func(s *TTSSpeaker) { s.timeout = d }
}

// WithSpeakerLogger sets the structured logger.
func WithSpeakerLogger(l *slog.Logger) SpeakerOption {
	return func(s *TTSSpeaker) { s.logger = l }
}

// NewTTSSpeaker starts the speech worker. Close stops it.
func NewTTSSpeaker(provider tts.Provider, player Player, opts ...SpeakerOption) *TTSSpeaker {
	s := &TTSSpeaker{
		provider: provider,
		player:   player,
		timeout:  10 * time.Second,
		logger:   slog.Default(),
		queue:    make(chan string, DefaultQueueSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "feedback.speaker")
	s.ctx, s.cancel = context.WithCancel(context.Background())

	go s.run()
	return s
}

// Available reports whether both synthesis and playback are configured.
func (s *TTSSpeaker) Available() bool {
	return s.provider != nil && s.player != nil && s.player.Available()
}

// Speak queues text without blocking.
func (s *TTSSpeaker) Speak(text string) {
	if s.ctx.Err() != nil {
		return
	}
	for {
		select {
		case s.queue <- text:
			return
		default:
		}
		select {
		case dropped := <-s.queue:
			s.logger.Debug("speech queue full, dropping", "text", dropped)
		default:
		}
	}
}

// Close stops the worker, cutting off any utterance in progress.
func (s *TTSSpeaker) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *TTSSpeaker) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case text := <-s.queue:
			s.say(text)
		}
	}
}

func (s *TTSSpeaker) say(text string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	result, err := s.provider.Synthesize(ctx, text)
	cancel()
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Warn("speech synthesis failed", "error", err)
		}
		return
	}

	if err := s.player.Play(s.ctx, result.Audio, formatFor(result.Format)); err != nil {
		s.logger.Warn("speech playback failed", "error", err)
	}
}

// formatFor maps a synthesis format onto the player's containers.
func formatFor(f tts.AudioFormat) audio.Format {
	container := "mp3"
	switch {
	case f.Encoding == tts.EncodingWAV:
		container = "wav"
	case f.Encoding.IsPCM():
		container = "pcm"
	}
	return audio.Format{Container: container, SampleRate: f.SampleRate, Channels: f.Channels}
}

var _ Speaker = (*TTSSpeaker)(nil)

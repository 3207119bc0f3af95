// Package audio plays synthesized speech on the local sound device.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
)

// ErrNoPlayer is returned when no supported playback binary is installed.
var ErrNoPlayer = errors.New("audio: no playback binary found (install ffmpeg or alsa-utils)")

// Format describes the audio handed to Play.
type Format struct {
	// Container is "mp3", "wav" or "pcm".
	Container  string
	SampleRate int
	Channels   int
}

// Runner starts an external command with stdin fed from data.
// Tests replace it to avoid touching the sound device.
type Runner func(ctx context.Context, name string, args []string, data []byte) error

// Player pipes audio into an external player process. Only one clip plays
// at a time; Play cancels whatever is playing.
type Player struct {
	logger *slog.Logger
	run    Runner
	lookup func(string) (string, error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	gen     uint64
	playing bool

	// Callbacks
	OnPlaybackStart func()
	OnPlaybackEnd   func()
}

// Option configures a Player.
type Option func(*Player)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) { p.logger = l }
}

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(p *Player) { p.run = r }
}

// WithLookPath replaces binary resolution.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(p *Player) { p.lookup = fn }
}

// NewPlayer creates a player.
func NewPlayer(opts ...Option) *Player {
	p := &Player{
		logger: slog.Default(),
		run:    execRunner,
		lookup: exec.LookPath,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "audio.player")
	return p
}

// Available reports whether a playback binary is installed.
func (p *Player) Available() bool {
	_, _, err := p.command(Format{Container: "wav"})
	return err == nil
}

// Play plays data and blocks until it finishes, ctx is cancelled or a
// later Play preempts it.
func (p *Player) Play(ctx context.Context, data []byte, format Format) error {
	if len(data) == 0 {
		return nil
	}

	name, args, err := p.command(format)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.gen++
	gen := p.gen
	p.playing = true
	p.mu.Unlock()

	if p.OnPlaybackStart != nil {
		p.OnPlaybackStart()
	}
	p.logger.Debug("playing audio", "player", name, "bytes", len(data), "format", format.Container)

	err = p.run(ctx, name, args, data)

	p.mu.Lock()
	if p.gen == gen {
		p.cancel = nil
		p.playing = false
	}
	p.mu.Unlock()
	stopped := ctx.Err() != nil
	cancel()

	if p.OnPlaybackEnd != nil {
		p.OnPlaybackEnd()
	}

	if err != nil && !stopped {
		return fmt.Errorf("audio: %s: %w", name, err)
	}
	return nil
}

// Cancel stops any current playback immediately.
func (p *Player) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.playing = false
}

// IsPlaying returns whether audio is currently playing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// command picks a binary and arguments for format. ffplay handles every
// container; aplay covers wav and raw pcm without ffmpeg installed.
func (p *Player) command(format Format) (string, []string, error) {
	if path, err := p.lookup("ffplay"); err == nil {
		args := []string{"-nodisp", "-autoexit", "-loglevel", "error"}
		if format.Container == "pcm" {
			args = append(args, "-f", "s16le",
				"-ar", strconv.Itoa(orDefault(format.SampleRate, 24000)),
				"-ch_layout", channelLayout(format.Channels))
		}
		return path, append(args, "-i", "pipe:0"), nil
	}

	if format.Container == "mp3" {
		return "", nil, ErrNoPlayer
	}
	if path, err := p.lookup("aplay"); err == nil {
		args := []string{"-q"}
		if format.Container == "pcm" {
			args = append(args, "-f", "S16_LE",
				"-r", strconv.Itoa(orDefault(format.SampleRate, 24000)),
				"-c", strconv.Itoa(orDefault(format.Channels, 1)))
		}
		return path, append(args, "-"), nil
	}
	return "", nil, ErrNoPlayer
}

func execRunner(ctx context.Context, name string, args []string, data []byte) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return err
	}
	return nil
}

func channelLayout(channels int) string {
	if channels == 2 {
		return "stereo"
	}
	return "mono"
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

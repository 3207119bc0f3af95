package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	providerEspeak = "espeak"

	// espeakWPM is espeak's default speaking rate in words per minute.
	espeakWPM = 175
)

// Espeak implements Provider with a local espeak-ng (or espeak) process.
// It needs no network or API key, so it works as the last link of a Chain.
type Espeak struct {
	config *Config
	binary string
}

// NewEspeak creates a local provider. The binary is resolved lazily so a
// missing install only fails at Synthesize or Health.
func NewEspeak(opts ...Option) *Espeak {
	cfg := DefaultConfig()
	cfg.VoiceID = "en-us"
	cfg.OutputFormat = EncodingWAV
	cfg.Apply(opts...)

	return &Espeak{config: cfg, binary: cfg.Binary}
}

// Synthesize runs the synthesizer and returns its WAV output.
func (e *Espeak) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	bin, err := e.lookup()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, e.args()...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, WrapError(providerEspeak, fmt.Errorf("%s: %w: %s", bin, err, strings.TrimSpace(stderr.String())))
	}
	if stdout.Len() == 0 {
		return nil, WrapError(providerEspeak, fmt.Errorf("%s produced no audio", bin))
	}

	return &AudioResult{
		Audio:     stdout.Bytes(),
		Format:    AudioFormat{Encoding: EncodingWAV, SampleRate: 22050, Channels: 1, BitDepth: 16},
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
		Provider:  providerEspeak,
	}, nil
}

// Health reports whether the synthesizer binary is installed.
func (e *Espeak) Health(ctx context.Context) error {
	_, err := e.lookup()
	return err
}

// Name returns "espeak".
func (e *Espeak) Name() string {
	return providerEspeak
}

// Close is a no-op.
func (e *Espeak) Close() error {
	return nil
}

func (e *Espeak) args() []string {
	wpm := espeakWPM
	if e.config.Speed > 0 {
		wpm = int(float64(espeakWPM) * e.config.Speed)
	}
	args := []string{"--stdout", "--stdin", "-s", strconv.Itoa(wpm)}
	if e.config.VoiceID != "" {
		args = append(args, "-v", e.config.VoiceID)
	}
	return args
}

func (e *Espeak) lookup() (string, error) {
	candidates := []string{"espeak-ng", "espeak"}
	if e.binary != "" {
		candidates = []string{e.binary}
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", WrapError(providerEspeak, ErrBinaryNotFound)
}

var _ Provider = (*Espeak)(nil)

//go:build integration

package tts_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/teslashibe/safevision/pkg/tts"
)

// Run with: go test -tags=integration -v ./pkg/tts/...
func TestOpenAIIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	provider, err := tts.NewOpenAI(tts.WithAPIKey(apiKey))
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := provider.Health(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	result, err := provider.Synthesize(ctx, "person detected 5 feet away")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	t.Logf("synthesized %d bytes in %dms", len(result.Audio), result.LatencyMs)
	if len(result.Audio) < 1000 {
		t.Error("audio too short, expected at least 1KB")
	}
}

func TestElevenLabsIntegration(t *testing.T) {
	apiKey := os.Getenv("ELEVENLABS_API_KEY")
	if apiKey == "" {
		t.Skip("ELEVENLABS_API_KEY not set")
	}

	opts := []tts.Option{tts.WithAPIKey(apiKey)}
	if voice := os.Getenv("ELEVENLABS_VOICE_ID"); voice != "" {
		opts = append(opts, tts.WithVoice(voice))
	}
	provider, err := tts.NewElevenLabs(opts...)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := provider.Synthesize(ctx, "car detected 8 feet away")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	t.Logf("synthesized %d bytes in %dms", len(result.Audio), result.LatencyMs)
}

func TestEspeakIntegration(t *testing.T) {
	p := tts.NewEspeak()
	if err := p.Health(context.Background()); err != nil {
		t.Skip("espeak not installed")
	}

	result, err := p.Synthesize(context.Background(), "store sign detected 2 feet away")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if string(result.Audio[:4]) != "RIFF" {
		t.Errorf("expected WAV output, got %q", result.Audio[:4])
	}
}

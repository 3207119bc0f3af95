// Package tts turns verdict messages into speech audio.
//
// Providers include OpenAI and ElevenLabs over HTTP and a local espeak-ng
// fallback that needs no API key. All implement Provider, and Chain tries
// several in order:
//
//	primary, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	local := tts.NewEspeak()
//	provider, _ := tts.NewChain(primary, local)
//
//	result, _ := provider.Synthesize(ctx, "person detected 3 feet away")
//	// result.Audio holds MP3 or WAV bytes, see result.Format
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to a complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Name identifies the provider in logs and errors.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult is one synthesized utterance.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration // estimated, zero when unknown
	CharCount int
	LatencyMs int64
	Provider  string
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names an audio container or sample format.
type Encoding string

const (
	EncodingMP3   Encoding = "mp3_44100_128"
	EncodingWAV   Encoding = "wav"
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
)

// IsPCM reports whether e is headerless 16-bit PCM.
func (e Encoding) IsPCM() bool {
	switch e {
	case EncodingPCM16, EncodingPCM22, EncodingPCM24, EncodingPCM44:
		return true
	}
	return false
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22, EncodingWAV:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingPCM44, EncodingMP3:
		return 44100
	default:
		return 24000
	}
}

// VoiceSettings controls ElevenLabs voice characteristics.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings favors a steady, clear voice over expressiveness.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.7,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
	}
}

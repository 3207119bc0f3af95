package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs model IDs
const (
	ModelTurboV2_5      = "eleven_turbo_v2_5"
	ModelFlashV2_5      = "eleven_flash_v2_5"
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabs implements Provider for ElevenLabs TTS.
type ElevenLabs struct {
	httpProvider
	baseURL string
}

// NewElevenLabs creates a new ElevenLabs TTS provider. The voice may be a
// preset name from ElevenLabsVoices or a raw voice ID.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = DefaultElevenLabsVoice
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}
	cfg.VoiceID = ResolveElevenLabsVoice(cfg.VoiceID)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	e := &ElevenLabs{
		httpProvider: newHTTPProvider(providerElevenLabs, cfg),
		baseURL:      baseURL,
	}
	e.headers = func(req *http.Request) {
		req.Header.Set("xi-api-key", cfg.APIKey)
		if req.Method == http.MethodPost {
			req.Header.Set("Accept", e.mime())
		}
	}
	e.decode = parseElevenLabsError
	return e, nil
}

// Synthesize converts text to audio in the configured output format.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, e.config.VoiceID, e.config.OutputFormat)
	payload := map[string]any{
		"text":           text,
		"model_id":       e.config.ModelID,
		"voice_settings": e.config.VoiceSettings,
	}

	audio, err := e.post(ctx, url, payload)
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	e.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"model", e.config.ModelID,
	)

	format := AudioFormat{
		Encoding:   e.config.OutputFormat,
		SampleRate: SampleRateFromEncoding(e.config.OutputFormat),
		Channels:   1,
		BitDepth:   16,
	}
	result := &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(text),
		LatencyMs: latency,
		Provider:  providerElevenLabs,
	}
	if format.Encoding.IsPCM() {
		result.Duration = time.Duration(float64(len(audio)/2) / float64(format.SampleRate) * float64(time.Second))
	}
	return result, nil
}

// Health checks API connectivity and key validity.
func (e *ElevenLabs) Health(ctx context.Context) error {
	return e.get(ctx, e.baseURL+"/user")
}

// VoiceID returns the resolved voice ID.
func (e *ElevenLabs) VoiceID() string {
	return e.config.VoiceID
}

func (e *ElevenLabs) mime() string {
	if e.config.OutputFormat.IsPCM() {
		return "audio/pcm"
	}
	return "audio/mpeg"
}

func parseElevenLabsError(status int, body []byte) error {
	var errResp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}

	apiErr := &APIError{StatusCode: status, Message: string(body), Provider: providerElevenLabs}
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		apiErr.Message = errResp.Detail.Message
		apiErr.Code = errResp.Detail.Status
	}
	return apiErr
}

var _ Provider = (*ElevenLabs)(nil)

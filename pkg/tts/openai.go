package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"
)

// OpenAI voice options
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceNova    = "nova"
	VoiceOnyx    = "onyx"
	VoiceShimmer = "shimmer"
)

// OpenAI model options
const (
	ModelTTS1   = "tts-1"    // lower latency
	ModelTTS1HD = "tts-1-hd" // higher quality
)

// OpenAI implements Provider for the OpenAI speech endpoint.
type OpenAI struct {
	httpProvider
	baseURL string
}

// NewOpenAI creates a new OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.VoiceID = VoiceNova
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceNova
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	o := &OpenAI{
		httpProvider: newHTTPProvider(providerOpenAI, cfg),
		baseURL:      baseURL,
	}
	o.headers = func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	o.decode = parseOpenAIError
	return o, nil
}

// Synthesize converts text to MP3 audio.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	payload := map[string]any{
		"model":           o.config.ModelID,
		"voice":           o.config.VoiceID,
		"input":           text,
		"response_format": "mp3",
	}
	if o.config.Speed > 0 && o.config.Speed != 1.0 {
		payload["speed"] = o.config.Speed
	}

	audio, err := o.post(ctx, o.baseURL+"/audio/speech", payload)
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	o.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.config.VoiceID,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingMP3, SampleRate: 44100, Channels: 1},
		CharCount: len(text),
		LatencyMs: latency,
		Provider:  providerOpenAI,
	}, nil
}

// Health checks the API key against the models endpoint.
func (o *OpenAI) Health(ctx context.Context) error {
	return o.get(ctx, o.baseURL+"/models")
}

// VoiceID returns the configured voice.
func (o *OpenAI) VoiceID() string {
	return o.config.VoiceID
}

func parseOpenAIError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	apiErr := &APIError{StatusCode: status, Message: string(body), Provider: providerOpenAI}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Code = errResp.Error.Code
	}
	return apiErr
}

var _ Provider = (*OpenAI)(nil)

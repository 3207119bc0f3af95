package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/safevision/internal/httpc"
)

// httpProvider holds what the HTTP-backed providers share.
type httpProvider struct {
	name    string
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	headers func(*http.Request)
	decode  func(status int, body []byte) error
}

func newHTTPProvider(name string, cfg *Config) httpProvider {
	client := cfg.HTTPClient
	if client == nil {
		client = httpc.NewClient(cfg.Timeout)
	}
	return httpProvider{
		name:   name,
		config: cfg,
		client: client,
		logger: cfg.Logger.With("component", "tts."+name),
	}
}

// post sends payload as JSON and returns the body of a 200 response,
// retrying rate-limited and 5xx responses up to MaxRetries times.
func (p *httpProvider) post(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(p.name, fmt.Errorf("marshal payload: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(p.name, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if p.headers != nil {
			p.headers(req)
		}

		data, err := p.do(req)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
			return nil, err
		}
		p.logger.Warn("retrying request", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// get issues a GET and discards a 200 body.
func (p *httpProvider) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WrapError(p.name, err)
	}
	if p.headers != nil {
		p.headers(req)
	}
	_, err = p.do(req)
	return err
}

func (p *httpProvider) do(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, WrapError(p.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(p.name, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, p.decode(resp.StatusCode, data)
	}
	return data, nil
}

// Name returns the provider name.
func (p *httpProvider) Name() string {
	return p.name
}

// Close releases idle connections.
func (p *httpProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

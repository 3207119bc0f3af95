package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/teslashibe/safevision/internal/httpc"
	"github.com/teslashibe/safevision/pkg/camera"
	"github.com/teslashibe/safevision/pkg/protocol"
)

// ProcessImagePath is the inference endpoint path.
const ProcessImagePath = "/process-image"

// FrameIDHeader carries the frame ID on HTTP requests.
const FrameIDHeader = "X-Frame-ID"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Transport sends one frame to the backend and returns its verdict.
type Transport interface {
	Send(ctx context.Context, frame *camera.Frame) (protocol.Verdict, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, frame *camera.Frame) (protocol.Verdict, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, frame *camera.Frame) (protocol.Verdict, error) {
	return f(ctx, frame)
}

// Encoding selects the request body format of HTTPTransport.
type Encoding int

const (
	// EncodingJSON posts {"image": "<data URL>"}.
	EncodingJSON Encoding = iota
	// EncodingMultipart posts the JPEG as form field "image".
	EncodingMultipart
)

// String returns the encoding name.
func (e Encoding) String() string {
	if e == EncodingMultipart {
		return "multipart"
	}
	return "json"
}

// ParseEncoding maps "json" or "multipart" to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return EncodingJSON, nil
	case "multipart", "form":
		return EncodingMultipart, nil
	}
	return EncodingJSON, fmt.Errorf("dispatch: unknown encoding %q", s)
}

// HTTPTransport posts frames to {base}/process-image.
type HTTPTransport struct {
	endpoint string
	encoding Encoding
	client   *http.Client
	logger   *slog.Logger
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithEncoding selects the request body format.
func WithEncoding(e Encoding) HTTPOption {
	return func(t *HTTPTransport) { t.encoding = e }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithHTTPLogger sets the structured logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(t *HTTPTransport) { t.logger = l }
}

// NewHTTPTransport creates a transport for baseURL. The default client has
// no overall timeout.
func NewHTTPTransport(baseURL string, opts ...HTTPOption) (*HTTPTransport, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	t := &HTTPTransport{
		endpoint: strings.TrimRight(baseURL, "/") + ProcessImagePath,
		encoding: EncodingJSON,
		client:   httpc.NewClient(0),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "dispatch.http")
	return t, nil
}

// Endpoint returns the full request URL.
func (t *HTTPTransport) Endpoint() string {
	return t.endpoint
}

// Encoding returns the request body format.
func (t *HTTPTransport) Encoding() Encoding {
	return t.encoding
}

// Send posts frame and decodes the verdict.
func (t *HTTPTransport) Send(ctx context.Context, frame *camera.Frame) (protocol.Verdict, error) {
	if frame == nil {
		return protocol.Verdict{}, ErrNilFrame
	}

	body, contentType, err := t.encode(frame)
	if err != nil {
		return protocol.Verdict{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, body)
	if err != nil {
		return protocol.Verdict{}, fmt.Errorf("dispatch: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(FrameIDHeader, frame.ID)

	resp, err := t.client.Do(req)
	if err != nil {
		return protocol.Verdict{}, fmt.Errorf("dispatch: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.Verdict{}, fmt.Errorf("dispatch: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return protocol.Verdict{}, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	verdict, err := protocol.ParseVerdict(data)
	if err != nil {
		return protocol.Verdict{}, err
	}

	t.logger.Debug("verdict received", "frame", frame.ID, "safe", verdict.IsSafe, "message", verdict.Message)
	return verdict, nil
}

func (t *HTTPTransport) encode(frame *camera.Frame) (io.Reader, string, error) {
	if t.encoding == EncodingMultipart {
		return encodeMultipart(frame.Data)
	}

	data, err := json.Marshal(protocol.ProcessImageRequest{Image: frame.DataURL()})
	if err != nil {
		return nil, "", fmt.Errorf("dispatch: encode request: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

// encodeMultipart builds a form with the JPEG as file field "image".
func encodeMultipart(jpeg []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="frame.jpg"`)
	h.Set("Content-Type", protocol.MIMEJPEG)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("dispatch: create form part: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return nil, "", fmt.Errorf("dispatch: write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("dispatch: close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

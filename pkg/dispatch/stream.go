package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/safevision/pkg/camera"
	"github.com/teslashibe/safevision/pkg/protocol"
)

// StreamPath is the backend's streaming endpoint.
const StreamPath = "/ws/process"

type result struct {
	verdict protocol.Verdict
	err     error
}

// StreamTransport sends frames over one persistent WebSocket and correlates
// verdicts by frame ID. The connection is dialed on first use and again
// after it drops.
type StreamTransport struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan result
	closed  bool

	writeMu sync.Mutex
}

// StreamOption configures a StreamTransport.
type StreamOption func(*StreamTransport)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) StreamOption {
	return func(t *StreamTransport) { t.dialer = d }
}

// WithStreamLogger sets the structured logger.
func WithStreamLogger(l *slog.Logger) StreamOption {
	return func(t *StreamTransport) { t.logger = l }
}

// NewStreamTransport creates a transport for baseURL. An http(s) base is
// rewritten to ws(s).
func NewStreamTransport(baseURL string, opts ...StreamOption) (*StreamTransport, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("dispatch: parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path += StreamPath

	t := &StreamTransport{
		url:     u.String(),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  slog.Default(),
		pending: make(map[string]chan result),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "dispatch.stream")
	return t, nil
}

// URL returns the WebSocket URL.
func (t *StreamTransport) URL() string {
	return t.url
}

// Send writes frame and waits for the matching verdict or ctx.
func (t *StreamTransport) Send(ctx context.Context, frame *camera.Frame) (protocol.Verdict, error) {
	if frame == nil {
		return protocol.Verdict{}, ErrNilFrame
	}

	conn, err := t.connect(ctx)
	if err != nil {
		return protocol.Verdict{}, err
	}

	ch := make(chan result, 1)
	t.mu.Lock()
	t.pending[frame.ID] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, frame.ID)
		t.mu.Unlock()
	}()

	msg, err := protocol.NewFrameMessage(frame.ID, frame.Width, frame.Height, frame.Data)
	if err != nil {
		return protocol.Verdict{}, err
	}

	t.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}
	err = conn.WriteJSON(msg)
	t.writeMu.Unlock()
	if err != nil {
		t.drop(conn, err)
		return protocol.Verdict{}, fmt.Errorf("dispatch: write frame: %w", err)
	}

	select {
	case r := <-ch:
		return r.verdict, r.err
	case <-ctx.Done():
		return protocol.Verdict{}, ctx.Err()
	}
}

// Close closes the connection and fails waiting sends.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	t.drop(conn, ErrClosed)
	return nil
}

func (t *StreamTransport) connect(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	if t.conn != nil {
		return t.conn, nil
	}

	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dispatch: dial %s: %w", t.url, err)
	}
	t.conn = conn
	t.logger.Info("stream connected", "url", t.url)

	go t.readLoop(conn)
	return conn, nil
}

// drop forgets conn and fails every pending send with err.
func (t *StreamTransport) drop(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	waiting := t.pending
	t.pending = make(map[string]chan result)
	t.mu.Unlock()

	_ = conn.Close()
	for _, ch := range waiting {
		ch <- result{err: fmt.Errorf("%w: %v", ErrNotConnected, err)}
	}
	t.logger.Debug("stream dropped", "error", err)
}

func (t *StreamTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.drop(conn, err)
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			t.logger.Warn("invalid stream message", "error", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeVerdict:
			vd, err := protocol.ParseVerdictData(msg.Data)
			if err != nil {
				if vd.FrameID == "" {
					// Nothing to correlate; fail every waiting send.
					t.drop(conn, err)
					return
				}
				t.resolve(vd.FrameID, result{err: err})
				continue
			}
			t.resolve(vd.FrameID, result{verdict: vd.Verdict})

		case protocol.TypeError:
			var ed protocol.ErrorData
			if err := msg.ParseData(&ed); err != nil {
				t.drop(conn, fmt.Errorf("dispatch: invalid error message: %w", err))
				return
			}
			if ed.FrameID == "" {
				t.drop(conn, &RemoteError{Message: ed.Message})
				return
			}
			t.resolve(ed.FrameID, result{err: &RemoteError{FrameID: ed.FrameID, Message: ed.Message}})

		case protocol.TypePing:
			pong, _ := protocol.NewMessage(protocol.TypePong, nil)
			t.writeMu.Lock()
			_ = conn.WriteJSON(pong)
			t.writeMu.Unlock()
		}
	}
}

func (t *StreamTransport) resolve(frameID string, r result) {
	t.mu.Lock()
	ch, ok := t.pending[frameID]
	delete(t.pending, frameID)
	t.mu.Unlock()

	if ok {
		ch <- r
	}
}

package backend_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/safevision/pkg/backend"
	"github.com/teslashibe/safevision/pkg/camera"
	"github.com/teslashibe/safevision/pkg/dispatch"
	"github.com/teslashibe/safevision/pkg/protocol"
)

// serve runs s on a loopback port and returns its base URL.
func serve(t *testing.T, s *backend.Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.App().Listener(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return "http://" + ln.Addr().String()
}

func TestStreamEndToEnd(t *testing.T) {
	s := backend.NewServer(backend.WithAnalyzer(backend.AnalyzerFunc(func(_ context.Context, jpeg []byte) (protocol.Verdict, error) {
		if len(jpeg) > 3 {
			return protocol.Verdict{Message: "car detected 8 feet away", IsSafe: true}, nil
		}
		return protocol.Verdict{}, errors.New("too small")
	})))
	base := serve(t, s)

	tr, err := dispatch.NewStreamTransport(base)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := tr.Send(ctx, camera.NewFrame([]byte{0xff, 0xd8, 0xff, 0xe0}, 640, 480))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if v.Message != "car detected 8 feet away" || !v.IsSafe {
		t.Errorf("verdict = %+v", v)
	}

	_, err = tr.Send(ctx, camera.NewFrame([]byte{0xff}, 640, 480))
	var remote *dispatch.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if remote.Message != "too small" {
		t.Errorf("remote message = %q", remote.Message)
	}

	if got := s.Stats().StreamFrames; got != 2 {
		t.Errorf("stream frames = %d, want 2", got)
	}
}

func TestStreamPing(t *testing.T) {
	base := serve(t, backend.NewServer())

	conn, _, err := websocket.DefaultDialer.Dial("ws"+base[len("http"):]+backend.StreamPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	ping, _ := protocol.NewMessage(protocol.TypePing, nil)
	if err := conn.WriteJSON(ping); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply protocol.Message
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != protocol.TypePong {
		t.Errorf("reply type = %q, want pong", reply.Type)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != protocol.TypeError {
		t.Errorf("reply type = %q, want error", reply.Type)
	}
}

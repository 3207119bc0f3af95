package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// serveHub upgrades every request and attaches it to h.
func serveHub(t *testing.T, h *Hub, initial ...Message) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(h, conn, initial...).Run()
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startHub(t *testing.T, h *Hub) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return cancel
}

func TestNew(t *testing.T) {
	h := New("status")
	if h.Name() != "status" {
		t.Errorf("Name = %q", h.Name())
	}
	if h.ClientCount() != 0 {
		t.Error("new hub should have no clients")
	}
	if h.IsRunning() {
		t.Error("hub should not be running before Run")
	}
}

func TestBroadcastJSONAndBinary(t *testing.T) {
	h := New("test")
	startHub(t, h)
	url := serveHub(t, h)

	a := dial(t, url)
	b := dial(t, url)
	waitClients(t, h, 2)

	if err := h.BroadcastJSON(map[string]string{"type": "status"}); err != nil {
		t.Fatal(err)
	}
	h.BroadcastBinary([]byte{0xff, 0xd8})

	for _, conn := range []*websocket.Conn{a, b} {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if mt != websocket.TextMessage || string(data) != `{"type":"status"}` {
			t.Errorf("got %d %s", mt, data)
		}
		mt, data, err = conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if mt != websocket.BinaryMessage || len(data) != 2 {
			t.Errorf("got %d %v", mt, data)
		}
	}
}

func TestInitialMessagesFirst(t *testing.T) {
	h := New("test")
	startHub(t, h)
	url := serveHub(t, h, NewJSONMessage([]byte(`"hello"`)))

	conn := dial(t, url)
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"hello"` {
		t.Errorf("first message = %s", data)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	h := New("test")
	startHub(t, h)
	url := serveHub(t, h)

	conn := dial(t, url)
	waitClients(t, h, 1)
	conn.Close()
	waitClients(t, h, 0)
}

func TestRunStopClosesClients(t *testing.T) {
	h := New("test")
	cancel := startHub(t, h)
	url := serveHub(t, h)

	conn := dial(t, url)
	waitClients(t, h, 1)

	cancel()
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to close when the hub stops")
	}

	deadline := time.Now().Add(time.Second)
	for h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.IsRunning() {
		t.Error("hub still running after cancel")
	}
}

func TestBroadcastFullQueueDrops(t *testing.T) {
	h := New("test", WithBuffer(1))
	h.Broadcast(NewJSONMessage([]byte("1")))
	h.Broadcast(NewJSONMessage([]byte("2")))
	if h.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", h.Dropped())
	}
}

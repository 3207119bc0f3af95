package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/safevision/pkg/camera"
	"github.com/teslashibe/safevision/pkg/dispatch"
	"github.com/teslashibe/safevision/pkg/protocol"
)

type fakeController struct {
	mu         sync.Mutex
	processing bool
	permission camera.Permission
	retryErr   error
	retries    int
	config     camera.Config
	updateErr  error
}

func newFakeController() *fakeController {
	return &fakeController{config: camera.DefaultConfig()}
}

func (f *fakeController) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{
		Camera:     camera.State{Permission: f.permission},
		Processing: f.processing,
		Verdict:    protocol.Placeholder(),
	}
}

func (f *fakeController) Stats() Stats {
	return Stats{}
}

func (f *fakeController) RetryCamera(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries++
	if f.retryErr != nil {
		f.permission = camera.PermissionDenied
		return f.retryErr
	}
	f.permission = camera.PermissionGranted
	return nil
}

func (f *fakeController) SetProcessing(active bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processing = active
	return active
}

func (f *fakeController) ToggleProcessing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processing = !f.processing
	return f.processing
}

func (f *fakeController) CameraConfig() camera.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config
}

func (f *fakeController) UpdateCameraConfig(_ context.Context, params map[string]any) (camera.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.config, f.updateErr
	}
	if name, ok := params["preset"].(string); ok {
		p := camera.GetPreset(name)
		if p == nil {
			return f.config, errors.New("unknown preset: " + name)
		}
		f.config = *p
	}
	return f.config, nil
}

func do(t *testing.T, s *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestStatus(t *testing.T) {
	s := NewServer(newFakeController())

	resp, body := do(t, s, http.MethodGet, "/api/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var st struct {
		Camera struct {
			Permission string `json:"permission"`
		} `json:"camera"`
		Processing bool             `json:"processing"`
		Verdict    protocol.Verdict `json:"verdict"`
		Card       *json.RawMessage `json:"card"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.Camera.Permission != "unknown" || st.Processing || st.Card != nil {
		t.Errorf("status = %s", body)
	}
	if !st.Verdict.IsSafe || st.Verdict.Message != "" {
		t.Errorf("verdict = %+v, want placeholder", st.Verdict)
	}
}

func TestProcessingRoutes(t *testing.T) {
	ctrl := newFakeController()
	s := NewServer(ctrl)

	tests := []struct {
		path string
		want bool
	}{
		{"/api/processing/start", true},
		{"/api/processing/toggle", false},
		{"/api/processing/toggle", true},
		{"/api/processing/stop", false},
		{"/api/processing/stop", false},
	}
	for _, tt := range tests {
		resp, body := do(t, s, http.MethodPost, tt.path, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d", tt.path, resp.StatusCode)
		}
		var out map[string]bool
		json.Unmarshal(body, &out)
		if out["processing"] != tt.want {
			t.Errorf("%s: processing = %v, want %v", tt.path, out["processing"], tt.want)
		}
	}
}

func TestRetryCamera(t *testing.T) {
	ctrl := newFakeController()
	ctrl.retryErr = &camera.AccessError{Device: "0", Cause: camera.ErrDeviceUnavailable}
	s := NewServer(ctrl)

	resp, body := do(t, s, http.MethodPost, "/api/camera/retry", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("denied retry status = %d, want 503", resp.StatusCode)
	}
	if !strings.Contains(string(body), camera.DeniedMessage) {
		t.Errorf("body should carry the denied message: %s", body)
	}

	ctrl.retryErr = nil
	resp, body = do(t, s, http.MethodPost, "/api/camera/retry", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("granted retry status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"permission":"granted"`) {
		t.Errorf("body = %s", body)
	}
	if ctrl.retries != 2 {
		t.Errorf("retries = %d", ctrl.retries)
	}
}

func TestCameraConfigRoutes(t *testing.T) {
	ctrl := newFakeController()
	s := NewServer(ctrl)

	resp, body := do(t, s, http.MethodGet, "/api/camera/config", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"width":1280`) {
		t.Errorf("get config: %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, s, http.MethodPut, "/api/camera/config", `{"preset":"1080p"}`)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"width":1920`) {
		t.Errorf("put preset: %d %s", resp.StatusCode, body)
	}

	resp, _ = do(t, s, http.MethodPut, "/api/camera/config", `{"preset":"nope"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown preset status = %d, want 400", resp.StatusCode)
	}

	resp, _ = do(t, s, http.MethodPut, "/api/camera/config", `{`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", resp.StatusCode)
	}

	ctrl.updateErr = &camera.AccessError{Device: "1", Cause: camera.ErrDeviceUnavailable}
	resp, _ = do(t, s, http.MethodPut, "/api/camera/config", `{"preset":"720p"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("denied reconfigure status = %d, want 503", resp.StatusCode)
	}
}

func TestPresets(t *testing.T) {
	s := NewServer(newFakeController())
	_, body := do(t, s, http.MethodGet, "/api/camera/presets", "")
	var out struct {
		Names   []string                 `json:"names"`
		Presets map[string]camera.Config `json:"presets"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Names) == 0 || len(out.Presets) != len(out.Names) {
		t.Errorf("presets = %s", body)
	}
}

func TestStatsIncludesClients(t *testing.T) {
	s := NewServer(newFakeController())
	_, body := do(t, s, http.MethodGet, "/api/stats", "")
	if !strings.Contains(string(body), `"events":0`) {
		t.Errorf("stats = %s", body)
	}
}

func TestIndexPage(t *testing.T) {
	s := NewServer(newFakeController())
	resp, body := do(t, s, http.MethodGet, "/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "SafeVision Guide") {
		t.Error("index page missing title")
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := NewServer(newFakeController())
	resp, _ := do(t, s, http.MethodGet, "/ws/status", "")
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

// listen serves s on a loopback port with its hubs running.
func listen(t *testing.T, s *Server) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s.StartHubs(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.App().Listener(ln)
	t.Cleanup(func() {
		cancel()
		s.App().Shutdown()
	})
	return "ws://" + ln.Addr().String()
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestStatusSocketSendsCurrentState(t *testing.T) {
	ctrl := newFakeController()
	ctrl.processing = true
	s := NewServer(ctrl)
	base := listen(t, s)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws/status", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	msg := readMessage(t, conn)
	if msg.Type != protocol.TypeStatus {
		t.Fatalf("type = %q", msg.Type)
	}
	var st Status
	msg.ParseData(&st)
	if !st.Processing {
		t.Error("initial status should report processing")
	}
}

func TestEventsSocket(t *testing.T) {
	s := NewServer(newFakeController())
	base := listen(t, s)

	haptics := s.Haptics()
	if haptics.Available() {
		t.Error("haptics should be unavailable with no dashboards")
	}

	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for !haptics.Available() {
		if time.Now().After(deadline) {
			t.Fatal("events client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Notifier().Notify(dispatch.FailureToast)
	msg := readMessage(t, conn)
	var toast protocol.ToastData
	msg.ParseData(&toast)
	if msg.Type != protocol.TypeToast || toast.Message != dispatch.FailureToast.Message {
		t.Errorf("toast = %q %+v", msg.Type, toast)
	}

	haptics.Vibrate(200 * time.Millisecond)
	msg = readMessage(t, conn)
	var vib protocol.VibrateData
	msg.ParseData(&vib)
	if msg.Type != protocol.TypeVibrate || vib.DurationMs != 200 {
		t.Errorf("vibrate = %q %+v", msg.Type, vib)
	}
}

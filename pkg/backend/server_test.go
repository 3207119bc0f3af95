package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/safevision/pkg/detection"
	"github.com/teslashibe/safevision/pkg/protocol"
)

var testJPEG = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func jsonRequest(t *testing.T, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, ProcessImagePath, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, "frame.jpg")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()

	req := httptest.NewRequest(http.MethodPost, ProcessImagePath, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeVerdict(t *testing.T, resp *http.Response) protocol.Verdict {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	v, err := protocol.ParseVerdict(body)
	if err != nil {
		t.Fatalf("ParseVerdict(%s): %v", body, err)
	}
	return v
}

func TestProcessImageJSON(t *testing.T) {
	s := NewServer()

	req := jsonRequest(t, protocol.ProcessImageRequest{Image: protocol.EncodeDataURL(protocol.MIMEJPEG, testJPEG)})
	req.Header.Set(FrameIDHeader, "frame-1")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get(FrameIDHeader); got != "frame-1" {
		t.Errorf("frame id header = %q", got)
	}

	v := decodeVerdict(t, resp)
	if v.Message != StaticMessage || !v.IsSafe {
		t.Errorf("verdict = %+v", v)
	}
	if st := s.Stats(); st.Requests != 1 || st.Errors != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestProcessImageMultipart(t *testing.T) {
	var got []byte
	s := NewServer(WithAnalyzer(AnalyzerFunc(func(_ context.Context, jpeg []byte) (protocol.Verdict, error) {
		got = jpeg
		return protocol.Verdict{Message: "car detected 3 feet away", IsSafe: false}, nil
	})))

	resp, err := s.App().Test(multipartRequest(t, "image", testJPEG))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !bytes.Equal(got, testJPEG) {
		t.Errorf("analyzer got %v", got)
	}
	if v := decodeVerdict(t, resp); v.IsSafe {
		t.Errorf("verdict = %+v, want unsafe", v)
	}
	if resp.Header.Get(FrameIDHeader) == "" {
		t.Error("frame id should be generated when absent")
	}
	if s.Stats().Unsafe != 1 {
		t.Errorf("unsafe = %d", s.Stats().Unsafe)
	}
}

func TestProcessImageBadRequests(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
	}{
		{"missing image", func(t *testing.T) *http.Request {
			return jsonRequest(t, map[string]string{})
		}},
		{"not base64", func(t *testing.T) *http.Request {
			return jsonRequest(t, map[string]string{"image": "data:image/jpeg;base64,%%%"})
		}},
		{"empty payload", func(t *testing.T) *http.Request {
			return jsonRequest(t, map[string]string{"image": "data:image/jpeg;base64,"})
		}},
		{"wrong multipart field", func(t *testing.T) *http.Request {
			return multipartRequest(t, "file", testJPEG)
		}},
		{"empty upload", func(t *testing.T) *http.Request {
			return multipartRequest(t, "image", nil)
		}},
		{"invalid json", func(t *testing.T) *http.Request {
			req := httptest.NewRequest(http.MethodPost, ProcessImagePath, strings.NewReader("{"))
			req.Header.Set("Content-Type", "application/json")
			return req
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer()
			resp, err := s.App().Test(tt.req(t))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var body map[string]string
			json.NewDecoder(resp.Body).Decode(&body)
			if body["error"] == "" {
				t.Error("expected error message in body")
			}
			if s.Stats().Errors != 1 {
				t.Errorf("errors = %d, want 1", s.Stats().Errors)
			}
		})
	}
}

func TestAvgLatencyCountsAnalyzedFramesOnly(t *testing.T) {
	const delay = 20 * time.Millisecond
	slow := AnalyzerFunc(func(context.Context, []byte) (protocol.Verdict, error) {
		time.Sleep(delay)
		return protocol.Placeholder(), nil
	})
	s := NewServer(WithAnalyzer(slow))

	if _, err := s.App().Test(multipartRequest(t, "image", testJPEG)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := s.App().Test(jsonRequest(t, map[string]string{})); err != nil {
			t.Fatal(err)
		}
	}

	st := s.Stats()
	if st.Requests != 5 || st.Errors != 4 || st.Analyzed != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.AvgLatency < delay {
		t.Errorf("AvgLatency = %v, want at least %v", st.AvgLatency, delay)
	}
}

func TestProcessImageAnalyzerError(t *testing.T) {
	s := NewServer(WithAnalyzer(AnalyzerFunc(func(context.Context, []byte) (protocol.Verdict, error) {
		return protocol.Verdict{}, errors.New("model unavailable")
	})))

	resp, err := s.App().Test(multipartRequest(t, "image", testJPEG))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if _, err := protocol.ParseVerdict(body); !errors.Is(err, protocol.ErrMalformedVerdict) {
		t.Errorf("error body should not parse as a verdict: %s", body)
	}
}

func TestProcessImageTimeout(t *testing.T) {
	s := NewServer(
		WithAnalyzeTimeout(1),
		WithAnalyzer(AnalyzerFunc(func(ctx context.Context, _ []byte) (protocol.Verdict, error) {
			<-ctx.Done()
			return protocol.Verdict{}, ctx.Err()
		})),
	)
	resp, err := s.App().Test(multipartRequest(t, "image", testJPEG))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := NewServer(WithAnalyzer(NewRandomAnalyzer(1)))

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, HealthPath, nil))
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]string
	json.NewDecoder(resp.Body).Decode(&health)
	if health["status"] != "ok" || health["analyzer"] != AnalyzerRandom {
		t.Errorf("health = %v", health)
	}

	s.App().Test(multipartRequest(t, "image", testJPEG))

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"safevision_backend_requests_total 1",
		"# TYPE safevision_backend_stream_clients gauge",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	s := NewServer()
	req := httptest.NewRequest(http.MethodOptions, ProcessImagePath, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS allow-origin header")
	}
}

func TestStreamRequiresUpgrade(t *testing.T) {
	s := NewServer()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, StreamPath, nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestNewAnalyzer(t *testing.T) {
	for _, name := range []string{"", AnalyzerStatic, AnalyzerRandom} {
		if _, err := NewAnalyzer(name, nil); err != nil {
			t.Errorf("NewAnalyzer(%q): %v", name, err)
		}
	}
	if _, err := NewAnalyzer(AnalyzerYOLO, nil); !errors.Is(err, ErrUnknownAnalyzer) {
		t.Errorf("yolo without detector: %v", err)
	}
	if _, err := NewAnalyzer("magic", nil); !errors.Is(err, ErrUnknownAnalyzer) {
		t.Errorf("unknown: %v", err)
	}
}

func TestRandomAnalyzerScenarios(t *testing.T) {
	a := NewRandomAnalyzer(42)
	want := map[string]bool{
		"store sign detected 2 feet away": false,
		"person detected 5 feet away":     false,
		"car detected 8 feet away":        true,
		"bicycle detected 10 feet away":   true,
	}
	for range 50 {
		v, err := a.Analyze(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		safe, ok := want[v.Message]
		if !ok {
			t.Fatalf("unexpected message %q", v.Message)
		}
		if v.IsSafe != safe {
			t.Errorf("%q: isSafe = %v, want %v", v.Message, v.IsSafe, safe)
		}
	}
}

type fakeDetector struct {
	dets []detection.Detection
	err  error
}

func (f fakeDetector) Detect([]byte) ([]detection.Detection, error) { return f.dets, f.err }
func (f fakeDetector) Close() error                                { return nil }

func TestDetectorAnalyzer(t *testing.T) {
	// A dog filling half the frame height is about 4.5 ft away.
	near := detection.Detection{X: 0.2, Y: 0.4, W: 0.4, H: 0.5, Confidence: 0.9, ClassID: 16, Class: "dog"}
	ignored := detection.Detection{X: 0, Y: 0, W: 0.05, H: 0.98, Confidence: 0.9, ClassID: 39, Class: "bottle"}

	a := NewDetectorAnalyzer(fakeDetector{dets: []detection.Detection{ignored, near}})
	v, err := a.Analyze(context.Background(), testJPEG)
	if err != nil {
		t.Fatal(err)
	}
	if v.Message != "dog detected 4 feet away" || v.IsSafe {
		t.Errorf("verdict = %+v", v)
	}

	empty := NewDetectorAnalyzer(fakeDetector{})
	if v, _ := empty.Analyze(context.Background(), testJPEG); v.Message != detection.ClearMessage || !v.IsSafe {
		t.Errorf("clear verdict = %+v", v)
	}

	failing := NewDetectorAnalyzer(fakeDetector{err: detection.ErrEmptyImage})
	if _, err := failing.Analyze(context.Background(), nil); !errors.Is(err, detection.ErrEmptyImage) {
		t.Errorf("err = %v", err)
	}
}

package sampler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/safevision/pkg/camera"
)

type fakeSource struct {
	mu    sync.Mutex
	err   error
	fps   float64
	calls int
}

func (f *fakeSource) Snapshot(quality int) (*camera.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return camera.NewFrame([]byte{0xFF, 0xD8}, 2, 2), nil
}

func (f *fakeSource) Framerate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fps
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type counter struct{ n atomic.Int64 }

func (c *counter) sink(*camera.Frame) { c.n.Add(1) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNoEmissionWhileInactive(t *testing.T) {
	src := &fakeSource{fps: 30}
	var c counter
	s := New(src, c.sink, WithInterval(5*time.Millisecond))
	defer s.Close()

	time.Sleep(50 * time.Millisecond)
	if got := c.n.Load(); got != 0 {
		t.Errorf("emitted %d frames while inactive", got)
	}
	if s.Active() {
		t.Error("new sampler should be inactive")
	}
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{fps: 30}
	var c counter
	s := New(src, c.sink, WithInterval(5*time.Millisecond))
	defer s.Close()

	s.Start()
	waitFor(t, func() bool { return c.n.Load() >= 3 })

	s.Stop()
	after := c.n.Load()
	time.Sleep(40 * time.Millisecond)
	if got := c.n.Load(); got != after {
		t.Errorf("emissions after Stop: %d -> %d", after, got)
	}
	if s.Active() {
		t.Error("sampler still active after Stop")
	}

	st := s.Stats()
	if st.Emitted != uint64(after) {
		t.Errorf("stats emitted = %d, want %d", st.Emitted, after)
	}
}

func TestFrameSequenceIncreases(t *testing.T) {
	src := &fakeSource{fps: 30}
	var mu sync.Mutex
	var seqs []uint64
	s := New(src, func(f *camera.Frame) {
		mu.Lock()
		seqs = append(seqs, f.Seq)
		mu.Unlock()
	}, WithInterval(2*time.Millisecond))

	s.Start()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seqs) >= 5
	})
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seqs); i++ {
		if seqs[i] != seqs[i-1]+1 {
			t.Fatalf("seqs not consecutive: %v", seqs)
		}
	}
}

func TestSkipsWhenNotReady(t *testing.T) {
	src := &fakeSource{fps: 30, err: camera.ErrNotReady}
	var c counter
	s := New(src, c.sink, WithInterval(2*time.Millisecond))
	defer s.Close()

	s.Start()
	waitFor(t, func() bool { return s.Stats().Skipped >= 3 })
	if c.n.Load() != 0 {
		t.Error("not-ready source must not emit")
	}

	src.setErr(nil)
	waitFor(t, func() bool { return c.n.Load() >= 1 })
}

func TestErrorsCountedAndSkipped(t *testing.T) {
	src := &fakeSource{fps: 30, err: errors.New("encode failed")}
	var c counter
	s := New(src, c.sink, WithInterval(2*time.Millisecond))
	defer s.Close()

	s.Start()
	waitFor(t, func() bool { return s.Stats().Errors >= 2 })
	if c.n.Load() != 0 {
		t.Error("failing source must not emit")
	}
	if !s.Active() {
		t.Error("errors must not stop sampling")
	}
}

func TestToggleAndClose(t *testing.T) {
	src := &fakeSource{fps: 30}
	var c counter
	s := New(src, c.sink, WithInterval(2*time.Millisecond))

	if !s.Toggle() {
		t.Fatal("first toggle should activate")
	}
	if s.Toggle() {
		t.Fatal("second toggle should deactivate")
	}

	s.SetActive(true)
	waitFor(t, func() bool { return c.n.Load() >= 1 })
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Closed samplers cannot restart.
	s.Start()
	if s.Active() {
		t.Error("Start after Close should be a no-op")
	}
	before := c.n.Load()
	time.Sleep(20 * time.Millisecond)
	if c.n.Load() != before {
		t.Error("emission after Close")
	}
}

func TestRefreshCadence(t *testing.T) {
	src := &fakeSource{fps: 200}
	s := New(src, nil, WithCadence(CadenceRefresh))
	if got := s.period(); got != 5*time.Millisecond {
		t.Errorf("period = %v, want 5ms", got)
	}

	src.fps = 0
	if got := s.period(); got != time.Second/30 {
		t.Errorf("period with unknown fps = %v", got)
	}

	s2 := New(src, nil)
	if got := s2.period(); got != DefaultInterval {
		t.Errorf("interval period = %v", got)
	}
}

func TestParseCadence(t *testing.T) {
	tests := []struct {
		in      string
		want    Cadence
		wantErr bool
	}{
		{"", CadenceInterval, false},
		{"interval", CadenceInterval, false},
		{"refresh", CadenceRefresh, false},
		{"frame", CadenceRefresh, false},
		{"hourly", CadenceInterval, true},
	}
	for _, tt := range tests {
		got, err := ParseCadence(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseCadence(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestWorksWithAcquirer(t *testing.T) {
	dev := camera.NewMockDevice()
	acq := camera.NewAcquirer(dev)
	defer acq.Close()

	var c counter
	s := New(acq, c.sink, WithInterval(2*time.Millisecond))
	defer s.Close()

	// No stream yet: every tick is skipped.
	s.Start()
	waitFor(t, func() bool { return s.Stats().Skipped >= 1 })
	if c.n.Load() != 0 {
		t.Fatal("emitted without a stream")
	}

	if err := acq.Acquire(t.Context()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return c.n.Load() >= 2 })
}

package camera

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAcquireGrantsPermission(t *testing.T) {
	dev := NewMockDevice()
	a := NewAcquirer(dev)
	defer a.Close()

	if a.Permission() != PermissionUnknown || a.Phase() != PhaseIdle {
		t.Fatalf("initial state = %s/%s", a.Permission(), a.Phase())
	}

	if err := a.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if a.Permission() != PermissionGranted {
		t.Errorf("permission = %s, want granted", a.Permission())
	}
	if a.Phase() != PhaseGranted {
		t.Errorf("phase = %s, want granted", a.Phase())
	}
	if a.Err() != nil {
		t.Errorf("Err() = %v, want nil", a.Err())
	}
	if a.Stream() == nil {
		t.Fatal("expected a held stream")
	}
}

func TestAcquireRequestsRearCameraHint(t *testing.T) {
	dev := NewMockDevice()
	a := NewAcquirer(dev)
	defer a.Close()

	if err := a.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	opens := dev.Opens()
	if len(opens) != 1 {
		t.Fatalf("opens = %d, want 1", len(opens))
	}
	c := opens[0]
	if c.FacingMode != FacingEnvironment || c.Width != 1280 || c.Height != 720 {
		t.Errorf("constraints = %+v", c)
	}
}

func TestAcquireDenied(t *testing.T) {
	dev := DeniedDevice(ErrDeviceUnavailable)
	a := NewAcquirer(dev)
	defer a.Close()

	err := a.Acquire(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsAccessError(err) {
		t.Errorf("expected AccessError, got %T", err)
	}
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected wrapped ErrDeviceUnavailable, got %v", err)
	}
	if err.Error() != DeniedMessage {
		t.Errorf("message = %q", err.Error())
	}

	if a.Permission() != PermissionDenied {
		t.Errorf("permission = %s, want denied", a.Permission())
	}
	if a.Phase() != PhaseDenied {
		t.Errorf("phase = %s, want denied", a.Phase())
	}
	if a.Stream() != nil {
		t.Error("no stream should be held after denial")
	}
	if a.State().Error != DeniedMessage {
		t.Errorf("state error = %q", a.State().Error)
	}
}

func TestReacquireReleasesPreviousStream(t *testing.T) {
	dev := NewMockDevice()
	a := NewAcquirer(dev)
	defer a.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := a.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		if live := dev.LiveStreams(); live != 1 {
			t.Fatalf("after acquire %d: live streams = %d, want 1", i, live)
		}
	}

	streams := dev.Streams()
	for i, s := range streams[:len(streams)-1] {
		if !s.Stopped() {
			t.Errorf("stream %d was not released before reacquire", i)
		}
	}
}

func TestCloseReleasesStream(t *testing.T) {
	dev := NewMockDevice()
	a := NewAcquirer(dev)

	if err := a.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := dev.Streams()[0]

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !s.Stopped() {
		t.Error("Close did not stop the stream")
	}
	if a.Stream() != nil {
		t.Error("stream still held after Close")
	}
	if a.Phase() != PhaseIdle {
		t.Errorf("phase = %s, want idle", a.Phase())
	}

	// Idempotent and final.
	if err := a.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if s.StopCount() != 1 {
		t.Errorf("stop count = %d, want 1", s.StopCount())
	}
	if err := a.Acquire(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire after Close = %v, want ErrClosed", err)
	}
}

func TestRetryFromDeniedGoesThroughPending(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	allow := false

	dev := &MockDevice{
		OpenFunc: func(ctx context.Context, c Constraints) (Stream, error) {
			mu.Lock()
			ok := allow
			mu.Unlock()
			if !ok {
				return nil, ErrDeviceUnavailable
			}
			<-gate
			return NewMockStream(1280, 720), nil
		},
	}
	a := NewAcquirer(dev)
	defer a.Close()

	if err := a.Acquire(context.Background()); err == nil {
		t.Fatal("expected first attempt to be denied")
	}

	var phases []Phase
	var phasesMu sync.Mutex
	a.Subscribe(func(s State) {
		phasesMu.Lock()
		phases = append(phases, s.Phase)
		phasesMu.Unlock()
	})

	mu.Lock()
	allow = true
	mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- a.Retry(context.Background()) }()

	deadline := time.After(time.Second)
	for a.Phase() != PhasePending {
		select {
		case <-deadline:
			t.Fatal("retry never entered pending")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	// Pending keeps the last decided permission.
	if p := a.Permission(); p != PermissionDenied {
		t.Errorf("permission while pending = %s, want denied", p)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if a.Permission() != PermissionGranted || a.Phase() != PhaseGranted {
		t.Errorf("after retry: %s/%s", a.Permission(), a.Phase())
	}

	phasesMu.Lock()
	defer phasesMu.Unlock()
	want := []Phase{PhasePending, PhaseGranted}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase[%d] = %s, want %s", i, phases[i], want[i])
		}
	}
}

func TestPermissionIsAlwaysSingleValued(t *testing.T) {
	var mu sync.Mutex
	fail := true
	dev := &MockDevice{
		OpenFunc: func(ctx context.Context, c Constraints) (Stream, error) {
			mu.Lock()
			defer mu.Unlock()
			fail = !fail
			if fail {
				return nil, ErrDeviceNotFound
			}
			return NewMockStream(320, 240), nil
		},
	}
	a := NewAcquirer(dev)
	defer a.Close()

	a.Subscribe(func(s State) {
		switch s.Permission {
		case PermissionUnknown, PermissionGranted, PermissionDenied:
		default:
			t.Errorf("invalid permission %d", s.Permission)
		}
		if s.Permission == PermissionGranted && s.Error != "" {
			t.Errorf("granted state carries error %q", s.Error)
		}
	})

	for i := 0; i < 6; i++ {
		err := a.Retry(context.Background())
		granted := err == nil
		if granted != (a.Permission() == PermissionGranted) {
			t.Errorf("attempt %d: err=%v permission=%s", i, err, a.Permission())
		}
	}
}

func TestCloseCancelsInFlightAcquire(t *testing.T) {
	started := make(chan struct{})
	dev := &MockDevice{
		OpenFunc: func(ctx context.Context, c Constraints) (Stream, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	a := NewAcquirer(dev)

	done := make(chan error, 1)
	go func() { done <- a.Acquire(context.Background()) }()
	<-started

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Acquire = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after Close")
	}
	if a.Stream() != nil {
		t.Error("stream held after Close")
	}
}

func TestReconfigure(t *testing.T) {
	dev := NewMockDevice()
	a := NewAcquirer(dev)
	defer a.Close()

	// Idle: constraints stored, nothing opened.
	selfie := SelfieConfig()
	if err := a.Reconfigure(context.Background(), selfie.Constraints()); err != nil {
		t.Fatal(err)
	}
	if len(dev.Opens()) != 0 {
		t.Fatal("reconfigure while idle should not open the device")
	}

	if err := a.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	hd := HD1080Config()
	if err := a.Reconfigure(context.Background(), hd.Constraints()); err != nil {
		t.Fatal(err)
	}

	opens := dev.Opens()
	if len(opens) != 2 {
		t.Fatalf("opens = %d, want 2", len(opens))
	}
	if opens[0].FacingMode != FacingUser || opens[0].Device != "1" {
		t.Errorf("first open = %+v", opens[0])
	}
	if opens[1].Width != 1920 {
		t.Errorf("second open = %+v", opens[1])
	}
	if dev.LiveStreams() != 1 {
		t.Errorf("live streams = %d, want 1", dev.LiveStreams())
	}
}

func TestReconfigureWhilePendingAppliesNewConstraints(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	dev := &MockDevice{
		OpenFunc: func(ctx context.Context, c Constraints) (Stream, error) {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			if first {
				close(started)
				<-release
			}
			return NewMockStream(c.Width, c.Height), nil
		},
	}
	a := NewAcquirer(dev)
	defer a.Close()

	acquired := make(chan error, 1)
	go func() { acquired <- a.Acquire(context.Background()) }()
	<-started
	if a.Phase() != PhasePending {
		t.Fatalf("phase = %s, want pending", a.Phase())
	}

	reconfigured := make(chan error, 1)
	hd := HD1080Config()
	go func() { reconfigured <- a.Reconfigure(context.Background(), hd.Constraints()) }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	for _, ch := range []chan error{acquired, reconfigured} {
		select {
		case err := <-ch:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(time.Second):
			t.Fatal("acquisition did not finish")
		}
	}

	opens := dev.Opens()
	if len(opens) != 2 || opens[1].Width != 1920 {
		t.Fatalf("opens = %+v, want a second open at 1920 wide", opens)
	}
	if w, _ := a.Stream().Size(); w != 1920 {
		t.Errorf("held stream width = %d, want 1920", w)
	}
	if dev.LiveStreams() != 1 {
		t.Errorf("live streams = %d, want 1", dev.LiveStreams())
	}
}

func TestAcquirerSnapshot(t *testing.T) {
	dev := NewMockDevice()
	a := NewAcquirer(dev)
	defer a.Close()

	if _, err := a.Snapshot(80); !errors.Is(err, ErrNotReady) {
		t.Errorf("Snapshot without stream = %v, want ErrNotReady", err)
	}

	if err := a.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	f, err := a.Snapshot(80)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if f.Width != 640 || f.Height != 480 || len(f.Data) == 0 {
		t.Errorf("frame = %dx%d (%d bytes)", f.Width, f.Height, len(f.Data))
	}
	if a.Framerate() != 30 {
		t.Errorf("Framerate = %v, want 30", a.Framerate())
	}
}

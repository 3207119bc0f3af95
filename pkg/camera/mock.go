package camera

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"
)

// MockDevice implements Device for testing.
type MockDevice struct {
	// OpenFunc is called when Open is invoked.
	// If nil, Open returns a ready 640x480 MockStream.
	OpenFunc func(ctx context.Context, c Constraints) (Stream, error)

	mu      sync.Mutex
	opens   []Constraints
	streams []*MockStream
}

// NewMockDevice creates a mock device that always grants access.
func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

// DeniedDevice returns a mock device whose Open always fails with err.
func DeniedDevice(err error) *MockDevice {
	return &MockDevice{
		OpenFunc: func(ctx context.Context, c Constraints) (Stream, error) {
			return nil, err
		},
	}
}

// Open records the call and returns a stream.
func (d *MockDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	d.mu.Lock()
	d.opens = append(d.opens, c)
	fn := d.OpenFunc
	d.mu.Unlock()

	if fn != nil {
		s, err := fn(ctx, c)
		if ms, ok := s.(*MockStream); ok && err == nil {
			d.track(ms)
		}
		return s, err
	}

	s := NewMockStream(640, 480)
	d.track(s)
	return s, nil
}

func (d *MockDevice) track(s *MockStream) {
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
}

// Opens returns the constraints of every Open call.
func (d *MockDevice) Opens() []Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Constraints, len(d.opens))
	copy(out, d.opens)
	return out
}

// Streams returns every MockStream handed out.
func (d *MockDevice) Streams() []*MockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*MockStream, len(d.streams))
	copy(out, d.streams)
	return out
}

// LiveStreams counts streams that have not been stopped.
func (d *MockDevice) LiveStreams() int {
	live := 0
	for _, s := range d.Streams() {
		if !s.Stopped() {
			live++
		}
	}
	return live
}

// MockStream implements Stream with a synthetic solid-color image.
type MockStream struct {
	// SnapshotFunc overrides Snapshot when set.
	SnapshotFunc func(quality int) (*Frame, error)

	mu        sync.Mutex
	width     int
	height    int
	fps       float64
	ready     bool
	stopped   bool
	stopCount int
	snapshots int
	seq       uint64
}

// NewMockStream creates a ready stream of the given size at 30 fps.
func NewMockStream(width, height int) *MockStream {
	return &MockStream{width: width, height: height, fps: 30, ready: true}
}

// SetReady toggles whether a frame is buffered.
func (s *MockStream) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

// SetFramerate overrides the reported FPS.
func (s *MockStream) SetFramerate(fps float64) {
	s.mu.Lock()
	s.fps = fps
	s.mu.Unlock()
}

// Snapshot returns a JPEG of a gray image, or ErrNotReady.
func (s *MockStream) Snapshot(quality int) (*Frame, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStreamStopped
	}
	if !s.ready {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	s.snapshots++
	s.seq++
	seq := s.seq
	w, h := s.width, s.height
	fn := s.SnapshotFunc
	s.mu.Unlock()

	if fn != nil {
		return fn(quality)
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.Gray{Y: byte(seq)})

	frame, err := EncodeImage(img, quality)
	if err != nil {
		return nil, err
	}
	frame.Seq = seq
	frame.CapturedAt = time.Now()
	return frame, nil
}

// Size returns the configured size.
func (s *MockStream) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Framerate returns the configured FPS.
func (s *MockStream) Framerate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

// Stop marks the stream stopped and counts the call.
func (s *MockStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.stopCount++
	return nil
}

// Stopped reports whether Stop was called.
func (s *MockStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// StopCount returns how many times Stop was called.
func (s *MockStream) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCount
}

// Snapshots returns how many frames were successfully taken.
func (s *MockStream) Snapshots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots
}

// Verify mocks implement the interfaces at compile time.
var (
	_ Device = (*MockDevice)(nil)
	_ Stream = (*MockStream)(nil)
	_ Device = (*GoCVDevice)(nil)
)

package camera

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// GoCVDevice opens cameras, video files and stream URLs through OpenCV.
type GoCVDevice struct {
	logger *slog.Logger
}

// NewGoCVDevice creates a device backed by gocv.VideoCapture.
func NewGoCVDevice(logger *slog.Logger) *GoCVDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoCVDevice{logger: logger.With("component", "camera.gocv")}
}

// Open starts capturing from c.Device and returns once the capture is open.
// The first frame arrives asynchronously; Snapshot reports ErrNotReady until then.
func (d *GoCVDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if idx, err := strconv.Atoi(c.Device); err == nil && runtime.GOOS == "linux" {
		node := fmt.Sprintf("/dev/video%d", idx)
		if _, err := os.Stat(node); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, node)
		}
	}

	vc, err := gocv.OpenVideoCapture(c.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s could not be opened", ErrDeviceUnavailable, c.Device)
	}

	// Hints only: drivers round to the nearest supported mode.
	if c.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	}
	if c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	if c.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(c.Framerate))
	}

	s := &gocvStream{
		vc:     vc,
		latest: gocv.NewMat(),
		fps:    vc.Get(gocv.VideoCaptureFPS),
		done:   make(chan struct{}),
		logger: d.logger.With("device", c.Device),
	}
	go s.readLoop()

	if err := ctx.Err(); err != nil {
		_ = s.Stop()
		return nil, err
	}
	return s, nil
}

// gocvStream keeps the latest decoded frame from a background reader.
type gocvStream struct {
	vc     *gocv.VideoCapture
	logger *slog.Logger

	mu     sync.Mutex
	latest gocv.Mat
	ready  bool
	width  int
	height int
	seq    uint64
	fps    float64

	stopped  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

// readLoop drains the capture so snapshots are never stale.
func (s *gocvStream) readLoop() {
	defer close(s.done)

	img := gocv.NewMat()
	defer img.Close()

	misses := 0
	for !s.stopped.Load() {
		if ok := s.vc.Read(&img); !ok || img.Empty() {
			misses++
			if misses == 100 {
				s.logger.Warn("camera delivering no frames")
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		misses = 0

		s.mu.Lock()
		img.CopyTo(&s.latest)
		s.width, s.height = img.Cols(), img.Rows()
		s.ready = true
		s.mu.Unlock()
	}
}

// Snapshot encodes the latest frame as JPEG.
func (s *gocvStream) Snapshot(quality int) (*Frame, error) {
	if s.stopped.Load() {
		return nil, ErrStreamStopped
	}
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready || s.latest.Empty() {
		return nil, ErrNotReady
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, s.latest, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	s.seq++
	frame := NewFrame(bytes.Clone(buf.GetBytes()), s.width, s.height)
	frame.Seq = s.seq
	return frame, nil
}

// Size returns the delivered resolution.
func (s *gocvStream) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Framerate returns the driver-reported FPS.
func (s *gocvStream) Framerate() float64 {
	return s.fps
}

// Stop ends the reader and releases the capture device.
func (s *gocvStream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		<-s.done

		s.mu.Lock()
		defer s.mu.Unlock()
		if cerr := s.vc.Close(); cerr != nil {
			err = fmt.Errorf("close capture: %w", cerr)
		}
		s.latest.Close()
		s.ready = false
	})
	return err
}

// Stopped reports whether Stop has been called.
func (s *gocvStream) Stopped() bool {
	return s.stopped.Load()
}

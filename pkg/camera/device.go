package camera

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for device and stream conditions.
var (
	// ErrDeviceNotFound is returned when the selected device does not exist.
	ErrDeviceNotFound = errors.New("camera: device not found")

	// ErrDeviceUnavailable is returned when the device exists but cannot be
	// opened (permission refused, already in use, driver failure).
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	// ErrNotReady is returned by Snapshot before the stream has buffered a frame.
	ErrNotReady = errors.New("camera: stream not ready")

	// ErrStreamStopped is returned by Snapshot after Stop.
	ErrStreamStopped = errors.New("camera: stream stopped")

	// ErrClosed is returned when acquiring after the acquirer was closed.
	ErrClosed = errors.New("camera: acquirer closed")
)

// DeniedMessage is the human-readable error shown when acquisition fails.
const DeniedMessage = "Camera access denied. Please enable camera access to use this feature."

// AccessError reports a failed acquisition. Its Error text is the
// user-facing message; Cause keeps the underlying device error.
type AccessError struct {
	Device string
	Cause  error
}

// Error implements the error interface.
func (e *AccessError) Error() string {
	return DeniedMessage
}

// Detail includes the device and cause, for logs.
func (e *AccessError) Detail() string {
	return fmt.Sprintf("camera %q: %v", e.Device, e.Cause)
}

// Unwrap returns the device error.
func (e *AccessError) Unwrap() error {
	return e.Cause
}

// Constraints describe the stream requested from a Device.
type Constraints struct {
	FacingMode string
	Width      int // preferred, not guaranteed
	Height     int // preferred, not guaranteed
	Framerate  int
	Device     string // index ("0") or file/URL
}

// Device opens camera streams.
type Device interface {
	// Open acquires the device and starts streaming.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live camera feed: the single handle to the hardware.
// Every stream that Open returns must eventually be stopped.
type Stream interface {
	// Snapshot copies the most recent buffered frame and encodes it as JPEG.
	// Returns ErrNotReady when nothing has been buffered yet.
	Snapshot(quality int) (*Frame, error)

	// Size returns the delivered resolution (0, 0 before the first frame).
	Size() (width, height int)

	// Framerate returns the delivered frames per second, or 0 if unknown.
	Framerate() float64

	// Stop releases the device. Safe to call more than once.
	Stop() error

	// Stopped reports whether Stop has been called.
	Stopped() bool
}

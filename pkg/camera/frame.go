package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/safevision/pkg/protocol"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 80

// Frame is one encoded still image taken from a stream.
// Frames are ephemeral: produced, dispatched once, then dropped.
type Frame struct {
	ID         string    // uuid, used to correlate verdicts
	Seq        uint64    // per-stream sequence number
	Data       []byte    // JPEG bytes
	Width      int       // pixels
	Height     int       // pixels
	CapturedAt time.Time // when the raster was copied
}

// NewFrame wraps JPEG bytes in a Frame with a fresh ID.
func NewFrame(data []byte, width, height int) *Frame {
	return &Frame{
		ID:         uuid.NewString(),
		Data:       data,
		Width:      width,
		Height:     height,
		CapturedAt: time.Now(),
	}
}

// DataURL renders the frame as a data:image/jpeg;base64 URL.
func (f *Frame) DataURL() string {
	return protocol.EncodeDataURL(protocol.MIMEJPEG, f.Data)
}

// Size returns the encoded size in bytes.
func (f *Frame) Size() int {
	return len(f.Data)
}

// EncodeImage encodes img as a JPEG frame.
func EncodeImage(img image.Image, quality int) (*Frame, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	b := img.Bounds()
	return NewFrame(buf.Bytes(), b.Dx(), b.Dy()), nil
}

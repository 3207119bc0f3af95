package detection

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ErrEmptyImage is returned when a frame decodes to nothing.
var ErrEmptyImage = errors.New("detection: empty image")

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath        string  `yaml:"model_path"`
	ConfidenceThresh float32 `yaml:"confidence"`
	NMSThresh        float32 `yaml:"nms"`
	InputWidth       int     `yaml:"input_width"`
	InputHeight      int     `yaml:"input_height"`
}

// DefaultYOLOConfig returns production defaults for YOLOv8n
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.45,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// YOLODetector runs a YOLOv8 ONNX model through OpenCV DNN.
type YOLODetector struct {
	net       gocv.Net
	config    YOLOConfig
	logger    *slog.Logger
	mu        sync.Mutex
	inputSize image.Point
}

// NewYOLO loads the model at cfg.ModelPath.
func NewYOLO(cfg YOLOConfig, logger *slog.Logger) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detection: model file: %w", err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("detection: failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	if logger == nil {
		logger = slog.Default()
	}
	return &YOLODetector{
		net:       net,
		config:    cfg,
		logger:    logger.With("component", "detection.yolo"),
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect finds objects in the JPEG image.
func (d *YOLODetector) Detect(jpeg []byte) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("detection: decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrEmptyImage
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Output is [1, 84, N]: 4 box values then 80 class scores per candidate.
	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("detection: unexpected output shape %v", dims)
	}
	flat := output.Reshape(1, dims[1])
	defer flat.Close()

	data, err := flat.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("detection: read output: %w", err)
	}

	dets := d.decode(data, dims[1], dims[2], float32(img.Cols()), float32(img.Rows()))
	if len(dets) > 0 {
		d.logger.Debug("objects detected", "count", len(dets))
	}
	return dets, nil
}

// decode turns the channel-major YOLOv8 tensor into detections and
// applies non-maximum suppression.
func (d *YOLODetector) decode(data []float32, channels, candidates int, imgW, imgH float32) []Detection {
	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	scaleX := imgW / float32(d.config.InputWidth)
	scaleY := imgH / float32(d.config.InputHeight)

	for i := 0; i < candidates; i++ {
		best, bestClass := float32(0), 0
		for c := 4; c < channels; c++ {
			if score := data[c*candidates+i]; score > best {
				best, bestClass = score, c-4
			}
		}
		if best < d.config.ConfidenceThresh {
			continue
		}

		cx, cy := data[i], data[candidates+i]
		w, h := data[2*candidates+i], data[3*candidates+i]
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*scaleX), int((cy-h/2)*scaleY),
			int((cx+w/2)*scaleX), int((cy+h/2)*scaleY),
		))
		confidences = append(confidences, best)
		classIDs = append(classIDs, bestClass)
	}
	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)

	dets := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		dets = append(dets, Detection{
			X:          float64(box.Min.X) / float64(imgW),
			Y:          float64(box.Min.Y) / float64(imgH),
			W:          float64(box.Dx()) / float64(imgW),
			H:          float64(box.Dy()) / float64(imgH),
			Confidence: float64(confidences[idx]),
			ClassID:    classIDs[idx],
			Class:      ClassName(classIDs[idx]),
		})
	}
	return dets
}

// Close releases the detector resources
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.Close()
	return nil
}

var _ Detector = (*YOLODetector)(nil)

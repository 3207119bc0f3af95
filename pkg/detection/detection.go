// Package detection finds obstacles in camera frames and turns them into
// spoken verdicts.
package detection

// Detection is one detected object. Coordinates are normalized to 0-1,
// with X, Y the top-left corner.
type Detection struct {
	X, Y       float64
	W, H       float64
	Confidence float64
	ClassID    int
	Class      string
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Detector finds objects in a JPEG image.
type Detector interface {
	Detect(jpeg []byte) ([]Detection, error)
	Close() error
}

// Filter returns the detections whose class is in classes. An empty set
// keeps everything.
func Filter(dets []Detection, classes map[string]bool) []Detection {
	if len(classes) == 0 {
		return dets
	}
	var out []Detection
	for _, d := range dets {
		if classes[d.Class] {
			out = append(out, d)
		}
	}
	return out
}

package detection

import (
	"fmt"
	"math"
	"sort"

	"github.com/teslashibe/safevision/pkg/protocol"
)

// Defaults for verdict assessment.
const (
	// DefaultSafeDistance is the distance in feet beyond which an obstacle
	// is considered safe.
	DefaultSafeDistance = 6.0

	// DefaultVerticalFOV is a typical phone rear camera in landscape.
	DefaultVerticalFOV = 48.0

	// ClearMessage is spoken when nothing relevant is in view.
	ClearMessage = "Path clear"
)

// Estimator converts box heights to distances with a pinhole model:
// distance = realHeight / (2 * boxHeight * tan(vfov/2)), where boxHeight
// is the fraction of the frame the object covers.
type Estimator struct {
	VerticalFOV  float64 // degrees
	SafeDistance float64 // feet
	Heights      map[string]float64
}

// DefaultEstimator returns an estimator with COCO class heights.
func DefaultEstimator() Estimator {
	return Estimator{
		VerticalFOV:  DefaultVerticalFOV,
		SafeDistance: DefaultSafeDistance,
		Heights:      ClassHeights,
	}
}

// Distance returns the estimated distance to d in feet.
func (e Estimator) Distance(d Detection) float64 {
	h := d.H
	if h <= 0 {
		return math.Inf(1)
	}
	real, ok := e.Heights[d.Class]
	if !ok {
		real = DefaultHeight
	}
	fov := e.VerticalFOV
	if fov <= 0 {
		fov = DefaultVerticalFOV
	}
	return real / (2 * h * math.Tan(fov*math.Pi/360))
}

// Obstacle is a detection with its estimated distance.
type Obstacle struct {
	Detection
	Feet float64
}

// Rank returns dets nearest first.
func (e Estimator) Rank(dets []Detection) []Obstacle {
	obs := make([]Obstacle, len(dets))
	for i, d := range dets {
		obs[i] = Obstacle{Detection: d, Feet: e.Distance(d)}
	}
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Feet < obs[j].Feet })
	return obs
}

// Assess turns detections into a verdict about the nearest obstacle.
func (e Estimator) Assess(dets []Detection) protocol.Verdict {
	ranked := e.Rank(dets)
	if len(ranked) == 0 {
		return protocol.Verdict{Message: ClearMessage, IsSafe: true}
	}
	nearest := ranked[0]
	feet := int(math.Round(nearest.Feet))
	if feet < 1 {
		feet = 1
	}
	return Phrase(nearest.Class, feet, e.safeDistance())
}

func (e Estimator) safeDistance() float64 {
	if e.SafeDistance <= 0 {
		return DefaultSafeDistance
	}
	return e.SafeDistance
}

// Phrase builds the verdict for an object at feet: safe only when it is
// farther than safe.
func Phrase(object string, feet int, safe float64) protocol.Verdict {
	return protocol.Verdict{
		Message: fmt.Sprintf("%s detected %d feet away", object, feet),
		IsSafe:  float64(feet) > safe,
	}
}

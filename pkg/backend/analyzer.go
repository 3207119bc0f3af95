// Package backend is a reference inference service implementing the
// POST /process-image contract, so the assistant can run end to end
// without the production model.
package backend

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/teslashibe/safevision/pkg/detection"
	"github.com/teslashibe/safevision/pkg/protocol"
)

// StaticMessage is returned by the static analyzer for every image.
const StaticMessage = "Test detection - Server received the image"

// Analyzer names accepted by NewAnalyzer.
const (
	AnalyzerStatic = "static"
	AnalyzerRandom = "random"
	AnalyzerYOLO   = "yolo"
)

// ErrUnknownAnalyzer is returned by NewAnalyzer for an unsupported name.
var ErrUnknownAnalyzer = errors.New("backend: unknown analyzer")

// Analyzer turns one JPEG frame into a verdict.
type Analyzer interface {
	Analyze(ctx context.Context, jpeg []byte) (protocol.Verdict, error)
	Name() string
}

// StaticAnalyzer always reports the same safe message.
type StaticAnalyzer struct{}

// Analyze ignores the image.
func (StaticAnalyzer) Analyze(context.Context, []byte) (protocol.Verdict, error) {
	return protocol.Verdict{Message: StaticMessage, IsSafe: true}, nil
}

// Name returns "static".
func (StaticAnalyzer) Name() string { return AnalyzerStatic }

// Scenario is one canned detection used by RandomAnalyzer.
type Scenario struct {
	Object string
	Feet   int
}

// DefaultScenarios are the demo detections; each object has a fixed distance.
var DefaultScenarios = []Scenario{
	{Object: "store sign", Feet: 2},
	{Object: "person", Feet: 5},
	{Object: "car", Feet: 8},
	{Object: "bicycle", Feet: 10},
}

// RandomAnalyzer picks a canned scenario per frame.
type RandomAnalyzer struct {
	Scenarios    []Scenario
	SafeDistance float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAnalyzer creates a RandomAnalyzer. A zero seed draws from the
// global source.
func NewRandomAnalyzer(seed uint64) *RandomAnalyzer {
	a := &RandomAnalyzer{
		Scenarios:    DefaultScenarios,
		SafeDistance: detection.DefaultSafeDistance,
	}
	if seed != 0 {
		a.rng = rand.New(rand.NewPCG(seed, seed))
	}
	return a
}

// Analyze ignores the image content.
func (a *RandomAnalyzer) Analyze(context.Context, []byte) (protocol.Verdict, error) {
	if len(a.Scenarios) == 0 {
		return protocol.Verdict{Message: detection.ClearMessage, IsSafe: true}, nil
	}
	s := a.Scenarios[a.pick(len(a.Scenarios))]
	return detection.Phrase(s.Object, s.Feet, a.SafeDistance), nil
}

func (a *RandomAnalyzer) pick(n int) int {
	if a.rng == nil {
		return rand.IntN(n)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.IntN(n)
}

// Name returns "random".
func (a *RandomAnalyzer) Name() string { return AnalyzerRandom }

// DetectorAnalyzer runs an object detector and reports the nearest obstacle.
type DetectorAnalyzer struct {
	Detector  detection.Detector
	Estimator detection.Estimator
	// Classes restricts which detections count; nil keeps all.
	Classes map[string]bool

	// detectors built on gocv are not safe for concurrent Forward calls
	mu sync.Mutex
}

// NewDetectorAnalyzer wraps d with the default estimator and obstacle classes.
func NewDetectorAnalyzer(d detection.Detector) *DetectorAnalyzer {
	return &DetectorAnalyzer{
		Detector:  d,
		Estimator: detection.DefaultEstimator(),
		Classes:   detection.ObstacleClasses,
	}
}

// Analyze detects objects and assesses the nearest one.
func (a *DetectorAnalyzer) Analyze(ctx context.Context, jpeg []byte) (protocol.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Verdict{}, err
	}

	a.mu.Lock()
	dets, err := a.Detector.Detect(jpeg)
	a.mu.Unlock()
	if err != nil {
		return protocol.Verdict{}, fmt.Errorf("detect: %w", err)
	}

	if a.Classes != nil {
		dets = detection.Filter(dets, a.Classes)
	}
	return a.Estimator.Assess(dets), nil
}

// Name returns "yolo".
func (a *DetectorAnalyzer) Name() string { return AnalyzerYOLO }

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, jpeg []byte) (protocol.Verdict, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, jpeg []byte) (protocol.Verdict, error) {
	return f(ctx, jpeg)
}

// Name returns "func".
func (f AnalyzerFunc) Name() string { return "func" }

// NewAnalyzer builds an analyzer by name. The yolo analyzer needs a
// detector; pass nil for the others.
func NewAnalyzer(name string, d detection.Detector) (Analyzer, error) {
	switch name {
	case "", AnalyzerStatic:
		return StaticAnalyzer{}, nil
	case AnalyzerRandom:
		return NewRandomAnalyzer(0), nil
	case AnalyzerYOLO:
		if d == nil {
			return nil, fmt.Errorf("%w: yolo requires a detector", ErrUnknownAnalyzer)
		}
		return NewDetectorAnalyzer(d), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAnalyzer, name)
	}
}

var (
	_ Analyzer = StaticAnalyzer{}
	_ Analyzer = (*RandomAnalyzer)(nil)
	_ Analyzer = (*DetectorAnalyzer)(nil)
	_ Analyzer = AnalyzerFunc(nil)
)

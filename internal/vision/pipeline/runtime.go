package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/obstacle.report/internal/alerts"
	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/monitoring"
	"github.com/banshee-data/obstacle.report/internal/timeutil"
	"github.com/banshee-data/obstacle.report/internal/vision"
	"github.com/banshee-data/obstacle.report/internal/vision/l1stereo"
	"github.com/banshee-data/obstacle.report/internal/vision/l2fusion"
	"github.com/banshee-data/obstacle.report/internal/vision/l3risk"
	"github.com/banshee-data/obstacle.report/internal/vision/l4ttc"
	"github.com/banshee-data/obstacle.report/internal/vision/l5decision"
)

// StereoSource delivers rectified frame pairs. NextFrame blocks until a
// frame is available, the source is exhausted (io.EOF), or ctx is done.
type StereoSource interface {
	NextFrame(ctx context.Context) (*vision.StereoFrame, error)
}

// DetectorOutput is one inference result: detections, their segmentation
// masks (parallel slice, zero Mask when the model produced none), and the
// drivable-surface mask when the segmentation head provides one.
type DetectorOutput struct {
	Detections []vision.Detection
	Masks      []vision.Mask
	Drivable   vision.Mask
}

// Detector abstracts the external detection/segmentation capability.
type Detector interface {
	Detect(ctx context.Context, frame *vision.GrayImage) (DetectorOutput, error)
}

// CycleRecorder persists per-cycle results. Optional.
type CycleRecorder interface {
	RecordCycle(result *CycleResult) error
}

// EngineOptions bundles the engine's dependencies. Passing dependencies
// through the constructor keeps wiring explicit and testing deterministic.
type EngineOptions struct {
	Config      config.EngineConfig
	Detector    Detector
	Coordinator *l5decision.Coordinator

	Alerts   alerts.Publisher // optional, nil logs only
	Recorder CycleRecorder    // optional
	Clock    timeutil.Clock   // optional, defaults to RealClock
}

// CycleResult is everything one perception cycle produced.
type CycleResult struct {
	Objects    []l2fusion.FusedObject
	Assessment l3risk.Assessment
	Road       l3risk.RoadFlags
	Directive  l5decision.BrakeDirective
	Alerts     []alerts.Alert

	Dropped    bool
	DropReason string
}

// Engine runs the perception-to-decision cycle. Depth computation, model
// inference and long-term road assessment run concurrently within a cycle
// and join before fusion; everything downstream of the join is sequential.
// A cycle that exceeds the configured budget is dropped and the previous
// brake directive stays in force.
type Engine struct {
	cfg   config.EngineConfig
	clock timeutil.Clock

	matcher     *l1stereo.Matcher
	fuser       *l2fusion.Fuser
	risk        *l3risk.Assessor
	road        *l3risk.RoadAssessor
	ttc         *l4ttc.Estimator
	coordinator *l5decision.Coordinator

	detector Detector
	alertOut alerts.Publisher
	recorder CycleRecorder

	stats Stats

	// mu guards the cross-cycle state below; the monitor reads
	// lastDirective from the HTTP goroutine while the cycle loop runs.
	mu            sync.Mutex
	droppedStreak int
	lastDirective l5decision.BrakeDirective
}

// NewEngine wires an Engine from its options.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Detector == nil {
		return nil, fmt.Errorf("pipeline: detector is required")
	}
	if opts.Coordinator == nil {
		return nil, fmt.Errorf("pipeline: coordinator is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	alertOut := opts.Alerts
	if alertOut == nil {
		alertOut = alerts.LogPublisher{}
	}

	return &Engine{
		cfg:         opts.Config,
		clock:       clock,
		matcher:     l1stereo.NewMatcher(opts.Config.Stereo, opts.Config.Camera),
		fuser:       l2fusion.NewFuser(opts.Config.Camera),
		risk:        l3risk.NewAssessor(opts.Config.Risk),
		road:        l3risk.NewRoadAssessor(opts.Config.RoadRisk),
		ttc:         l4ttc.NewEstimator(opts.Config.TTC),
		coordinator: opts.Coordinator,
		detector:    opts.Detector,
		alertOut:    alertOut,
		recorder:    opts.Recorder,
	}, nil
}

// SetEgoSpeed records the vehicle speed in m/s for the TTC decomposition.
func (e *Engine) SetEgoSpeed(speed float64) { e.ttc.SetEgoSpeed(speed) }

// Stats returns a snapshot of the engine's cycle statistics.
func (e *Engine) Stats() StatsSnapshot { return e.stats.Snapshot() }

// LastDirective returns the directive currently in force. Safe to call
// while the engine is cycling.
func (e *Engine) LastDirective() l5decision.BrakeDirective {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastDirective
}

type depthResult struct {
	depth *l1stereo.DepthMap
	err   error
}

type detectResult struct {
	out DetectorOutput
	err error
}

// ProcessFrame runs one cycle. A nil or invalid frame counts as "no new
// frame this cycle" and is handled like a dropped frame. ProcessFrame is not
// safe for concurrent use; the engine runs one cycle at a time.
func (e *Engine) ProcessFrame(ctx context.Context, frame *vision.StereoFrame) (*CycleResult, error) {
	start := e.clock.Now()

	if frame == nil || !frame.Valid() {
		return e.drop("no frame", start), nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	depthCh := make(chan depthResult, 1)
	detectCh := make(chan detectResult, 1)
	longTermCh := make(chan l3risk.LongTermFlags, 1)

	go func() {
		d, err := e.matcher.ComputeDepth(frame.Left, frame.Right)
		depthCh <- depthResult{depth: d, err: err}
	}()
	go func() {
		out, err := e.detector.Detect(ctx, frame.Left)
		detectCh <- detectResult{out: out, err: err}
	}()
	go func() {
		longTermCh <- e.road.AssessLongTerm(frame.Left)
	}()

	var (
		depth    depthResult
		detected detectResult
		longTerm l3risk.LongTermFlags
	)
	budget := e.clock.After(e.cfg.Pipeline.CycleBudget)
	for remaining := 3; remaining > 0; remaining-- {
		select {
		case depth = <-depthCh:
		case detected = <-detectCh:
		case longTerm = <-longTermCh:
		case <-budget:
			return e.drop("cycle budget exceeded", start), nil
		case <-ctx.Done():
			return e.drop("cancelled", start), ctx.Err()
		}
	}
	if depth.err != nil {
		return e.drop(fmt.Sprintf("depth: %v", depth.err), start), nil
	}
	if detected.err != nil {
		return e.drop(fmt.Sprintf("detect: %v", detected.err), start), nil
	}

	objects := e.fuser.Fuse(detected.out.Detections, detected.out.Masks, depth.depth)
	objects = l2fusion.FilterByDepth(objects, e.cfg.Fusion.MinDepth, e.cfg.Fusion.MaxDepth)
	objects = e.coordinator.FuseWithVision(objects, e.cfg.Radar.MaxAssociationDistance, start)

	estimates := e.ttc.Estimate(objects, frame.Timestamp)
	ttcWarning, ttcEmergency := false, false
	for _, est := range estimates {
		if e.ttc.Warning(est) {
			ttcWarning = true
		}
		if e.ttc.Emergency(est) {
			ttcEmergency = true
		}
	}

	assessment := e.risk.Assess(objects)
	road := l3risk.RoadFlags{
		LongTerm:  longTerm,
		ShortTerm: e.road.AssessShortTerm(detected.out.Drivable, detected.out.Detections, frame.Left.Width, frame.Left.Height),
	}

	directive, set := e.coordinator.Decide(l5decision.CycleInput{
		Assessment:   assessment,
		Road:         road,
		TTCWarning:   ttcWarning,
		TTCEmergency: ttcEmergency,
	}, start)

	e.mu.Lock()
	e.droppedStreak = 0
	e.lastDirective = directive
	e.mu.Unlock()

	result := &CycleResult{
		Objects:    objects,
		Assessment: assessment,
		Road:       road,
		Directive:  directive,
		Alerts:     set.Alerts(),
	}
	e.finish(result, start)
	return result, nil
}

// drop records a skipped cycle. The previous directive stays in force and,
// past the configured streak, a degraded-operation alert goes out on the
// same channel as hazard alerts.
func (e *Engine) drop(reason string, start time.Time) *CycleResult {
	e.mu.Lock()
	e.droppedStreak++
	streak := e.droppedStreak
	directive := e.lastDirective
	e.mu.Unlock()
	monitoring.Logf("pipeline: frame dropped (%s), streak %d", reason, streak)

	result := &CycleResult{
		Directive:  directive,
		Dropped:    true,
		DropReason: reason,
	}
	if streak >= e.cfg.Pipeline.DegradedAfterDrops {
		set := alerts.NewSet()
		set.Raise(alerts.DegradedOperation, reason, e.clock.Now())
		result.Alerts = set.Alerts()
	}
	e.finish(result, start)
	return result
}

func (e *Engine) finish(result *CycleResult, start time.Time) {
	elapsed := e.clock.Since(start)
	e.stats.observe(elapsed, result.Dropped)

	if len(result.Alerts) > 0 {
		if err := e.alertOut.Publish(result.Alerts); err != nil {
			monitoring.Logf("pipeline: alert publish failed: %v", err)
		}
	}
	if e.recorder != nil {
		if err := e.recorder.RecordCycle(result); err != nil {
			monitoring.Logf("pipeline: cycle record failed: %v", err)
		}
	}
}

// Run pulls frames from source until ctx is done or the source reports
// io.EOF. Source errors other than EOF count as missed frames, not fatal
// conditions.
func (e *Engine) Run(ctx context.Context, source StereoSource) error {
	for {
		frame, err := source.NextFrame(ctx)
		switch {
		case err == io.EOF:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			monitoring.Logf("pipeline: frame source: %v", err)
			frame = nil
		}

		if _, err := e.ProcessFrame(ctx, frame); err != nil {
			return err
		}
	}
}

package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/vision/pipeline"
)

// Recorder persists pipeline cycle results under one run ID. It implements
// the pipeline's CycleRecorder.
type Recorder struct {
	db    *DB
	runID string

	lastBraking bool
}

// NewRecorder registers a fresh run and returns its recorder.
func NewRecorder(db *DB, cfg config.EngineConfig) (*Recorder, error) {
	runID := uuid.NewString()
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.StartRun(runID, string(configJSON), time.Now()); err != nil {
		return nil, err
	}
	return &Recorder{db: db, runID: runID}, nil
}

// RunID returns the run identifier rows are recorded under.
func (r *Recorder) RunID() string { return r.runID }

// RecordCycle persists one cycle result, its tracked objects and any brake
// transition.
func (r *Recorder) RecordCycle(result *pipeline.CycleResult) error {
	now := time.Now()

	err := r.db.RecordCycleRow(CycleRow{
		RunID:       r.runID,
		ObjectCount: len(result.Objects),
		RiskLevel:   string(result.Assessment.RiskLevel),
		RiskScore:   result.Assessment.RiskScore,
		ShouldBrake: result.Assessment.ShouldBrake,
		Dropped:     result.Dropped,
		DropReason:  result.DropReason,
		Timestamp:   now,
	})
	if err != nil {
		return err
	}

	for _, obj := range result.Objects {
		err := r.db.RecordTrackPoint(TrackPointRow{
			RunID:      r.runID,
			TrackID:    obj.TrackID,
			Class:      obj.Class,
			Depth:      obj.Depth,
			TTC:        obj.TTC,
			TTCValid:   obj.TTCValid,
			RadarFused: obj.RadarFused,
			Timestamp:  now,
		})
		if err != nil {
			return err
		}
	}

	if result.Directive.ShouldBrake != r.lastBraking {
		r.lastBraking = result.Directive.ShouldBrake
		err := r.db.RecordBrakeEvent(BrakeEventRow{
			RunID:     r.runID,
			Engaged:   result.Directive.ShouldBrake,
			Level:     result.Directive.BrakeLevel,
			Reason:    result.Directive.Reason,
			Timestamp: now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Package l4ttc estimates time-to-collision for objects followed across
// frames. Range rate comes from a bounded per-track history of stereo
// distances; a track needs a minimum number of samples before its TTC is
// trusted. Distances are ego-relative, so the measured range rate already
// includes the vehicle's own motion.
package l4ttc

import (
	"time"

	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/vision/l2fusion"
)

// MaxPlausibleTTC caps the reported horizon. Beyond this the range rate is
// noise and the estimate is withheld.
const MaxPlausibleTTC = 100.0

// minRateWindow is the shortest history span (seconds) a range rate can be
// computed over without amplifying timestamp jitter.
const minRateWindow = 1e-3

// Estimate is the per-track TTC result for one cycle.
type Estimate struct {
	TrackID      int64
	TTC          float64 // seconds, meaningless unless Valid
	Valid        bool
	ClosingSpeed float64 // m/s toward the camera, positive = approaching
	ObjectSpeed  float64 // closing speed minus ego speed, informational
}

// Estimator owns the tracker and turns track histories into TTC values.
type Estimator struct {
	cfg     config.TTCConfig
	tracker *Tracker

	egoSpeed float64
}

// NewEstimator builds an Estimator with a fresh tracker.
func NewEstimator(cfg config.TTCConfig) *Estimator {
	return &Estimator{cfg: cfg, tracker: NewTracker(cfg)}
}

// SetEgoSpeed records the vehicle's own speed in m/s. It only affects the
// informational ObjectSpeed decomposition, never the TTC itself.
func (e *Estimator) SetEgoSpeed(speed float64) { e.egoSpeed = speed }

// Tracker exposes the underlying tracker for inspection.
func (e *Estimator) Tracker() *Tracker { return e.tracker }

// Estimate advances the tracker with this cycle's objects and fills each
// object's TTC fields in place. Objects with too little history, a receding
// or stationary range, or an implausibly long horizon get TTCValid=false.
// The returned estimates mirror the per-object results, one per input.
func (e *Estimator) Estimate(objects []l2fusion.FusedObject, now time.Time) []Estimate {
	e.tracker.Update(objects, now)

	estimates := make([]Estimate, len(objects))
	for i := range objects {
		est := e.estimateTrack(objects[i].TrackID)
		objects[i].TTC = est.TTC
		objects[i].TTCValid = est.Valid
		estimates[i] = est
	}
	return estimates
}

func (e *Estimator) estimateTrack(id int64) Estimate {
	est := Estimate{TrackID: id}

	track := e.tracker.Lookup(id)
	if track == nil || track.HistoryLen() < e.cfg.MinFramesForTTC {
		return est
	}

	oldest, newest := track.oldest(), track.newest()
	window := newest.Timestamp.Sub(oldest.Timestamp).Seconds()
	if window < minRateWindow {
		return est
	}

	// Positive when the range is shrinking.
	closing := (oldest.Distance - newest.Distance) / window
	est.ClosingSpeed = closing
	est.ObjectSpeed = closing - e.egoSpeed
	if closing <= 0 {
		return est
	}

	ttc := newest.Distance / closing
	if ttc > MaxPlausibleTTC {
		return est
	}

	est.TTC = ttc
	est.Valid = true
	return est
}

// TriggerAlert reports whether a TTC estimate crosses an alert threshold.
// The boundary itself triggers.
func TriggerAlert(est Estimate, threshold float64) bool {
	return est.Valid && est.TTC <= threshold
}

// Warning reports whether the estimate is inside the warning horizon.
func (e *Estimator) Warning(est Estimate) bool {
	return TriggerAlert(est, e.cfg.WarningThreshold)
}

// Emergency reports whether the estimate is inside the emergency horizon.
func (e *Estimator) Emergency(est Estimate) bool {
	return TriggerAlert(est, e.cfg.EmergencyThreshold)
}

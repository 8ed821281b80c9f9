// Package l3risk scores collision risk for fused objects and infers road
// hazards from single-frame visual cues. Both assessors are stateless; every
// cycle is evaluated fresh.
package l3risk

import (
	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/vision"
	"github.com/banshee-data/obstacle.report/internal/vision/l2fusion"
)

// Assessment is the per-cycle collision verdict. It reports the nearest
// qualifying object: one object in brake range forces a brake decision even
// if every other object is safe.
type Assessment struct {
	RiskLevel   l2fusion.RiskLevel
	RiskScore   float64 // [0, 1]
	Nearest     *l2fusion.FusedObject
	ShouldBrake bool
}

// Assessor scores objects against the four ordered distance thresholds.
type Assessor struct {
	cfg config.RiskConfig
}

// NewAssessor builds an Assessor from validated configuration.
func NewAssessor(cfg config.RiskConfig) *Assessor {
	return &Assessor{cfg: cfg}
}

// Score maps a distance to a risk level and score. The score is continuous
// and monotone non-increasing in distance:
//
//	d ≥ safe                 → 0.0
//	warning ≤ d < safe       → (0.0, 0.3]   level safe
//	danger ≤ d < warning     → (0.3, 0.8]   level warning
//	d < danger               → (0.8, 1.0]   level danger
func (a *Assessor) Score(distance float64) (l2fusion.RiskLevel, float64) {
	c := a.cfg
	switch {
	case distance >= c.SafeDistance:
		return l2fusion.RiskSafe, 0.0
	case distance >= c.WarningDistance:
		score := 0.3 * (c.SafeDistance - distance) / (c.SafeDistance - c.WarningDistance)
		return l2fusion.RiskSafe, score
	case distance >= c.DangerDistance:
		score := 0.3 + 0.5*(c.WarningDistance-distance)/(c.WarningDistance-c.DangerDistance)
		return l2fusion.RiskWarning, score
	default:
		score := 1.0 - 0.2*(distance/c.DangerDistance)
		if score > 1 {
			score = 1
		}
		return l2fusion.RiskDanger, score
	}
}

// Assess fills the risk fields of every object in place and returns the
// overall assessment for the nearest qualifying object. Callers must have
// passed the objects through the depth filter already; this layer assumes
// plausible geometry.
func (a *Assessor) Assess(objects []l2fusion.FusedObject) Assessment {
	if len(objects) == 0 {
		return Assessment{RiskLevel: l2fusion.RiskSafe}
	}

	nearest := 0
	for i := range objects {
		level, score := a.Score(objects[i].Depth)
		objects[i].RiskLevel = level
		objects[i].RiskScore = score
		if i > 0 && lessRisky(&objects[nearest], &objects[i]) {
			nearest = i
		}
	}

	obj := objects[nearest]
	shouldBrake := obj.Depth <= a.cfg.BrakeDistance || obj.RiskScore >= a.cfg.RiskThreshold

	return Assessment{
		RiskLevel:   obj.RiskLevel,
		RiskScore:   obj.RiskScore,
		Nearest:     &obj,
		ShouldBrake: shouldBrake,
	}
}

// lessRisky reports whether b should replace a as the nearest qualifying
// object. Ties on distance resolve by class priority (person > vehicle >
// generic obstacle), then keep the earlier object; deterministic either way.
func lessRisky(a, b *l2fusion.FusedObject) bool {
	if b.Depth != a.Depth {
		return b.Depth < a.Depth
	}
	return vision.ClassPriority(b.Class) > vision.ClassPriority(a.Class)
}

// Package l5decision is the arbitration layer: it merges collision risk,
// road hazards, TTC state and an optional radar stream into one brake
// directive and the cycle's alert set. Radar updates arrive asynchronously
// to the vision cycle and are buffered; fusion always associates against the
// most recent observation set without blocking either side.
package l5decision

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/obstacle.report/internal/alerts"
	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/vision"
	"github.com/banshee-data/obstacle.report/internal/vision/l2fusion"
	"github.com/banshee-data/obstacle.report/internal/vision/l3risk"
)

// Triggering reasons carried on the brake directive.
const (
	ReasonObstacle     = "obstacle_danger"
	ReasonTTCEmergency = "ttc_emergency"
	ReasonRoadHazard   = "road_hazard"
)

// RadarClass labels objects seen only by radar.
const RadarClass = "radar_target"

// Coordinator owns the radar buffer and the final brake arbitration.
type Coordinator struct {
	radarCfg config.RadarConfig
	policy   config.DecisionConfig
	brake    *BrakeInterface

	mu      sync.Mutex
	radar   []vision.RadarObservation
	radarAt time.Time
}

// NewCoordinator builds a Coordinator applying directives to brake.
func NewCoordinator(radarCfg config.RadarConfig, policy config.DecisionConfig, brake *BrakeInterface) *Coordinator {
	return &Coordinator{radarCfg: radarCfg, policy: policy, brake: brake}
}

// Brake returns the brake interface directives are applied to.
func (c *Coordinator) Brake() *BrakeInterface { return c.brake }

// UpdateRadar replaces the buffered observation set. Safe to call from the
// radar receiver goroutine at any rate.
func (c *Coordinator) UpdateRadar(observations []vision.RadarObservation, now time.Time) {
	buf := make([]vision.RadarObservation, len(observations))
	copy(buf, observations)

	c.mu.Lock()
	c.radar = buf
	c.radarAt = now
	c.mu.Unlock()
}

// RadarObservations returns the buffered set, or nil when it has gone stale.
func (c *Coordinator) RadarObservations(now time.Time) []vision.RadarObservation {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.radar) == 0 {
		return nil
	}
	if c.radarCfg.StaleAfter > 0 && now.Sub(c.radarAt) > c.radarCfg.StaleAfter {
		return nil
	}
	out := make([]vision.RadarObservation, len(c.radar))
	copy(out, c.radar)
	return out
}

// FuseWithVision associates the buffered radar set with the cycle's vision
// objects. Each vision object takes the nearest unclaimed radar target
// within maxAssociationDistance, measured in the camera ground plane from
// the target's (distance, azimuth); a match replaces the vision distance
// with the radar one and carries the radar velocity. Unclaimed radar
// targets are appended as vision-independent objects. Without radar the
// input passes through unchanged.
func (c *Coordinator) FuseWithVision(objects []l2fusion.FusedObject, maxAssociationDistance float64, now time.Time) []l2fusion.FusedObject {
	radar := c.RadarObservations(now)
	if len(radar) == 0 {
		return objects
	}

	type planar struct{ x, z float64 }
	targets := make([]planar, len(radar))
	for i, r := range radar {
		az := r.Azimuth * math.Pi / 180
		targets[i] = planar{x: r.Distance * math.Sin(az), z: r.Distance * math.Cos(az)}
	}

	fused := make([]l2fusion.FusedObject, 0, len(objects)+len(radar))
	claimed := make([]bool, len(radar))

	for _, obj := range objects {
		best, bestDist := -1, maxAssociationDistance
		for i, tgt := range targets {
			if claimed[i] {
				continue
			}
			dx := obj.Position.X - tgt.x
			dz := obj.Position.Z - tgt.z
			d := math.Sqrt(dx*dx + dz*dz)
			if d < bestDist {
				best, bestDist = i, d
			}
		}
		if best >= 0 {
			claimed[best] = true
			obj.Depth = radar[best].Distance
			obj.Position.Z = targets[best].z
			obj.Position.X = targets[best].x
			obj.RadarFused = true
			obj.RadarVelocity = radar[best].Velocity
		}
		fused = append(fused, obj)
	}

	for i, r := range radar {
		if claimed[i] {
			continue
		}
		fused = append(fused, l2fusion.FusedObject{
			Depth:         r.Distance,
			Position:      l2fusion.Position{X: targets[i].x, Z: targets[i].z},
			Class:         RadarClass,
			RadarFused:    true,
			RadarVelocity: r.Velocity,
		})
	}
	return fused
}

// CycleInput is everything Decide arbitrates over for one cycle.
type CycleInput struct {
	Assessment   l3risk.Assessment
	Road         l3risk.RoadFlags
	TTCWarning   bool
	TTCEmergency bool
}

// Decide merges the cycle's assessments into a brake directive and the alert
// set, applies the directive to the brake interface, and returns both.
// Braking triggers on any of: the collision assessor's brake recommendation,
// a TTC emergency, or a short-term road hazard when the road-brake policy is
// enabled.
func (c *Coordinator) Decide(in CycleInput, now time.Time) (BrakeDirective, *alerts.Set) {
	set := alerts.NewSet()

	switch in.Assessment.RiskLevel {
	case l2fusion.RiskDanger:
		set.Raise(alerts.ObstacleDanger, "", now)
	case l2fusion.RiskWarning:
		set.Raise(alerts.ObstacleWarning, "", now)
	}
	if in.TTCWarning || in.TTCEmergency {
		set.Raise(alerts.TTCWarning, "", now)
	}
	if in.Road.LongTerm.LowVisibility {
		set.Raise(alerts.LowVisibility, "", now)
	}
	if in.Road.LongTerm.WetRoad {
		set.Raise(alerts.WetRoad, "", now)
	}
	if in.Road.ShortTerm.Curve {
		set.Raise(alerts.Curve, "", now)
	}
	if in.Road.ShortTerm.NarrowRoad {
		set.Raise(alerts.NarrowRoad, "", now)
	}

	roadHazard := in.Road.ShortTerm.Curve || in.Road.ShortTerm.NarrowRoad

	var directive BrakeDirective
	switch {
	case in.Assessment.ShouldBrake:
		// Full braking in the danger zone, half when the score alone
		// crossed the threshold at warning range.
		level := 1.0
		if in.Assessment.RiskLevel == l2fusion.RiskWarning {
			level = 0.5
		}
		directive = BrakeDirective{ShouldBrake: true, BrakeLevel: level, Reason: ReasonObstacle}
	case in.TTCEmergency:
		directive = BrakeDirective{ShouldBrake: true, BrakeLevel: 1.0, Reason: ReasonTTCEmergency}
	case c.policy.RoadBrakeEnabled && roadHazard:
		directive = BrakeDirective{ShouldBrake: true, BrakeLevel: c.policy.RoadBrakeLevel, Reason: ReasonRoadHazard}
	}

	c.brake.Apply(directive)
	return directive, set
}

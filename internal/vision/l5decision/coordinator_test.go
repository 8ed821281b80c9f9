package l5decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/obstacle.report/internal/alerts"
	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/vision"
	"github.com/banshee-data/obstacle.report/internal/vision/l2fusion"
	"github.com/banshee-data/obstacle.report/internal/vision/l3risk"
)

func newCoordinator(policy config.DecisionConfig) *Coordinator {
	return NewCoordinator(config.Default().Radar, policy, NewBrakeInterface())
}

func visionObjAt(x, z float64) l2fusion.FusedObject {
	return l2fusion.FusedObject{
		Depth:    z,
		Position: l2fusion.Position{X: x, Z: z},
		Class:    "car",
	}
}

func TestFuseWithVisionPassThroughWithoutRadar(t *testing.T) {
	t.Parallel()

	c := newCoordinator(config.DecisionConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	objects := []l2fusion.FusedObject{visionObjAt(0, 4.0)}
	fused := c.FuseWithVision(objects, 1.0, now)

	require.Len(t, fused, 1)
	assert.Equal(t, 4.0, fused[0].Depth)
	assert.False(t, fused[0].RadarFused)
}

func TestFuseWithVisionMatchTakesRadarDistance(t *testing.T) {
	t.Parallel()

	c := newCoordinator(config.DecisionConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Straight ahead at 4.2 m per radar, 4.0 m per stereo.
	c.UpdateRadar([]vision.RadarObservation{
		{Distance: 4.2, Velocity: -1.5, Azimuth: 0, Timestamp: now},
	}, now)

	fused := c.FuseWithVision([]l2fusion.FusedObject{visionObjAt(0, 4.0)}, 1.0, now)

	require.Len(t, fused, 1)
	assert.True(t, fused[0].RadarFused)
	assert.Equal(t, 4.2, fused[0].Depth)
	assert.Equal(t, -1.5, fused[0].RadarVelocity)
	assert.Equal(t, "car", fused[0].Class)
}

func TestFuseWithVisionUnmatchedRadarAppended(t *testing.T) {
	t.Parallel()

	c := newCoordinator(config.DecisionConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// One radar target near the vision object, one far off to the side.
	c.UpdateRadar([]vision.RadarObservation{
		{Distance: 4.1, Azimuth: 0, Timestamp: now},
		{Distance: 8.0, Azimuth: 40, Timestamp: now},
	}, now)

	fused := c.FuseWithVision([]l2fusion.FusedObject{visionObjAt(0, 4.0)}, 1.0, now)

	require.Len(t, fused, 2)
	assert.True(t, fused[0].RadarFused)
	assert.Equal(t, 4.1, fused[0].Depth)

	assert.True(t, fused[1].RadarFused)
	assert.Equal(t, RadarClass, fused[1].Class)
	assert.Equal(t, 8.0, fused[1].Depth)
	assert.Greater(t, fused[1].Position.X, 0.0)
}

func TestFuseWithVisionUnmatchedVisionUnchanged(t *testing.T) {
	t.Parallel()

	c := newCoordinator(config.DecisionConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c.UpdateRadar([]vision.RadarObservation{
		{Distance: 9.0, Azimuth: 0, Timestamp: now},
	}, now)

	// Vision object 5 m from the radar target, outside the 1 m gate.
	fused := c.FuseWithVision([]l2fusion.FusedObject{visionObjAt(0, 4.0)}, 1.0, now)

	require.Len(t, fused, 2)
	assert.False(t, fused[0].RadarFused)
	assert.Equal(t, 4.0, fused[0].Depth)
	assert.Equal(t, RadarClass, fused[1].Class)
}

func TestFuseWithVisionClaimsEachRadarOnce(t *testing.T) {
	t.Parallel()

	c := newCoordinator(config.DecisionConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c.UpdateRadar([]vision.RadarObservation{
		{Distance: 4.1, Azimuth: 0, Timestamp: now},
	}, now)

	objects := []l2fusion.FusedObject{visionObjAt(0, 4.0), visionObjAt(0.2, 4.3)}
	fused := c.FuseWithVision(objects, 1.0, now)

	require.Len(t, fused, 2)
	radarBacked := 0
	for _, obj := range fused {
		if obj.RadarFused {
			radarBacked++
		}
	}
	assert.Equal(t, 1, radarBacked)
}

func TestRadarObservationsGoStale(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Radar
	cfg.StaleAfter = 500 * time.Millisecond
	c := NewCoordinator(cfg, config.DecisionConfig{}, NewBrakeInterface())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c.UpdateRadar([]vision.RadarObservation{{Distance: 4.0, Timestamp: now}}, now)

	assert.Len(t, c.RadarObservations(now.Add(400*time.Millisecond)), 1)
	assert.Nil(t, c.RadarObservations(now.Add(600*time.Millisecond)))

	// Stale radar means vision-only fusion.
	fused := c.FuseWithVision([]l2fusion.FusedObject{visionObjAt(0, 4.0)}, 1.0, now.Add(time.Second))
	require.Len(t, fused, 1)
	assert.False(t, fused[0].RadarFused)
}

func TestDecideObstacleBrakeWins(t *testing.T) {
	t.Parallel()

	c := newCoordinator(config.DecisionConfig{RoadBrakeEnabled: true, RoadBrakeLevel: 0.5})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	directive, set := c.Decide(CycleInput{
		Assessment:   l3risk.Assessment{RiskLevel: l2fusion.RiskDanger, RiskScore: 0.95, ShouldBrake: true},
		TTCEmergency: true,
	}, now)

	assert.True(t, directive.ShouldBrake)
	assert.Equal(t, 1.0, directive.BrakeLevel)
	assert.Equal(t, ReasonObstacle, directive.Reason)
	assert.True(t, set.Contains(alerts.ObstacleDanger))
	assert.True(t, c.Brake().Status().ShouldBrake)
}

func TestDecideWarningLevelBrakeIsPartial(t *testing.T) {
	t.Parallel()

	c := newCoordinator(config.DecisionConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	directive, set := c.Decide(CycleInput{
		Assessment: l3risk.Assessment{RiskLevel: l2fusion.RiskWarning, RiskScore: 0.85, ShouldBrake: true},
	}, now)

	assert.True(t, directive.ShouldBrake)
	assert.Equal(t, 0.5, directive.BrakeLevel)
	assert.Equal(t, ReasonObstacle, directive.Reason)
	assert.True(t, set.Contains(alerts.ObstacleWarning))
}

func TestDecideTTCEmergencyBrakes(t *testing.T) {
	t.Parallel()

	c := newCoordinator(config.DecisionConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	directive, set := c.Decide(CycleInput{
		Assessment:   l3risk.Assessment{RiskLevel: l2fusion.RiskWarning, RiskScore: 0.4},
		TTCEmergency: true,
	}, now)

	assert.True(t, directive.ShouldBrake)
	assert.Equal(t, ReasonTTCEmergency, directive.Reason)
	assert.True(t, set.Contains(alerts.TTCWarning))
	assert.True(t, set.Contains(alerts.ObstacleWarning))
}

func TestDecideRoadBrakePolicy(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hazard := CycleInput{
		Road: l3risk.RoadFlags{ShortTerm: l3risk.ShortTermFlags{Curve: true}},
	}

	t.Run("enabled policy brakes at configured level", func(t *testing.T) {
		t.Parallel()
		c := newCoordinator(config.DecisionConfig{RoadBrakeEnabled: true, RoadBrakeLevel: 0.5})
		directive, set := c.Decide(hazard, now)
		assert.True(t, directive.ShouldBrake)
		assert.Equal(t, 0.5, directive.BrakeLevel)
		assert.Equal(t, ReasonRoadHazard, directive.Reason)
		assert.True(t, set.Contains(alerts.Curve))
	})

	t.Run("disabled policy alerts without braking", func(t *testing.T) {
		t.Parallel()
		c := newCoordinator(config.DecisionConfig{})
		directive, set := c.Decide(hazard, now)
		assert.False(t, directive.ShouldBrake)
		assert.True(t, set.Contains(alerts.Curve))
	})
}

func TestDecideCollectsAllAlerts(t *testing.T) {
	t.Parallel()

	c := newCoordinator(config.DecisionConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, set := c.Decide(CycleInput{
		Assessment: l3risk.Assessment{RiskLevel: l2fusion.RiskDanger, ShouldBrake: true},
		Road: l3risk.RoadFlags{
			LongTerm:  l3risk.LongTermFlags{LowVisibility: true, WetRoad: true},
			ShortTerm: l3risk.ShortTermFlags{Curve: true, NarrowRoad: true},
		},
		TTCWarning: true,
	}, now)

	for _, id := range []string{
		alerts.ObstacleDanger, alerts.TTCWarning, alerts.LowVisibility,
		alerts.WetRoad, alerts.Curve, alerts.NarrowRoad,
	} {
		assert.True(t, set.Contains(id), id)
	}
}

func TestDecideClearDriveReleasesBrake(t *testing.T) {
	t.Parallel()

	c := newCoordinator(config.DecisionConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	transitions := 0
	require.NoError(t, c.Brake().RegisterHandler(func(BrakeDirective) { transitions++ }))

	c.Decide(CycleInput{Assessment: l3risk.Assessment{ShouldBrake: true, RiskLevel: l2fusion.RiskDanger}}, now)
	c.Decide(CycleInput{}, now.Add(100*time.Millisecond))

	assert.Equal(t, 2, transitions)
	assert.False(t, c.Brake().Status().ShouldBrake)
}

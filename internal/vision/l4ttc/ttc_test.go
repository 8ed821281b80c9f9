package l4ttc

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/vision/l2fusion"
)

// testCfg widens the association gate so test objects can move several
// metres per frame without dropping their track.
func testCfg() config.TTCConfig {
	cfg := config.Default().TTC
	cfg.AssociationMaxDistance = 5.0
	return cfg
}

func objAt(depth float64) l2fusion.FusedObject {
	return l2fusion.FusedObject{
		Depth:    depth,
		Position: l2fusion.Position{Z: depth},
		Class:    "car",
	}
}

func TestEstimateNeedsMinimumHistory(t *testing.T) {
	t.Parallel()

	e := NewEstimator(testCfg())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	objects := []l2fusion.FusedObject{objAt(8.0)}
	ests := e.Estimate(objects, now)

	require.Len(t, ests, 1)
	assert.False(t, ests[0].Valid)
	assert.False(t, objects[0].TTCValid)
}

func TestEstimateConstantClosingSpeed(t *testing.T) {
	t.Parallel()

	for _, speed := range []float64{1, 5, 20} {
		speed := speed
		t.Run(fmt.Sprintf("%.0f mps", speed), func(t *testing.T) {
			t.Parallel()

			e := NewEstimator(testCfg())
			start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			const dt = 100 * time.Millisecond

			depth := 50.0
			var last []Estimate
			for i := 0; i < 5; i++ {
				now := start.Add(time.Duration(i) * dt)
				objects := []l2fusion.FusedObject{objAt(depth)}
				last = e.Estimate(objects, now)
				depth -= speed * dt.Seconds()
			}

			require.Len(t, last, 1)
			require.True(t, last[0].Valid)
			// Newest depth was 50 - 4 steps of speed*0.1.
			want := (50.0 - 4*speed*0.1) / speed
			assert.InDelta(t, want, last[0].TTC, 1e-9)
			assert.InDelta(t, speed, last[0].ClosingSpeed, 1e-9)
		})
	}
}

// A 10 m object closing to 7 m over one second yields TTC 7/3 s.
func TestEstimateApproachOverOneSecond(t *testing.T) {
	t.Parallel()

	e := NewEstimator(testCfg())
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e.Estimate([]l2fusion.FusedObject{objAt(10.0)}, start)
	objects := []l2fusion.FusedObject{objAt(7.0)}
	ests := e.Estimate(objects, start.Add(time.Second))

	require.Len(t, ests, 1)
	require.True(t, ests[0].Valid)
	assert.InDelta(t, 7.0/3.0, ests[0].TTC, 1e-9)
	assert.True(t, objects[0].TTCValid)
	assert.InDelta(t, 7.0/3.0, objects[0].TTC, 1e-9)
}

func TestEstimateRecedingObjectInvalid(t *testing.T) {
	t.Parallel()

	e := NewEstimator(testCfg())
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e.Estimate([]l2fusion.FusedObject{objAt(5.0)}, start)
	ests := e.Estimate([]l2fusion.FusedObject{objAt(6.0)}, start.Add(time.Second))

	require.Len(t, ests, 1)
	assert.False(t, ests[0].Valid)
	assert.Negative(t, ests[0].ClosingSpeed)
}

func TestEstimateStationaryObjectInvalid(t *testing.T) {
	t.Parallel()

	e := NewEstimator(testCfg())
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e.Estimate([]l2fusion.FusedObject{objAt(5.0)}, start)
	ests := e.Estimate([]l2fusion.FusedObject{objAt(5.0)}, start.Add(time.Second))

	require.Len(t, ests, 1)
	assert.False(t, ests[0].Valid)
}

func TestEstimateImplausibleHorizonWithheld(t *testing.T) {
	t.Parallel()

	e := NewEstimator(testCfg())
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 1 cm/s at 9 m is a 900 s horizon.
	e.Estimate([]l2fusion.FusedObject{objAt(9.00)}, start)
	ests := e.Estimate([]l2fusion.FusedObject{objAt(8.99)}, start.Add(time.Second))

	require.Len(t, ests, 1)
	assert.False(t, ests[0].Valid)
	assert.Positive(t, ests[0].ClosingSpeed)
}

func TestEstimateZeroTimeWindowInvalid(t *testing.T) {
	t.Parallel()

	e := NewEstimator(testCfg())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e.Estimate([]l2fusion.FusedObject{objAt(5.0)}, now)
	ests := e.Estimate([]l2fusion.FusedObject{objAt(4.0)}, now)

	require.Len(t, ests, 1)
	assert.False(t, ests[0].Valid)
}

func TestEgoSpeedOnlyAffectsObjectSpeed(t *testing.T) {
	t.Parallel()

	run := func(egoSpeed float64) Estimate {
		e := NewEstimator(testCfg())
		e.SetEgoSpeed(egoSpeed)
		start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		e.Estimate([]l2fusion.FusedObject{objAt(10.0)}, start)
		ests := e.Estimate([]l2fusion.FusedObject{objAt(7.0)}, start.Add(time.Second))
		return ests[0]
	}

	still := run(0)
	moving := run(2.0)

	require.True(t, still.Valid)
	require.True(t, moving.Valid)
	assert.Equal(t, still.TTC, moving.TTC)
	assert.InDelta(t, 3.0, moving.ClosingSpeed, 1e-9)
	assert.InDelta(t, 1.0, moving.ObjectSpeed, 1e-9)
}

func TestTriggerAlertBoundary(t *testing.T) {
	t.Parallel()

	assert.True(t, TriggerAlert(Estimate{TTC: 3.0, Valid: true}, 3.0))
	assert.False(t, TriggerAlert(Estimate{TTC: 3.0 + 1e-9, Valid: true}, 3.0))
	assert.True(t, TriggerAlert(Estimate{TTC: 1.2, Valid: true}, 3.0))
	assert.False(t, TriggerAlert(Estimate{TTC: 1.2, Valid: false}, 3.0))
}

func TestWarningAndEmergencyThresholds(t *testing.T) {
	t.Parallel()

	e := NewEstimator(testCfg())

	est := Estimate{TTC: 2.0, Valid: true}
	assert.True(t, e.Warning(est))
	assert.False(t, e.Emergency(est))

	est.TTC = 1.0
	assert.True(t, e.Emergency(est))
}

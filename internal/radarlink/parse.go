package radarlink

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/obstacle.report/internal/vision"
)

// ParseLine decodes one radar report line of the form
// "distance,velocity,azimuth" with an optional trailing ",elevation".
// Distance in metres, velocity in m/s, angles in degrees.
func ParseLine(line string, now time.Time) (vision.RadarObservation, error) {
	var obs vision.RadarObservation

	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 3 || len(fields) > 4 {
		return obs, fmt.Errorf("radar line needs 3 or 4 fields, got %d: %q", len(fields), line)
	}

	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return obs, fmt.Errorf("radar field %d: %w", i, err)
		}
		vals[i] = v
	}
	if vals[0] < 0 {
		return obs, fmt.Errorf("radar distance must be >= 0, got %.2f", vals[0])
	}

	obs = vision.RadarObservation{
		Distance:  vals[0],
		Velocity:  vals[1],
		Azimuth:   vals[2],
		Timestamp: now,
	}
	if len(vals) == 4 {
		obs.Elevation = vals[3]
		obs.HasElevation = true
	}
	return obs, nil
}

// ParseBatch decodes a newline-separated block of radar lines, skipping
// blanks. One malformed line fails the whole batch.
func ParseBatch(payload string, now time.Time) ([]vision.RadarObservation, error) {
	var batch []vision.RadarObservation
	for _, line := range strings.Split(payload, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		obs, err := ParseLine(line, now)
		if err != nil {
			return nil, err
		}
		batch = append(batch, obs)
	}
	return batch, nil
}

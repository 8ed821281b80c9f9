package l3risk

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/vision"
)

// LongTermFlags are hazards of the environment: lighting and surface state.
type LongTermFlags struct {
	LowVisibility bool `json:"low_visibility"`
	WetRoad       bool `json:"wet_road"`
}

// ShortTermFlags are hazards of the road geometry immediately ahead.
type ShortTermFlags struct {
	Curve      bool `json:"curve"`
	NarrowRoad bool `json:"narrow_road"`
}

// RoadFlags is the full road-hazard result for one frame. There is no
// hysteresis at this layer; debouncing is a policy choice left to the
// decision coordinator.
type RoadFlags struct {
	LongTerm  LongTermFlags  `json:"long_term"`
	ShortTerm ShortTermFlags `json:"short_term"`
}

// RoadAssessor infers road hazards from coarse frame statistics.
type RoadAssessor struct {
	cfg config.RoadRiskConfig
}

// NewRoadAssessor builds a RoadAssessor from validated configuration.
func NewRoadAssessor(cfg config.RoadRiskConfig) *RoadAssessor {
	return &RoadAssessor{cfg: cfg}
}

// AssessLongTerm computes the lighting and surface flags from the raw frame.
// Low visibility triggers when mean luminance and contrast (luminance
// standard deviation) are both below their thresholds. Wet road triggers
// when the gradient-variance texture proxy over the lower road region falls
// below its threshold; a wet surface reflects more and textures less.
func (r *RoadAssessor) AssessLongTerm(frame *vision.GrayImage) LongTermFlags {
	if frame == nil || len(frame.Pix) == 0 {
		return LongTermFlags{}
	}

	var sum, sumSq float64
	for _, p := range frame.Pix {
		v := float64(p)
		sum += v
		sumSq += v * v
	}
	n := float64(len(frame.Pix))
	mean := sum / n
	contrast := math.Sqrt(math.Max(0, sumSq/n-mean*mean))

	lowVisibility := mean < r.cfg.LowVisibilityBrightnessThreshold &&
		contrast < r.cfg.LowVisibilityContrastThreshold

	return LongTermFlags{
		LowVisibility: lowVisibility,
		WetRoad:       r.wetRoad(frame),
	}
}

// wetRoad evaluates the texture proxy: Sobel gradient magnitude over the
// lower half of the frame, normalised variance = var/mean.
func (r *RoadAssessor) wetRoad(frame *vision.GrayImage) bool {
	w, h := frame.Width, frame.Height
	if w < 3 || h < 4 {
		return false
	}

	var gradSum, gradSumSq float64
	count := 0
	for y := h/2 + 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := float64(frame.At(x+1, y-1)) + 2*float64(frame.At(x+1, y)) + float64(frame.At(x+1, y+1)) -
				float64(frame.At(x-1, y-1)) - 2*float64(frame.At(x-1, y)) - float64(frame.At(x-1, y+1))
			gy := float64(frame.At(x-1, y+1)) + 2*float64(frame.At(x, y+1)) + float64(frame.At(x+1, y+1)) -
				float64(frame.At(x-1, y-1)) - 2*float64(frame.At(x, y-1)) - float64(frame.At(x+1, y-1))
			mag := math.Sqrt(gx*gx + gy*gy)
			gradSum += mag
			gradSumSq += mag * mag
			count++
		}
	}
	if count == 0 {
		return false
	}
	mean := gradSum / float64(count)
	variance := math.Max(0, gradSumSq/float64(count)-mean*mean)
	normalized := variance / (mean + 1e-6)

	return normalized < r.cfg.WetRoadTextureThreshold
}

// AssessShortTerm computes the road-geometry flags. Curve comes from the
// curvature of the drivable-surface centerline; narrow road from the
// non-drivable/drivable area ratio when a mask is available, otherwise from
// the obstacle bounding-box density over the frame.
func (r *RoadAssessor) AssessShortTerm(drivable vision.Mask, detections []vision.Detection, frameWidth, frameHeight int) ShortTermFlags {
	flags := ShortTermFlags{}

	if drivable.GrayImage != nil {
		flags.Curve = r.curveFromCenterline(drivable)
		flags.NarrowRoad = r.narrowFromMask(drivable)
	} else if frameWidth > 0 && frameHeight > 0 {
		flags.NarrowRoad = r.narrowFromDensity(detections, frameWidth, frameHeight)
	}

	return flags
}

// curveFromCenterline walks the lower half of the drivable mask row by row,
// takes the mean column of drivable pixels as the centerline, fits a line
// through it and uses the width-normalised RMS residual as the curvature
// proxy. A straight or gently converging road fits well; a curve leaves
// systematic residual.
func (r *RoadAssessor) curveFromCenterline(drivable vision.Mask) bool {
	w, h := drivable.Width, drivable.Height
	var rows, cols []float64
	for y := h / 2; y < h; y++ {
		sum, count := 0.0, 0
		for x := 0; x < w; x++ {
			if drivable.Has(x, y) {
				sum += float64(x)
				count++
			}
		}
		if count > 0 {
			rows = append(rows, float64(y))
			cols = append(cols, sum/float64(count))
		}
	}
	if len(rows) < 8 {
		return false // not enough drivable rows to say anything
	}

	alpha, beta := stat.LinearRegression(rows, cols, nil, false)
	var residSq float64
	for i, y := range rows {
		resid := cols[i] - (alpha + beta*y)
		residSq += resid * resid
	}
	rms := math.Sqrt(residSq / float64(len(rows)))

	return rms/float64(w) > r.cfg.CurveCurvatureThreshold
}

// narrowFromMask compares non-drivable to drivable area over the lower half.
func (r *RoadAssessor) narrowFromMask(drivable vision.Mask) bool {
	w, h := drivable.Width, drivable.Height
	drivableCount, total := 0, 0
	for y := h / 2; y < h; y++ {
		for x := 0; x < w; x++ {
			total++
			if drivable.Has(x, y) {
				drivableCount++
			}
		}
	}
	if drivableCount == 0 {
		return total > 0 // no drivable surface at all ahead
	}
	ratio := float64(total-drivableCount) / float64(drivableCount)
	return ratio > r.cfg.NarrowRoadDensityThreshold
}

// narrowFromDensity is the fallback without a segmentation mask: total
// detection box area as a fraction of the frame.
func (r *RoadAssessor) narrowFromDensity(detections []vision.Detection, frameWidth, frameHeight int) bool {
	var boxArea float64
	for _, det := range detections {
		boxArea += det.BBox.Area()
	}
	density := boxArea / (float64(frameWidth) * float64(frameHeight))
	return density > r.cfg.NarrowRoadDensityThreshold
}

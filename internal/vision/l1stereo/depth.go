// Package l1stereo computes metric depth from rectified stereo pairs. It is
// the first layer of the engine: a semi-global matcher produces a disparity
// field, triangulation converts it to a per-pixel depth map, and a masked
// median extractor serves the fusion layer above.
package l1stereo

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/vision"
)

// StereoMatchError reports a malformed input pair or a matching pass that
// produced no usable disparities. It is fatal for the cycle: the caller
// skips the frame and keeps the previous output in force.
type StereoMatchError struct {
	Reason string
}

func (e *StereoMatchError) Error() string {
	return fmt.Sprintf("stereo match failed: %s", e.Reason)
}

// NoValidDepthError reports a mask with zero valid depth samples. It is
// local to one object; callers fall back to the bounding-box centre sample.
type NoValidDepthError struct {
	Samples int
}

func (e *NoValidDepthError) Error() string {
	return fmt.Sprintf("no valid depth samples under mask (%d pixels examined)", e.Samples)
}

// DepthMap is the per-pixel metric distance for one cycle. Values <= 0 mark
// invalid pixels. Owned solely by the cycle that produced it.
type DepthMap struct {
	Width  int
	Height int
	Depth  []float32 // metres, row-major
}

// At returns the depth at (x, y), or 0 (invalid) out of bounds.
func (d *DepthMap) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return 0
	}
	return d.Depth[y*d.Width+x]
}

// ValidAt reports whether (x, y) holds a usable depth.
func (d *DepthMap) ValidAt(x, y int) bool {
	return d.At(x, y) > 0
}

// Matcher computes depth maps with a semi-global block matcher: per-pixel
// SAD costs over a bounded disparity range, smoothness aggregation along
// four scan directions with P1/P2 penalties, winner-take-all selection and a
// uniqueness check that invalidates ambiguous pixels.
type Matcher struct {
	stereo config.StereoConfig
	camera config.CameraConfig
}

// NewMatcher builds a Matcher from validated configuration.
func NewMatcher(stereo config.StereoConfig, camera config.CameraConfig) *Matcher {
	return &Matcher{stereo: stereo, camera: camera}
}

// invalidCost marks disparities that cannot be evaluated (window or shifted
// window out of bounds). Large enough that aggregation never selects it.
const invalidCost = float32(1e6)

// ComputeDepth matches the rectified pair and triangulates depth. Inputs
// must agree in size; a pass that yields zero valid disparities returns a
// StereoMatchError so the cycle is dropped rather than reasoned about.
func (m *Matcher) ComputeDepth(left, right *vision.GrayImage) (*DepthMap, error) {
	if left == nil || right == nil {
		return nil, &StereoMatchError{Reason: "nil input image"}
	}
	if left.Width != right.Width || left.Height != right.Height {
		return nil, &StereoMatchError{Reason: fmt.Sprintf(
			"size mismatch: left %dx%d right %dx%d",
			left.Width, left.Height, right.Width, right.Height)}
	}
	if left.Width == 0 || left.Height == 0 {
		return nil, &StereoMatchError{Reason: "empty input image"}
	}

	w, h := left.Width, left.Height
	maxD := m.stereo.MaxDisparity
	if maxD >= w {
		maxD = w - 1
	}

	cost := m.matchingCost(left, right, maxD)
	agg := m.aggregate(cost, w, h, maxD)
	disp := m.selectDisparity(agg, w, h, maxD)

	// Disparity → depth: depth = focal · baseline / disparity.
	fb := float32(m.camera.FocalLength * m.camera.Baseline)
	depth := &DepthMap{Width: w, Height: h, Depth: make([]float32, w*h)}
	valid := 0
	for i, d := range disp {
		if d > 0 {
			depth.Depth[i] = fb / d
			valid++
		}
	}
	if valid == 0 {
		return nil, &StereoMatchError{Reason: "matching produced no valid disparities"}
	}
	return depth, nil
}

// matchingCost fills the raw cost volume, indexed [y*w*maxD + x*maxD + d],
// with block SAD costs.
func (m *Matcher) matchingCost(left, right *vision.GrayImage, maxD int) []float32 {
	w, h := left.Width, left.Height
	r := m.stereo.BlockRadius
	cost := make([]float32, w*h*maxD)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := (y*w + x) * maxD
			if x < r || y < r || x >= w-r || y >= h-r {
				for d := 0; d < maxD; d++ {
					cost[base+d] = invalidCost
				}
				continue
			}
			for d := 0; d < maxD; d++ {
				if x-d < r {
					cost[base+d] = invalidCost
					continue
				}
				var sad float32
				for dy := -r; dy <= r; dy++ {
					rowL := (y + dy) * w
					for dx := -r; dx <= r; dx++ {
						lv := left.Pix[rowL+x+dx]
						rv := right.Pix[rowL+x-d+dx]
						if lv > rv {
							sad += float32(lv - rv)
						} else {
							sad += float32(rv - lv)
						}
					}
				}
				cost[base+d] = sad
			}
		}
	}
	return cost
}

// aggregate runs the semi-global smoothness pass along four directions
// (left→right, right→left, top→bottom, bottom→top) and sums the path costs.
func (m *Matcher) aggregate(cost []float32, w, h, maxD int) []float32 {
	agg := make([]float32, len(cost))
	dirs := [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	prev := make([]float32, maxD)
	cur := make([]float32, maxD)

	for _, dir := range dirs {
		dx, dy := dir[0], dir[1]
		// Walk every scanline in this direction.
		if dy == 0 {
			for y := 0; y < h; y++ {
				m.aggregatePath(cost, agg, prev, cur, w, maxD, pathIndices(w, h, dx, 0, y))
			}
		} else {
			for x := 0; x < w; x++ {
				m.aggregatePath(cost, agg, prev, cur, w, maxD, pathIndices(w, h, 0, dy, x))
			}
		}
	}
	return agg
}

// pathIndices returns the pixel index sequence for one scanline of the given
// direction. For horizontal paths line is the row; for vertical the column.
func pathIndices(w, h, dx, dy, line int) []int {
	var idx []int
	if dy == 0 {
		idx = make([]int, w)
		for i := 0; i < w; i++ {
			x := i
			if dx < 0 {
				x = w - 1 - i
			}
			idx[i] = line*w + x
		}
	} else {
		idx = make([]int, h)
		for i := 0; i < h; i++ {
			y := i
			if dy < 0 {
				y = h - 1 - i
			}
			idx[i] = y*w + line
		}
	}
	return idx
}

// aggregatePath applies the classic SGM recurrence along one path:
//
//	L(p,d) = C(p,d) + min(L(p-1,d), L(p-1,d±1)+P1, minAll+P2) − minAll
func (m *Matcher) aggregatePath(cost, agg, prev, cur []float32, w, maxD int, path []int) {
	p1 := float32(m.stereo.P1)
	p2 := float32(m.stereo.P2)

	for step, pix := range path {
		base := pix * maxD
		if step == 0 {
			copy(prev, cost[base:base+maxD])
			for d := 0; d < maxD; d++ {
				agg[base+d] += prev[d]
			}
			continue
		}
		minPrev := prev[0]
		for d := 1; d < maxD; d++ {
			if prev[d] < minPrev {
				minPrev = prev[d]
			}
		}
		for d := 0; d < maxD; d++ {
			best := prev[d]
			if d > 0 && prev[d-1]+p1 < best {
				best = prev[d-1] + p1
			}
			if d < maxD-1 && prev[d+1]+p1 < best {
				best = prev[d+1] + p1
			}
			if minPrev+p2 < best {
				best = minPrev + p2
			}
			cur[d] = cost[base+d] + best - minPrev
			agg[base+d] += cur[d]
		}
		prev, cur = cur, prev
	}
}

// selectDisparity picks the winner-take-all disparity per pixel and applies
// the uniqueness check: the runner-up (excluding immediate neighbours of the
// winner) must cost at least UniquenessRatio times the winner, otherwise the
// pixel is ambiguous and marked invalid. Disparity 0 is always invalid.
func (m *Matcher) selectDisparity(agg []float32, w, h, maxD int) []float32 {
	ratio := float32(m.stereo.UniquenessRatio)
	disp := make([]float32, w*h)

	for p := 0; p < w*h; p++ {
		base := p * maxD
		bestD, bestC := 0, agg[base]
		for d := 1; d < maxD; d++ {
			if agg[base+d] < bestC {
				bestC = agg[base+d]
				bestD = d
			}
		}
		if bestD <= 0 || bestC >= invalidCost {
			continue
		}
		secondC := invalidCost * 4
		for d := 0; d < maxD; d++ {
			if d >= bestD-1 && d <= bestD+1 {
				continue
			}
			if agg[base+d] < secondC {
				secondC = agg[base+d]
			}
		}
		if secondC < bestC*ratio {
			continue // ambiguous match
		}
		disp[p] = float32(bestD)
	}
	return disp
}

// ExtractMaskedDepth returns the median of the valid depth samples under the
// mask. The median is robust to the disparity speckle that survives the
// uniqueness check. Zero valid samples yield a NoValidDepthError and the
// caller falls back to the bounding-box centre sample.
func ExtractMaskedDepth(depth *DepthMap, mask vision.Mask) (float64, error) {
	examined := 0
	var samples []float64
	for y := 0; y < depth.Height; y++ {
		for x := 0; x < depth.Width; x++ {
			if !mask.Has(x, y) {
				continue
			}
			examined++
			if v := depth.At(x, y); v > 0 {
				samples = append(samples, float64(v))
			}
		}
	}
	if len(samples) == 0 {
		return 0, &NoValidDepthError{Samples: examined}
	}
	sort.Float64s(samples)
	return stat.Quantile(0.5, stat.Empirical, samples, nil), nil
}

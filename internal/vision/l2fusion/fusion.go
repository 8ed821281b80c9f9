// Package l2fusion combines detections, segmentation masks and the depth map
// into FusedObject records with ego-frame 3D positions. Identity across
// cycles is not assigned here; that is the tracking layer's job.
package l2fusion

import (
	"errors"

	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/monitoring"
	"github.com/banshee-data/obstacle.report/internal/vision"
	"github.com/banshee-data/obstacle.report/internal/vision/l1stereo"
)

// Position is a point in the ego (camera) frame: x right, y down, z forward,
// metres.
type Position struct {
	X, Y, Z float64
}

// RiskLevel is the discrete collision risk classification.
type RiskLevel string

const (
	RiskSafe    RiskLevel = "safe"
	RiskWarning RiskLevel = "warning"
	RiskDanger  RiskLevel = "danger"
)

// FusedObject is one obstacle for one cycle: a detection married to its
// mask-derived depth and 3D position. Risk and TTC fields are filled by the
// downstream layers. A fresh snapshot is produced every cycle; identity
// persists only through the tracker's association step.
type FusedObject struct {
	// Identity, assigned by track association; zero until then.
	TrackID int64

	// Geometry
	BBox     vision.BBox
	Depth    float64 // mask-median metres from the camera
	Position Position

	// Classification, from the external detector.
	Class      string
	Confidence float64

	// Risk fields, filled by the risk assessor.
	RiskLevel RiskLevel
	RiskScore float64

	// TTC fields, filled by the estimator. TTC is meaningless unless
	// TTCValid is set.
	TTC      float64
	TTCValid bool

	// Radar fields, filled when a radar observation was associated.
	RadarFused    bool
	RadarVelocity float64
}

// Fuser builds fused objects using the camera intrinsics supplied at init.
type Fuser struct {
	camera config.CameraConfig
}

// NewFuser returns a Fuser for the given camera model.
func NewFuser(camera config.CameraConfig) *Fuser {
	return &Fuser{camera: camera}
}

// Fuse produces one FusedObject per detection that has a usable depth.
// Depth comes from the masked median; when the mask has no valid samples
// (or no mask was supplied for the detection) the bounding-box centre pixel
// is sampled instead. Detections with no usable depth at all are dropped,
// never defaulted to zero.
func (f *Fuser) Fuse(detections []vision.Detection, masks []vision.Mask, depth *l1stereo.DepthMap) []FusedObject {
	objects := make([]FusedObject, 0, len(detections))

	for i, det := range detections {
		var mask vision.Mask
		if i < len(masks) && masks[i].GrayImage != nil {
			mask = masks[i]
		} else {
			mask = vision.MaskFromBBox(depth.Width, depth.Height, det.BBox)
		}

		d, err := l1stereo.ExtractMaskedDepth(depth, mask)
		if err != nil {
			var noDepth *l1stereo.NoValidDepthError
			if !errors.As(err, &noDepth) {
				monitoring.Logf("fusion: depth extraction failed for detection %d: %v", i, err)
				continue
			}
			// Fall back to the bbox centroid sample.
			cd := depth.At(int(det.BBox.CenterX()), int(det.BBox.CenterY()))
			if cd <= 0 {
				continue
			}
			d = float64(cd)
		}

		// The 3D anchor uses the bbox centre ray. Prefer the centre pixel's
		// own depth when valid; the mask median otherwise.
		cx, cy := det.BBox.CenterX(), det.BBox.CenterY()
		anchor := d
		if cd := depth.At(int(cx), int(cy)); cd > 0 {
			anchor = float64(cd)
		}

		objects = append(objects, FusedObject{
			BBox:       det.BBox,
			Depth:      d,
			Position:   f.pixelTo3D(cx, cy, anchor),
			Class:      det.Class,
			Confidence: det.Confidence,
			RiskLevel:  RiskSafe,
		})
	}
	return objects
}

// pixelTo3D back-projects a pixel at the given depth through the pinhole
// model. Ego frame: x right, y down, z forward.
func (f *Fuser) pixelTo3D(u, v, depth float64) Position {
	return Position{
		X: (u - f.camera.Cx) * depth / f.camera.Fx,
		Y: (v - f.camera.Cy) * depth / f.camera.Fy,
		Z: depth,
	}
}

// FilterByDepth keeps objects whose depth lies in [min, max], both ends
// inclusive. This is the single chokepoint that stops implausible geometry
// from reaching risk and TTC evaluation. Empty input yields empty output.
func FilterByDepth(objects []FusedObject, min, max float64) []FusedObject {
	filtered := make([]FusedObject, 0, len(objects))
	for _, obj := range objects {
		if obj.Depth >= min && obj.Depth <= max {
			filtered = append(filtered, obj)
		}
	}
	return filtered
}

// Package vision holds the shared data contracts between the engine and its
// external collaborators: rectified frames from the calibration layer,
// detections and masks from the model runtime, and radar observations from
// the ranging sensor. Layer packages under vision/ (l1stereo … l5decision)
// own the types they produce.
package vision

import "time"

// BBox is an axis-aligned box in image coordinates, (x1,y1) top-left
// inclusive, (x2,y2) bottom-right exclusive.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// CenterX returns the horizontal centre of the box.
func (b BBox) CenterX() float64 { return (b.X1 + b.X2) / 2 }

// CenterY returns the vertical centre of the box.
func (b BBox) CenterY() float64 { return (b.Y1 + b.Y2) / 2 }

// Width returns the box width, never negative.
func (b BBox) Width() float64 {
	if b.X2 < b.X1 {
		return 0
	}
	return b.X2 - b.X1
}

// Height returns the box height, never negative.
func (b BBox) Height() float64 {
	if b.Y2 < b.Y1 {
		return 0
	}
	return b.Y2 - b.Y1
}

// Area returns the box area in square pixels.
func (b BBox) Area() float64 { return b.Width() * b.Height() }

// Detection is one object reported by the external detector. Read-only to
// the engine.
type Detection struct {
	BBox       BBox
	Class      string
	Confidence float64
}

// Class priority for worst-case arbitration: vulnerable road users rank
// above vehicles, vehicles above generic obstacles.
var classPriority = map[string]int{
	"person":     3,
	"bicycle":    2,
	"motorbike":  2,
	"car":        1,
	"bus":        1,
	"truck":      1,
	"motorcycle": 2,
}

// ClassPriority returns the arbitration priority for a detector class label.
// Unknown labels rank lowest.
func ClassPriority(class string) int {
	return classPriority[class]
}

// RadarObservation is one target reported by the external ranging sensor.
// Distance in metres, velocity in m/s (positive = receding from the sensor),
// azimuth/elevation in degrees. Ephemeral per update.
type RadarObservation struct {
	Distance     float64
	Velocity     float64
	Azimuth      float64
	Elevation    float64
	HasElevation bool
	Timestamp    time.Time
}

// StereoFrame is one rectified pair from the capture collaborator. Both
// images share a timestamp and resolution; the engine consumes it once per
// cycle and does not retain it.
type StereoFrame struct {
	Left      *GrayImage
	Right     *GrayImage
	Timestamp time.Time
}

// Valid reports whether the pair is well-formed: both images present with
// matching, non-zero dimensions.
func (f *StereoFrame) Valid() bool {
	if f == nil || f.Left == nil || f.Right == nil {
		return false
	}
	return f.Left.Width == f.Right.Width &&
		f.Left.Height == f.Right.Height &&
		f.Left.Width > 0 && f.Left.Height > 0
}

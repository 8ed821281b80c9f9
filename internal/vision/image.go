package vision

// GrayImage is a single-channel 8-bit image in row-major order. The capture
// collaborator produces rectified pairs in this format; masks reuse it with
// any non-zero pixel meaning "set".
type GrayImage struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewGrayImage allocates a zeroed image.
func NewGrayImage(width, height int) *GrayImage {
	return &GrayImage{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// At returns the pixel at (x, y). Out-of-bounds reads return 0.
func (g *GrayImage) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0
	}
	return g.Pix[y*g.Width+x]
}

// Set writes the pixel at (x, y). Out-of-bounds writes are ignored.
func (g *GrayImage) Set(x, y int, v uint8) {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return
	}
	g.Pix[y*g.Width+x] = v
}

// Mask is a binary mask aligned to image coordinates. Threshold follows the
// detector convention: values above 128 are foreground.
type Mask struct {
	*GrayImage
}

// NewMask allocates an empty mask.
func NewMask(width, height int) Mask {
	return Mask{NewGrayImage(width, height)}
}

// Has reports whether (x, y) is foreground.
func (m Mask) Has(x, y int) bool {
	return m.GrayImage != nil && m.At(x, y) > 128
}

// MaskFromBBox builds a rectangular mask covering the detection box. Used as
// the fallback when the segmenter returned no mask for a detection.
func MaskFromBBox(width, height int, b BBox) Mask {
	m := NewMask(width, height)
	x1, y1 := int(b.X1), int(b.Y1)
	x2, y2 := int(b.X2), int(b.Y2)
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			m.Set(x, y, 255)
		}
	}
	return m
}

// FillRect paints a constant value over a rectangle, clipped to the image.
// Test fixtures and the dev-mode synthetic source use it to compose scenes.
func (g *GrayImage) FillRect(x1, y1, x2, y2 int, v uint8) {
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			g.Set(x, y, v)
		}
	}
}

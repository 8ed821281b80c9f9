package vision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBBoxGeometry(t *testing.T) {
	t.Parallel()

	b := BBox{X1: 10, Y1: 20, X2: 30, Y2: 60}
	assert.Equal(t, 20.0, b.CenterX())
	assert.Equal(t, 40.0, b.CenterY())
	assert.Equal(t, 20.0, b.Width())
	assert.Equal(t, 40.0, b.Height())
	assert.Equal(t, 800.0, b.Area())

	inverted := BBox{X1: 30, Y1: 60, X2: 10, Y2: 20}
	assert.Equal(t, 0.0, inverted.Width())
	assert.Equal(t, 0.0, inverted.Area())
}

func TestClassPriorityOrdering(t *testing.T) {
	t.Parallel()

	assert.Greater(t, ClassPriority("person"), ClassPriority("car"))
	assert.Greater(t, ClassPriority("car"), ClassPriority("fire hydrant"))
	assert.Equal(t, 0, ClassPriority("unknown"))
}

func TestStereoFrameValid(t *testing.T) {
	t.Parallel()

	frame := &StereoFrame{
		Left:      NewGrayImage(8, 6),
		Right:     NewGrayImage(8, 6),
		Timestamp: time.Now(),
	}
	assert.True(t, frame.Valid())

	frame.Right = NewGrayImage(8, 5)
	assert.False(t, frame.Valid())

	assert.False(t, (&StereoFrame{}).Valid())
	assert.False(t, (*StereoFrame)(nil).Valid())
}

func TestMaskFromBBox(t *testing.T) {
	t.Parallel()

	m := MaskFromBBox(10, 10, BBox{X1: 2, Y1: 3, X2: 5, Y2: 6})
	assert.True(t, m.Has(2, 3))
	assert.True(t, m.Has(4, 5))
	assert.False(t, m.Has(5, 6)) // exclusive bounds
	assert.False(t, m.Has(0, 0))
}

func TestGrayImageBounds(t *testing.T) {
	t.Parallel()

	g := NewGrayImage(4, 4)
	g.Set(1, 1, 200)
	assert.Equal(t, uint8(200), g.At(1, 1))

	// Out-of-bounds access must be safe.
	g.Set(-1, 0, 9)
	g.Set(4, 4, 9)
	assert.Equal(t, uint8(0), g.At(-1, 0))
	assert.Equal(t, uint8(0), g.At(99, 99))
}

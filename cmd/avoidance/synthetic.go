package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/vision"
	"github.com/banshee-data/obstacle.report/internal/vision/pipeline"
)

// syntheticScene emits stereo pairs of a textured wall with one obstacle
// that approaches, holds, and recedes in a loop, and doubles as the
// detector for that obstacle. It exists so the full engine can run on a
// desk with no cameras or model attached.
type syntheticScene struct {
	camera config.CameraConfig
	period time.Duration
	rng    *rand.Rand

	frame int
}

func newSyntheticScene(camera config.CameraConfig, period time.Duration) *syntheticScene {
	return &syntheticScene{
		camera: camera,
		period: period,
		rng:    rand.New(rand.NewSource(1)),
	}
}

// obstacleDisparity sweeps 4..20 px and back over 64 frames, moving the
// obstacle between roughly 1.5 m and 15 m for the default rig.
func (s *syntheticScene) obstacleDisparity() int {
	phase := s.frame % 64
	if phase < 32 {
		return 4 + phase/2
	}
	return 20 - (phase-32)/2
}

func (s *syntheticScene) obstacleBox() vision.BBox {
	w := float64(s.camera.ImageWidth)
	h := float64(s.camera.ImageHeight)
	return vision.BBox{X1: w * 0.4, Y1: h * 0.35, X2: w * 0.6, Y2: h * 0.75}
}

func (s *syntheticScene) NextFrame(ctx context.Context) (*vision.StereoFrame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.period):
	}

	w, h := s.camera.ImageWidth, s.camera.ImageHeight
	left := vision.NewGrayImage(w, h)
	right := vision.NewGrayImage(w, h)

	// Background wall at a fixed far disparity, obstacle patch at the
	// sweep disparity. Texture is random so block matching has gradients
	// to lock onto.
	const backgroundDisparity = 4
	disp := s.obstacleDisparity()
	box := s.obstacleBox()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(s.rng.Intn(256))
			d := backgroundDisparity
			if float64(x) >= box.X1 && float64(x) < box.X2 &&
				float64(y) >= box.Y1 && float64(y) < box.Y2 {
				d = disp
			}
			left.Set(x, y, v)
			right.Set(x-d, y, v)
		}
	}

	s.frame++
	return &vision.StereoFrame{Left: left, Right: right, Timestamp: time.Now()}, nil
}

func (s *syntheticScene) Detect(ctx context.Context, frame *vision.GrayImage) (pipeline.DetectorOutput, error) {
	box := s.obstacleBox()
	mask := vision.NewMask(frame.Width, frame.Height)
	for y := int(box.Y1); y < int(box.Y2); y++ {
		for x := int(box.X1); x < int(box.X2); x++ {
			mask.Set(x, y, 255)
		}
	}
	return pipeline.DetectorOutput{
		Detections: []vision.Detection{{BBox: box, Class: "car", Confidence: 0.9}},
		Masks:      []vision.Mask{mask},
	}, nil
}

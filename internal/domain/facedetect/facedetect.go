// Package facedetect turns raw SSD detector output into the single tracked face.
package facedetect

import (
	"context"
	"image"

	"github.com/okian/kiosk/internal/domain/model"
)

// Default detector tuning: small input and a moderate threshold favor speed.
const (
	DefaultInputSize = 224
	DefaultThreshold = 0.5
)

// Detector finds at most one face in a frame. A nil frame result with a nil
// error means no face.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (*model.DetectionFrame, error)
}

// Row is one SSD output row: [batch, class, confidence, x1, y1, x2, y2] with
// corners normalized to [0,1].
type Row [7]float32

// Select keeps the highest-confidence row at or above threshold, expresses its
// box in the model input space, then rescales it to the frame size.
func Select(rows []Row, threshold float64, inputSize int, frame model.Size) *model.DetectionFrame {
	best := -1
	for i, r := range rows {
		conf := float64(r[2])
		if conf < threshold {
			continue
		}
		if best < 0 || conf > float64(rows[best][2]) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}

	r := rows[best]
	in := float64(inputSize)
	x1, y1 := clamp01(r[3])*in, clamp01(r[4])*in
	x2, y2 := clamp01(r[5])*in, clamp01(r[6])*in
	box := model.Box{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
	if box.Empty() {
		return nil
	}

	return &model.DetectionFrame{
		Box:    box.Rescale(model.Size{Width: in, Height: in}, frame),
		Score:  float64(r[2]),
		Source: frame,
	}
}

func clamp01(v float32) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return float64(v)
	}
}

package model

import (
	"image"
	"math"
)

// Point is a landmark position in frame coordinates.
type Point struct {
	X, Y float64
}

// Size is a width/height pair.
type Size struct {
	Width, Height float64
}

// Empty reports whether either dimension is not positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Box is an axis-aligned bounding box.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Rescale maps the box from the from-space into the to-space.
func (b Box) Rescale(from, to Size) Box {
	if from.Empty() {
		return b
	}
	sx := to.Width / from.Width
	sy := to.Height / from.Height
	return Box{
		X:      b.X * sx,
		Y:      b.Y * sy,
		Width:  b.Width * sx,
		Height: b.Height * sy,
	}
}

// Rect converts the box to an integer rectangle clipped to bounds.
// The result is empty when the box lies outside bounds.
func (b Box) Rect(bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		int(math.Floor(b.X)),
		int(math.Floor(b.Y)),
		int(math.Ceil(b.X+b.Width)),
		int(math.Ceil(b.Y+b.Height)),
	)
	return r.Intersect(bounds)
}

// DetectionFrame is the result of one detector pass over one frame.
type DetectionFrame struct {
	Box       Box
	Landmarks []Point
	Score     float64
	Source    Size // frame size the box is expressed in
}

package imaging

import (
	"image"
	"image/color"

	"github.com/okian/kiosk/internal/domain/label"
	"github.com/okian/kiosk/internal/domain/model"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	strokeWidth  = 3
	labelPadding = 4
)

// Style is the color pair used for one label kind.
type Style struct {
	Stroke color.RGBA
	Text   color.RGBA
}

// Styles per label kind: blue while scanning, green once recognized, red for unknown or error.
var Styles = map[label.Kind]Style{ //nolint:gochecknoglobals // fixed palette
	label.Scanning:   {Stroke: color.RGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}, Text: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}},
	label.Recognized: {Stroke: color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff}, Text: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}},
	label.Unknown:    {Stroke: color.RGBA{R: 0xef, G: 0x44, B: 0x44, A: 0xff}, Text: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}},
}

// Overlay is a reusable transparent canvas the size of the displayed frame.
// It is not safe for concurrent use; the render loop owns it.
type Overlay struct {
	canvas *image.RGBA
	face   font.Face
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{face: basicfont.Face7x13}
}

// Render clears the canvas and, only when det is non-nil, draws the box and label.
// The returned image is owned by the overlay and reused on the next call.
func (o *Overlay) Render(size image.Point, det *model.DetectionFrame, state label.State) *image.RGBA {
	if o.canvas == nil || o.canvas.Bounds().Size() != size {
		o.canvas = image.NewRGBA(image.Rectangle{Max: size})
	} else {
		clear(o.canvas.Pix)
	}
	if det == nil {
		return o.canvas
	}

	r := det.Box.Rect(o.canvas.Bounds())
	if r.Empty() {
		return o.canvas
	}
	style, ok := Styles[state.Kind]
	if !ok {
		style = Styles[label.Scanning]
	}
	text := state.Text
	if text == "" {
		text = label.ScanningText
	}

	strokeRect(o.canvas, r, style.Stroke)
	o.drawLabel(r, text, style)
	return o.canvas
}

// Compose draws the overlay over a copy of frame.
func Compose(frame image.Image, overlay image.Image) *image.RGBA {
	b := frame.Bounds()
	out := image.NewRGBA(image.Rectangle{Max: b.Size()})
	draw.Draw(out, out.Bounds(), frame, b.Min, draw.Src)
	if overlay != nil {
		draw.Draw(out, out.Bounds(), overlay, overlay.Bounds().Min, draw.Over)
	}
	return out
}

func strokeRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+strokeWidth),
		image.Rect(r.Min.X, r.Max.Y-strokeWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+strokeWidth, r.Max.Y),
		image.Rect(r.Max.X-strokeWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// drawLabel puts text on a filled tab above the box, or inside it when the box touches the top edge.
func (o *Overlay) drawLabel(box image.Rectangle, text string, style Style) {
	d := &font.Drawer{Dst: o.canvas, Src: image.NewUniform(style.Text), Face: o.face}
	metrics := o.face.Metrics()
	textW := d.MeasureString(text).Ceil()
	textH := (metrics.Ascent + metrics.Descent).Ceil()

	tab := image.Rect(box.Min.X, box.Min.Y-textH-2*labelPadding, box.Min.X+textW+2*labelPadding, box.Min.Y)
	if tab.Min.Y < 0 {
		tab = tab.Add(image.Pt(0, box.Min.Y-tab.Min.Y))
	}
	tab = tab.Intersect(o.canvas.Bounds())
	if tab.Empty() {
		return
	}
	draw.Draw(o.canvas, tab, image.NewUniform(style.Stroke), image.Point{}, draw.Src)

	d.Dot = fixed.P(tab.Min.X+labelPadding, tab.Min.Y+labelPadding+metrics.Ascent.Ceil())
	d.DrawString(text)
}

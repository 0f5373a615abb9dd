// Package imaging crops faces out of frames and draws the detection overlay.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/okian/kiosk/internal/domain/model"
	"golang.org/x/image/draw"
)

// DefaultCropQuality is the JPEG quality used for recognition uploads.
const DefaultCropQuality = 90

// ErrEmptyCrop is returned when the box does not overlap the frame.
var ErrEmptyCrop = errors.New("imaging: empty crop region")

// Crop copies the region under box into a new RGBA image with its origin at 0,0.
// If maxSide > 0 and the crop is larger, it is scaled down keeping the aspect ratio.
func Crop(img image.Image, box model.Box, maxSide int) (*image.RGBA, error) {
	if img == nil {
		return nil, ErrEmptyCrop
	}
	r := box.Rect(img.Bounds())
	if r.Empty() {
		return nil, ErrEmptyCrop
	}

	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)

	w, h := r.Dx(), r.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return out, nil
	}

	var nw, nh int
	if w > h {
		nw = maxSide
		nh = max(1, h*maxSide/w)
	} else {
		nh = maxSide
		nw = max(1, w*maxSide/h)
	}
	scaled := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), out, out.Bounds(), draw.Over, nil)
	return scaled, nil
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// CropJPEG crops box out of img and encodes it for upload.
func CropJPEG(img image.Image, box model.Box, quality, maxSide int) ([]byte, error) {
	c, err := Crop(img, box, maxSide)
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(c, quality)
}

// Package camera opens local video devices through OpenCV.
package camera

import (
	"context"
	"fmt"
	"image"

	"github.com/okian/kiosk/internal/capture"
	"gocv.io/x/gocv"
)

// Opener opens V4L2/DirectShow/AVFoundation devices by index.
type Opener struct{}

// Open opens the device and applies the resolution hint. The hint is best
// effort; drivers pick the closest supported mode.
func (Opener) Open(ctx context.Context, req capture.Request) (capture.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(req.Index)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", req.Index, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("open camera %d: %w", req.Index, capture.ErrNoDevice)
	}
	if req.Width > 0 && req.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(req.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(req.Height))
	}

	return &device{vc: vc, mat: gocv.NewMat()}, nil
}

type device struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Read grabs the next frame and converts it to an image.Image.
func (d *device) Read() (image.Image, error) {
	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, capture.ErrNoFrame
	}
	img, err := d.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close releases the frame buffer and the device.
func (d *device) Close() error {
	if err := d.mat.Close(); err != nil {
		_ = d.vc.Close()
		return err
	}
	return d.vc.Close()
}

// Package detector runs an SSD face detection network through OpenCV DNN.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/okian/kiosk/internal/domain/facedetect"
	"github.com/okian/kiosk/internal/domain/model"
	"gocv.io/x/gocv"
)

// ErrModelUnavailable is returned when the network files cannot be loaded.
var ErrModelUnavailable = errors.New("face detection model unavailable")

// Option configures a Detector.
type Option func(*Detector)

// WithInputSize sets the square network input size.
func WithInputSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.inputSize = n
		}
	}
}

// WithThreshold sets the minimum face confidence.
func WithThreshold(t float64) Option {
	return func(d *Detector) {
		if t >= 0 && t <= 1 {
			d.threshold = t
		}
	}
}

// Detector implements facedetect.Detector for res10-style SSD face models.
type Detector struct {
	mu        sync.Mutex
	net       gocv.Net
	inputSize int
	threshold float64
}

// New loads the network from modelPath and configPath.
func New(modelPath, configPath string, opts ...Option) (*Detector, error) {
	for _, p := range []string{modelPath, configPath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to load network", ErrModelUnavailable)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		_ = net.Close()
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		_ = net.Close()
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	d := &Detector{
		net:       net,
		inputSize: facedetect.DefaultInputSize,
		threshold: facedetect.DefaultThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Detect runs one forward pass and returns the most confident face, if any.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*model.DetectionFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, nil
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("frame to mat: %w", err)
	}
	defer mat.Close()

	size := image.Pt(d.inputSize, d.inputSize)
	blob := gocv.BlobFromImage(mat, 1.0, size, gocv.NewScalar(104, 177, 123, 0), false, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	total := out.Total() / 7
	rows := make([]facedetect.Row, 0, total)
	flat := out.Reshape(1, total)
	defer flat.Close()
	for i := 0; i < flat.Rows(); i++ {
		var r facedetect.Row
		for j := range r {
			r[j] = flat.GetFloatAt(i, j)
		}
		rows = append(rows, r)
	}

	b := img.Bounds()
	frame := model.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
	return facedetect.Select(rows, d.threshold, d.inputSize, frame), nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

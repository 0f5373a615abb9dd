// Package capture owns the kiosk's single camera session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/kiosk/pkg/logger"
	"github.com/okian/kiosk/pkg/metrics"
)

// Request describes which device to open and the ideal resolution.
type Request struct {
	Index  int
	Width  int
	Height int
}

// Device is an open camera stream.
type Device interface {
	// Read returns the next frame. Implementations may reuse the returned image
	// on the next call.
	Read() (image.Image, error)
	// Close releases the device.
	Close() error
}

// Opener acquires a Device. Errors should wrap one of the device sentinels when
// the cause is known; Classify handles the rest.
type Opener interface {
	Open(ctx context.Context, req Request) (Device, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, req Request) (Device, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, req Request) (Device, error) { return f(ctx, req) }

// Status is the externally visible session state.
type Status struct {
	Streaming bool      `json:"streaming"`
	Device    int       `json:"device"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Since     time.Time `json:"since,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Manager holds at most one CaptureSession.
type Manager struct {
	mu        sync.Mutex
	opener    Opener
	req       Request
	dev       Device
	since     time.Time
	lastErr   error
	streaming atomic.Bool
	log       logger.Logger
}

// NewManager creates a manager that opens devices through opener.
func NewManager(opener Opener, req Request, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{opener: opener, req: req, log: log}
}

// Start opens the device. Starting an active session is a no-op.
// Failures are classified and not retried.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dev != nil {
		return nil
	}

	dev, err := m.opener.Open(ctx, m.req)
	if err == nil && dev == nil {
		err = fmt.Errorf("%w: opener returned no device", ErrDeviceUnknown)
	}
	if err != nil {
		err = Classify(err)
		m.lastErr = err
		metrics.RecordCaptureStart(KindOf(err))
		m.log.Warn(ctx, "camera start failed",
			logger.Int("device", m.req.Index),
			logger.String("kind", KindOf(err)),
			logger.Error(err))
		return err
	}

	m.dev = dev
	m.since = time.Now()
	m.lastErr = nil
	m.streaming.Store(true)
	metrics.RecordCaptureStart(KindOK)
	metrics.UpdateStreaming(true)
	m.log.Info(ctx, "camera started",
		logger.Int("device", m.req.Index),
		logger.Int("width", m.req.Width),
		logger.Int("height", m.req.Height))
	return nil
}

// Stop releases the device and marks the session inactive. Stopping an
// inactive session is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dev == nil {
		return nil
	}
	m.streaming.Store(false)
	err := m.dev.Close()
	m.dev = nil
	m.since = time.Time{}
	metrics.UpdateStreaming(false)
	if err != nil {
		m.log.Warn(context.Background(), "camera release failed", logger.Error(err))
		return fmt.Errorf("release camera: %w", err)
	}
	m.log.Info(context.Background(), "camera stopped", logger.Int("device", m.req.Index))
	return nil
}

// Streaming reports whether a session is active. It is lock-free.
func (m *Manager) Streaming() bool {
	return m.streaming.Load()
}

// Read returns the next frame of the active session. The device cannot be
// closed while a read is in progress.
func (m *Manager) Read() (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dev == nil {
		return nil, ErrNotStreaming
	}
	img, err := m.dev.Read()
	if err != nil {
		metrics.RecordFrameError()
		return nil, errors.Join(ErrNoFrame, err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrNoFrame
	}
	return img, nil
}

// Status returns the current session state and the last acquisition error.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		Streaming: m.dev != nil,
		Device:    m.req.Index,
		Width:     m.req.Width,
		Height:    m.req.Height,
		Since:     m.since,
	}
	if m.lastErr != nil {
		s.ErrorKind = KindOf(m.lastErr)
		s.Error = Message(m.lastErr)
	}
	return s
}

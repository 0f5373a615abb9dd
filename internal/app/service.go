// Package service runs the kiosk: the camera session, the render loop, the
// recognition dispatcher and the attendance check-in pipeline. It implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/kiosk/internal/adapters/http/live"
	checkinqueue "github.com/okian/kiosk/internal/adapters/mq/queue"
	"github.com/okian/kiosk/internal/adapters/mq/worker"
	"github.com/okian/kiosk/internal/capture"
	"github.com/okian/kiosk/internal/domain/dedupe"
	"github.com/okian/kiosk/internal/domain/detectionlog"
	"github.com/okian/kiosk/internal/domain/dispatch"
	"github.com/okian/kiosk/internal/domain/facedetect"
	"github.com/okian/kiosk/internal/domain/label"
	"github.com/okian/kiosk/internal/domain/model"
	"github.com/okian/kiosk/internal/domain/recognition"
	"github.com/okian/kiosk/internal/domain/roster"
	"github.com/okian/kiosk/internal/imaging"
	"github.com/okian/kiosk/pkg/logger"
	"github.com/okian/kiosk/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	defaultRenderInterval = time.Second / 30
	frameJPEGQuality      = 80
	rosterTimeout         = 10 * time.Second
)

// RosterSource supplies the read-only event and employee lists.
type RosterSource interface {
	Events(ctx context.Context) ([]model.Event, error)
	Employees(ctx context.Context) ([]model.Employee, error)
}

// Authorizer logs the kiosk in and returns an error when its role may not
// operate the camera.
type Authorizer interface {
	Login(ctx context.Context) (string, error)
}

// Broadcaster pushes typed updates to operator screens.
type Broadcaster interface {
	Broadcast(typ string, data any)
}

// Service wires the kiosk components together.
type Service struct {
	mu    sync.RWMutex
	camMu sync.Mutex

	// Collaborators
	opener       capture.Opener
	cameraReq    capture.Request
	detector     facedetect.Detector
	recognizer   recognition.Recognizer
	rosterSource RosterSource
	authorizer   Authorizer
	broadcaster  Broadcaster
	submitter    worker.Submitter
	deduper      dedupe.Deduper

	// Core components
	camera     *capture.Manager
	roster     *roster.Roster
	labels     *label.Board
	latch      *dispatch.Latch
	journal    *detectionlog.Log
	dispatcher *dispatch.Dispatcher
	overlay    *imaging.Overlay
	screen     atomic.Pointer[image.RGBA]
	queue      *checkinqueue.InMemoryQueue
	pool       *worker.Pool

	// Configuration
	renderInterval      time.Duration
	recognitionInterval time.Duration
	recognitionTimeout  time.Duration
	recognizedTTL       time.Duration
	unknownTTL          time.Duration
	logCapacity         int
	logExpiry           time.Duration
	checkinWorkers      int
	checkinQueueSize    int
	checkinRate         float64

	// State
	started       bool
	sessionCancel context.CancelFunc
	loops         sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service. Start must be called before the camera can run.
func New(opts ...Option) *Service {
	s := &Service{
		roster:              roster.New(),
		labels:              label.NewBoard(),
		latch:               &dispatch.Latch{},
		overlay:             imaging.NewOverlay(),
		renderInterval:      defaultRenderInterval,
		recognitionInterval: dispatch.DefaultInterval,
		recognitionTimeout:  dispatch.DefaultTimeout,
		recognizedTTL:       dispatch.DefaultRecognizedTTL,
		unknownTTL:          dispatch.DefaultUnknownTTL,
		logCapacity:         detectionlog.DefaultCapacity,
		logExpiry:           detectionlog.DefaultExpiry,
		checkinWorkers:      2,
		checkinQueueSize:    1024,
		checkinRate:         5,
		logger:              logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the pipeline and starts the check-in workers. The camera stays
// off until StartCamera.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.opener == nil || s.recognizer == nil {
		return ErrNotConfigured
	}

	s.logger.Info(ctx, "starting kiosk service...")

	s.camera = capture.NewManager(s.opener, s.cameraReq, s.logger.Named("capture"))
	s.journal = detectionlog.New(
		detectionlog.WithCapacity(s.logCapacity),
		detectionlog.WithExpiry(s.logExpiry),
		detectionlog.WithOnChange(func(entries []model.LogEntry) {
			s.broadcast(live.TypeLog, entries)
		}),
	)
	s.dispatcher = dispatch.New(s.recognizer, s.latch, s.camera,
		dispatch.WithJournal(s.journal),
		dispatch.WithLabels(s.labels),
		dispatch.WithNames(s.roster),
		dispatch.WithEvents(s.roster),
		dispatch.WithTimeout(s.recognitionTimeout),
		dispatch.WithLabelDurations(s.recognizedTTL, s.unknownTTL),
		dispatch.WithOnOutcome(s.handleOutcome),
		dispatch.WithLogger(s.logger.Named("dispatch")),
	)

	if s.submitter != nil {
		if s.deduper == nil {
			s.deduper = dedupe.NewInMemoryDeduper()
		}
		s.queue = checkinqueue.NewInMemoryQueue(checkinqueue.WithCapacity(s.checkinQueueSize))
		s.pool = worker.NewPool(s.checkinWorkers, s.queue, s.submitter,
			worker.WithLimiter(rate.NewLimiter(rate.Limit(s.checkinRate), 1)),
			worker.WithDeduper(s.deduper),
			worker.WithLogger(s.logger),
		)
		s.pool.Start(context.WithoutCancel(ctx))
	}

	s.loadRoster(ctx)

	s.started = true
	s.logger.Info(ctx, "kiosk service started",
		logger.Duration("render_interval", s.renderInterval),
		logger.Duration("recognition_interval", s.recognitionInterval),
		logger.Bool("checkins", s.pool != nil))
	return nil
}

// Stop releases the camera, cancels any in-flight recognition, drains the
// check-in queue and clears the detection log.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping kiosk service...")

	if err := s.stopCamera(ctx); err != nil {
		s.logger.Warn(ctx, "camera release failed", logger.Error(err))
	}
	s.dispatcher.Close()
	if s.pool != nil {
		_ = s.pool.Shutdown(ctx)
	}
	s.journal.Close()

	s.started = false
	s.logger.Info(ctx, "kiosk service stopped")
}

// StartCamera opens the camera and starts the render and dispatch loops.
// Starting an active camera is a no-op.
func (s *Service) StartCamera(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}

	s.camMu.Lock()
	defer s.camMu.Unlock()

	if s.sessionCancel != nil {
		return nil
	}
	if s.authorizer != nil {
		if _, err := s.authorizer.Login(ctx); err != nil {
			return fmt.Errorf("authorize camera: %w", err)
		}
	}
	if err := s.camera.Start(ctx); err != nil {
		s.broadcast(live.TypeCamera, s.camera.Status())
		return err
	}

	s.loadRoster(ctx)

	sessionCtx, cancel := context.WithCancel(context.Background())
	s.sessionCancel = cancel
	s.loops.Add(2)
	go func() {
		defer s.loops.Done()
		s.renderLoop(sessionCtx)
	}()
	go func() {
		defer s.loops.Done()
		s.dispatcher.Run(sessionCtx, s.recognitionInterval)
	}()

	s.broadcast(live.TypeCamera, s.camera.Status())
	return nil
}

// StopCamera stops both loops and releases the camera. A recognition call in
// flight is left to finish; its result is discarded.
func (s *Service) StopCamera(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil
	}
	return s.stopCamera(ctx)
}

func (s *Service) stopCamera(_ context.Context) error {
	s.camMu.Lock()
	defer s.camMu.Unlock()

	if s.sessionCancel != nil {
		s.sessionCancel()
		s.sessionCancel = nil
	}
	s.loops.Wait()

	s.dispatcher.Invalidate()
	err := s.camera.Stop()
	s.latch.Clear()
	s.labels.Clear()
	s.screen.Store(nil)
	s.broadcast(live.TypeCamera, s.camera.Status())
	return err
}

func (s *Service) renderLoop(ctx context.Context) {
	t := time.NewTicker(s.renderInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.renderTick(ctx)
		}
	}
}

// renderTick reads one frame, detects, latches and composes the screen.
// A missing frame skips the tick.
func (s *Service) renderTick(ctx context.Context) {
	frame, err := s.camera.Read()
	if err != nil {
		s.logger.Debug(ctx, "no frame this tick", logger.Error(err))
		return
	}
	metrics.RecordRenderTick()

	// The device may reuse its buffer, so everything downstream works on a copy.
	raw := imaging.Compose(frame, nil)
	det := s.detect(ctx, raw)
	s.latch.Store(raw, det)

	ov := s.overlay.Render(raw.Bounds().Size(), det, s.labels.Current())
	s.screen.Store(imaging.Compose(raw, ov))
}

func (s *Service) detect(ctx context.Context, frame image.Image) *model.DetectionFrame {
	if s.detector == nil {
		return nil
	}
	start := time.Now()
	det, err := s.detector.Detect(ctx, frame)
	metrics.RecordDetectionLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordDetectionError()
		s.logger.Debug(ctx, "detection failed", logger.Error(err))
		return nil
	}
	if det != nil {
		metrics.RecordFaceDetected()
	}
	return det
}

func (s *Service) handleOutcome(out model.RecognitionOutcome) {
	s.broadcast(live.TypeOutcome, out)

	if s.queue == nil || !out.Recognized || out.SubjectID == nil || out.EventID == "" {
		return
	}
	ctx := context.Background()
	c := model.CheckIn{
		ID:       uuid.NewString(),
		UserID:   *out.SubjectID,
		EventID:  out.EventID,
		Accuracy: out.Accuracy,
		At:       out.At,
	}
	if s.deduper.SeenAndRecord(ctx, c.Key()) {
		metrics.RecordCheckin("duplicate")
		return
	}
	if err := s.queue.Enqueue(ctx, c); err != nil {
		s.deduper.Unrecord(ctx, c.Key())
		s.logger.Warn(ctx, "check-in not queued", logger.String("key", c.Key()), logger.Error(err))
	}
}

func (s *Service) loadRoster(ctx context.Context) {
	if s.rosterSource == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, rosterTimeout)
	defer cancel()

	if events, err := s.rosterSource.Events(ctx); err != nil {
		s.logger.Warn(ctx, "event roster unavailable", logger.Error(err))
	} else {
		s.roster.SetEvents(events)
	}
	if employees, err := s.rosterSource.Employees(ctx); err != nil {
		s.logger.Warn(ctx, "employee roster unavailable", logger.Error(err))
	} else {
		s.roster.SetEmployees(employees)
	}
}

func (s *Service) broadcast(typ string, data any) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(typ, data)
	}
}

// CameraStatus returns the camera session state.
func (s *Service) CameraStatus() capture.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.camera == nil {
		return capture.Status{Device: s.cameraReq.Index, Width: s.cameraReq.Width, Height: s.cameraReq.Height}
	}
	return s.camera.Status()
}

// Streaming reports whether the camera session is active.
func (s *Service) Streaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.camera != nil && s.camera.Streaming()
}

// LatestJPEG returns the latest frame with the overlay drawn on it.
func (s *Service) LatestJPEG() ([]byte, error) {
	if !s.Streaming() {
		return nil, capture.ErrNotStreaming
	}
	img := s.screen.Load()
	if img == nil {
		return nil, capture.ErrNoFrame
	}
	return imaging.EncodeJPEG(img, frameJPEGQuality)
}

// Detections returns the detection log, newest first.
func (s *Service) Detections() []model.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.journal == nil {
		return nil
	}
	return s.journal.Snapshot()
}

// Label returns the label currently drawn over the face.
func (s *Service) Label() label.State {
	return s.labels.Current()
}

// Events returns the event roster.
func (s *Service) Events() []model.Event {
	return s.roster.Events()
}

// SelectEvent sets the event recognitions are checked into.
func (s *Service) SelectEvent(id string) error {
	if err := s.roster.Select(id); err != nil {
		return err
	}
	_, name, _ := s.roster.Selected()
	s.logger.Info(context.Background(), "event selected", logger.String("event_id", id), logger.String("event", name))
	return nil
}

// Selected returns the selected event.
func (s *Service) Selected() (id, name string, ok bool) {
	return s.roster.Selected()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eventID, eventName, selected := s.roster.Selected()
	stats := map[string]any{
		"started":        s.started,
		"streaming":      s.camera != nil && s.camera.Streaming(),
		"employees":      s.roster.EmployeeCount(),
		"events":         len(s.roster.Events()),
		"event_selected": selected,
		"event_id":       eventID,
		"event_name":     eventName,
		"label":          s.labels.Current().Text,
	}
	if s.started {
		stats["dispatch_state"] = s.dispatcher.State().String()
		stats["log_size"] = s.journal.Len()
	}
	if s.queue != nil {
		stats["checkin_queue"] = s.queue.Len()
		stats["checkin_workers"] = s.pool.Size()
		stats["checkin_dedupe_size"] = s.deduper.Size()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	stats["goroutines"] = runtime.NumGoroutine()
	return stats
}

// Recognize runs one image through the recognizer outside the camera loop.
func (s *Service) Recognize(ctx context.Context, jpeg []byte) (model.RecognitionOutcome, error) {
	if s.recognizer == nil {
		return model.RecognitionOutcome{}, ErrNotConfigured
	}
	if s.roster.EmployeeCount() == 0 {
		s.loadRoster(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.recognitionTimeout)
	defer cancel()
	resp, err := s.recognizer.Recognize(ctx, jpeg)
	if err != nil {
		return model.RecognitionOutcome{}, err
	}
	out := dispatch.NewOutcome(resp, s.roster)
	out.At = time.Now()
	out.EventID, out.EventName, _ = s.roster.Selected()
	return out, nil
}

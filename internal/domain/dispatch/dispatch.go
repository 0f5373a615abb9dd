// Package dispatch periodically sends the latest detected face to the remote
// recognizer and applies the answer to the label and the detection log.
package dispatch

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/kiosk/internal/domain/detectionlog"
	"github.com/okian/kiosk/internal/domain/label"
	"github.com/okian/kiosk/internal/domain/model"
	"github.com/okian/kiosk/internal/domain/recognition"
	"github.com/okian/kiosk/internal/imaging"
	"github.com/okian/kiosk/pkg/logger"
	"github.com/okian/kiosk/pkg/metrics"
)

// Defaults.
const (
	DefaultInterval      = 2 * time.Second
	DefaultTimeout       = 10 * time.Second
	DefaultRecognizedTTL = 3 * time.Second
	DefaultUnknownTTL    = time.Second
)

// Skip reasons returned by Tick.
const (
	SkipNotStreaming = "not_streaming"
	SkipNoDetection  = "no_detection"
	SkipNoEvent      = "no_event"
	SkipInFlight     = "in_flight"
	SkipCropFailed   = "crop_failed"
	SkipClosed       = "closed"
)

// Dispatch results reported to metrics.
const (
	resultResolved = "resolved"
	resultFailed   = "failed"
	resultDropped  = "dropped"
)

// State is the dispatcher's position in its cycle.
type State int32

// Dispatcher states.
const (
	Idle State = iota
	Capturing
	AwaitingResponse
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Capturing:
		return "capturing"
	case AwaitingResponse:
		return "awaiting_response"
	default:
		return "idle"
	}
}

// ResultKind tells a resolved call from a failed one.
type ResultKind int

// Result kinds.
const (
	Resolved ResultKind = iota
	Failed
)

// Result is what one recognition call produced.
type Result struct {
	Kind      ResultKind
	Response  recognition.Response
	Err       error
	Image     []byte
	EventID   string
	EventName string
	Latency   time.Duration
	At        time.Time
	epoch     uint64
}

// StreamState reports whether the camera session is active.
type StreamState interface {
	Streaming() bool
}

// Journal receives log entries for resolved calls.
type Journal interface {
	Append(entry model.LogEntry) model.LogEntry
}

// Labeler shows a transient label over the face.
type Labeler interface {
	Set(text string, kind label.Kind, ttl time.Duration)
}

// Names resolves a subject id to a display name.
type Names interface {
	NameOf(id string) string
}

// EventSource reports the selected event.
type EventSource interface {
	Selected() (id, name string, ok bool)
}

// Dispatcher runs at most one recognition call at a time.
type Dispatcher struct {
	rec    recognition.Recognizer
	latch  *Latch
	stream StreamState

	journal       Journal
	labels        Labeler
	names         Names
	events        EventSource
	crop          func(image.Image, model.Box) ([]byte, error)
	onOutcome     func(model.RecognitionOutcome)
	timeout       time.Duration
	recognizedTTL time.Duration
	unknownTTL    time.Duration
	log           logger.Logger

	state  atomic.Int32
	epoch  atomic.Uint64
	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add in Tick against Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a dispatcher reading detections from latch.
func New(rec recognition.Recognizer, latch *Latch, stream StreamState, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		rec:           rec,
		latch:         latch,
		stream:        stream,
		timeout:       DefaultTimeout,
		recognizedTTL: DefaultRecognizedTTL,
		unknownTTL:    DefaultUnknownTTL,
		log:           logger.Nop(),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.journal == nil {
		d.journal = detectionlog.New()
	}
	if d.labels == nil {
		d.labels = label.NewBoard()
	}
	if d.crop == nil {
		d.crop = func(img image.Image, box model.Box) ([]byte, error) {
			return imaging.CropJPEG(img, box, imaging.DefaultCropQuality, 0)
		}
	}
	return d
}

// State returns the current state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Run calls Tick every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.Tick(ctx)
		}
	}
}

// Tick attempts one dispatch. It returns ok when a call was started, otherwise
// the reason it was skipped. It never waits for the call.
func (d *Dispatcher) Tick(ctx context.Context) (reason string, ok bool) {
	if d.ctx.Err() != nil {
		return SkipClosed, false
	}
	if !d.stream.Streaming() {
		return d.skip(SkipNotStreaming)
	}
	snap := d.latch.Load()
	if snap == nil || snap.Detection == nil || snap.Frame == nil {
		return d.skip(SkipNoDetection)
	}
	eventID, eventName := "", model.UnknownEventName
	if d.events != nil {
		id, name, selected := d.events.Selected()
		if !selected {
			return d.skip(SkipNoEvent)
		}
		eventID, eventName = id, name
	}
	if !d.state.CompareAndSwap(int32(Idle), int32(Capturing)) {
		return d.skip(SkipInFlight)
	}

	jpeg, err := d.crop(snap.Frame, snap.Detection.Box)
	if err != nil {
		d.state.Store(int32(Idle))
		metrics.RecordCropError()
		d.log.Debug(ctx, "crop failed", logger.Error(err))
		return d.skip(SkipCropFailed)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.state.Store(int32(Idle))
		return d.skip(SkipClosed)
	}
	d.wg.Add(1)
	d.mu.Unlock()

	d.state.Store(int32(AwaitingResponse))
	metrics.UpdateInFlight(1)
	epoch := d.epoch.Load()

	go func() {
		defer d.wg.Done()
		d.apply(d.call(jpeg, eventID, eventName, epoch))
	}()
	return "", true
}

func (d *Dispatcher) skip(reason string) (string, bool) {
	metrics.RecordDispatchSkip(reason)
	return reason, false
}

func (d *Dispatcher) call(jpeg []byte, eventID, eventName string, epoch uint64) Result {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	start := time.Now()
	resp, err := d.rec.Recognize(ctx, jpeg)
	latency := time.Since(start)
	metrics.RecordRecognitionLatency(float64(latency.Milliseconds()))

	res := Result{
		Kind:      Resolved,
		Response:  resp,
		Image:     jpeg,
		EventID:   eventID,
		EventName: eventName,
		Latency:   latency,
		At:        time.Now(),
		epoch:     epoch,
	}
	if err != nil {
		res.Kind = Failed
		res.Err = err
	}
	return res
}

// apply is the single place results change the label and the log.
func (d *Dispatcher) apply(res Result) {
	defer func() {
		d.state.Store(int32(Idle))
		metrics.UpdateInFlight(0)
	}()

	ctx := context.Background()
	if d.ctx.Err() != nil || res.epoch != d.epoch.Load() || !d.stream.Streaming() {
		metrics.RecordDispatch(resultDropped)
		d.log.Debug(ctx, "recognition result dropped after stop", logger.Duration("latency", res.Latency))
		return
	}

	if res.Kind == Failed {
		metrics.RecordDispatch(resultFailed)
		metrics.RecordErrorByComponent("dispatch", failureKind(res.Err))
		d.labels.Set(label.ErrorText, label.Unknown, d.unknownTTL)
		d.log.Warn(ctx, "recognition failed",
			logger.Error(res.Err),
			logger.Duration("latency", res.Latency))
		return
	}

	out := d.outcome(res)
	metrics.RecordDispatch(resultResolved)
	d.journal.Append(model.LogEntry{
		EmployeeName: out.Label,
		Accuracy:     out.Accuracy,
		Image:        out.Image,
		Timestamp:    out.At,
		Recognized:   out.Recognized,
		EventName:    out.EventName,
	})
	if out.Recognized {
		d.labels.Set(out.Label, label.Recognized, d.recognizedTTL)
	} else {
		d.labels.Set(model.UnknownName, label.Unknown, d.unknownTTL)
	}
	d.log.Info(ctx, "recognition resolved",
		logger.Bool("recognized", out.Recognized),
		logger.String("label", out.Label),
		logger.Float64("accuracy", out.Accuracy),
		logger.Duration("latency", res.Latency))

	if d.onOutcome != nil {
		d.onOutcome(out)
	}
}

func (d *Dispatcher) outcome(res Result) model.RecognitionOutcome {
	out := NewOutcome(res.Response, d.names)
	out.EventID = res.EventID
	out.EventName = res.EventName
	out.Image = res.Image
	out.At = res.At
	return out
}

// NewOutcome interprets a recognition response. A matched id is shown by its
// roster name, or a generic name when names is nil or lacks the id.
func NewOutcome(resp recognition.Response, names Names) model.RecognitionOutcome {
	out := model.RecognitionOutcome{
		Recognized: resp.Matched(),
		Accuracy:   resp.Percent(),
		Label:      model.UnknownName,
		Message:    resp.Message,
		EventName:  model.UnknownEventName,
	}
	if out.Recognized {
		id := *resp.UserID
		out.SubjectID = &id
		out.Label = model.RegisteredUserName
		if names != nil {
			out.Label = names.NameOf(id)
		}
	}
	return out
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, recognition.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, recognition.ErrStatus):
		return "status"
	case errors.Is(err, recognition.ErrMalformed):
		return "malformed"
	case errors.Is(err, recognition.ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}

// Invalidate makes the result of any in-flight call stale. Call it when the
// camera session stops so a later session never shows an earlier answer.
func (d *Dispatcher) Invalidate() {
	d.epoch.Add(1)
}

// Wait blocks until no call is in flight.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels any in-flight call and waits for it. Later ticks are skipped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cancel()
	d.mu.Unlock()
	d.wg.Wait()
}

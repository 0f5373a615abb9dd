package dispatch

import (
	"image"
	"time"

	"github.com/okian/kiosk/internal/domain/model"
	"github.com/okian/kiosk/pkg/logger"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each recognition call.
func WithTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithLabelDurations sets how long recognized and unknown labels stay up.
func WithLabelDurations(recognized, unknown time.Duration) Option {
	return func(x *Dispatcher) {
		if recognized > 0 {
			x.recognizedTTL = recognized
		}
		if unknown > 0 {
			x.unknownTTL = unknown
		}
	}
}

// WithJournal sets where resolved outcomes are logged.
func WithJournal(j Journal) Option {
	return func(x *Dispatcher) {
		if j != nil {
			x.journal = j
		}
	}
}

// WithLabels sets the label board updated by outcomes.
func WithLabels(l Labeler) Option {
	return func(x *Dispatcher) {
		if l != nil {
			x.labels = l
		}
	}
}

// WithNames resolves subject ids to display names.
func WithNames(n Names) Option {
	return func(x *Dispatcher) {
		x.names = n
	}
}

// WithEvents gates dispatch on a selected event and tags outcomes with it.
func WithEvents(e EventSource) Option {
	return func(x *Dispatcher) {
		x.events = e
	}
}

// WithCrop replaces the crop-and-encode step.
func WithCrop(fn func(image.Image, model.Box) ([]byte, error)) Option {
	return func(x *Dispatcher) {
		if fn != nil {
			x.crop = fn
		}
	}
}

// WithOnOutcome registers a callback run after each applied resolution.
func WithOnOutcome(fn func(model.RecognitionOutcome)) Option {
	return func(x *Dispatcher) {
		x.onOutcome = fn
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l logger.Logger) Option {
	return func(x *Dispatcher) {
		if l != nil {
			x.log = l
		}
	}
}

package worker

import (
	"github.com/okian/kiosk/internal/domain/dedupe"
	"github.com/okian/kiosk/pkg/logger"
	"golang.org/x/time/rate"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithLimiter throttles submissions. Workers in a pool share one limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(w *InMemoryWorker) {
		w.limiter = l
	}
}

// WithDeduper forgets the key of a check-in whose submission failed, so a
// later recognition can retry it.
func WithDeduper(d dedupe.Deduper) Option {
	return func(w *InMemoryWorker) {
		w.deduper = d
	}
}

package detectionlog

import (
	"time"

	"github.com/okian/kiosk/internal/domain/model"
)

// Option configures a Log.
type Option func(*Log)

// WithCapacity sets the maximum number of entries kept.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithExpiry sets how long each entry is displayed before it removes itself.
func WithExpiry(d time.Duration) Option {
	return func(l *Log) {
		if d > 0 {
			l.expiry = d
		}
	}
}

// WithOnChange registers a callback receiving a snapshot after every change.
// It runs outside the log's lock.
func WithOnChange(fn func([]model.LogEntry)) Option {
	return func(l *Log) {
		l.onChange = fn
	}
}

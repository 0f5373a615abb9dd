// Package detectionlog keeps the operator-visible history of recognition outcomes.
package detectionlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/kiosk/internal/domain/model"
	"github.com/okian/kiosk/pkg/metrics"
)

// Default log configuration.
const (
	DefaultCapacity = 10
	DefaultExpiry   = 5 * time.Second
)

// Removal causes reported to metrics.
const (
	causeCapacity = "capacity"
	causeExpired  = "expired"
)

// Log is a bounded, most-recent-first list whose entries also expire on their own.
// Capacity eviction and expiry are independent; whichever happens first removes the entry.
type Log struct {
	mu       sync.Mutex
	entries  []model.LogEntry // index 0 is the newest
	timers   map[string]*time.Timer
	capacity int
	expiry   time.Duration
	closed   bool
	onChange func([]model.LogEntry)
}

// New creates a log with the given options.
func New(opts ...Option) *Log {
	l := &Log{
		capacity: DefaultCapacity,
		expiry:   DefaultExpiry,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.entries = make([]model.LogEntry, 0, l.capacity+1)
	l.timers = make(map[string]*time.Timer, l.capacity)
	return l
}

// Append inserts entry at the head, drops the tail beyond capacity, and
// schedules the entry's own removal. An empty ID is filled with a new uuid.
// It returns the stored entry.
func (l *Log) Append(entry model.LogEntry) model.LogEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return entry
	}

	l.entries = append(l.entries, model.LogEntry{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = entry

	for len(l.entries) > l.capacity {
		tail := l.entries[len(l.entries)-1]
		l.entries = l.entries[:len(l.entries)-1]
		l.stopTimer(tail.ID)
		metrics.RecordLogRemoval(causeCapacity)
	}

	id := entry.ID
	l.timers[id] = time.AfterFunc(l.expiry, func() { l.expire(id) })

	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.changed(snap)
	return entry
}

// expire removes the entry if it is still present.
func (l *Log) expire(id string) {
	l.mu.Lock()
	delete(l.timers, id)
	idx := -1
	for i := range l.entries {
		if l.entries[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 || l.closed {
		l.mu.Unlock()
		return
	}
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	metrics.RecordLogRemoval(causeExpired)
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.changed(snap)
}

// stopTimer must be called with l.mu held.
func (l *Log) stopTimer(id string) {
	if t, ok := l.timers[id]; ok {
		t.Stop()
		delete(l.timers, id)
	}
}

// Snapshot returns a most-recent-first copy of the log.
func (l *Log) Snapshot() []model.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Log) snapshotLocked() []model.LogEntry {
	out := make([]model.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries currently shown.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset drops every entry and pending expiry while keeping the log usable.
func (l *Log) Reset() {
	l.mu.Lock()
	for id := range l.timers {
		l.stopTimer(id)
	}
	l.entries = l.entries[:0]
	l.mu.Unlock()

	l.changed(nil)
}

// Close resets the log and rejects later appends.
func (l *Log) Close() {
	l.Reset()
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

func (l *Log) changed(snap []model.LogEntry) {
	metrics.UpdateLogSize(len(snap))
	if l.onChange != nil {
		l.onChange(snap)
	}
}

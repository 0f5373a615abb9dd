// Package queue buffers attendance check-ins between the recognition loop and
// the workers that post them.
package queue

import (
	"context"
	"sync"

	"github.com/okian/kiosk/internal/domain/model"
	"github.com/okian/kiosk/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds c without blocking. It returns ErrFull or ErrClosed when c
	// was not accepted.
	Enqueue(ctx context.Context, c model.CheckIn) error

	// Dequeue returns a channel closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan model.CheckIn

	Len() int
	Close() error
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	items    chan model.CheckIn
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan model.CheckIn, q.capacity)

	metrics.UpdateCheckinQueueCapacity(q.capacity)
	metrics.UpdateCheckinQueueSize(0)
	return q
}

// Enqueue adds c to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, c model.CheckIn) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("checkin_queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.items <- c:
		metrics.RecordCheckin("enqueued")
		metrics.UpdateCheckinQueueSize(len(q.items))
		return nil
	default:
		metrics.RecordCheckin("queue_full")
		metrics.RecordErrorByComponent("checkin_queue", "queue_full")
		return ErrFull
	}
}

// Dequeue forwards queued check-ins until the queue is closed or ctx is done.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.CheckIn {
	out := make(chan model.CheckIn)
	go func() {
		defer close(out)
		for c := range q.items {
			select {
			case out <- c:
				metrics.UpdateCheckinQueueSize(len(q.items))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the number of pending check-ins.
func (q *InMemoryQueue) Len() int {
	return len(q.items)
}

// Close stops accepting check-ins. Pending ones are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Package worker posts queued attendance check-ins to the backend.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/kiosk/internal/domain/dedupe"
	"github.com/okian/kiosk/internal/domain/model"
	"github.com/okian/kiosk/pkg/logger"
	"github.com/okian/kiosk/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	defaultWorkerCount  = 2
	submitTimeout       = 10 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Submitter sends one check-in.
type Submitter interface {
	CheckIn(ctx context.Context, c model.CheckIn) error
}

// Queue defines how workers receive check-ins.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.CheckIn
}

// Worker processes check-ins until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the current submission.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker reads check-ins from a queue and submits them.
type InMemoryWorker struct {
	queue     Queue
	submitter Submitter
	limiter   *rate.Limiter
	deduper   dedupe.Deduper
	name      string

	shutdown chan struct{}
	done     chan struct{}

	base   logger.Logger // as configured, before Named
	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(queue Queue, submitter Submitter, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		submitter: submitter,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.base = w.logger
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case c, ok := <-items:
			if !ok {
				return
			}
			if err := w.process(ctx, c); err != nil {
				w.logger.Warn(ctx, "check-in failed", logger.String("key", c.Key()), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, c model.CheckIn) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			w.unrecord(ctx, c)
			metrics.RecordCheckin("dropped")
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	err := w.submitter.CheckIn(submitCtx, c)
	cancel()
	metrics.RecordCheckinLatency(float64(time.Since(start).Milliseconds()))

	if err != nil {
		w.unrecord(ctx, c)
		metrics.RecordCheckin("failed")
		metrics.RecordErrorByComponent("checkin_worker", "submit")
		return fmt.Errorf("submit check-in %s: %w", c.Key(), err)
	}

	metrics.RecordCheckin("sent")
	w.logger.Info(ctx, "checked in",
		logger.String("user_id", c.UserID),
		logger.String("event_id", c.EventID),
		logger.Float64("accuracy", c.Accuracy))
	return nil
}

func (w *InMemoryWorker) unrecord(ctx context.Context, c model.CheckIn) {
	if w.deduper != nil {
		w.deduper.Unrecord(context.WithoutCancel(ctx), c.Key())
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates workerCount workers. opts apply to every worker, so a limiter
// passed here is shared by the pool.
func NewPool(workerCount int, queue Queue, submitter Submitter, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
	}
	for i := range workerCount {
		wopts := append(append([]Option(nil), opts...), WithName("checkin-worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(queue, submitter, wopts...)
	}
	p.logger = p.workers[0].base.Named("checkin-pool")

	metrics.UpdateCheckinWorkers(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets workers drain it, and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateCheckinWorkers(0)
	return nil
}

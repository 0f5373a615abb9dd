package recognition

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Default simulation constants.
const (
	defaultMinLatency      = 80 * time.Millisecond
	defaultMaxLatency      = 150 * time.Millisecond
	defaultRandomSeed      = 42
	defaultRecognitionRate = 0.7
	minSimulatedAccuracy   = 0.6
)

// Option applies a configuration option to the Simulated recognizer.
type Option func(*Simulated)

// WithLatencyRange sets the simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *Simulated) {
		if minLatency > 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithSubjects sets the ids the simulation may recognize.
func WithSubjects(ids ...string) Option {
	return func(s *Simulated) {
		s.subjects = append([]string(nil), ids...)
	}
}

// WithRecognitionRate sets the probability that a crop is matched.
func WithRecognitionRate(rate float64) Option {
	return func(s *Simulated) {
		if rate >= 0 && rate <= 1 {
			s.rate = rate
		}
	}
}

// WithSeed makes the sequence of outcomes reproducible.
func WithSeed(seed int64) Option {
	return func(s *Simulated) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // simulation only
	}
}

// Simulated implements Recognizer without a network, for demos and tests.
type Simulated struct {
	mu         sync.Mutex
	subjects   []string
	rate       float64
	minLatency time.Duration
	maxLatency time.Duration
	rng        *rand.Rand
}

// NewSimulated creates a simulated recognizer with configuration options.
func NewSimulated(opts ...Option) *Simulated {
	s := &Simulated{
		rate:       defaultRecognitionRate,
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recognize waits a simulated latency, then matches one of the configured
// subjects with the configured probability.
func (s *Simulated) Recognize(ctx context.Context, jpeg []byte) (Response, error) {
	if len(jpeg) == 0 {
		return Response{}, fmt.Errorf("%w: empty image", ErrStatus)
	}

	s.mu.Lock()
	latency := s.minLatency
	if span := int64(s.maxLatency - s.minLatency); span > 0 {
		latency += time.Duration(s.rng.Int63n(span))
	}
	roll := s.rng.Float64()
	accuracy := minSimulatedAccuracy + s.rng.Float64()*(1-minSimulatedAccuracy)
	var subject string
	if len(s.subjects) > 0 {
		subject = s.subjects[s.rng.Intn(len(s.subjects))]
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(latency):
	}

	if subject == "" || roll >= s.rate {
		zero := 0.0
		return Response{Accuracy: &zero, Message: "No matching face found"}, nil
	}
	return Response{
		UserID:       &subject,
		Accuracy:     &accuracy,
		IsRecognized: true,
		Message:      "Face recognized",
	}, nil
}

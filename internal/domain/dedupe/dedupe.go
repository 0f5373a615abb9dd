// Package dedupe tracks which attendance check-ins were already submitted.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultMaxSize = 10000
	defaultTTL     = 12 * time.Hour
)

// Deduper records seen check-in keys so each employee is checked in once per event.
type Deduper interface {
	// SeenAndRecord atomically checks whether key was seen and records it if not.
	// It returns true when key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so a failed submission can be retried.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key string
	at  time.Time
}

// inMemoryDeduper keeps keys in insertion order. The oldest key is evicted when
// the deduper is full, and keys older than ttl count as unseen.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front is newest
	maxSize int        // <= 0 means unbounded
	ttl     time.Duration
	now     func() time.Time
	size    atomic.Int64
}

// NewInMemoryDeduper creates an in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		ttl:     defaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if el, ok := d.seen[key]; ok {
		if d.ttl <= 0 || now.Sub(el.Value.(*entry).at) < d.ttl {
			return true
		}
		d.removeLocked(el)
	}

	if d.maxSize > 0 {
		for len(d.seen) >= d.maxSize {
			d.removeLocked(d.order.Back())
		}
	}
	d.seen[key] = d.order.PushFront(&entry{key: key, at: now})
	d.size.Add(1)
	return false
}

// Unrecord implements Deduper.
func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.seen[key]; ok {
		d.removeLocked(el)
	}
}

func (d *inMemoryDeduper) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	delete(d.seen, el.Value.(*entry).key)
	d.order.Remove(el)
	d.size.Add(-1)
}

// Size returns the number of recorded keys, expired ones included until they
// are touched or evicted.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

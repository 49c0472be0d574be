// Package dedupe tracks submitted job IDs so a job is accepted at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50_000

// Deduper records seen job IDs to ensure at-most-once acceptance.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so it can be submitted again. It is used when a job
	// was recorded but could not be queued.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper implements Deduper with a map and an insertion-ordered list.
// In bounded mode (maxSize > 0) the oldest ID is evicted once the cap is hit.
// In unbounded mode (maxSize <= 0) nothing is evicted.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front is the oldest
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}
	d.seen[id] = d.order.PushBack(id)
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, exists := d.seen[id]; exists {
		d.order.Remove(el)
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	delete(d.seen, d.order.Remove(front).(string))
	d.size.Add(-1)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

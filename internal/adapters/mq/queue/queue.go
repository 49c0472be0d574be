// Package queue defines the contract for enqueuing and consuming jobs.
package queue

import (
	"context"
	"sync"

	"github.com/okian/irr/internal/domain/model"
	"github.com/okian/irr/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Job is the payload type flowing through the queue.
type Job = model.Job

// Queue provides non-blocking enqueue and blocking dequeue.
type Queue interface {
	// Enqueue adds a job. It returns false when the queue is full or closed.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue blocks until a job is available. ok is false once the queue is
	// closed and drained, or when ctx is done.
	Dequeue(ctx context.Context) (j Job, ok bool)

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close stops accepting jobs. Jobs already queued can still be dequeued.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	q.observe()

	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.reject("closed")
		return false
	}
	if ctx.Err() != nil {
		q.reject("context_cancelled")
		return false
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		q.observe()
		return true
	default:
		q.reject("queue_full")
		return false
	}
}

// Dequeue waits for the next job.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (Job, bool) {
	select {
	case j, ok := <-q.jobs:
		if ok {
			metrics.RecordQueueDequeue()
			q.observe()
		}
		return j, ok
	case <-ctx.Done():
		return Job{}, false
	}
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return q.observe()
}

// Close stops the queue. It is idempotent.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Capacity returns the maximum number of queued jobs.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

func (q *InMemoryQueue) observe() int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

func (q *InMemoryQueue) reject(reason string) {
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", reason)
}

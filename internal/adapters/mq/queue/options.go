package queue

// Option configures an InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity bounds the number of jobs waiting for a worker. Enqueue
// reports false once the bound is reached. Non-positive values keep the
// default.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/irr/internal/domain/model"
	"github.com/okian/irr/pkg/metrics"
)

type shard struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
}

// MemoryStore keeps jobs in a sharded map. Jobs are lost on restart.
type MemoryStore struct {
	shards []*shard
	count  atomic.Int64

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	closeOnce             sync.Once
}

// NewMemoryStore constructs an in-memory store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &MemoryStore{
		shards:                make([]*shard, o.shards),
		metricsUpdateInterval: o.metricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{jobs: make(map[string]model.Job)}
	}
	s.startMetricsUpdater(ctx)
	return s
}

func (s *MemoryStore) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Put inserts or replaces a job.
func (s *MemoryStore) Put(ctx context.Context, job model.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency(BackendMemory, "put", float64(time.Since(start).Nanoseconds())/1e6)
	}()

	if job.ID == "" {
		metrics.RecordErrorByComponent("repository", "invalid_job")
		return fmt.Errorf("%w: empty id", ErrInvalidJob)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sh := s.shardFor(job.ID)
	sh.mu.Lock()
	if _, ok := sh.jobs[job.ID]; !ok {
		s.count.Add(1)
	}
	sh.jobs[job.ID] = job
	sh.mu.Unlock()
	return nil
}

// Get returns a job by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (model.Job, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency(BackendMemory, "get", float64(time.Since(start).Nanoseconds())/1e6)
	}()

	if err := ctx.Err(); err != nil {
		return model.Job{}, err
	}
	sh := s.shardFor(id)
	sh.mu.RLock()
	job, ok := sh.jobs[id]
	sh.mu.RUnlock()
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Job{}, ErrNotFound
	}
	return job, nil
}

// Delete removes a job.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	if _, ok := sh.jobs[id]; ok {
		delete(sh.jobs, id)
		s.count.Add(-1)
	}
	sh.mu.Unlock()
	return nil
}

// Count returns the number of stored jobs.
func (s *MemoryStore) Count(_ context.Context) int {
	return int(s.count.Load())
}

// Close stops the metrics updater. Stored jobs stay readable.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		publishCount(ctx, s.stopChan, s.metricsUpdateInterval, BackendMemory, func() int { return s.Count(ctx) })
	}()
}

// Package service wires the IRR calculator, the job queue, the worker pool
// and the job store into the operations the HTTP API and the binaries use.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	jobqueue "github.com/okian/irr/internal/adapters/mq/queue"
	workerpool "github.com/okian/irr/internal/adapters/mq/worker"
	"github.com/okian/irr/internal/adapters/repository"
	"github.com/okian/irr/internal/domain/cashflow"
	"github.com/okian/irr/internal/domain/dedupe"
	"github.com/okian/irr/internal/domain/irr"
	"github.com/okian/irr/internal/domain/model"
	"github.com/okian/irr/pkg/logger"
	"github.com/okian/irr/pkg/metrics"
)

// Outcome labels of the computation counter.
const (
	outcomeOK         = "ok"
	outcomeNoSolution = "no_solution"
	outcomeInvalid    = "invalid"
	outcomeFault      = "fault"
	outcomeError      = "error"
)

// Service implements the dependencies of the HTTP API.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	deduper dedupe.Deduper
	queue   *jobqueue.InMemoryQueue
	pool    *workerpool.Pool

	// Configuration
	precision      float64
	maxFlowEntries int
	workerCount    int
	queueSize      int
	dedupeSize     int
	storeSpec      string
	ownStore       bool

	// State
	started bool
	now     func() time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithPrecision sets the precision used when a request does not carry one.
func WithPrecision(p float64) Option {
	return func(s *Service) {
		if p > 0 {
			s.precision = p
		}
	}
}

// WithMaxFlowEntries caps the number of transactions in one cash flow.
func WithMaxFlowEntries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFlowEntries = n
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the job ID deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithStore sets the job store. The service does not close a store it was given.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithStoreSpec selects the job store opened on Start ("memory" or "sqlite:<path>").
func WithStoreSpec(spec string) Option {
	return func(s *Service) {
		if spec != "" {
			s.storeSpec = spec
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		precision:      irr.DefaultPrecision,
		maxFlowEntries: 10_000,
		workerCount:    runtime.NumCPU(),
		queueSize:      10_000,
		dedupeSize:     100_000,
		storeSpec:      repository.BackendMemory,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named("service")
	return s
}

// Start initializes and starts the service components. Workers outlive ctx
// and run until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting irr service...")

	runCtx := context.WithoutCancel(ctx)
	if s.store == nil || s.ownStore {
		store, err := repository.Open(runCtx, s.storeSpec)
		if err != nil {
			return fmt.Errorf("open job store: %w", err)
		}
		s.store = store
		s.ownStore = true
		s.logger.Info(ctx, "job store opened", logger.String("store", s.storeSpec))
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s, s.store,
		workerpool.WithLogger(s.logger),
		workerpool.WithClock(s.now),
	)
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "irr service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Float64("precision", s.precision),
	)
	return nil
}

// Stop closes the queue, waits for the workers to drain it and closes the
// job store when the service opened it.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping irr service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
	}
	if s.ownStore {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "closing job store failed", logger.Error(err))
		}
		s.store = nil
	}

	s.started = false
	s.logger.Info(ctx, "irr service stopped")
}

// Precision returns the precision applied when a request carries none.
func (s *Service) Precision() float64 { return s.precision }

// Compute runs the IRR pipeline synchronously. Internal faults are counted
// and logged, then re-raised for the caller's recovery boundary.
func (s *Service) Compute(ctx context.Context, flow cashflow.Flow, precision float64) (res irr.Result, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordComputationLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
		if r := recover(); r != nil {
			stage := "unknown"
			var fault *irr.FaultError
			if e, ok := r.(error); ok && errors.As(e, &fault) {
				stage = fault.Stage
			}
			metrics.RecordInternalFault(stage)
			metrics.RecordComputation(stage, outcomeFault)
			s.logger.Error(ctx, "irr computation fault",
				logger.String("stage", stage),
				logger.Any("panic", r),
			)
			panic(r)
		}
	}()

	if len(flow) > s.maxFlowEntries {
		metrics.RecordComputation("", outcomeInvalid)
		return irr.Result{}, fmt.Errorf("%w: %d entries exceed the limit of %d",
			ErrInvalidInput, len(flow), s.maxFlowEntries)
	}

	calc := irr.New(irr.WithPrecision(precision), irr.WithLogger(s.logger))
	res, err = calc.Compute(ctx, flow)
	s.observe(ctx, res, err)
	return res, err
}

func (s *Service) observe(ctx context.Context, res irr.Result, err error) {
	method := string(res.Method)
	switch {
	case err == nil:
		metrics.RecordComputation(method, outcomeOK)
		metrics.RecordSolverIterations(method, res.Iterations)
		if res.Method == irr.MethodBrent {
			metrics.RecordBracketProbes(res.BracketProbes)
		}
	case errors.Is(err, irr.ErrNoSolution):
		metrics.RecordComputation(method, outcomeNoSolution)
		metrics.RecordBracketProbes(res.BracketProbes)
		s.logger.Debug(ctx, "no solution", logger.Error(err),
			logger.Int("evaluations", res.Evaluations))
	case errors.Is(err, irr.ErrInvalidInput):
		metrics.RecordComputation(method, outcomeInvalid)
	default:
		metrics.RecordComputation(method, outcomeError)
	}
}

// Submit queues job for asynchronous computation and returns its ID. A job
// without an ID gets a random one. Resubmitting a known ID returns it with
// duplicate set and does nothing else. When the queue is full the job is
// forgotten and ErrBackpressure is returned so the caller may retry.
func (s *Service) Submit(ctx context.Context, job model.Job) (id string, duplicate bool, err error) { //nolint:gocritic // hugeParam: Job is copied into the queue anyway
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return "", false, ErrNotStarted
	}
	if len(job.Flow) > s.maxFlowEntries {
		return "", false, fmt.Errorf("%w: %d entries exceed the limit of %d",
			ErrInvalidInput, len(job.Flow), s.maxFlowEntries)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if s.deduper.SeenAndRecord(ctx, job.ID) {
		metrics.RecordJobDuplicate()
		s.logger.Debug(ctx, "duplicate job", logger.String("job_id", job.ID))
		return job.ID, true, nil
	}

	job.Status = model.StatusPending
	job.SubmittedAt = s.now()
	job.CompletedAt = time.Time{}
	if err := s.store.Put(ctx, job); err != nil {
		s.deduper.Unrecord(ctx, job.ID)
		return "", false, fmt.Errorf("persist job %s: %w", job.ID, err)
	}
	if !s.queue.Enqueue(ctx, job) {
		s.deduper.Unrecord(ctx, job.ID)
		if err := s.store.Delete(ctx, job.ID); err != nil {
			s.logger.Warn(ctx, "could not drop rejected job", logger.String("job_id", job.ID), logger.Error(err))
		}
		metrics.RecordJobRejected()
		return "", false, ErrBackpressure
	}

	metrics.RecordJobSubmitted()
	return job.ID, false, nil
}

// Job returns a submitted job. Returns ErrJobNotFound for unknown IDs and
// ErrNotStarted outside Start/Stop.
func (s *Service) Job(ctx context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return model.Job{}, ErrNotStarted
	}
	return s.store.Get(ctx, id)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":        s.started,
		"workerCount":    s.workerCount,
		"queueSize":      s.queueSize,
		"dedupeSize":     s.dedupeSize,
		"precision":      s.precision,
		"maxFlowEntries": s.maxFlowEntries,
		"store":          s.storeSpec,
	}
	if s.store != nil && !s.ownStore {
		stats["store"] = "external"
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["activeWorkers"] = s.pool.Active()
		stats["storedJobs"] = s.store.Count(ctx)
		stats["trackedIDs"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.pool.Size())
	}
	return stats
}

// Package worker runs queued IRR jobs and records their outcomes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/irr/internal/domain/cashflow"
	"github.com/okian/irr/internal/domain/irr"
	"github.com/okian/irr/internal/domain/model"
	"github.com/okian/irr/pkg/logger"
	"github.com/okian/irr/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Calculator computes the IRR of a job's cash flow.
type Calculator interface {
	Compute(ctx context.Context, flow cashflow.Flow, precision float64) (irr.Result, error)
}

// Recorder persists a job with its final status.
type Recorder interface {
	Put(ctx context.Context, job model.Job) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) (model.Job, bool)
}

// Worker processes jobs until its queue is drained or it is stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	calc     Calculator
	recorder Recorder
	name     string
	now      func() time.Time
	active   *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, calc Calculator, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		calc:     calc,
		recorder: recorder,
		name:     "worker",
		now:      time.Now,
		active:   new(atomic.Int64),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	// Dequeue is interrupted by shutdown through this context.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.shutdown:
			cancel()
		case <-runCtx.Done():
		}
	}()

	for {
		job, ok := w.queue.Dequeue(runCtx)
		if !ok {
			return
		}
		if err := w.process(ctx, job); err != nil {
			w.logger.Error(ctx, "error processing job", logger.String("job_id", job.ID), logger.Error(err))
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs one job and records its outcome. Calculator panics are
// contained here so one faulty job cannot take the pool down.
func (w *InMemoryWorker) process(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	outcome := w.compute(ctx, job)
	if outcome.Status == model.StatusFailed {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "fault")
	}

	if err := w.recorder.Put(ctx, job.Complete(outcome, w.now())); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "store_error")
		return fmt.Errorf("record job %s: %w", job.ID, err)
	}
	return nil
}

func (w *InMemoryWorker) compute(ctx context.Context, job model.Job) (out model.Outcome) { //nolint:gocritic // hugeParam
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		out = model.Outcome{Status: model.StatusFailed, Error: fmt.Sprint(r)}
		var fault *irr.FaultError
		if err, ok := r.(error); ok && errors.As(err, &fault) {
			out.Reason = fault.Stage
		}
		w.logger.Error(ctx, "job computation panicked",
			logger.String("job_id", job.ID),
			logger.Any("panic", r),
		)
	}()

	res, err := w.calc.Compute(ctx, job.Flow, job.Precision)
	return Classify(res, err)
}

// Classify maps a calculator result onto a job outcome.
func Classify(res irr.Result, err error) model.Outcome {
	var nse *irr.NoSolutionError
	switch {
	case err == nil:
		return model.Outcome{
			Status:     model.StatusDone,
			IRR:        res.IRR,
			Method:     string(res.Method),
			Iterations: res.Iterations,
		}
	case errors.As(err, &nse):
		return model.Outcome{
			Status: model.StatusNoSolution,
			Method: string(res.Method),
			Reason: string(nse.Reason),
			Error:  err.Error(),
		}
	case errors.Is(err, irr.ErrInvalidInput):
		return model.Outcome{Status: model.StatusInvalid, Error: err.Error()}
	default:
		return model.Outcome{Status: model.StatusFailed, Error: err.Error()}
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	active  atomic.Int64
	logger  logger.Logger
}

// NewPool creates a worker pool. A non-positive count means one worker per CPU.
func NewPool(workerCount int, queue Queue, calc Calculator, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
	}
	probe := &InMemoryWorker{}
	for _, opt := range opts {
		opt(probe)
	}
	p.logger = probe.logger
	if p.logger == nil {
		p.logger = logger.Get()
	}
	p.logger = p.logger.Named("worker-pool")

	for i := 0; i < workerCount; i++ {
		name := "worker-" + strconv.Itoa(i)
		wopts := append([]Option{}, opts...)
		wopts = append(wopts, WithName(name), WithLogger(p.logger.Named(name)))
		w := NewInMemoryWorker(queue, calc, recorder, wopts...)
		w.active = &p.active
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)

	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Active returns the number of workers currently computing.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}

// Stop interrupts all workers without draining the queue.
func (p *Pool) Stop(ctx context.Context) error {
	var errs []error
	for _, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

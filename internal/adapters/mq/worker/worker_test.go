package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/irr/internal/adapters/mq/queue"
	"github.com/okian/irr/internal/adapters/mq/worker"
	"github.com/okian/irr/internal/domain/cashflow"
	"github.com/okian/irr/internal/domain/irr"
	"github.com/okian/irr/internal/domain/model"
	"github.com/okian/irr/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// realCalc runs the production calculator.
type realCalc struct{}

func (realCalc) Compute(ctx context.Context, flow cashflow.Flow, precision float64) (irr.Result, error) {
	return irr.New(irr.WithPrecision(precision)).Compute(ctx, flow)
}

// faultyCalc panics the way the calculator does on an internal fault.
type faultyCalc struct{}

func (faultyCalc) Compute(_ context.Context, _ cashflow.Flow, _ float64) (irr.Result, error) {
	panic(&irr.FaultError{Stage: "secant", Err: errors.New("solver rejected its config")})
}

type mockRecorder struct {
	mu   sync.Mutex
	jobs map[string]model.Job
	err  error
	put  chan string
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{jobs: make(map[string]model.Job), put: make(chan string, 1000)}
}

func (r *mockRecorder) Put(_ context.Context, job model.Job) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
	r.put <- job.ID
	return nil
}

func (r *mockRecorder) get(id string) model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

func (r *mockRecorder) wait(n int) bool {
	for i := 0; i < n; i++ {
		select {
		case <-r.put:
		case <-time.After(5 * time.Second):
			return false
		}
	}
	return true
}

func job(id string, flow cashflow.Flow) model.Job {
	return model.Job{ID: id, Flow: flow, Precision: irr.DefaultPrecision, Status: model.StatusPending}
}

var tenPercent = cashflow.Flow{"2021-01-01": -100, "2022-01-01": 110}

func TestInMemoryWorker(t *testing.T) {
	_ = logger.Init()

	convey.Convey("Given a running worker", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		rec := newMockRecorder()
		fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
		w := worker.NewInMemoryWorker(q, realCalc{}, rec, worker.WithName("w1"), worker.WithClock(func() time.Time { return fixed }))
		go w.Run(ctx)

		convey.Convey("When a solvable job is queued", func() {
			q.Enqueue(ctx, job("ok", tenPercent))
			convey.So(rec.wait(1), convey.ShouldBeTrue)
			got := rec.get("ok")

			convey.Convey("Then it should be recorded as done", func() {
				convey.So(got.Status, convey.ShouldEqual, model.StatusDone)
				convey.So(got.IRR, convey.ShouldAlmostEqual, 0.1, irr.DefaultPrecision)
				convey.So(got.Method, convey.ShouldEqual, "secant")
				convey.So(got.CompletedAt, convey.ShouldEqual, fixed)
			})
		})

		convey.Convey("When a job has no solution", func() {
			q.Enqueue(ctx, job("none", cashflow.Flow{"2001-01-01": 705.57, "2001-06-15": 563.43, "2001-09-30": 0}))
			convey.So(rec.wait(1), convey.ShouldBeTrue)
			got := rec.get("none")

			convey.Convey("Then the reason should be kept", func() {
				convey.So(got.Status, convey.ShouldEqual, model.StatusNoSolution)
				convey.So(got.Reason, convey.ShouldEqual, string(irr.ReasonNoBracket))
			})
		})

		convey.Convey("When a job is malformed", func() {
			q.Enqueue(ctx, job("bad", cashflow.Flow{"2001-01-01": 1}))
			convey.So(rec.wait(1), convey.ShouldBeTrue)

			convey.Convey("Then it should be recorded as invalid", func() {
				convey.So(rec.get("bad").Status, convey.ShouldEqual, model.StatusInvalid)
			})
		})

		convey.Convey("When shutting down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()

			convey.Convey("Then it should stop promptly and twice is harmless", func() {
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a worker whose calculator faults", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		rec := newMockRecorder()
		w := worker.NewInMemoryWorker(q, faultyCalc{}, rec)
		go w.Run(ctx)

		convey.Convey("When two jobs are processed", func() {
			q.Enqueue(ctx, job("f1", tenPercent))
			q.Enqueue(ctx, job("f2", tenPercent))
			convey.So(rec.wait(2), convey.ShouldBeTrue)

			convey.Convey("Then both should be failed with the fault stage and the worker should survive", func() {
				for _, id := range []string{"f1", "f2"} {
					got := rec.get(id)
					convey.So(got.Status, convey.ShouldEqual, model.StatusFailed)
					convey.So(got.Reason, convey.ShouldEqual, "secant")
					convey.So(got.Error, convey.ShouldContainSubstring, "internal fault")
				}
			})
		})
	})

	convey.Convey("Given a worker whose recorder fails", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		rec := newMockRecorder()
		rec.err = errors.New("disk full")
		w := worker.NewInMemoryWorker(q, realCalc{}, rec)
		go w.Run(ctx)

		convey.Convey("When a job is processed", func() {
			q.Enqueue(ctx, job("lost", tenPercent))
			_ = q.Close()

			convey.Convey("Then the worker should keep going and exit when the queue drains", func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestClassify(t *testing.T) {
	convey.Convey("Given calculator outcomes", t, func() {
		convey.Convey("Then unexpected errors should be failures", func() {
			out := worker.Classify(irr.Result{}, context.Canceled)
			convey.So(out.Status, convey.ShouldEqual, model.StatusFailed)
		})

		convey.Convey("Then an infinite IRR should be a no-solution outcome", func() {
			out := worker.Classify(irr.Result{Method: irr.MethodSecant}, &irr.NoSolutionError{Reason: irr.ReasonInfiniteIRR})
			convey.So(out.Status, convey.ShouldEqual, model.StatusNoSolution)
			convey.So(out.Reason, convey.ShouldEqual, "infinite_irr")
			convey.So(out.Method, convey.ShouldEqual, "secant")
		})
	})
}

func TestPool(t *testing.T) {
	_ = logger.Init()

	convey.Convey("Given a worker pool", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(500))
		rec := newMockRecorder()
		pool := worker.NewPool(4, q, realCalc{}, rec)

		convey.Convey("When the count is not positive", func() {
			convey.So(worker.NewPool(0, q, realCalc{}, rec).Size(), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("When many jobs are queued before shutdown", func() {
			const n = 200
			for i := 0; i < n; i++ {
				convey.So(q.Enqueue(ctx, job(fmt.Sprintf("job-%d", i), tenPercent)), convey.ShouldBeTrue)
			}
			pool.Start(ctx)
			err := pool.Shutdown(ctx)

			convey.Convey("Then the pool should drain every job before stopping", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(pool.Size(), convey.ShouldEqual, 4)
				convey.So(pool.Active(), convey.ShouldEqual, 0)
				convey.So(rec.wait(n), convey.ShouldBeTrue)
				for i := 0; i < n; i++ {
					convey.So(rec.get(fmt.Sprintf("job-%d", i)).Status, convey.ShouldEqual, model.StatusDone)
				}
			})
		})

		convey.Convey("When stopped without draining", func() {
			pool.Start(ctx)
			sctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			convey.Convey("Then every worker should exit", func() {
				convey.So(pool.Stop(sctx), convey.ShouldBeNil)
			})
		})
	})
}

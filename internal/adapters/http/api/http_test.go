package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/irr/internal/adapters/http/api"
	service "github.com/okian/irr/internal/app"
	"github.com/okian/irr/internal/domain/cashflow"
	"github.com/okian/irr/internal/domain/irr"
	"github.com/okian/irr/internal/domain/model"
	"github.com/okian/irr/internal/domain/types"
	"github.com/okian/irr/pkg/logger"
)

// Mock implementations for testing
type mockDependencies struct {
	mu sync.Mutex

	computeRes   irr.Result
	computeErr   error
	computePanic any
	precisions   []float64

	submitted []model.Job
	submitDup bool
	submitErr error

	jobs   map[string]model.Job
	jobErr error
}

func (m *mockDependencies) Precision() float64 { return 0.001 }

func (m *mockDependencies) Compute(_ context.Context, _ cashflow.Flow, precision float64) (irr.Result, error) {
	m.mu.Lock()
	m.precisions = append(m.precisions, precision)
	m.mu.Unlock()
	if m.computePanic != nil {
		panic(m.computePanic)
	}
	return m.computeRes, m.computeErr
}

func (m *mockDependencies) Submit(_ context.Context, job model.Job) (string, bool, error) {
	if m.submitErr != nil {
		return "", false, m.submitErr
	}
	m.submitted = append(m.submitted, job)
	if job.ID == "" {
		job.ID = "generated"
	}
	return job.ID, m.submitDup, nil
}

func (m *mockDependencies) Job(_ context.Context, id string) (model.Job, error) {
	if m.jobErr != nil {
		return model.Job{}, m.jobErr
	}
	job, ok := m.jobs[id]
	if !ok {
		return model.Job{}, service.ErrJobNotFound
	}
	return job, nil
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	opts = append([]api.Option{api.WithLogger(logger.Nop())}, opts...)
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}}, opts...)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) types.Error {
	var e types.Error
	So(json.Unmarshal(w.Body.Bytes(), &e), ShouldBeNil)
	return e
}

const validBody = `{"cashflow": {"2021-01-01": 10, "2022-01-01": "-20"}}`

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("Then health endpoint should report ok", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("And stats endpoint should be accessible", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("And metrics endpoint should serve the exposition format", func() {
			_ = do(mux, http.MethodGet, "/healthz", "")
			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "irr_service_http_requests_total")
		})

		Convey("And unknown paths and methods should be not found", func() {
			So(do(mux, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/irr", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/stats", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("And a nil mux should panic", func() {
			server := api.NewServer(&mockDependencies{}, &mockStatsProvider{}, api.WithLogger(logger.Nop()))
			So(func() { server.Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}

func TestComputeHandler(t *testing.T) {
	Convey("Given a compute endpoint", t, func() {
		deps := &mockDependencies{computeRes: irr.Result{IRR: 0.1, Method: irr.MethodSecant, Iterations: 5, Evaluations: 7}}
		mux := newMux(deps)

		Convey("When posting a valid flow without precision", func() {
			w := do(mux, http.MethodPost, "/irr", validBody)

			Convey("Then the result is returned with the default precision applied", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res types.Result
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.IRR, ShouldEqual, 0.1)
				So(res.Percent, ShouldAlmostEqual, 10, 1e-9)
				So(res.Method, ShouldEqual, "secant")
				So(res.Iterations, ShouldEqual, 5)
				So(res.Evaluations, ShouldEqual, 7)
				So(deps.precisions, ShouldResemble, []float64{0.001})
			})
		})

		Convey("When posting an explicit precision", func() {
			w := do(mux, http.MethodPost, "/irr", `{"cashflow": {"2021-01-01": 10, "2022-01-01": -20}, "precision": 0.5}`)

			Convey("Then it is passed through", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.precisions, ShouldResemble, []float64{0.5})
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, http.MethodPost, "/irr", `{"cashflow":`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w).Code, ShouldEqual, "bad_request")
			})
		})

		Convey("When the body has trailing data", func() {
			w := do(mux, http.MethodPost, "/irr", validBody+` {}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the cash flow is missing or malformed", func() {
			for _, body := range []string{`{}`, `{"cashflow": {"2021-01-01": "abc", "2022-01-01": 1}}`, `{"cashflow": {"2021-01-01": null, "2022-01-01": 1}}`} {
				w := do(mux, http.MethodPost, "/irr", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w).Code, ShouldEqual, "invalid_input")
			}
			So(deps.precisions, ShouldBeEmpty)
		})

		Convey("When the calculator rejects the input", func() {
			deps.computeErr = fmt.Errorf("%w: one entry", irr.ErrInvalidInput)
			w := do(mux, http.MethodPost, "/irr", validBody)

			Convey("Then it is invalid input", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w).Code, ShouldEqual, "invalid_input")
			})
		})

		Convey("When there is no solution", func() {
			deps.computeErr = &irr.NoSolutionError{Reason: irr.ReasonNoBracket}
			w := do(mux, http.MethodPost, "/irr", validBody)

			Convey("Then it is unprocessable with the reason", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				e := decodeError(w)
				So(e.Code, ShouldEqual, "no_solution")
				So(e.Reason, ShouldEqual, "no_bracket")
			})
		})

		Convey("When the calculator faults", func() {
			deps.computePanic = &irr.FaultError{Stage: "brent", Err: errors.New("boom")}
			w := do(mux, http.MethodPost, "/irr", validBody)

			Convey("Then it is an internal error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				e := decodeError(w)
				So(e.Code, ShouldEqual, "internal_error")
				So(e.Message, ShouldContainSubstring, "brent")
			})
		})
	})
}

func TestComputeHandler_Batch(t *testing.T) {
	Convey("Given a batch endpoint limited to two items", t, func() {
		deps := &mockDependencies{computeRes: irr.Result{IRR: 0.2, Method: irr.MethodBrent, BracketProbes: 3}}
		mux := newMux(deps, api.WithMaxBatchSize(2))

		Convey("When posting valid and invalid items", func() {
			w := do(mux, http.MethodPost, "/irr/batch",
				`{"items": [`+validBody+`, {"cashflow": {"2021-01-01": "abc", "2022-01-01": 1}, "precision": 0.01}]}`)

			Convey("Then each item carries its own outcome", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var out types.BatchResponse
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out.Items, ShouldHaveLength, 2)
				So(out.Items[0].Error, ShouldBeNil)
				So(out.Items[0].Result.BracketProbes, ShouldEqual, 3)
				So(out.Items[1].Result, ShouldBeNil)
			})
		})

		Convey("When one item faults", func() {
			deps.computePanic = &irr.FaultError{Stage: "secant", Err: errors.New("boom")}
			w := do(mux, http.MethodPost, "/irr/batch", `{"items": [`+validBody+`]}`)

			Convey("Then only that item fails", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var out types.BatchResponse
				So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
				So(out.Items[0].Error.Code, ShouldEqual, "internal_error")
			})
		})

		Convey("When the batch is empty or too large", func() {
			So(do(mux, http.MethodPost, "/irr/batch", `{"items": []}`).Code, ShouldEqual, http.StatusBadRequest)

			w := do(mux, http.MethodPost, "/irr/batch", `{"items": [`+validBody+`,`+validBody+`,`+validBody+`]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w).Code, ShouldEqual, "batch_too_large")
			So(deps.precisions, ShouldBeEmpty)
		})
	})
}

func TestJobsHandler(t *testing.T) {
	Convey("Given a jobs endpoint", t, func() {
		done := time.Date(2025, 3, 1, 0, 0, 1, 0, time.UTC)
		deps := &mockDependencies{jobs: map[string]model.Job{
			"done":    {ID: "done", Status: model.StatusDone, IRR: 0.25, Method: "secant", Precision: 0.001, CompletedAt: done},
			"pending": {ID: "pending", Status: model.StatusPending, Precision: 0.001},
		}}
		mux := newMux(deps)

		Convey("When submitting a job with an ID", func() {
			w := do(mux, http.MethodPost, "/jobs", `{"job_id": " j-1 ", "cashflow": {"2021-01-01": -1, "2022-01-01": 2}, "precision": 0.01}`)

			Convey("Then it is accepted as pending", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var ack types.Ack
				So(json.Unmarshal(w.Body.Bytes(), &ack), ShouldBeNil)
				So(ack.ID, ShouldEqual, "j-1")
				So(ack.Status, ShouldEqual, "pending")
				So(deps.submitted[0].Precision, ShouldEqual, 0.01)
			})
		})

		Convey("When submitting a duplicate", func() {
			deps.submitDup = true
			w := do(mux, http.MethodPost, "/jobs", validBody)

			Convey("Then it is acknowledged as a duplicate", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var ack types.Ack
				So(json.Unmarshal(w.Body.Bytes(), &ack), ShouldBeNil)
				So(ack.Duplicate, ShouldBeTrue)
				So(ack.ID, ShouldEqual, "generated")
			})
		})

		Convey("When the service pushes back", func() {
			deps.submitErr = service.ErrBackpressure
			So(do(mux, http.MethodPost, "/jobs", validBody).Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("When the service is not started", func() {
			deps.submitErr = service.ErrNotStarted
			So(do(mux, http.MethodPost, "/jobs", validBody).Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When the cash flow is malformed", func() {
			w := do(mux, http.MethodPost, "/jobs", `{"cashflow": {"2021-01-01": true, "2022-01-01": 1}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.submitted, ShouldBeEmpty)
		})

		Convey("When reading a completed job", func() {
			w := do(mux, http.MethodGet, "/jobs/done", "")

			Convey("Then the IRR and completion time are present", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var job types.Job
				So(json.Unmarshal(w.Body.Bytes(), &job), ShouldBeNil)
				So(job.Status, ShouldEqual, "done")
				So(*job.IRR, ShouldEqual, 0.25)
				So(job.CompletedAt.Equal(done), ShouldBeTrue)
			})
		})

		Convey("When reading a pending job", func() {
			w := do(mux, http.MethodGet, "/jobs/pending", "")

			Convey("Then there is no IRR yet", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldNotContainSubstring, `"irr"`)
				So(w.Body.String(), ShouldNotContainSubstring, `"completed_at"`)
			})
		})

		Convey("When reading a job from a stopped service", func() {
			deps.jobErr = service.ErrNotStarted
			So(do(mux, http.MethodGet, "/jobs/done", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When reading unknown or malformed ids", func() {
			So(do(mux, http.MethodGet, "/jobs/nope", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/jobs/", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/jobs/a/b", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given a handler that panics", t, func() {
		h := api.MetricsMiddleware(api.RecoveryMiddleware(func(http.ResponseWriter, *http.Request) {
			panic("unexpected")
		}, logger.Nop()), "test")

		Convey("When it is called", func() {
			w := httptest.NewRecorder()
			h(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

			Convey("Then a 500 is written", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldContainSubstring, "internal_error")
			})
		})
	})
}

func TestOpError(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("cause")

		Convey("Then kind and cause are both reachable", func() {
			err := api.WrapKind("op", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "op: bad request: cause")

			var opErr *api.OpError
			So(errors.As(err, &opErr), ShouldBeTrue)
			So(opErr.Op, ShouldEqual, "op")
		})

		Convey("And the short forms render without gaps", func() {
			So(api.NewKind("op", api.ErrNotFound).Error(), ShouldEqual, "op: not found")
			So(api.Wrap("op", cause).Error(), ShouldEqual, "op: cause")
			So(api.Wrap("op", nil), ShouldBeNil)
		})
	})
}

func TestServerWithService(t *testing.T) {
	Convey("Given the API backed by a running service", t, func() {
		svc := service.New(service.WithLogger(logger.Nop()), service.WithWorkerCount(2))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		server := api.NewServer(svc, svc, api.WithLogger(logger.Nop()))
		mux := http.NewServeMux()
		server.Register(context.Background(), mux)

		Convey("When computing a doubling flow", func() {
			w := do(mux, http.MethodPost, "/irr", validBody)

			Convey("Then the IRR is 100%", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res types.Result
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.IRR, ShouldAlmostEqual, 1.0, 0.001)
			})
		})

		Convey("When submitting the same flow as a job", func() {
			w := do(mux, http.MethodPost, "/jobs", `{"job_id": "e2e", "cashflow": {"2021-01-01": 10, "2022-01-01": -20}}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)

			Convey("Then it eventually completes", func() {
				var job types.Job
				deadline := time.Now().Add(5 * time.Second)
				for time.Now().Before(deadline) {
					r := do(mux, http.MethodGet, "/jobs/e2e", "")
					So(json.Unmarshal(r.Body.Bytes(), &job), ShouldBeNil)
					if job.Status != "pending" {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(job.Status, ShouldEqual, "done")
				So(*job.IRR, ShouldAlmostEqual, 1.0, 0.001)
				So(job.Precision, ShouldEqual, 0.001)
			})
		})
	})
}

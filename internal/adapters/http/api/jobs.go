package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	service "github.com/okian/irr/internal/app"
	"github.com/okian/irr/internal/domain/model"
	"github.com/okian/irr/internal/domain/types"
)

// JobsDependencies defines the interface for asynchronous job operations.
type JobsDependencies interface {
	Precision() float64
	Submit(ctx context.Context, job model.Job) (id string, duplicate bool, err error)
	Job(ctx context.Context, id string) (model.Job, error)
}

// JobsHandler handles job submission and lookup.
type JobsHandler struct {
	deps         JobsDependencies
	maxBodyBytes int64
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps JobsDependencies, maxBodyBytes int64) *JobsHandler {
	return &JobsHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

// HandleSubmit handles POST /jobs requests.
func (h *JobsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_job"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.ComputeRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "", WrapKind(op, ErrBadRequest, err))
		return
	}
	flow, precision, err := parseRequest(&req, h.deps)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "", Wrap(op, err))
		return
	}

	id, duplicate, err := h.deps.Submit(r.Context(), model.Job{
		ID:        strings.TrimSpace(req.JobID),
		Flow:      flow,
		Precision: precision,
	})
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", "", Wrap(op, err))
		return
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", "", WrapKind(op, ErrBackpressure, err))
		return
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "", WrapKind(op, ErrUnavailable, err))
		return
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "", WrapKind(op, ErrInternal, err))
		return
	}

	if duplicate {
		writeJSON(w, http.StatusOK, types.Ack{ID: id, Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, types.Ack{ID: id, Status: string(model.StatusPending)})
}

// HandleGet handles GET /jobs/{id} requests.
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_job"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter after /jobs/
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", "", NewKind(op, ErrBadRequest))
		return
	}

	job, err := h.deps.Job(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toJobView(&job))
	case errors.Is(err, service.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "not_found", "", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "", WrapKind(op, ErrInternal, err))
	}
}

func toJobView(j *model.Job) types.Job {
	v := types.Job{
		ID:          j.ID,
		Status:      string(j.Status),
		Precision:   j.Precision,
		Method:      j.Method,
		Iterations:  j.Iterations,
		Reason:      j.Reason,
		Error:       j.Error,
		SubmittedAt: j.SubmittedAt,
	}
	if j.Status == model.StatusDone {
		rate := j.IRR
		v.IRR = &rate
	}
	if !j.CompletedAt.IsZero() {
		at := j.CompletedAt
		v.CompletedAt = &at
	}
	return v
}

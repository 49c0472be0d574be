package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/irr/internal/domain/cashflow"
	"github.com/okian/irr/internal/domain/irr"
	"github.com/okian/irr/internal/domain/types"
)

// ComputeDependencies defines what synchronous computation needs. Compute
// may panic on an internal fault; handlers recover it.
type ComputeDependencies interface {
	Precision() float64
	Compute(ctx context.Context, flow cashflow.Flow, precision float64) (irr.Result, error)
}

// ComputeHandler handles synchronous IRR requests.
type ComputeHandler struct {
	deps         ComputeDependencies
	maxBatchSize int
	maxBodyBytes int64
}

// NewComputeHandler creates a new compute handler.
func NewComputeHandler(deps ComputeDependencies, maxBatchSize int, maxBodyBytes int64) *ComputeHandler {
	return &ComputeHandler{deps: deps, maxBatchSize: maxBatchSize, maxBodyBytes: maxBodyBytes}
}

// HandleCompute handles POST /irr requests.
func (h *ComputeHandler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.compute"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.ComputeRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, status, body := h.compute(r.Context(), op, &req)
	if body != nil {
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleBatch handles POST /irr/batch requests. Items are computed in order
// and each carries its own result or error; the response status is 200
// whenever the batch itself was well formed.
func (h *ComputeHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.compute_batch"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.BatchRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "", WrapKind(op, ErrBadRequest, err))
		return
	}
	switch n := len(req.Items); {
	case n == 0:
		writeError(w, http.StatusBadRequest, "bad_request", "", NewKind(op, ErrBadRequest))
		return
	case n > h.maxBatchSize:
		writeError(w, http.StatusBadRequest, "batch_too_large", "",
			WrapKind(op, ErrBatchTooLarge, fmt.Errorf("%d items exceed the limit of %d", n, h.maxBatchSize)))
		return
	}

	out := types.BatchResponse{Items: make([]types.BatchItem, len(req.Items))}
	for i := range req.Items {
		res, _, body := h.compute(r.Context(), op, &req.Items[i])
		if body != nil {
			out.Items[i] = types.BatchItem{Error: body}
			continue
		}
		out.Items[i] = types.BatchItem{Result: res}
	}
	writeJSON(w, http.StatusOK, out)
}

// compute runs one request. On failure it returns the HTTP status and the
// error body; internal faults are recovered and reported as 500.
func (h *ComputeHandler) compute(ctx context.Context, op string, req *types.ComputeRequest) (res *types.Result, status int, body *types.Error) {
	defer func() {
		if rec := recover(); rec != nil {
			e := errorBody(http.StatusInternalServerError, "internal_error", "",
				WrapKind(op, ErrInternal, fmt.Errorf("%v", rec)))
			res, status, body = nil, http.StatusInternalServerError, &e
		}
	}()

	flow, precision, err := parseRequest(req, h.deps)
	if err != nil {
		e := errorBody(http.StatusBadRequest, "invalid_input", "", Wrap(op, err))
		return nil, http.StatusBadRequest, &e
	}

	result, err := h.deps.Compute(ctx, flow, precision)
	if err != nil {
		status, e := classify(op, err)
		return nil, status, &e
	}
	return &types.Result{
		IRR:           result.IRR,
		Percent:       result.IRR * 100,
		Method:        string(result.Method),
		Iterations:    result.Iterations,
		Evaluations:   result.Evaluations,
		BracketProbes: result.BracketProbes,
	}, http.StatusOK, nil
}

// classify maps a computation error to a status and an error body.
func classify(op string, err error) (int, types.Error) {
	var nse *irr.NoSolutionError
	switch {
	case errors.As(err, &nse):
		return http.StatusUnprocessableEntity,
			errorBody(http.StatusUnprocessableEntity, "no_solution", string(nse.Reason), Wrap(op, err))
	case errors.Is(err, irr.ErrInvalidInput):
		return http.StatusBadRequest, errorBody(http.StatusBadRequest, "invalid_input", "", Wrap(op, err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable,
			errorBody(http.StatusServiceUnavailable, "unavailable", "", WrapKind(op, ErrUnavailable, err))
	default:
		return http.StatusInternalServerError,
			errorBody(http.StatusInternalServerError, "internal_error", "", WrapKind(op, ErrInternal, err))
	}
}

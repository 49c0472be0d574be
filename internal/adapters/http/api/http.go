// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/irr/internal/domain/cashflow"
	"github.com/okian/irr/internal/domain/types"
	"github.com/okian/irr/pkg/logger"
)

const (
	defaultMaxBatchSize = 100
	defaultMaxBodyBytes = 4 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ComputeDependencies
	JobsDependencies
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxBatchSize caps the number of items in POST /irr/batch.
func WithMaxBatchSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithMaxBodyBytes caps request body sizes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger used for recovered panics.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	computeHandler *ComputeHandler
	jobsHandler    *JobsHandler

	maxBatchSize int
	maxBodyBytes int64
	logger       logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		maxBatchSize: defaultMaxBatchSize,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named("api")

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.computeHandler = NewComputeHandler(deps, s.maxBatchSize, s.maxBodyBytes)
	s.jobsHandler = NewJobsHandler(deps, s.maxBodyBytes)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("/healthz", s.wrap(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", s.wrap(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/irr", s.wrap(s.computeHandler.HandleCompute, "irr"))
	mux.HandleFunc("/irr/batch", s.wrap(s.computeHandler.HandleBatch, "irr_batch"))
	mux.HandleFunc("/jobs", s.wrap(s.jobsHandler.HandleSubmit, "jobs"))
	mux.HandleFunc("/jobs/", s.wrap(s.jobsHandler.HandleGet, "job"))
}

func (s *Server) wrap(h http.HandlerFunc, endpoint string) http.HandlerFunc {
	return MetricsMiddleware(RecoveryMiddleware(h, s.logger), endpoint)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, reason string, err error) {
	writeJSON(w, status, errorBody(status, code, reason, err))
}

func errorBody(status int, code, reason string, err error) types.Error {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	return types.Error{Code: code, Reason: reason, Message: msg}
}

// decodeJSON reads one JSON document into v. Numbers are kept as
// json.Number so amounts keep their textual precision until parsed.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("decode body: trailing data after JSON document")
	}
	return nil
}

// precisionSource supplies the precision used when a request carries none.
type precisionSource interface {
	Precision() float64
}

// parseRequest turns a request body into a flow and the effective precision.
func parseRequest(req *types.ComputeRequest, deps precisionSource) (cashflow.Flow, float64, error) {
	flow, err := cashflow.Parse(req.Cashflow)
	if err != nil {
		return nil, 0, err
	}
	precision := deps.Precision()
	if req.Precision != nil {
		precision = *req.Precision
	}
	return flow, precision, nil
}

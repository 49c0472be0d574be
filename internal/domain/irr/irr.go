// Package irr computes the internal rate of return of an irregular cash flow.
//
// The flow is turned into f(x) = Σ amount_i · x^(t_i) with x = 1/(1+IRR).
// A secant run is tried first; when it fails for an expected numerical reason
// the sign observations it left behind seed a bracket search, and Brent's
// method finishes the job. Only roots with x >= 0 are answers: x < 0 means an
// IRR below -100%, so a negative secant root counts as a failed attempt and a
// negative Brent root as no solution. Solver failures outside the expected
// set are programming errors and panic with a *FaultError.
package irr

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/okian/irr/internal/domain/cashflow"
	"github.com/okian/irr/internal/domain/presentvalue"
	"github.com/okian/irr/internal/domain/solver"
	"github.com/okian/irr/pkg/logger"
)

// Default calculator configuration constants.
const (
	DefaultPrecision = 0.001

	// Solvers control precision on x, not on the IRR. Tightening by 1000 keeps
	// the IRR error bounded for rates up to roughly 1000%.
	precisionScale = 1000

	// Accepted |f(root)| relative to Σ|amount|. Loose precisions widen it to
	// the x-precision so that a converged bracket is not rejected.
	defaultRootTolerance = 1e-6
)

// Method names the step that produced a result.
type Method string

// Methods.
const (
	MethodZero   Method = "zero"
	MethodSecant Method = "secant"
	MethodBrent  Method = "brent"
)

// Result is a computed IRR plus diagnostics.
type Result struct {
	// IRR is a fraction; multiply by 100 for percent.
	IRR           float64
	Method        Method
	Iterations    int
	Evaluations   int
	BracketProbes int
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithPrecision sets the required precision on the IRR. Values that are not
// positive and finite make Compute fail with ErrInvalidInput.
func WithPrecision(p float64) Option {
	return func(c *Calculator) {
		c.precision = p
	}
}

// WithMaxDepth sets the iteration cap of each solver.
func WithMaxDepth(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithBracketAttempts sets the bracket search budget.
func WithBracketAttempts(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.bracketAttempts = n
		}
	}
}

// WithSeeds overrides the secant starting points. Seeds that are equal or not
// finite make Compute fail with ErrInvalidInput.
func WithSeeds(p0, p1 float64) Option {
	return func(c *Calculator) {
		c.seedLow, c.seedHigh = p0, p1
	}
}

// WithRootTolerance sets the accepted |f(root)| relative to Σ|amount|.
func WithRootTolerance(tol float64) Option {
	return func(c *Calculator) {
		if tol > 0 {
			c.rootTolerance = tol
		}
	}
}

// WithLogger sets a logger for solver fallback diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(c *Calculator) {
		if l != nil {
			c.logger = l
		}
	}
}

// Calculator holds solver settings. It keeps no per-computation state and is
// safe for concurrent use.
type Calculator struct {
	precision       float64
	maxDepth        int
	bracketAttempts int
	seedLow         float64
	seedHigh        float64
	rootTolerance   float64
	logger          logger.Logger
}

// New creates a Calculator with configuration options.
func New(opts ...Option) *Calculator {
	c := &Calculator{
		precision:       DefaultPrecision,
		maxDepth:        solver.DefaultMaxDepth,
		bracketAttempts: solver.DefaultBracketAttempts,
		seedLow:         solver.DefaultSeedLow,
		seedHigh:        solver.DefaultSeedHigh,
		rootTolerance:   defaultRootTolerance,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute returns the IRR of flow as a fraction.
func Compute(ctx context.Context, flow map[string]float64, opts ...Option) (float64, error) {
	res, err := New(opts...).Compute(ctx, flow)
	if err != nil {
		return 0, err
	}
	return res.IRR, nil
}

// Compute runs the secant -> bracket -> Brent pipeline on flow. On
// ErrNoSolution the returned Result still carries the diagnostics.
func (c *Calculator) Compute(ctx context.Context, flow cashflow.Flow) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("irr: %w", err)
	}
	if !(c.precision > 0) || math.IsInf(c.precision, 0) {
		return Result{}, fmt.Errorf("%w: precision must be a positive number, got %g", ErrInvalidInput, c.precision)
	}
	if !finite(c.seedLow) || !finite(c.seedHigh) || c.seedLow == c.seedHigh {
		return Result{}, fmt.Errorf("%w: secant seeds must be two distinct finite numbers, got %g and %g",
			ErrInvalidInput, c.seedLow, c.seedHigh)
	}
	offsets, err := flow.Offsets()
	if err != nil {
		return Result{}, err
	}
	if flow.IsZero() {
		return Result{IRR: 0, Method: MethodZero}, nil
	}

	fn := presentvalue.New(offsets)
	xPrecision := c.precision / precisionScale
	cfg := solver.Config{
		Precision: xPrecision,
		MaxDepth:  c.maxDepth,
		Tolerance: math.Max(c.rootTolerance, xPrecision) * math.Max(1, fn.Magnitude()),
	}

	res, err := solver.Secant(fn, c.seedLow, c.seedHigh, cfg)
	switch kind, _ := solver.KindOf(err); {
	case err == nil && res.Root >= 0:
		return c.finish(res, MethodSecant, fn, 0)
	case err == nil:
		c.debug(ctx, "secant root below zero, searching for a bracket", negativeRoot(res.Root))
	case kind == solver.KindNotANumber, kind == solver.KindDivideByZero,
		kind == solver.KindNoConvergence, kind == solver.KindNotARoot:
		c.debug(ctx, "secant failed, searching for a bracket", err)
	default:
		panic(&FaultError{Stage: "secant", Offsets: offsets, Args: []float64{c.seedLow, c.seedHigh}, Config: cfg, Err: err})
	}

	bracket, probes, err := solver.FindBracket(fn, c.bracketAttempts)
	if errors.Is(err, solver.ErrNoBracket) {
		return Result{Evaluations: fn.Evaluations(), BracketProbes: probes},
			&NoSolutionError{Reason: ReasonNoBracket, Err: err}
	}
	if err != nil {
		panic(&FaultError{Stage: "bracket", Offsets: offsets, Args: []float64{float64(c.bracketAttempts)}, Config: cfg, Err: err})
	}

	res, err = solver.Brent(fn, bracket.Neg, bracket.Pos, cfg)
	if err != nil {
		switch kind, _ := solver.KindOf(err); kind {
		case solver.KindNotANumber, solver.KindNoConvergence, solver.KindNotARoot:
			c.debug(ctx, "brent failed", err)
			return Result{Method: MethodBrent, Evaluations: fn.Evaluations(), BracketProbes: probes},
				&NoSolutionError{Reason: ReasonBrentFailed, Err: err}
		default:
			panic(&FaultError{Stage: "brent", Offsets: offsets, Args: []float64{bracket.Neg, bracket.Pos}, Config: cfg, Err: err})
		}
	}
	if res.Root < 0 {
		err = negativeRoot(res.Root)
		c.debug(ctx, "brent root below zero", err)
		return Result{Method: MethodBrent, Iterations: res.Iterations, Evaluations: fn.Evaluations(), BracketProbes: probes},
			&NoSolutionError{Reason: ReasonBrentFailed, Err: err}
	}
	return c.finish(res, MethodBrent, fn, probes)
}

func (c *Calculator) finish(res solver.Result, m Method, fn *presentvalue.Function, probes int) (Result, error) {
	out := Result{
		Method:        m,
		Iterations:    res.Iterations,
		Evaluations:   fn.Evaluations(),
		BracketProbes: probes,
	}
	if res.Root == 0 {
		return out, &NoSolutionError{Reason: ReasonInfiniteIRR}
	}
	out.IRR = 1/res.Root - 1
	return out, nil
}

func negativeRoot(x float64) error {
	return fmt.Errorf("%w: x=%g", ErrNegativeRoot, x)
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func (c *Calculator) debug(ctx context.Context, msg string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Debug(ctx, msg, logger.Error(err))
}

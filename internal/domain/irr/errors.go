package irr

import (
	"errors"
	"fmt"

	"github.com/okian/irr/internal/domain/cashflow"
	"github.com/okian/irr/internal/domain/solver"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrInvalidInput covers malformed flows and bad precision.
	ErrInvalidInput = cashflow.ErrInvalidInput
	// ErrNoSolution means no root could be located. It is a normal outcome.
	ErrNoSolution = errors.New("no solution found")
	// ErrNegativeRoot marks a root at x < 0, i.e. an IRR below -100%.
	ErrNegativeRoot = errors.New("root below zero")
)

// Reason says why a computation gave up.
type Reason string

// Give-up reasons.
const (
	ReasonNoBracket   Reason = "no_bracket"
	ReasonBrentFailed Reason = "brent_failed"
	ReasonInfiniteIRR Reason = "infinite_irr"
)

// NoSolutionError is returned when the fallback chain is exhausted.
type NoSolutionError struct {
	Reason Reason
	Err    error
}

func (e *NoSolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrNoSolution, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", ErrNoSolution, e.Reason, e.Err)
}

func (e *NoSolutionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNoSolution) hold.
func (e *NoSolutionError) Is(target error) bool { return target == ErrNoSolution }

// FaultError is the panic value raised when a solver fails in a way the
// pipeline never provokes on its own. It carries everything the solver was
// given so the fault can be reproduced.
type FaultError struct {
	Stage   string
	Offsets cashflow.Offsets
	Args    []float64
	Config  solver.Config
	Err     error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("irr: internal fault in %s (args=%v, precision=%g, max_depth=%d, tolerance=%g, offsets=%v): %v",
		e.Stage, e.Args, e.Config.Precision, e.Config.MaxDepth, e.Config.Tolerance, e.Offsets, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

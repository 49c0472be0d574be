package solver

import (
	"errors"
	"fmt"
)

// Kind classifies why a solver did not return a root. The set is closed:
// callers switch over the kinds they expect and treat the rest as faults.
type Kind int

// Solver failure kinds.
const (
	KindNoConvergence   Kind = iota + 1 // iteration cap reached
	KindNoRoot                          // bracket does not straddle a sign change
	KindDivideByZero                    // degenerate secant step
	KindNotANumber                      // undefined evaluation
	KindNotARoot                        // converged to a point that is not a zero
	KindInvalidArgument                 // solver called with unusable arguments
)

func (k Kind) String() string {
	switch k {
	case KindNoConvergence:
		return "max_depth_exceeded"
	case KindNoRoot:
		return "no_root"
	case KindDivideByZero:
		return "divide_by_zero"
	case KindNotANumber:
		return "not_a_number"
	case KindNotARoot:
		return "not_a_root"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrNoBracket is returned by FindBracket when no sign change was found within
// the attempt budget. It is an expected outcome, not a fault.
var ErrNoBracket = errors.New("no bracket found")

// Error is the failure returned by Secant and Brent.
type Error struct {
	Solver     string
	Kind       Kind
	X          float64 // last point evaluated
	Iterations int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s at x=%g after %d iterations", e.Solver, e.Kind, e.X, e.Iterations)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err. ok is false for errors that did
// not come from a solver.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

func fail(solver string, kind Kind, x float64, iter int, cause error) *Error {
	return &Error{Solver: solver, Kind: kind, X: x, Iterations: iter, Err: cause}
}

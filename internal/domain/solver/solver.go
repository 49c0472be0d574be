// Package solver finds real roots of a scalar function.
//
// Secant is the fast unbracketed method; FindBracket and Brent are the robust
// fallback. All three report every evaluation through the Func they are given,
// so a Tracker keeps accumulating sign observations across attempts.
package solver

import (
	"errors"
	"fmt"
	"math"
)

// Defaults used by the IRR pipeline.
const (
	DefaultMaxDepth        = 50
	DefaultBracketAttempts = 1024
	DefaultSeedLow         = 0.5
	DefaultSeedHigh        = 1.0
)

// ErrUndefined is the error a Func returns, possibly wrapped, when it has no
// value at x. Solvers move on from such points; any other error is a fault.
var ErrUndefined = errors.New("function undefined")

// Func is a function whose evaluation may be undefined at some points.
type Func interface {
	Evaluate(x float64) (float64, error)
}

// evalKind classifies an evaluation error.
func evalKind(err error) Kind {
	if errors.Is(err, ErrUndefined) {
		return KindNotANumber
	}
	return KindInvalidArgument
}

// Tracker is a Func that remembers one point on each side of zero.
type Tracker interface {
	Func
	Positive() (float64, bool)
	Negative() (float64, bool)
}

// Config bounds a solver run.
type Config struct {
	// Precision is the required distance between successive iterates (secant)
	// or the final bracket half-width (Brent).
	Precision float64
	// MaxDepth caps the number of iterations.
	MaxDepth int
	// Tolerance is the largest |f(x)| accepted when verifying a candidate root.
	Tolerance float64
}

// Result is a located root.
type Result struct {
	Root       float64
	Iterations int
}

// Bracket holds two points with opposite-sign evaluations.
type Bracket struct {
	Neg float64
	Pos float64
}

const bracketName = "bracket"

var errInvalidConfig = errors.New("invalid solver config")

func (c Config) validate() error {
	switch {
	case !(c.Precision > 0) || math.IsInf(c.Precision, 0):
		return fmt.Errorf("%w: precision %g", errInvalidConfig, c.Precision)
	case c.MaxDepth < 1:
		return fmt.Errorf("%w: max depth %d", errInvalidConfig, c.MaxDepth)
	case !(c.Tolerance >= 0):
		return fmt.Errorf("%w: tolerance %g", errInvalidConfig, c.Tolerance)
	}
	return nil
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// FindBracket probes i and -1+10/(i+9) for i = 1..attempts until f has been
// seen both positive and negative. Undefined evaluations are skipped. It
// returns the bracket and the number of probes made, or ErrNoBracket. Any
// other evaluation error stops the search and is returned as a
// KindInvalidArgument *Error.
func FindBracket(f Tracker, attempts int) (Bracket, int, error) {
	probes := 0
	for i := 1; i <= attempts; i++ {
		for _, x := range [2]float64{float64(i), -1 + 10/float64(i+9)} {
			if b, ok := bracketOf(f); ok {
				return b, probes, nil
			}
			probes++
			if _, err := f.Evaluate(x); err != nil && !errors.Is(err, ErrUndefined) {
				return Bracket{}, probes, fail(bracketName, KindInvalidArgument, x, probes, err)
			}
		}
	}
	if b, ok := bracketOf(f); ok {
		return b, probes, nil
	}
	return Bracket{}, probes, ErrNoBracket
}

func bracketOf(f Tracker) (Bracket, bool) {
	neg, okNeg := f.Negative()
	pos, okPos := f.Positive()
	if !okNeg || !okPos {
		return Bracket{}, false
	}
	return Bracket{Neg: neg, Pos: pos}, true
}

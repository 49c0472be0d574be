// Package presentvalue implements the cash-flow present-value function
//
//	f(x) = Σ c_i · x^(t_i)
//
// where x = 1/(1+IRR) and t_i are non-negative, possibly fractional, year
// offsets. Evaluations remember the first point seen on each side of zero so
// a failed solver run still leaves a usable bracket behind.
package presentvalue

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/irr/internal/domain/solver"
)

// ErrNotANumber is returned when f(x) is undefined, e.g. a fractional power of
// a negative x. It wraps solver.ErrUndefined so solvers skip the point.
var ErrNotANumber = fmt.Errorf("present value is not a number: %w", solver.ErrUndefined)

type term struct {
	offset float64
	coef   float64
}

// Function is a present-value function bound to one set of coefficients.
// It is not safe for concurrent use; each computation owns its own instance.
type Function struct {
	terms      []term
	fractional bool
	magnitude  float64

	xpos, xneg     float64
	hasPos, hasNeg bool
	evaluations    int
}

// New captures the offset -> coefficient mapping. The map is copied.
func New(coefficients map[float64]float64) *Function {
	f := &Function{terms: make([]term, 0, len(coefficients))}
	for t, c := range coefficients {
		if t != math.Trunc(t) {
			f.fractional = true
		}
		f.terms = append(f.terms, term{offset: t, coef: c})
		f.magnitude += math.Abs(c)
	}
	sort.Slice(f.terms, func(i, j int) bool { return f.terms[i].offset < f.terms[j].offset })
	return f
}

// Evaluate returns f(x) and records x as a positive or negative observation
// when it is the first one of its sign. A zero result records nothing.
func (f *Function) Evaluate(x float64) (float64, error) {
	f.evaluations++
	if math.IsNaN(x) || (x < 0 && f.fractional) {
		return math.NaN(), ErrNotANumber
	}

	var sum float64
	for _, tm := range f.terms {
		sum += tm.coef * math.Pow(x, tm.offset)
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return sum, ErrNotANumber
	}

	switch {
	case sum > 0 && !f.hasPos:
		f.xpos, f.hasPos = x, true
	case sum < 0 && !f.hasNeg:
		f.xneg, f.hasNeg = x, true
	}
	return sum, nil
}

// Positive returns the first point observed with f(x) > 0.
func (f *Function) Positive() (float64, bool) { return f.xpos, f.hasPos }

// Negative returns the first point observed with f(x) < 0.
func (f *Function) Negative() (float64, bool) { return f.xneg, f.hasNeg }

// Magnitude returns Σ|c_i|, the natural scale of f near its roots.
func (f *Function) Magnitude() float64 { return f.magnitude }

// Evaluations returns how many times Evaluate was called.
func (f *Function) Evaluations() int { return f.evaluations }

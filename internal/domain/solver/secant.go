package solver

import (
	"fmt"
	"math"
)

const secantName = "secant"

// Secant runs the secant iteration from p0 and p1. It stops when two iterates
// are closer than cfg.Precision and then checks that the last one really is a
// zero of f; a converged non-zero is reported as KindNotARoot.
func Secant(f Func, p0, p1 float64, cfg Config) (Result, error) {
	if err := cfg.validate(); err != nil {
		return Result{}, fail(secantName, KindInvalidArgument, p1, 0, err)
	}
	if !finite(p0) || !finite(p1) || p0 == p1 {
		return Result{}, fail(secantName, KindInvalidArgument, p1, 0,
			fmt.Errorf("%w: seeds %g and %g", errInvalidConfig, p0, p1))
	}

	f0, err := f.Evaluate(p0)
	if err != nil {
		return Result{}, fail(secantName, evalKind(err), p0, 0, err)
	}
	if f0 == 0 {
		return Result{Root: p0}, nil
	}
	f1, err := f.Evaluate(p1)
	if err != nil {
		return Result{}, fail(secantName, evalKind(err), p1, 0, err)
	}
	if f1 == 0 {
		return Result{Root: p1}, nil
	}

	for iter := 1; iter <= cfg.MaxDepth; iter++ {
		if f1 == f0 {
			return Result{}, fail(secantName, KindDivideByZero, p1, iter, nil)
		}
		x := p1 - f1*(p1-p0)/(f1-f0)
		if !finite(x) {
			return Result{}, fail(secantName, KindNotANumber, p1, iter, nil)
		}
		fx, err := f.Evaluate(x)
		if err != nil {
			return Result{}, fail(secantName, evalKind(err), x, iter, err)
		}
		if fx == 0 {
			return Result{Root: x, Iterations: iter}, nil
		}
		if math.Abs(x-p1) < cfg.Precision {
			if math.Abs(fx) > cfg.Tolerance {
				return Result{}, fail(secantName, KindNotARoot, x, iter,
					fmt.Errorf("|f(x)| = %g exceeds %g", math.Abs(fx), cfg.Tolerance))
			}
			return Result{Root: x, Iterations: iter}, nil
		}
		p0, f0 = p1, f1
		p1, f1 = x, fx
	}
	return Result{}, fail(secantName, KindNoConvergence, p1, cfg.MaxDepth, nil)
}

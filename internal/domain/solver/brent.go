package solver

import (
	"fmt"
	"math"
)

const (
	brentName = "brent"
	machEps   = 2.220446049250313e-16
)

// Brent finds a root inside [a, b] with Brent's method. f(a) and f(b) must
// have opposite signs. The working interval [b, c] always brackets the sign
// change; each step takes an inverse quadratic or secant step when it stays
// well inside the interval and bisects otherwise.
func Brent(f Func, a, b float64, cfg Config) (Result, error) {
	if err := cfg.validate(); err != nil {
		return Result{}, fail(brentName, KindInvalidArgument, b, 0, err)
	}
	if !finite(a) || !finite(b) {
		return Result{}, fail(brentName, KindInvalidArgument, b, 0,
			fmt.Errorf("%w: bracket [%g, %g]", errInvalidConfig, a, b))
	}

	fa, err := f.Evaluate(a)
	if err != nil {
		return Result{}, fail(brentName, evalKind(err), a, 0, err)
	}
	fb, err := f.Evaluate(b)
	if err != nil {
		return Result{}, fail(brentName, evalKind(err), b, 0, err)
	}
	if fa == 0 {
		return Result{Root: a}, nil
	}
	if fb == 0 {
		return Result{Root: b}, nil
	}
	if (fa > 0) == (fb > 0) {
		return Result{}, fail(brentName, KindNoRoot, b, 0,
			fmt.Errorf("f(%g) = %g and f(%g) = %g have the same sign", a, fa, b, fb))
	}

	c, fc := b, fb
	var d, e float64
	for iter := 1; iter <= cfg.MaxDepth; iter++ {
		if (fb > 0) == (fc > 0) {
			c, fc = a, fa
			d = b - a
			e = d
		}
		if math.Abs(fc) < math.Abs(fb) {
			a, b, c = b, c, b
			fa, fb, fc = fb, fc, fb
		}

		tol := 2*machEps*math.Abs(b) + 0.5*cfg.Precision
		m := 0.5 * (c - b)
		if math.Abs(m) <= tol || fb == 0 {
			if math.Abs(fb) > cfg.Tolerance {
				return Result{}, fail(brentName, KindNotARoot, b, iter,
					fmt.Errorf("|f(x)| = %g exceeds %g", math.Abs(fb), cfg.Tolerance))
			}
			return Result{Root: b, Iterations: iter}, nil
		}

		if math.Abs(e) >= tol && math.Abs(fa) > math.Abs(fb) {
			s := fb / fa
			var p, q float64
			if a == c {
				p = 2 * m * s
				q = 1 - s
			} else {
				qa := fa / fc
				r := fb / fc
				p = s * (2*m*qa*(qa-r) - (b-a)*(r-1))
				q = (qa - 1) * (r - 1) * (s - 1)
			}
			if p > 0 {
				q = -q
			}
			p = math.Abs(p)
			if 2*p < math.Min(3*m*q-math.Abs(tol*q), math.Abs(e*q)) {
				e = d
				d = p / q
			} else {
				d = m
				e = d
			}
		} else {
			d = m
			e = d
		}

		a, fa = b, fb
		if math.Abs(d) > tol {
			b += d
		} else {
			b += math.Copysign(tol, m)
		}
		if fb, err = f.Evaluate(b); err != nil {
			return Result{}, fail(brentName, evalKind(err), b, iter, err)
		}
	}
	return Result{}, fail(brentName, KindNoConvergence, b, cfg.MaxDepth, nil)
}

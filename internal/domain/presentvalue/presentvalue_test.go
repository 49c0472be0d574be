package presentvalue_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/irr/internal/domain/presentvalue"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEvaluate(t *testing.T) {
	Convey("Given a function with integral offsets", t, func() {
		// 10 - 20x
		f := presentvalue.New(map[float64]float64{0: 10, 1: -20})

		Convey("When evaluating at several points", func() {
			v1, err1 := f.Evaluate(0.25)
			v2, err2 := f.Evaluate(1)
			v3, err3 := f.Evaluate(-1)

			Convey("Then the sums should be exact", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(err3, ShouldBeNil)
				So(v1, ShouldEqual, 5)
				So(v2, ShouldEqual, -10)
				So(v3, ShouldEqual, 30)
			})

			Convey("And the first point of each sign should be remembered", func() {
				pos, okPos := f.Positive()
				neg, okNeg := f.Negative()
				So(okPos, ShouldBeTrue)
				So(pos, ShouldEqual, 0.25)
				So(okNeg, ShouldBeTrue)
				So(neg, ShouldEqual, 1)
			})

			Convey("And every call should be counted", func() {
				So(f.Evaluations(), ShouldEqual, 3)
			})
		})

		Convey("When the result is exactly zero", func() {
			v, err := f.Evaluate(0.5)

			Convey("Then no sign observation should be recorded", func() {
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 0)
				_, okPos := f.Positive()
				_, okNeg := f.Negative()
				So(okPos, ShouldBeFalse)
				So(okNeg, ShouldBeFalse)
			})
		})

		Convey("Magnitude should be the sum of absolute coefficients", func() {
			So(f.Magnitude(), ShouldEqual, 30)
		})
	})

	Convey("Given a function with fractional offsets", t, func() {
		f := presentvalue.New(map[float64]float64{0: -100, 0.5: 50, 1: 60})

		Convey("When evaluating at a negative x", func() {
			v, err := f.Evaluate(-0.5)

			Convey("Then the value should be undefined", func() {
				So(errors.Is(err, presentvalue.ErrNotANumber), ShouldBeTrue)
				So(math.IsNaN(v), ShouldBeTrue)
				_, okPos := f.Positive()
				_, okNeg := f.Negative()
				So(okPos, ShouldBeFalse)
				So(okNeg, ShouldBeFalse)
				So(f.Evaluations(), ShouldEqual, 1)
			})
		})

		Convey("When evaluating at zero", func() {
			v, err := f.Evaluate(0)

			Convey("Then only the anchor term should remain", func() {
				So(err, ShouldBeNil)
				So(v, ShouldEqual, -100)
			})
		})

		Convey("When evaluating at a positive x", func() {
			v, err := f.Evaluate(4)

			Convey("Then fractional powers should be applied", func() {
				So(err, ShouldBeNil)
				So(v, ShouldAlmostEqual, -100+50*2+60*4, 1e-9)
			})
		})
	})

	Convey("Given any function", t, func() {
		f := presentvalue.New(map[float64]float64{0: 1, 3: 1})

		Convey("NaN input should be undefined", func() {
			_, err := f.Evaluate(math.NaN())
			So(errors.Is(err, presentvalue.ErrNotANumber), ShouldBeTrue)
		})

		Convey("An overflowing sum should be undefined", func() {
			_, err := f.Evaluate(1e200)
			So(errors.Is(err, presentvalue.ErrNotANumber), ShouldBeTrue)
		})

		Convey("The coefficient map should be copied", func() {
			coefs := map[float64]float64{0: 1, 1: -1}
			g := presentvalue.New(coefs)
			coefs[1] = 5
			v, err := g.Evaluate(1)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 0)
		})
	})
}

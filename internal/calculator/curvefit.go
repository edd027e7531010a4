package calculator

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrDegenerateFit marks input a least-squares parabola cannot be fitted to.
var ErrDegenerateFit = errors.New("degenerate fit")

// NumericFailure reports an arithmetic problem met while evaluating a window.
type NumericFailure struct {
	Op  string
	Err error
}

func (e *NumericFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NumericFailure) Unwrap() error { return e.Err }

// ParabolaFit is a least-squares fit y = A + B*x + C*x^2 over x = 0..n-1.
type ParabolaFit struct {
	A, B, C float64
	R2      float64
}

// At evaluates the fitted polynomial.
func (f ParabolaFit) At(x float64) float64 {
	return f.A + f.B*x + f.C*x*x
}

// FitParabola fits a degree-2 polynomial to y against bar-local x coordinates and returns
// the coefficient of determination of the fit.
func FitParabola(y []float64) (ParabolaFit, error) {
	n := len(y)
	if n < 3 {
		return ParabolaFit{}, &NumericFailure{Op: "parabola fit", Err: fmt.Errorf("%w: need at least 3 points, got %d", ErrDegenerateFit, n)}
	}
	if floats.HasNaN(y) || math.IsInf(floats.Max(y), 0) || math.IsInf(floats.Min(y), 0) {
		return ParabolaFit{}, &NumericFailure{Op: "parabola fit", Err: fmt.Errorf("%w: non-finite input", ErrDegenerateFit)}
	}
	if stat.Variance(y, nil) == 0 {
		return ParabolaFit{}, &NumericFailure{Op: "parabola fit", Err: fmt.Errorf("%w: closing prices have zero variance", ErrDegenerateFit)}
	}

	design := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		x := float64(i)
		design.Set(i, 0, 1)
		design.Set(i, 1, x)
		design.Set(i, 2, x*x)
	}
	target := mat.NewVecDense(n, append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(design)
	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, target); err != nil {
		return ParabolaFit{}, &NumericFailure{Op: "parabola fit", Err: fmt.Errorf("%w: %v", ErrDegenerateFit, err)}
	}

	fit := ParabolaFit{A: coef.AtVec(0), B: coef.AtVec(1), C: coef.AtVec(2)}
	estimates := make([]float64, n)
	for i := range estimates {
		estimates[i] = fit.At(float64(i))
	}
	fit.R2 = stat.RSquaredFrom(estimates, y, nil)
	if math.IsNaN(fit.R2) {
		return ParabolaFit{}, &NumericFailure{Op: "r-squared", Err: fmt.Errorf("%w: undefined coefficient of determination", ErrDegenerateFit)}
	}
	return fit, nil
}

package fit

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/launchnoise/internal/testutil"
)

func linear(x float64, p []float64) float64 { return p[0]*x + p[1] }

func decay(x float64, p []float64) float64 { return p[0] * math.Exp(-p[1]*x) }

func decayGrad(x float64, p, g []float64) {
	e := math.Exp(-p[1] * x)
	g[0] = e
	g[1] = -p[0] * x * e
}

func samples(f Func, params []float64, xs []float64) []float64 {
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = f(x, params)
	}
	return ys
}

func TestLeastSquares_Linear(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5}
	ys := samples(linear, []float64{2.5, -1}, xs)

	res, err := LeastSquares(Problem{X: xs, Y: ys, Model: linear}, []float64{0, 0}, nil)
	if err != nil {
		t.Fatalf("LeastSquares: %v", err)
	}
	testutil.RequireSliceNearlyEqual(t, res.Params, []float64{2.5, -1}, 1e-8)
	if res.RSS > 1e-14 {
		t.Fatalf("RSS = %v", res.RSS)
	}
}

func TestLeastSquares_DecayAnalyticAndNumeric(t *testing.T) {
	xs := make([]float64, 30)
	for i := range xs {
		xs[i] = float64(i) * 0.2
	}
	want := []float64{3, 0.7}
	ys := samples(decay, want, xs)

	for _, tt := range []struct {
		name string
		grad GradFunc
	}{
		{"analytic", decayGrad},
		{"numeric", nil},
	} {
		t.Run(tt.name, func(t *testing.T) {
			p := Problem{X: xs, Y: ys, Model: decay, Gradient: tt.grad, Lower: []float64{0, 0}}
			res, err := LeastSquares(p, []float64{1, 0.1}, nil)
			if err != nil {
				t.Fatalf("LeastSquares: %v", err)
			}
			testutil.RequireSliceNearlyEqual(t, res.Params, want, 1e-6)
			if res.Status == 0 {
				t.Fatal("status not set")
			}
		})
	}
}

func TestLeastSquares_ActiveBound(t *testing.T) {
	// The unconstrained slope is negative; the bound pins it at zero and
	// the intercept becomes the mean.
	xs := []float64{0, 1, 2, 3}
	ys := []float64{4, 3, 2, 1}
	p := Problem{
		X: xs, Y: ys, Model: linear,
		Lower: []float64{0, math.Inf(-1)},
	}
	res, err := LeastSquares(p, []float64{1, 0}, nil)
	if err != nil {
		t.Fatalf("LeastSquares: %v", err)
	}
	testutil.RequireSliceNearlyEqual(t, res.Params, []float64{0, 2.5}, 1e-6)
	if res.Params[0] < 0 {
		t.Fatalf("slope %v violates bound", res.Params[0])
	}
}

func TestLeastSquares_InitialClamped(t *testing.T) {
	xs := []float64{1, 2, 3}
	ys := []float64{2, 4, 6}
	p := Problem{X: xs, Y: ys, Model: linear, Lower: []float64{0, 0}, Upper: []float64{1.5, 10}}
	res, err := LeastSquares(p, []float64{-5, 20}, nil)
	if err != nil {
		t.Fatalf("LeastSquares: %v", err)
	}
	for k, v := range res.Params {
		if v < p.Lower[k] || v > p.Upper[k] {
			t.Fatalf("param %d = %v outside [%v, %v]", k, v, p.Lower[k], p.Upper[k])
		}
	}
}

func TestLeastSquares_NoConvergence(t *testing.T) {
	xs := make([]float64, 20)
	for i := range xs {
		xs[i] = float64(i) * 0.5
	}
	ys := samples(decay, []float64{3, 0.5}, xs)
	p := Problem{X: xs, Y: ys, Model: decay, Gradient: decayGrad}

	_, err := LeastSquares(p, []float64{0.2, 4}, &Settings{MaxIterations: 1})
	if !errors.Is(err, ErrNoConvergence) {
		t.Fatalf("err = %v, want ErrNoConvergence", err)
	}
}

func TestLeastSquares_InvalidProblem(t *testing.T) {
	ok := Problem{X: []float64{1}, Y: []float64{1}, Model: linear}
	tests := []struct {
		name    string
		p       Problem
		initial []float64
	}{
		{"nil model", Problem{X: []float64{1}, Y: []float64{1}}, []float64{1, 1}},
		{"no params", ok, nil},
		{"length mismatch", Problem{X: []float64{1, 2}, Y: []float64{1}, Model: linear}, []float64{1, 1}},
		{"no samples", Problem{Model: linear}, []float64{1, 1}},
		{"bounds length", Problem{X: []float64{1}, Y: []float64{1}, Model: linear, Lower: []float64{0}}, []float64{1, 1}},
		{"crossed bounds", Problem{X: []float64{1}, Y: []float64{1}, Model: linear, Lower: []float64{2, 0}, Upper: []float64{1, 1}}, []float64{1, 1}},
		{"non-finite start", Problem{X: []float64{0}, Y: []float64{1}, Model: func(x float64, p []float64) float64 { return math.Log(p[0] * x) }}, []float64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LeastSquares(tt.p, tt.initial, nil); !errors.Is(err, ErrInvalidProblem) {
				t.Fatalf("err = %v, want ErrInvalidProblem", err)
			}
		})
	}
}

func TestRSS(t *testing.T) {
	p := Problem{X: []float64{0, 1, 2}, Y: []float64{1, 1, 1}, Model: linear}
	if got := RSS(p, []float64{0, 0}); got != 3 {
		t.Fatalf("RSS = %v, want 3", got)
	}
	if got := RSS(p, []float64{0, 1}); got != 0 {
		t.Fatalf("RSS = %v, want 0", got)
	}
}

func TestSolve(t *testing.T) {
	a := []float64{
		2, 1, 0,
		1, 3, 1,
		0, 1, 4,
	}
	b := []float64{3, 5, 5}
	x := make([]float64, 3)
	if !solve(a, b, x, 3) {
		t.Fatal("solve reported singular system")
	}
	testutil.RequireSliceNearlyEqual(t, x, []float64{1, 1, 1}, 1e-12)

	singular := []float64{1, 2, 2, 4}
	if solve(singular, []float64{1, 2}, make([]float64, 2), 2) {
		t.Fatal("expected singular system to fail")
	}
}

func TestStatusString(t *testing.T) {
	if StatusStalled.String() != "stalled" || Status(0).String() != "unknown" {
		t.Fatal("unexpected status names")
	}
}

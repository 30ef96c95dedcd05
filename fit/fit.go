// Package fit fits parametric curves to paired samples by bounded nonlinear
// least squares.
//
// A [Problem] names the model, the samples and optional per-parameter
// bounds. [LeastSquares] minimizes the residual sum of squares with a
// projected Levenberg-Marquardt iteration: every trial point is clamped into
// the feasible box before it is evaluated, and the damping grows until a
// step lowers the cost.
//
//	res, err := fit.LeastSquares(fit.Problem{
//		X: xs, Y: ys,
//		Model: func(x float64, p []float64) float64 { return p[0]*x + p[1] },
//		Lower: []float64{0, math.Inf(-1)},
//	}, []float64{1, 0}, nil)
package fit

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Errors returned by LeastSquares.
var (
	ErrNoConvergence  = errors.New("fit: no convergence")
	ErrInvalidProblem = errors.New("fit: invalid problem")
)

// Func evaluates a model at x for parameters p.
type Func func(x float64, p []float64) float64

// GradFunc writes the partial derivatives of the model with respect to each
// parameter, evaluated at x, into grad.
type GradFunc func(x float64, p, grad []float64)

// Problem is a curve-fitting task.
type Problem struct {
	X, Y  []float64
	Model Func

	// Gradient is optional; forward differences are used when nil.
	Gradient GradFunc

	// Lower and Upper bound each parameter. Either may be nil (unbounded)
	// or hold ±Inf entries.
	Lower, Upper []float64
}

// Settings tune the solver. The zero value selects defaults.
type Settings struct {
	MaxIterations  int     // default 500
	FTol           float64 // relative cost reduction, default 1e-12
	XTol           float64 // relative step size, default 1e-12
	GTol           float64 // gradient infinity norm, default 1e-12
	InitialDamping float64 // default 1e-3
}

// DefaultSettings returns the settings used when nil is passed.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:  500,
		FTol:           1e-12,
		XTol:           1e-12,
		GTol:           1e-12,
		InitialDamping: 1e-3,
	}
}

func (s *Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s == nil {
		return d
	}
	out := *s
	if out.MaxIterations <= 0 {
		out.MaxIterations = d.MaxIterations
	}
	if out.FTol <= 0 {
		out.FTol = d.FTol
	}
	if out.XTol <= 0 {
		out.XTol = d.XTol
	}
	if out.GTol <= 0 {
		out.GTol = d.GTol
	}
	if out.InitialDamping <= 0 {
		out.InitialDamping = d.InitialDamping
	}
	return out
}

// Status reports why the solver stopped.
type Status int

const (
	StatusGradient Status = iota + 1 // gradient below GTol
	StatusCost                       // relative cost change below FTol
	StatusStep                       // step below XTol
	StatusStalled                    // no damping produced a lower cost
	StatusExactFit                   // residuals vanished
)

var statusNames = map[Status]string{
	StatusGradient: "gradient",
	StatusCost:     "cost",
	StatusStep:     "step",
	StatusStalled:  "stalled",
	StatusExactFit: "exact",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// Result holds the fitted parameters.
type Result struct {
	Params     []float64
	RSS        float64
	Iterations int
	Status     Status
}

const maxDamping = 1e16

// LeastSquares fits p.Model to the samples starting from initial. The
// initial point is clamped into the bounds; it must give finite residuals.
func LeastSquares(p Problem, initial []float64, settings *Settings) (Result, error) {
	s := settings.withDefaults()
	if err := p.validate(len(initial)); err != nil {
		return Result{}, err
	}

	n := len(initial)
	m := len(p.X)
	params := p.clamp(append([]float64(nil), initial...))

	r := make([]float64, m)
	sq := make([]float64, m)
	cost := p.residuals(params, r, sq)
	if !isFinite(cost) {
		return Result{}, fmt.Errorf("%w: initial point gives non-finite residuals", ErrInvalidProblem)
	}

	jac := make([]float64, m*n)
	grad := make([]float64, n)
	rhs := make([]float64, n)
	fixed := make([]bool, n)
	normal := make([]float64, n*n)
	system := make([]float64, n*n)
	step := make([]float64, n)
	trial := make([]float64, n)
	trialR := make([]float64, m)
	lambda := s.InitialDamping

	for iter := 1; iter <= s.MaxIterations; iter++ {
		if cost == 0 {
			return Result{Params: params, RSS: cost, Iterations: iter - 1, Status: StatusExactFit}, nil
		}

		p.jacobian(params, jac)
		normalEquations(jac, r, m, n, normal, grad)
		if p.projectedGradientNorm(params, grad) <= s.GTol {
			return Result{Params: params, RSS: cost, Iterations: iter - 1, Status: StatusGradient}, nil
		}

		p.activeSet(params, grad, fixed)
		for {
			copy(system, normal)
			copy(rhs, grad)
			for k := 0; k < n; k++ {
				d := normal[k*n+k]
				if d <= 0 {
					d = 1
				}
				system[k*n+k] += lambda * d
			}
			// Parameters held at a bound drop out of this step.
			for k := 0; k < n; k++ {
				if !fixed[k] {
					continue
				}
				for j := 0; j < n; j++ {
					system[k*n+j] = 0
					system[j*n+k] = 0
				}
				system[k*n+k] = 1
				rhs[k] = 0
			}

			if solve(system, rhs, step, n) {
				for k := range trial {
					trial[k] = params[k] + step[k]
				}
				p.clamp(trial)
				trialCost := p.residuals(trial, trialR, sq)

				if isFinite(trialCost) && trialCost < cost {
					moved := distance(trial, params)
					scale := norm(params)
					reduction := (cost - trialCost) / cost

					copy(params, trial)
					copy(r, trialR)
					cost = trialCost
					lambda = math.Max(lambda/10, 1e-15)

					switch {
					case cost == 0:
						return Result{Params: params, RSS: cost, Iterations: iter, Status: StatusExactFit}, nil
					case reduction <= s.FTol:
						return Result{Params: params, RSS: cost, Iterations: iter, Status: StatusCost}, nil
					case moved <= s.XTol*(s.XTol+scale):
						return Result{Params: params, RSS: cost, Iterations: iter, Status: StatusStep}, nil
					}
					break
				}
			}

			lambda *= 10
			if lambda > maxDamping {
				return Result{Params: params, RSS: cost, Iterations: iter, Status: StatusStalled}, nil
			}
		}
	}

	return Result{Params: params, RSS: cost, Iterations: s.MaxIterations},
		fmt.Errorf("%w after %d iterations (rss %g)", ErrNoConvergence, s.MaxIterations, cost)
}

// RSS returns the residual sum of squares of the model at params.
func RSS(p Problem, params []float64) float64 {
	r := make([]float64, len(p.X))
	sq := make([]float64, len(p.X))
	return p.residuals(params, r, sq)
}

func (p Problem) validate(n int) error {
	switch {
	case p.Model == nil:
		return fmt.Errorf("%w: nil model", ErrInvalidProblem)
	case n == 0:
		return fmt.Errorf("%w: no parameters", ErrInvalidProblem)
	case len(p.X) != len(p.Y):
		return fmt.Errorf("%w: %d x values, %d y values", ErrInvalidProblem, len(p.X), len(p.Y))
	case len(p.X) == 0:
		return fmt.Errorf("%w: no samples", ErrInvalidProblem)
	case p.Lower != nil && len(p.Lower) != n:
		return fmt.Errorf("%w: %d lower bounds for %d parameters", ErrInvalidProblem, len(p.Lower), n)
	case p.Upper != nil && len(p.Upper) != n:
		return fmt.Errorf("%w: %d upper bounds for %d parameters", ErrInvalidProblem, len(p.Upper), n)
	}
	for k := 0; k < n; k++ {
		if p.lower(k) > p.upper(k) {
			return fmt.Errorf("%w: parameter %d has lower bound above upper bound", ErrInvalidProblem, k)
		}
	}
	return nil
}

func (p Problem) lower(k int) float64 {
	if p.Lower == nil {
		return math.Inf(-1)
	}
	return p.Lower[k]
}

func (p Problem) upper(k int) float64 {
	if p.Upper == nil {
		return math.Inf(1)
	}
	return p.Upper[k]
}

func (p Problem) clamp(params []float64) []float64 {
	for k, v := range params {
		params[k] = math.Max(p.lower(k), math.Min(p.upper(k), v))
	}
	return params
}

// residuals fills r with y - model and returns the sum of squares.
func (p Problem) residuals(params, r, sq []float64) float64 {
	for i, x := range p.X {
		r[i] = p.Y[i] - p.Model(x, params)
	}
	vecmath.MulBlock(sq, r, r)
	var sum float64
	for _, v := range sq {
		sum += v
	}
	return sum
}

// jacobian fills jac (row-major, len(X) x len(params)) with model
// derivatives.
func (p Problem) jacobian(params, jac []float64) {
	n := len(params)
	if p.Gradient != nil {
		for i, x := range p.X {
			p.Gradient(x, params, jac[i*n:(i+1)*n])
		}
		return
	}

	work := append([]float64(nil), params...)
	for k := 0; k < n; k++ {
		h := math.Sqrt(2.220446049250313e-16) * math.Max(1, math.Abs(params[k]))
		if params[k]+h > p.upper(k) {
			h = -h
		}
		work[k] = params[k] + h
		for i, x := range p.X {
			jac[i*n+k] = (p.Model(x, work) - p.Model(x, params)) / h
		}
		work[k] = params[k]
	}
}

// activeSet marks parameters sitting on a bound whose descent direction
// points out of the box.
func (p Problem) activeSet(params, grad []float64, fixed []bool) {
	for k, g := range grad {
		fixed[k] = (params[k] <= p.lower(k) && g < 0) || (params[k] >= p.upper(k) && g > 0)
	}
}

// projectedGradientNorm ignores components that point out of the box at an
// active bound. grad holds J^T r, the descent direction.
func (p Problem) projectedGradientNorm(params, grad []float64) float64 {
	var worst float64
	for k, g := range grad {
		if params[k] <= p.lower(k) && g < 0 {
			continue
		}
		if params[k] >= p.upper(k) && g > 0 {
			continue
		}
		worst = math.Max(worst, math.Abs(g))
	}
	return worst
}

// normalEquations computes J^T J and J^T r.
func normalEquations(jac, r []float64, m, n int, normal, grad []float64) {
	for k := range normal {
		normal[k] = 0
	}
	for k := range grad {
		grad[k] = 0
	}
	for i := 0; i < m; i++ {
		row := jac[i*n : (i+1)*n]
		for a := 0; a < n; a++ {
			grad[a] += row[a] * r[i]
			for b := a; b < n; b++ {
				normal[a*n+b] += row[a] * row[b]
			}
		}
	}
	for a := 0; a < n; a++ {
		for b := 0; b < a; b++ {
			normal[a*n+b] = normal[b*n+a]
		}
	}
}

// solve solves A x = b by Gaussian elimination with partial pivoting. A is
// overwritten. Returns false if A is singular or the solution is not finite.
func solve(a, b, x []float64, n int) bool {
	rhs := append([]float64(nil), b...)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row*n+col]) > math.Abs(a[pivot*n+col]) {
				pivot = row
			}
		}
		if a[pivot*n+col] == 0 {
			return false
		}
		if pivot != col {
			for k := 0; k < n; k++ {
				a[col*n+k], a[pivot*n+k] = a[pivot*n+k], a[col*n+k]
			}
			rhs[col], rhs[pivot] = rhs[pivot], rhs[col]
		}
		for row := col + 1; row < n; row++ {
			f := a[row*n+col] / a[col*n+col]
			for k := col; k < n; k++ {
				a[row*n+k] -= f * a[col*n+k]
			}
			rhs[row] -= f * rhs[col]
		}
	}
	for row := n - 1; row >= 0; row-- {
		sum := rhs[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row*n+k] * x[k]
		}
		x[row] = sum / a[row*n+row]
		if !isFinite(x[row]) {
			return false
		}
	}
	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func distance(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}

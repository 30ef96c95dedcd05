package attenuation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/launchnoise/fit"
)

// Pair is one observation: a microphone's distance from the pad and the
// maximum level it recorded.
type Pair struct {
	DistanceKm float64
	Level      float64
}

// Result is a fitted model with its goodness of fit.
type Result struct {
	Model
	RSS        float64 // residual sum of squares
	R2         float64 // coefficient of determination
	Iterations int
	Status     fit.Status
}

// Fit fits the attenuation model to pairs with the default solver settings.
func Fit(pairs []Pair) (Result, error) {
	return FitWith(pairs, nil)
}

// FitWith fits the attenuation model to pairs. All four parameters are
// constrained to [0, +Inf).
//
// At least [MinDistinctDistances] distinct distances are required; fewer
// give [ErrDegenerateInput]. A solver that runs out of iterations gives
// [ErrNoConvergence].
func FitWith(pairs []Pair, settings *fit.Settings) (Result, error) {
	if len(pairs) == 0 {
		return Result{}, ErrEmptyDataset
	}
	xs := make([]float64, len(pairs))
	ys := make([]float64, len(pairs))
	for i, p := range pairs {
		if !isFinite(p.DistanceKm) || p.DistanceKm < 0 || !isFinite(p.Level) {
			return Result{}, fmt.Errorf("%w: pair %d (%v km, %v dB)", ErrBadSample, i, p.DistanceKm, p.Level)
		}
		xs[i], ys[i] = p.DistanceKm, p.Level
	}
	if n := distinct(xs); n < MinDistinctDistances {
		return Result{}, fmt.Errorf("%w: got %d", ErrDegenerateInput, n)
	}

	p0 := initialGuess(xs, ys)
	problem := fit.Problem{
		X:        xs,
		Y:        ys,
		Model:    modelFunc,
		Gradient: modelGrad,
		Lower:    []float64{0, 0, 0, 0},
	}
	res, err := fit.LeastSquares(problem, p0[:], settings)
	if err != nil {
		return Result{}, solverError(err)
	}

	m := Model{A: res.Params[0], B: res.Params[1], C: res.Params[2], D: res.Params[3]}
	return Result{
		Model:      m,
		RSS:        res.RSS,
		R2:         rSquared(ys, res.RSS),
		Iterations: res.Iterations,
		Status:     res.Status,
	}, nil
}

func solverError(err error) error {
	if errors.Is(err, fit.ErrNoConvergence) {
		return fmt.Errorf("%w: %w", ErrNoConvergence, err)
	}
	return fmt.Errorf("attenuation: %w", err)
}

// Residuals returns observed minus predicted level for each pair.
func (m Model) Residuals(pairs []Pair) []float64 {
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = p.Level - m.Evaluate(p.DistanceKm)
	}
	return out
}

// Curve samples the model at n evenly spaced distances in [lo, hi].
func (m Model) Curve(lo, hi float64, n int) (xs, ys []float64) {
	if n < 2 {
		n = 2
	}
	xs = make([]float64, n)
	ys = make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range xs {
		xs[i] = lo + float64(i)*step
		ys[i] = m.Evaluate(xs[i])
	}
	xs[n-1] = hi
	ys[n-1] = m.Evaluate(hi)
	return xs, ys
}

// initialGuess exploits -a*ln(b*x + c) = -a*ln(b) - a*ln(x + c/b): for a
// fixed ratio r = c/b the model is linear in (a, d). The ratio is chosen by
// a log-spaced scan refined with golden-section search, and b is set to 1.
func initialGuess(xs, ys []float64) [4]float64 {
	scale, minX := xs[0], xs[0]
	for _, x := range xs {
		scale = math.Max(scale, x)
		minX = math.Min(minX, x)
	}

	best := linearProfile(xs, ys, math.Inf(1))
	bestT := math.NaN()
	if minX > 0 {
		if p := linearProfile(xs, ys, 0); p.rss < best.rss {
			best = p
		}
	}
	for k := -24; k <= 12; k++ {
		t := float64(k) / 4
		if p := linearProfile(xs, ys, scale*math.Pow(10, t)); p.rss < best.rss {
			best, bestT = p, t
		}
	}

	if !math.IsNaN(bestT) {
		f := func(t float64) profile { return linearProfile(xs, ys, scale*math.Pow(10, t)) }
		if p := goldenSection(f, bestT-0.25, bestT+0.25); p.rss < best.rss {
			best = p
		}
	}

	if math.IsInf(best.rss, 1) {
		// Only reachable for degenerate inputs the caller already rejects.
		return [4]float64{0, 1, 1, meanOf(ys)}
	}
	return [4]float64{best.a, 1, best.r, math.Max(0, best.d)}
}

type profile struct {
	r, a, d, rss float64
}

// linearProfile solves the (a, d) least-squares problem for ratio r with
// a >= 0. An unusable r yields +Inf rss.
func linearProfile(xs, ys []float64, r float64) profile {
	bad := profile{r: r, rss: math.Inf(1)}
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return bad
	}

	n := float64(len(xs))
	var zbar, ybar float64
	z := make([]float64, len(xs))
	for i, x := range xs {
		z[i] = math.Log(x + r)
		if math.IsInf(z[i], 0) {
			return bad
		}
		zbar += z[i]
		ybar += ys[i]
	}
	zbar /= n
	ybar /= n

	var szz, szy float64
	for i := range z {
		dz := z[i] - zbar
		szz += dz * dz
		szy += dz * (ys[i] - ybar)
	}
	if szz == 0 {
		return bad
	}

	a := math.Max(0, -szy/szz)
	d := ybar + a*zbar
	var rss float64
	for i := range z {
		e := ys[i] - (d - a*z[i])
		rss += e * e
	}
	return profile{r: r, a: a, d: d, rss: rss}
}

// goldenSection minimizes f over [lo, hi] by rss.
func goldenSection(f func(float64) profile, lo, hi float64) profile {
	const invPhi = 0.6180339887498949
	c := hi - invPhi*(hi-lo)
	d := lo + invPhi*(hi-lo)
	fc, fd := f(c), f(d)
	for i := 0; i < 80 && hi-lo > 1e-12; i++ {
		if fc.rss < fd.rss {
			hi, d, fd = d, c, fc
			c = hi - invPhi*(hi-lo)
			fc = f(c)
		} else {
			lo, c, fc = c, d, fd
			d = lo + invPhi*(hi-lo)
			fd = f(d)
		}
	}
	if fc.rss < fd.rss {
		return fc
	}
	return fd
}

func rSquared(ys []float64, rss float64) float64 {
	mean := meanOf(ys)
	var tss float64
	for _, y := range ys {
		tss += (y - mean) * (y - mean)
	}
	if tss == 0 {
		if rss == 0 {
			return 1
		}
		return 0
	}
	return 1 - rss/tss
}

func distinct(xs []float64) int {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := 0
	for i, x := range sorted {
		if i == 0 || x != sorted[i-1] {
			n++
		}
	}
	return n
}

func meanOf(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package attenuation

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/launchnoise/fit"
	"github.com/cwbudde/launchnoise/internal/testutil"
)

func pairsFrom(m Model, xs ...float64) []Pair {
	out := make([]Pair, len(xs))
	for i, x := range xs {
		out[i] = Pair{DistanceKm: x, Level: m.Evaluate(x)}
	}
	return out
}

func requirePredicts(t *testing.T, got Result, want Model, pairs []Pair, eps float64) {
	t.Helper()
	for _, p := range pairs {
		testutil.RequireNearlyEqual(t, "prediction", got.Evaluate(p.DistanceKm), want.Evaluate(p.DistanceKm), eps)
	}
}

func requireNonNegative(t *testing.T, m Model) {
	t.Helper()
	for k, v := range m.Params() {
		if v < 0 || !isFinite(v) {
			t.Fatalf("param %d = %v", k, v)
		}
	}
}

func TestFit_RecoversUnitScaleModel(t *testing.T) {
	// With b = 1 the scan lands in the same gauge as the truth, so the raw
	// parameters are comparable.
	want := Model{A: 15, B: 1, C: 0.5, D: 140}
	pairs := pairsFrom(want, 0.5, 1, 2, 4, 8, 16, 32)

	res, err := Fit(pairs)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	got := res.Params()
	testutil.RequireSliceNearlyEqual(t, got[:], []float64{15, 1, 0.5, 140}, 1e-5)
	if res.RSS > 1e-12 {
		t.Fatalf("RSS = %v", res.RSS)
	}
	testutil.RequireNearlyEqual(t, "R2", res.R2, 1, 1e-12)
}

func TestFit_RecoversPredictions(t *testing.T) {
	// (a, k*b, k*c, d - a*ln k) describes the same curve for every k > 0,
	// so only the predictions are compared.
	want := Model{A: 12, B: 3, C: 2, D: 150}
	pairs := pairsFrom(want, 0.2, 0.7, 1.5, 3, 6, 12, 25)

	res, err := Fit(pairs)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	requireNonNegative(t, res.Model)
	requirePredicts(t, res, want, pairs, 1e-6)
	testutil.RequireNearlyEqual(t, "A", res.A, want.A, 1e-5)
}

func TestFit_ThroughTwoAnchors(t *testing.T) {
	// A curve through (1 km, 120 dB) and (10 km, 90 dB) with b = c = 1.
	a := 30 / math.Log(5.5)
	want := Model{A: a, B: 1, C: 1, D: 120 + a*math.Log(2)}
	pairs := pairsFrom(want, 1, 10, 2, 4, 20)
	testutil.RequireNearlyEqual(t, "anchor 1", pairs[0].Level, 120, 1e-12)
	testutil.RequireNearlyEqual(t, "anchor 10", pairs[1].Level, 90, 1e-12)

	res, err := Fit(pairs)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.RSS > 1e-10 {
		t.Fatalf("RSS = %v, want ~0", res.RSS)
	}
	testutil.RequireNearlyEqual(t, "SPL(1)", res.Evaluate(1), 120, 1e-6)
	testutil.RequireNearlyEqual(t, "SPL(10)", res.Evaluate(10), 90, 1e-6)
}

func TestFit_InverseRoundTrip(t *testing.T) {
	want := Model{A: 20, B: 0.8, C: 0.3, D: 130}
	pairs := pairsFrom(want, 0.25, 1, 3, 9, 27)
	res, err := Fit(pairs)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	for _, x := range []float64{0.5, 2, 5, 10, 40} {
		back, err := res.Inverse(res.Evaluate(x))
		if err != nil {
			t.Fatalf("Inverse: %v", err)
		}
		testutil.RequireNearlyEqual(t, "round trip", back, x, 1e-9)
	}
}

func TestFit_NoisyDataStaysInBounds(t *testing.T) {
	truth := Model{A: 9, B: 1.5, C: 0.2, D: 125}
	xs := []float64{0.3, 0.6, 1.1, 2.4, 3.9, 6.5, 11, 17, 30}
	noise := testutil.DeterministicNoise(7, 1.5, len(xs))
	pairs := make([]Pair, len(xs))
	for i, x := range xs {
		pairs[i] = Pair{DistanceKm: x, Level: truth.Evaluate(x) + noise[i]}
	}

	res, err := Fit(pairs)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	requireNonNegative(t, res.Model)
	if res.R2 < 0.9 {
		t.Fatalf("R2 = %v", res.R2)
	}
	// The fit can never be worse than the model that generated the data.
	var truthRSS float64
	for _, r := range truth.Residuals(pairs) {
		truthRSS += r * r
	}
	if res.RSS > truthRSS*(1+1e-9) {
		t.Fatalf("RSS %v exceeds generating model's %v", res.RSS, truthRSS)
	}
}

func TestFit_IncreasingLevelsPinSlope(t *testing.T) {
	pairs := []Pair{{1, 90}, {2, 92}, {3, 94}, {4, 96}}
	res, err := Fit(pairs)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	requireNonNegative(t, res.Model)
	if res.A > 1e-9 {
		t.Fatalf("A = %v, want pinned at 0", res.A)
	}
	testutil.RequireNearlyEqual(t, "D", res.D, 93, 1e-9)
	if _, err := res.Inverse(100); !errors.Is(err, ErrNotInvertible) {
		t.Fatalf("Inverse err = %v", err)
	}
}

func TestFit_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		pairs []Pair
		want  error
	}{
		{"empty", nil, ErrEmptyDataset},
		{"three distances", []Pair{{1, 120}, {2, 110}, {3, 105}}, ErrDegenerateInput},
		{"repeated distances", []Pair{{1, 120}, {1, 121}, {2, 110}, {2, 111}, {3, 105}}, ErrDegenerateInput},
		{"NaN level", []Pair{{1, 120}, {2, math.NaN()}, {3, 105}, {4, 100}}, ErrBadSample},
		{"negative distance", []Pair{{-1, 120}, {2, 110}, {3, 105}, {4, 100}}, ErrBadSample},
		{"infinite distance", []Pair{{math.Inf(1), 120}, {2, 110}, {3, 105}, {4, 100}}, ErrBadSample},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Fit(tt.pairs); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFitWith_IterationCap(t *testing.T) {
	// The best b = 1 curve has d = -5, so the start is clamped to d = 0 and
	// the solver must move b and c to compensate.
	shifted := Model{A: 10, B: 1, C: 1, D: -5}
	var pairs []Pair
	for _, x := range []float64{1, 2, 4, 8, 16} {
		pairs = append(pairs, Pair{DistanceKm: x, Level: Evaluate(shifted.A, shifted.B, shifted.C, shifted.D, x)})
	}

	_, err := FitWith(pairs, &fit.Settings{MaxIterations: 1})
	if !errors.Is(err, ErrNoConvergence) {
		t.Fatalf("err = %v, want ErrNoConvergence", err)
	}
	if !errors.Is(err, fit.ErrNoConvergence) {
		t.Fatalf("err = %v does not wrap the solver error", err)
	}
}

func TestSolverError(t *testing.T) {
	err := solverError(fit.ErrNoConvergence)
	if !errors.Is(err, ErrNoConvergence) || !errors.Is(err, fit.ErrNoConvergence) {
		t.Fatalf("err = %v", err)
	}
	err = solverError(fit.ErrInvalidProblem)
	if errors.Is(err, ErrNoConvergence) || !errors.Is(err, fit.ErrInvalidProblem) {
		t.Fatalf("err = %v", err)
	}
}

func TestInverse(t *testing.T) {
	m := Model{A: 10, B: 2, C: 1, D: 100}
	x, err := m.Inverse(100)
	if err != nil {
		t.Fatal(err)
	}
	// exp(0) = 1, so x = (1 - 1) / 2.
	if x != 0 {
		t.Fatalf("Inverse(100) = %v, want 0", x)
	}
	if x, _ := m.Inverse(120); x >= 0 {
		t.Fatalf("level above SPL(0) should give negative distance, got %v", x)
	}
	for _, bad := range []Model{{A: 0, B: 1}, {A: 1, B: 0}} {
		if _, err := bad.Inverse(90); !errors.Is(err, ErrNotInvertible) {
			t.Fatalf("%+v: err = %v", bad, err)
		}
	}
}

func TestModelGradMatchesDifferences(t *testing.T) {
	p := []float64{14, 1.7, 0.4, 133}
	g := make([]float64, 4)
	for _, x := range []float64{0.1, 1, 7.5} {
		modelGrad(x, p, g)
		for k := range p {
			h := 1e-6 * math.Max(1, p[k])
			up := append([]float64(nil), p...)
			dn := append([]float64(nil), p...)
			up[k] += h
			dn[k] -= h
			num := (modelFunc(x, up) - modelFunc(x, dn)) / (2 * h)
			testutil.RequireNearlyEqual(t, "gradient", g[k], num, 1e-6)
		}
	}
}

func TestCurve(t *testing.T) {
	m := Model{A: 10, B: 1, C: 1, D: 120}
	xs, ys := m.Curve(0, 10, 11)
	if len(xs) != 11 || xs[0] != 0 || xs[10] != 10 {
		t.Fatalf("xs = %v", xs)
	}
	for i := 1; i < len(ys); i++ {
		if ys[i] >= ys[i-1] {
			t.Fatalf("curve not decreasing at %d: %v", i, ys)
		}
	}
	if xs, _ := m.Curve(1, 2, 0); len(xs) != 2 {
		t.Fatalf("n < 2 should give two points, got %d", len(xs))
	}
}

func TestInitialGuessExactProfile(t *testing.T) {
	want := Model{A: 18, B: 1, C: 2, D: 135}
	pairs := pairsFrom(want, 0.5, 1, 2, 5, 10, 20)
	xs := make([]float64, len(pairs))
	ys := make([]float64, len(pairs))
	for i, p := range pairs {
		xs[i], ys[i] = p.DistanceKm, p.Level
	}
	p0 := initialGuess(xs, ys)
	testutil.RequireSliceNearlyEqual(t, p0[:], []float64{18, 1, 2, 135}, 1e-4)
}

func TestString(t *testing.T) {
	m := Model{A: 17.5981, B: 1, C: 1, D: 132.1981}
	if got, want := m.String(), "-17.5981 * ln(1.0000*x + 1.0000) + 132.1981"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

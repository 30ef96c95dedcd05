// Package attenuation fits the empirical peak-level attenuation curve
//
//	SPL(x) = -a*ln(b*x + c) + d,  a, b, c, d >= 0
//
// to (distance, maximum level) pairs, and answers the inverse question of
// how far from the pad a given level is reached.
package attenuation

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by the package.
var (
	ErrEmptyDataset    = errors.New("attenuation: no samples")
	ErrDegenerateInput = errors.New("attenuation: fewer than 4 distinct distances")
	ErrBadSample       = errors.New("attenuation: invalid sample")
	ErrNoConvergence   = errors.New("attenuation: fit did not converge")
	ErrNotInvertible   = errors.New("attenuation: model is not invertible")
)

// MinDistinctDistances is the number of distinct distances needed to fit
// the four model parameters.
const MinDistinctDistances = 4

// Model holds fitted attenuation parameters.
type Model struct {
	A, B, C, D float64
}

// Evaluate returns -a*ln(b*x + c) + d.
func Evaluate(a, b, c, d, x float64) float64 {
	return -a*math.Log(b*x+c) + d
}

// Evaluate returns the predicted level at distance x (km).
func (m Model) Evaluate(x float64) float64 {
	return Evaluate(m.A, m.B, m.C, m.D, x)
}

// Inverse returns the distance at which the model predicts level s:
//
//	x = (exp(-(s-d)/a) - c) / b
//
// The result is negative when s lies above the model's value at x = 0.
func (m Model) Inverse(s float64) (float64, error) {
	if m.A == 0 || m.B == 0 {
		return 0, fmt.Errorf("%w: a=%g b=%g", ErrNotInvertible, m.A, m.B)
	}
	return (math.Exp(-(s-m.D)/m.A) - m.C) / m.B, nil
}

// Params returns (a, b, c, d).
func (m Model) Params() [4]float64 {
	return [4]float64{m.A, m.B, m.C, m.D}
}

func (m Model) String() string {
	return fmt.Sprintf("-%.4f * ln(%.4f*x + %.4f) + %.4f", m.A, m.B, m.C, m.D)
}

func modelFunc(x float64, p []float64) float64 {
	return Evaluate(p[0], p[1], p[2], p[3], x)
}

func modelGrad(x float64, p, g []float64) {
	u := p[1]*x + p[2]
	g[0] = -math.Log(u)
	g[1] = -p[0] * x / u
	g[2] = -p[0] / u
	g[3] = 1
}

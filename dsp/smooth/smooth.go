// Package smooth provides moving-average smoothing for level series.
//
// All filters pad the input by replicating its edge samples and keep only
// the part of the convolution that lines up one-to-one with the input, so
// the output always has the input's length:
//
//	out, err := smooth.MovingAverage(levels, 12)
//
// Short kernels are applied directly in the time domain; kernels of
// [FFTThreshold] taps or more are applied with a single FFT convolution.
package smooth

import (
	"errors"
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

// Errors returned by the filters.
var (
	ErrEmptyInput    = errors.New("smooth: empty input")
	ErrInvalidWindow = errors.New("smooth: window must be at least 1")
)

// FFTThreshold is the kernel length from which FFT convolution is used.
const FFTThreshold = 64

// MovingAverage smooths x with an n-point uniform kernel. The input is
// padded with n/2 copies of its first value and n-1-n/2 copies of its last
// value before convolving, so len(out) == len(x) for every n >= 1.
func MovingAverage(x []float64, n int) ([]float64, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, n)
	}
	return Filter(x, Uniform(n))
}

// Uniform returns an n-tap kernel whose taps are all 1/n.
func Uniform(n int) []float64 {
	k := make([]float64, n)
	w := 1 / float64(n)
	for i := range k {
		k[i] = w
	}
	return k
}

// Filter convolves the edge-padded x with kernel and returns the len(x)
// samples aligned with the input.
func Filter(x, kernel []float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, ErrEmptyInput
	}
	n := len(kernel)
	if n == 0 {
		return nil, fmt.Errorf("%w: got 0", ErrInvalidWindow)
	}

	padded := PadEdge(x, n/2, n-1-n/2)
	if n < FFTThreshold {
		return validDirect(padded, kernel), nil
	}
	return validFFT(padded, kernel)
}

// PadEdge returns x with before copies of x[0] prepended and after copies
// of x[len(x)-1] appended. x must not be empty.
func PadEdge(x []float64, before, after int) []float64 {
	out := make([]float64, before+len(x)+after)
	for i := 0; i < before; i++ {
		out[i] = x[0]
	}
	copy(out[before:], x)
	last := x[len(x)-1]
	for i := before + len(x); i < len(out); i++ {
		out[i] = last
	}
	return out
}

// validDirect computes the valid part of padded * kernel in the time domain.
func validDirect(padded, kernel []float64) []float64 {
	n := len(kernel)
	outLen := len(padded) - n + 1

	// Convolution flips the kernel; the dot product below runs forward.
	rev := make([]float64, n)
	for i, v := range kernel {
		rev[n-1-i] = v
	}

	out := make([]float64, outLen)
	prod := make([]float64, n)
	for i := range out {
		vecmath.MulBlock(prod, padded[i:i+n], rev)
		var acc float64
		for _, p := range prod {
			acc += p
		}
		out[i] = acc
	}
	return out
}

// validFFT computes the same result as validDirect with one forward and
// inverse transform sized to hold the full linear convolution.
func validFFT(padded, kernel []float64) ([]float64, error) {
	n := len(kernel)
	fullLen := len(padded) + n - 1
	fftSize := nextPowerOf2(fullLen)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("smooth: failed to create FFT plan: %w", err)
	}

	sig := make([]complex128, fftSize)
	for i, v := range padded {
		sig[i] = complex(v, 0)
	}
	ker := make([]complex128, fftSize)
	for i, v := range kernel {
		ker[i] = complex(v, 0)
	}

	if err := plan.Forward(sig, sig); err != nil {
		return nil, fmt.Errorf("smooth: forward FFT failed: %w", err)
	}
	if err := plan.Forward(ker, ker); err != nil {
		return nil, fmt.Errorf("smooth: kernel FFT failed: %w", err)
	}
	for i := range sig {
		sig[i] *= ker[i]
	}
	if err := plan.Inverse(sig, sig); err != nil {
		return nil, fmt.Errorf("smooth: inverse FFT failed: %w", err)
	}

	out := make([]float64, len(padded)-n+1)
	for i := range out {
		out[i] = real(sig[n-1+i])
	}
	return out, nil
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

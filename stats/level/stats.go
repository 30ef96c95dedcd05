// Package level computes summary statistics of sound pressure level series.
//
// Levels are in decibels, so averages come in two flavours: the arithmetic
// mean of the dB values and the energy-equivalent level Leq, which averages
// the underlying pressure-squared quantities.
package level

import (
	"math"
	"sort"
)

// Stats holds level-series statistics.
type Stats struct {
	Length    int
	Max       float64
	MaxPos    int
	MaxOffset float64 // offset (s) of the first maximum, NaN without offsets
	Min       float64
	MinPos    int
	Mean      float64 // arithmetic mean of the dB values
	StdDev    float64
	Leq       float64 // energy-equivalent level
	L10       float64 // level exceeded 10% of the time
	L90       float64 // level exceeded 90% of the time
}

func emptyStats() Stats {
	return Stats{
		Max:       math.Inf(-1),
		Min:       math.Inf(1),
		MaxOffset: math.NaN(),
		Mean:      math.NaN(),
		Leq:       math.Inf(-1),
		L10:       math.NaN(),
		L90:       math.NaN(),
	}
}

// Calculate computes all statistics of levels. offsets may be nil; when
// given it must be index-aligned with levels and is used for MaxOffset.
func Calculate(levels, offsets []float64) Stats {
	n := len(levels)
	if n == 0 {
		return emptyStats()
	}

	var (
		mean, m2 float64
		maxVal   = levels[0]
		maxPos   int
		minVal   = levels[0]
		minPos   int
	)
	for i, x := range levels {
		// Welford update.
		delta := x - mean
		mean += delta / float64(i+1)
		m2 += delta * (x - mean)

		if x > maxVal {
			maxVal, maxPos = x, i
		}
		if x < minVal {
			minVal, minPos = x, i
		}
	}

	s := Stats{
		Length:    n,
		Max:       maxVal,
		MaxPos:    maxPos,
		MaxOffset: math.NaN(),
		Min:       minVal,
		MinPos:    minPos,
		Mean:      mean,
		StdDev:    math.Sqrt(m2 / float64(n)),
		Leq:       leq(levels, maxVal),
		L10:       Exceeded(levels, 10),
		L90:       Exceeded(levels, 90),
	}
	if len(offsets) == n {
		s.MaxOffset = offsets[maxPos]
	}
	return s
}

// Max returns the largest level, or -Inf for an empty series.
func Max(levels []float64) float64 {
	m := math.Inf(-1)
	for _, x := range levels {
		if x > m {
			m = x
		}
	}
	return m
}

// Leq returns the energy-equivalent level 10*log10(mean(10^(L/10))).
// Returns -Inf for an empty series.
func Leq(levels []float64) float64 {
	if len(levels) == 0 {
		return math.Inf(-1)
	}
	return leq(levels, Max(levels))
}

// leq factors out the maximum so 10^(L/10) never overflows.
func leq(levels []float64, ref float64) float64 {
	var sum float64
	for _, x := range levels {
		sum += math.Pow(10, (x-ref)/10)
	}
	return ref + 10*math.Log10(sum/float64(len(levels)))
}

// Exceeded returns the level exceeded pct percent of the time (L_pct),
// linearly interpolated between order statistics. pct is clamped to
// [0, 100]; an empty series yields NaN.
func Exceeded(levels []float64, pct float64) float64 {
	n := len(levels)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), levels...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	pct = math.Max(0, math.Min(100, pct))
	pos := pct / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// TimeAbove returns the total time the series spends at or above
// threshold. Each sample is credited with the spacing to the next sample;
// the last sample reuses the previous spacing.
func TimeAbove(levels, offsets []float64, threshold float64) float64 {
	n := min(len(levels), len(offsets))
	if n < 2 {
		return 0
	}
	var total float64
	for i := 0; i < n; i++ {
		if levels[i] < threshold {
			continue
		}
		var dt float64
		if i+1 < n {
			dt = offsets[i+1] - offsets[i]
		} else {
			dt = offsets[i] - offsets[i-1]
		}
		if dt > 0 {
			total += dt
		}
	}
	return total
}

// Package report writes the payloads of an analysis run: per-file series,
// observed and fitted maxima, a dense fitted curve, a JSON summary and a
// terminal table.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/cwbudde/launchnoise/aggregate"
	"github.com/cwbudde/launchnoise/attenuation"
	"github.com/cwbudde/launchnoise/geodesy"
)

// File names written by [WriteAll].
const (
	SeriesFile     = "series.csv"
	CurveFile      = "curve.csv"
	DenseCurveFile = "curve_dense.csv"
	SummaryFile    = "summary.json"
)

// DenseSamples is the number of points in the dense curve.
const DenseSamples = 200

// Pad identifies the reference position of a run.
type Pad struct {
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// NewPad returns a Pad for name at c.
func NewPad(name string, c geodesy.Coordinate) Pad {
	return Pad{Name: name, Lat: c.Lat, Lon: c.Lon}
}

// Microphone is one dataset entry as reported.
type Microphone struct {
	File       string  `json:"file"`
	DistanceKm float64 `json:"distance_km"`
	MaxSPL     float64 `json:"max_spl_dba"`
	MaxOffset  float64 `json:"max_time_s"`
	Leq        float64 `json:"leq_dba"`
	Samples    int     `json:"samples"`
	Fitted     float64 `json:"fitted_spl_dba"`
}

// Params are the fitted model parameters.
type Params struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
}

// Summary is the JSON summary of a run.
type Summary struct {
	RunID        string           `json:"run_id"`
	Vehicle      string           `json:"vehicle,omitempty"`
	Pad          Pad              `json:"pad"`
	Microphones  []Microphone     `json:"microphones"`
	Skipped      []aggregate.Skip `json:"skipped,omitempty"`
	Params       Params           `json:"params"`
	RSS          float64          `json:"rss"`
	R2           float64          `json:"r2"`
	ThresholdDBA float64          `json:"threshold_dba"`
	// SafeRadiusKm is nil when the model cannot be inverted or the
	// threshold lies above the model's value at the pad.
	SafeRadiusKm *float64 `json:"safe_radius_km"`
}

// NewSummary collects the outcome of a run.
func NewSummary(res aggregate.Result, fit attenuation.Result, pad Pad, threshold float64) Summary {
	s := Summary{
		RunID:        res.RunID,
		Vehicle:      res.Dataset.Vehicle(),
		Pad:          pad,
		Skipped:      res.Skipped,
		Params:       Params{A: fit.A, B: fit.B, C: fit.C, D: fit.D},
		RSS:          fit.RSS,
		R2:           fit.R2,
		ThresholdDBA: threshold,
	}
	for _, e := range res.Dataset.Entries {
		s.Microphones = append(s.Microphones, Microphone{
			File:       filepath.Base(e.Path),
			DistanceKm: e.DistanceKm,
			MaxSPL:     e.MaxLevel,
			MaxOffset:  finiteOrZero(e.Stats.MaxOffset),
			Leq:        finiteOrZero(e.Stats.Leq),
			Samples:    e.Series.Len(),
			Fitted:     fit.Evaluate(e.DistanceKm),
		})
	}
	if r, err := fit.Inverse(threshold); err == nil && r >= 0 && !math.IsInf(r, 0) && !math.IsNaN(r) {
		s.SafeRadiusKm = &r
	}
	return s
}

// WriteSeries writes one row per sample: file, distance, launch-relative
// time and A-weighted level.
func WriteSeries(w io.Writer, ds aggregate.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"file", "distance_km", "time_s", "spl_dba"}); err != nil {
		return err
	}
	for _, e := range ds.Entries {
		name := filepath.Base(e.Path)
		dist := formatFloat(e.DistanceKm)
		for i, lvl := range e.Series.Levels {
			if err := cw.Write([]string{name, dist, formatFloat(e.Series.Offsets[i]), formatFloat(lvl)}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCurve writes observed and fitted maxima per microphone.
func WriteCurve(w io.Writer, s Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"distance_km", "max_spl_dba", "fitted_spl_dba"}); err != nil {
		return err
	}
	for _, m := range s.Microphones {
		if err := cw.Write([]string{formatFloat(m.DistanceKm), formatFloat(m.MaxSPL), formatFloat(m.Fitted)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDenseCurve samples the model at n points over [lo, hi] for plotting.
// Points where the model is not finite, such as x = 0 with c = 0, are left
// out.
func WriteDenseCurve(w io.Writer, m attenuation.Model, lo, hi float64, n int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"distance_km", "fitted_spl_dba"}); err != nil {
		return err
	}
	xs, ys := m.Curve(lo, hi, n)
	for i := range xs {
		if math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) {
			continue
		}
		if err := cw.Write([]string{formatFloat(xs[i]), formatFloat(ys[i])}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes s as indented JSON.
func WriteJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteAll writes every payload into dir, creating it if needed, and returns
// the written paths.
func WriteAll(dir string, res aggregate.Result, s Summary, m attenuation.Model) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	minDist, maxDist := math.Inf(1), 0.0
	for _, mic := range s.Microphones {
		minDist = math.Min(minDist, mic.DistanceKm)
		maxDist = math.Max(maxDist, mic.DistanceKm)
	}
	if math.IsInf(minDist, 1) {
		minDist = 0
	}
	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{SeriesFile, func(w io.Writer) error { return WriteSeries(w, res.Dataset) }},
		{CurveFile, func(w io.Writer) error { return WriteCurve(w, s) }},
		{DenseCurveFile, func(w io.Writer) error { return WriteDenseCurve(w, m, minDist, maxDist, DenseSamples) }},
		{SummaryFile, func(w io.Writer) error { return WriteJSON(w, s) }},
	}
	paths := make([]string, 0, len(writers))
	for _, wr := range writers {
		path := filepath.Join(dir, wr.name)
		if err := writeFile(path, wr.write); err != nil {
			return paths, fmt.Errorf("report: %s: %w", wr.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Print writes the terminal summary: a table of microphones, the maxima
// list, the model and the safe range for the threshold.
func Print(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "File\tDistance [km]\tMax SPL [dBA]\tt(max) [s]\tFitted [dBA]\n")
	fmt.Fprintf(tw, "----\t-------------\t-------------\t----------\t------------\n")
	maxes := make([]float64, len(s.Microphones))
	for i, m := range s.Microphones {
		maxes[i] = math.Round(m.MaxSPL*100) / 100
		fmt.Fprintf(tw, "%s\t%.3f\t%.2f\t%.2f\t%.2f\n", m.File, m.DistanceKm, m.MaxSPL, m.MaxOffset, m.Fitted)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, sk := range s.Skipped {
		fmt.Fprintf(w, "skipped %s: %s\n", filepath.Base(sk.Path), sk.Reason)
	}

	fmt.Fprintf(w, "\nMax SPL in each microphone around the launch pad: %v\n", maxes)
	fmt.Fprintf(w, "\nFunction format: -a * ln(b*x + c) + d\n")
	fmt.Fprintf(w, "where: a = %.4f, b = %.4f, c = %.4f, d = %.4f\n", s.Params.A, s.Params.B, s.Params.C, s.Params.D)
	fmt.Fprintf(w, "RSS = %.4g, R^2 = %.4f\n", s.RSS, s.R2)
	var err error
	if s.SafeRadiusKm != nil {
		_, err = fmt.Fprintf(w, "For max sound level of %g[dBa], use range of %.2f[km].\n", s.ThresholdDBA, *s.SafeRadiusKm)
	} else {
		_, err = fmt.Fprintf(w, "No safe range for max sound level of %g[dBa]: the model does not reach it.\n", s.ThresholdDBA)
	}
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

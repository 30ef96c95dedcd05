package micfile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Series is a launch-relative level history. Offsets and Levels are index
// aligned and kept in file row order; offsets are negative before launch.
type Series struct {
	Offsets []float64 // seconds relative to launch
	Levels  []float64 // dB

	// Dropped counts data rows after the first whose level was the
	// missing-data sentinel. Those rows are not part of the series.
	Dropped int
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Levels) }

// Max returns the highest level and the offset at which it first occurs.
// An empty series yields -Inf and NaN.
func (s Series) Max() (level, offset float64) {
	level, offset = math.Inf(-1), math.NaN()
	for i, v := range s.Levels {
		if v > level {
			level, offset = v, s.Offsets[i]
		}
	}
	return level, offset
}

// ParseSeries reads the numeric block using [DefaultSchema].
func ParseSeries(r io.Reader, h Header) (Series, error) {
	return DefaultSchema.ParseSeries(r, h)
}

// LoadSeries is the file-path form of [ParseSeries].
func LoadSeries(path string, h Header) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return Series{}, err
	}
	defer f.Close()
	return ParseSeries(f, h)
}

// ParseSeries reads every row after h.StartIndex, converting the time of day
// to seconds relative to h.LaunchTime and taking the schema's level column.
//
// The first level is inspected before anything else is parsed: if it is the
// sentinel the whole recording is unusable and ParseSeries returns
// [ErrNoData]. Timestamps are not checked for order or duplicates.
func (s Schema) ParseSeries(r io.Reader, h Header) (Series, error) {
	s = s.withDefaults()
	cr := newReader(r)
	need := max(s.TimeColumn, s.LevelColumn) + 1

	var out Series
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Series{}, fmt.Errorf("micfile: read data: %w", err)
		}
		line := cr.Line()
		if line-1 <= h.StartIndex || isBlank(rec) {
			continue
		}
		if len(rec) < need {
			return Series{}, &FieldError{
				Field: "data row",
				Value: strings.Join(rec, ","),
				Line:  line,
				Err:   fmt.Errorf("want %d columns, got %d", need, len(rec)),
			}
		}

		raw := strings.TrimSpace(rec[s.LevelColumn])
		if strings.EqualFold(raw, s.Sentinel) {
			if first {
				return Series{}, ErrNoData
			}
			out.Dropped++
			continue
		}
		first = false

		level, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Series{}, &FieldError{Field: "level", Value: raw, Line: line, Err: err}
		}

		tod, err := ParseTimeOfDay(rec[s.TimeColumn])
		if err != nil {
			var tpe *TimeParseError
			if errors.As(err, &tpe) {
				tpe.Line = line
			}
			return Series{}, err
		}

		out.Offsets = append(out.Offsets, tod-h.LaunchTime)
		out.Levels = append(out.Levels, level)
	}

	if len(out.Levels) == 0 {
		return Series{}, ErrNoData
	}
	return out, nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

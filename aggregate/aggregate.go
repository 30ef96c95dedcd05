// Package aggregate turns a directory of microphone recordings into an
// ordered dataset of (distance, maximum level) entries relative to a pad.
package aggregate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/launchnoise/attenuation"
	"github.com/cwbudde/launchnoise/dsp/smooth"
	"github.com/cwbudde/launchnoise/geodesy"
	"github.com/cwbudde/launchnoise/internal/logging"
	"github.com/cwbudde/launchnoise/micfile"
	"github.com/cwbudde/launchnoise/stats/level"
)

// Stage names the step of the per-file pipeline that failed.
type Stage string

const (
	StageRead   Stage = "read"
	StageHeader Stage = "header"
	StageSeries Stage = "series"
	StageSmooth Stage = "smooth"
)

// DefaultExtension is the file extension considered when Options leaves it empty.
const DefaultExtension = ".csv"

// FileError is a fatal error tied to one input file.
type FileError struct {
	Path  string
	Stage Stage
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("aggregate: %s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Options controls a run.
type Options struct {
	// Workers bounds concurrent file loads. Zero uses GOMAXPROCS.
	Workers int
	// SmoothWindow enables a moving average of that length before the
	// maximum is taken. Values <= 1 leave the series untouched.
	SmoothWindow int
	// Extension filters directory entries. "*" accepts every file.
	Extension string
	// Schema overrides the header labels and data columns.
	Schema *micfile.Schema
}

// Entry is one successfully loaded recording.
type Entry struct {
	Path       string
	Vehicle    string
	Position   geodesy.Coordinate
	DistanceKm float64
	Series     micfile.Series
	// Smoothed is set only when smoothing is enabled.
	Smoothed []float64
	MaxLevel float64
	Stats    level.Stats
}

// Dataset holds entries in lexical filename order.
type Dataset struct {
	Entries []Entry
}

// Len returns the number of entries.
func (d Dataset) Len() int { return len(d.Entries) }

// Pairs returns the (distance, maximum level) observations for fitting.
func (d Dataset) Pairs() []attenuation.Pair {
	out := make([]attenuation.Pair, len(d.Entries))
	for i, e := range d.Entries {
		out[i] = attenuation.Pair{DistanceKm: e.DistanceKm, Level: e.MaxLevel}
	}
	return out
}

// Vehicle returns the vehicle name of the first entry that has one.
func (d Dataset) Vehicle() string {
	for _, e := range d.Entries {
		if e.Vehicle != "" {
			return e.Vehicle
		}
	}
	return ""
}

// Skip records a file left out of the dataset.
type Skip struct {
	Path   string
	Reason string
}

// Result is the outcome of a run.
type Result struct {
	RunID   string
	Dataset Dataset
	Skipped []Skip
}

// Aggregator loads recordings from a directory.
type Aggregator struct {
	opts   Options
	logger *zap.Logger
}

// New returns an Aggregator. A nil logger discards output.
func New(opts Options, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	return &Aggregator{opts: opts, logger: logger}
}

type outcome struct {
	entry   Entry
	skipped bool
	reason  string
}

// Run processes every matching file in dir against the pad position.
// Files whose first data row carries the no-data sentinel are skipped and
// reported; any other failure aborts the run with a *FileError.
func (a *Aggregator) Run(ctx context.Context, dir string, pad geodesy.Coordinate) (Result, error) {
	runID := uuid.NewString()
	logger := a.logger.With(zap.String("run_id", runID), zap.String("dir", dir))

	if err := pad.Validate(); err != nil {
		return Result{}, fmt.Errorf("aggregate: pad: %w", err)
	}
	paths, err := a.listFiles(dir)
	if err != nil {
		return Result{}, fmt.Errorf("aggregate: %w", err)
	}
	logger.Info("Loading recordings", zap.Int("files", len(paths)), zap.Int("workers", a.opts.Workers))

	outcomes := make([]outcome, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := a.load(path, pad)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var fe *FileError
		if errors.As(err, &fe) {
			logger.Error("Aborting run", zap.String("file", fe.Path), zap.String("stage", string(fe.Stage)), zap.Error(fe.Err))
		}
		return Result{}, err
	}

	res := Result{RunID: runID}
	for i, out := range outcomes {
		if out.skipped {
			logger.Warn("Skipping file without data", zap.String("file", paths[i]), zap.String("reason", out.reason))
			res.Skipped = append(res.Skipped, Skip{Path: paths[i], Reason: out.reason})
			continue
		}
		res.Dataset.Entries = append(res.Dataset.Entries, out.entry)
	}
	logger.Info("Loaded recordings", zap.Int("entries", res.Dataset.Len()), zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

// listFiles returns the regular, non-hidden files of dir matching the
// extension, sorted by name.
func (a *Aggregator) listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !e.Type().IsRegular() {
			continue
		}
		if a.opts.Extension != "*" && !strings.EqualFold(filepath.Ext(name), a.opts.Extension) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths, nil
}

func (a *Aggregator) schema() micfile.Schema {
	if a.opts.Schema != nil {
		return *a.opts.Schema
	}
	return micfile.DefaultSchema
}

func (a *Aggregator) load(path string, pad geodesy.Coordinate) (outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return outcome{}, &FileError{Path: path, Stage: StageRead, Err: err}
	}
	schema := a.schema()
	h, err := schema.ParseHeader(bytes.NewReader(data))
	if err != nil {
		return outcome{}, &FileError{Path: path, Stage: StageHeader, Err: err}
	}
	s, err := schema.ParseSeries(bytes.NewReader(data), h)
	if errors.Is(err, micfile.ErrNoData) {
		return outcome{skipped: true, reason: err.Error()}, nil
	}
	if err != nil {
		return outcome{}, &FileError{Path: path, Stage: StageSeries, Err: err}
	}

	e := Entry{
		Path:       path,
		Vehicle:    h.Vehicle,
		Position:   h.Position,
		DistanceKm: geodesy.Distance(h.Position, pad),
		Series:     s,
	}
	levels := s.Levels
	if a.opts.SmoothWindow > 1 {
		e.Smoothed, err = smooth.MovingAverage(s.Levels, a.opts.SmoothWindow)
		if err != nil {
			return outcome{}, &FileError{Path: path, Stage: StageSmooth, Err: err}
		}
		levels = e.Smoothed
	}
	e.Stats = level.Calculate(levels, s.Offsets)
	e.MaxLevel = e.Stats.Max
	return outcome{entry: e}, nil
}

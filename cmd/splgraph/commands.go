package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cwbudde/launchnoise/aggregate"
	"github.com/cwbudde/launchnoise/attenuation"
	"github.com/cwbudde/launchnoise/geodesy"
	"github.com/cwbudde/launchnoise/internal/config"
	"github.com/cwbudde/launchnoise/internal/logging"
	"github.com/cwbudde/launchnoise/report"
)

type analyzeFlags struct {
	configPath string
	pad        string
	lat, lon   float64
	threshold  float64
	smooth     int
	workers    int
	out        string
	noReport   bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "splgraph",
		Short:         "Fit launch noise attenuation curves from microphone recordings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newAnalyzeCmd(), newPadsCmd(), newDistanceCmd())
	return root
}

func newAnalyzeCmd() *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze DIR",
		Short: "Aggregate a directory of recordings and fit the attenuation curve",
		Long: `analyze reads every recording in DIR, computes each microphone's distance
to the launch pad and its maximum A-weighted level, and fits

  SPL(x) = -a * ln(b*x + c) + d

to the maxima. Files whose data starts with NaN are skipped and reported.

Examples:
  splgraph analyze RocketNoiseCSV/ANTARES230 --pad marspad-0a
  splgraph analyze data --lat 28.562106 --lon -80.57718 --threshold 110 --out results`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fl.StringVar(&f.pad, "pad", "", "named launch pad (see 'splgraph pads')")
	fl.Float64Var(&f.lat, "lat", 0, "pad latitude in degrees")
	fl.Float64Var(&f.lon, "lon", 0, "pad longitude in degrees")
	fl.Float64Var(&f.threshold, "threshold", 0, "level in dBA for the safe range (default from config, 100)")
	fl.IntVar(&f.smooth, "smooth", 0, "moving-average window applied before taking maxima")
	fl.IntVarP(&f.workers, "workers", "j", 0, "concurrent file loads (default GOMAXPROCS)")
	fl.StringVarP(&f.out, "out", "o", "", "output directory for reports")
	fl.BoolVar(&f.noReport, "no-report", false, "print the summary only")
	cmd.MarkFlagsMutuallyExclusive("pad", "lat")
	cmd.MarkFlagsMutuallyExclusive("pad", "lon")
	cmd.MarkFlagsRequiredTogether("lat", "lon")
	return cmd
}

func runAnalyze(cmd *cobra.Command, dir string, f analyzeFlags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	fl := cmd.Flags()
	if fl.Changed("threshold") {
		cfg.Analysis.ThresholdDBA = f.threshold
	}
	if fl.Changed("smooth") {
		cfg.Analysis.SmoothWindow = f.smooth
	}
	if fl.Changed("workers") {
		cfg.Analysis.Workers = f.workers
	}
	if fl.Changed("out") {
		cfg.Output.Dir = f.out
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	pad, err := resolvePad(cfg, f, fl.Changed("lat"))
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	agg := aggregate.New(aggregate.Options{
		Workers:      cfg.Analysis.Workers,
		SmoothWindow: cfg.Analysis.SmoothWindow,
		Extension:    cfg.Analysis.Extension,
	}, logger)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := agg.Run(ctx, dir, pad.Coordinate())
	if err != nil {
		return err
	}

	fit, err := attenuation.Fit(res.Dataset.Pairs())
	if err != nil {
		logger.Error("Fit failed", zap.String("run_id", res.RunID), zap.Error(err))
		return err
	}
	logger.Info("Fitted attenuation model",
		zap.String("run_id", res.RunID),
		zap.Stringer("model", fit.Model),
		zap.Float64("rss", fit.RSS),
		zap.Int("iterations", fit.Iterations),
		zap.Stringer("status", fit.Status),
	)

	summary := report.NewSummary(res, fit, report.NewPad(pad.Name, pad.Coordinate()), cfg.Analysis.ThresholdDBA)
	if err := report.Print(cmd.OutOrStdout(), summary); err != nil {
		return err
	}
	if f.noReport {
		return nil
	}
	paths, err := report.WriteAll(cfg.Output.Dir, res, summary, fit.Model)
	if err != nil {
		return err
	}
	logger.Info("Wrote reports", zap.Strings("files", paths))
	return nil
}

func resolvePad(cfg config.Config, f analyzeFlags, explicit bool) (config.Pad, error) {
	if explicit {
		p := config.Pad{Name: "custom", Lat: f.lat, Lon: f.lon}
		if err := p.Coordinate().Validate(); err != nil {
			return config.Pad{}, err
		}
		return p, nil
	}
	if f.pad == "" {
		return config.Pad{}, fmt.Errorf("either --pad or --lat/--lon is required")
	}
	return cfg.Pad(f.pad)
}

func newPadsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "pads",
		Short: "List known launch pads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Name\tLatitude\tLongitude\tDescription\n")
			fmt.Fprintf(tw, "----\t--------\t---------\t-----------\n")
			for _, name := range cfg.PadNames() {
				p := cfg.Pads[name]
				fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%s\n", name, p.Lat, p.Lon, p.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file")
	return cmd
}

func newDistanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distance LAT1 LON1 LAT2 LON2",
		Short: "Print the great-circle distance between two points in km",
		Args:  cobra.ExactArgs(4),
		// Negative coordinates would otherwise be read as shorthand flags.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var v [4]float64
			for i, a := range args {
				x, err := strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("argument %d: %w", i+1, err)
				}
				v[i] = x
			}
			a := geodesy.Coordinate{Lat: v[0], Lon: v[1]}
			b := geodesy.Coordinate{Lat: v[2], Lon: v[3]}
			for _, c := range []geodesy.Coordinate{a, b} {
				if err := c.Validate(); err != nil {
					return err
				}
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%.6f km\n", geodesy.Distance(a, b))
			return err
		},
	}
}

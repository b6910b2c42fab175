package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/star/satvis/internal/pipeline"
	"github.com/star/satvis/internal/propagation"
	"github.com/star/satvis/internal/transform"
	"github.com/star/satvis/internal/visibility"
)

type observerFlags struct {
	lat, lon, alt float64
}

func (o *observerFlags) register(fs *pflag.FlagSet) {
	fs.Float64Var(&o.lat, "lat", 0, "observer geodetic latitude in degrees (required)")
	fs.Float64Var(&o.lon, "lon", 0, "observer longitude in degrees, east positive (required)")
	fs.Float64Var(&o.alt, "alt", 0, "observer altitude above the ellipsoid in meters")
}

func (o *observerFlags) observer() transform.Observer {
	return transform.Observer{LatitudeDeg: o.lat, LongitudeDeg: o.lon, AltitudeM: o.alt}
}

func markObserverRequired(cmd *cobra.Command) {
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lon")
}

type visibleOptions struct {
	source  sourceFlags
	obs     observerFlags
	at      string
	minEl   float64
	all     bool
	asJSON  bool
	workers int
}

func newVisibleCmd() *cobra.Command {
	var opts visibleOptions
	cmd := &cobra.Command{
		Use:   "visible",
		Short: "List satellites above the observer's horizon at an instant",
		Example: `  satvis visible --lat 40.7128 --lon -74.0060 --group stations
  satvis visible --lat 51.5 --lon -0.12 --file catalog.tle --time 2025-02-14T12:00:00Z --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVisible(cmd, &opts)
		},
	}

	fs := cmd.Flags()
	opts.source.register(fs)
	opts.obs.register(fs)
	fs.StringVar(&opts.at, "time", "now", "query instant: RFC 3339, Unix seconds or \"now\"")
	fs.Float64Var(&opts.minEl, "min-elevation", 0, "visibility threshold in degrees (env SATVIS_MIN_ELEVATION, default 10)")
	fs.BoolVar(&opts.all, "all", false, "list every satellite, not just visible ones")
	fs.BoolVar(&opts.asJSON, "json", false, "print the full report as JSON")
	fs.IntVar(&opts.workers, "workers", 0, "worker pool size (env SATVIS_WORKERS, default NumCPU)")
	markObserverRequired(cmd)
	return cmd
}

func runVisible(cmd *cobra.Command, opts *visibleOptions) error {
	logger := cmdLogger(cmd, os.Stderr, "warn")

	at, err := parseTime(opts.at)
	if err != nil {
		return err
	}

	queryCfg := loadQueryConfig(logger)
	if err := opts.source.apply(loadTLEConfig(logger), &queryCfg); err != nil {
		return err
	}
	if cmd.Flags().Changed("min-elevation") {
		if opts.minEl < -90 || opts.minEl > 90 {
			return fmt.Errorf("--min-elevation %g not within [-90, 90]", opts.minEl)
		}
		queryCfg.Pipeline.ThresholdDeg = opts.minEl
	}
	if opts.workers > 0 {
		queryCfg.Pipeline.Workers = opts.workers
	}

	cat, err := opts.source.load(cmd.Context(), logger)
	if err != nil {
		return err
	}

	prop := pipeline.FromSGP4(propagation.New(propagation.Config{Gravity: queryCfg.Gravity}), logger)
	pipe := pipeline.New(prop, transform.NewTransformer(queryCfg.Transform), queryCfg.Pipeline, logger)

	report, err := pipe.Run(cmd.Context(), cat, opts.obs.observer(), at)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	rows := report.Results
	if !opts.all {
		rows = report.Visible()
	}
	if err := printResults(out, rows); err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "%s: %d of %d satellites above %.1f deg at %s\n",
		cat.Source, len(report.Visible()), report.CatalogSize, report.ThresholdDeg,
		report.Time.Format(time.RFC3339))
	for _, f := range report.Failures {
		fmt.Fprintf(errOut, "  skipped NORAD %d %s: %s failed: %s\n", f.NoradID, f.Name, f.Stage, f.Reason)
	}
	return nil
}

func printResults(w io.Writer, rows []visibility.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "NORAD\tNAME\tEL\tAZ\tRANGE_KM\tVISIBLE\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%.1f\t%t\t\n",
			r.NoradID, r.Name, r.ElevationDeg, r.AzimuthDeg, r.RangeM/1000, r.Visible)
	}
	return tw.Flush()
}

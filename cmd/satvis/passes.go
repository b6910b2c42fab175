package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/satvis/internal/passes"
	"github.com/star/satvis/internal/pipeline"
	"github.com/star/satvis/internal/propagation"
	"github.com/star/satvis/internal/transform"
	"github.com/star/satvis/internal/visibility"
)

type passesOptions struct {
	source    sourceFlags
	obs       observerFlags
	norad     []int
	start     string
	hours     int
	minEl     float64
	maxPasses int
	asJSON    bool
}

func newPassesCmd() *cobra.Command {
	var opts passesOptions
	cmd := &cobra.Command{
		Use:     "passes",
		Short:   "Predict passes of selected satellites over the observer",
		Example: `  satvis passes --norad 25544 --lat 40.7128 --lon -74.0060 --group stations --hours 48`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPasses(cmd, &opts)
		},
	}

	fs := cmd.Flags()
	opts.source.register(fs)
	opts.obs.register(fs)
	fs.IntSliceVar(&opts.norad, "norad", nil, "NORAD catalog numbers to predict (required, repeatable)")
	fs.StringVar(&opts.start, "start", "now", "window start: RFC 3339, Unix seconds or \"now\"")
	fs.IntVar(&opts.hours, "hours", 24, "window length in hours")
	fs.Float64Var(&opts.minEl, "min-elevation", visibility.DefaultThresholdDeg, "minimum elevation in degrees a pass must reach")
	fs.IntVar(&opts.maxPasses, "max-passes", 10, "passes per satellite, 0 for all in the window")
	fs.BoolVar(&opts.asJSON, "json", false, "print passes as JSON, ground tracks included")
	markObserverRequired(cmd)
	cmd.MarkFlagRequired("norad")
	return cmd
}

func runPasses(cmd *cobra.Command, opts *passesOptions) error {
	logger := cmdLogger(cmd, os.Stderr, "warn")

	start, err := parseTime(opts.start)
	if err != nil {
		return err
	}
	if opts.minEl < -90 || opts.minEl > 90 {
		return fmt.Errorf("--min-elevation %g not within [-90, 90]", opts.minEl)
	}

	queryCfg := loadQueryConfig(logger)
	if err := opts.source.apply(loadTLEConfig(logger), &queryCfg); err != nil {
		return err
	}
	cat, err := opts.source.load(cmd.Context(), logger)
	if err != nil {
		return err
	}

	prop := pipeline.FromSGP4(propagation.New(propagation.Config{Gravity: queryCfg.Gravity}), logger)
	predictor := passes.NewPredictor(prop, transform.NewTransformer(queryCfg.Transform), queryCfg.Pipeline.Workers, logger)

	results, err := predictor.Predict(cmd.Context(), cat, passes.Request{
		Observer:        opts.obs.observer(),
		NoradIDs:        opts.norad,
		Start:           start,
		Window:          time.Duration(opts.hours) * time.Hour,
		MinElevationDeg: opts.minEl,
		MaxPasses:       opts.maxPasses,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NORAD\tNAME\tRISE\tAZ\tCULMINATION\tMAX_EL\tSET\tAZ\tDURATION")
	for _, sat := range results {
		if sat.Error != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "NORAD %d: %s\n", sat.NoradID, sat.Error)
			continue
		}
		for _, p := range sat.Passes {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%.0f\t%s\t%.1f\t%s\t%.0f\t%s\n",
				sat.NoradID, sat.Name,
				p.Rise.Format(time.RFC3339), p.RiseAzimuthDeg,
				p.Culmination.Format(time.RFC3339), p.MaxElevationDeg,
				p.Set.Format(time.RFC3339), p.SetAzimuthDeg,
				time.Duration(p.DurationSeconds)*time.Second,
			)
		}
	}
	return tw.Flush()
}

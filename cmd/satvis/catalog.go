package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/satvis/internal/propagation"
	"github.com/star/satvis/internal/tle"
)

type catalogOptions struct {
	source sourceFlags
	list   bool
	asJSON bool
}

type catalogEntry struct {
	NoradID       int       `json:"norad_id"`
	Name          string    `json:"name"`
	Epoch         time.Time `json:"epoch"`
	PeriodMinutes float64   `json:"period_minutes"`
	Model         string    `json:"model"`
}

type catalogSummary struct {
	Source    string         `json:"source"`
	FetchedAt time.Time      `json:"fetched_at"`
	EpochMin  time.Time      `json:"epoch_min"`
	EpochMax  time.Time      `json:"epoch_max"`
	Count     int            `json:"count"`
	Skipped   []string       `json:"skipped"`
	Records   []catalogEntry `json:"records,omitempty"`
}

func newCatalogCmd() *cobra.Command {
	var opts catalogOptions
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Fetch or read a TLE catalog and summarize it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatalog(cmd, &opts)
		},
	}

	fs := cmd.Flags()
	opts.source.register(fs)
	fs.BoolVar(&opts.list, "list", false, "list every record")
	fs.BoolVar(&opts.asJSON, "json", false, "print as JSON")
	return cmd
}

func runCatalog(cmd *cobra.Command, opts *catalogOptions) error {
	logger := cmdLogger(cmd, os.Stderr, "warn")

	queryCfg := loadQueryConfig(logger)
	if err := opts.source.apply(loadTLEConfig(logger), &queryCfg); err != nil {
		return err
	}
	cat, err := opts.source.load(cmd.Context(), logger)
	if err != nil {
		return err
	}

	sum := summarize(cat, opts.list, queryCfg.Gravity)
	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Fprintf(out, "source:   %s\n", sum.Source)
	fmt.Fprintf(out, "fetched:  %s\n", sum.FetchedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "records:  %d\n", sum.Count)
	fmt.Fprintf(out, "skipped:  %d\n", len(sum.Skipped))
	fmt.Fprintf(out, "epochs:   %s .. %s\n", sum.EpochMin.Format(time.RFC3339), sum.EpochMax.Format(time.RFC3339))
	for _, s := range sum.Skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", s)
	}

	if !opts.list {
		return nil
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NORAD\tNAME\tEPOCH\tPERIOD_MIN\tMODEL")
	for _, e := range sum.Records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\n",
			e.NoradID, e.Name, e.Epoch.Format(time.RFC3339), e.PeriodMinutes, e.Model)
	}
	return tw.Flush()
}

func summarize(cat *tle.Catalog, list bool, g propagation.Gravity) catalogSummary {
	sum := catalogSummary{
		Source:    cat.Source,
		FetchedAt: cat.FetchedAt,
		EpochMin:  cat.EpochRange.Min,
		EpochMax:  cat.EpochRange.Max,
		Count:     cat.Len(),
		Skipped:   make([]string, 0, len(cat.Skipped)),
	}
	for _, pe := range cat.Skipped {
		sum.Skipped = append(sum.Skipped, pe.Error())
	}
	if !list {
		return sum
	}

	sum.Records = make([]catalogEntry, 0, len(cat.Records))
	for _, rec := range cat.Records {
		model := "invalid"
		if m, err := propagation.SelectModel(rec, g); err == nil {
			model = m.String()
		}
		sum.Records = append(sum.Records, catalogEntry{
			NoradID:       rec.NoradID,
			Name:          rec.Name,
			Epoch:         rec.Epoch,
			PeriodMinutes: rec.PeriodMinutes(),
			Model:         model,
		})
	}
	return sum
}

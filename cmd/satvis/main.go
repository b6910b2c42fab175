// Command satvis answers which satellites of a TLE catalog are above an
// observer's horizon, as a one-shot CLI or as an HTTP service.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "satvis: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "satvis",
		Short: "Satellite visibility from TLE catalogs",
		Long: `satvis propagates every satellite of a TLE catalog to an instant with
SGP4/SDP4 and reports which ones are above an observer's horizon.

Catalogs come from CelesTrak groups, any URL serving TLE text, or a local file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error (env SATVIS_LOG_LEVEL)")

	root.AddCommand(
		newServeCmd(),
		newVisibleCmd(),
		newPassesCmd(),
		newCatalogCmd(),
	)
	return root
}

// cmdLogger resolves the log level from the flag, then SATVIS_LOG_LEVEL,
// then fallback.
func cmdLogger(cmd *cobra.Command, w io.Writer, fallback string) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = os.Getenv("SATVIS_LOG_LEVEL")
	}
	if level == "" {
		level = fallback
	}
	return newLogger(w, level)
}

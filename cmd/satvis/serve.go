package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/satvis/internal/api"
	"github.com/star/satvis/internal/passes"
	"github.com/star/satvis/internal/pipeline"
	"github.com/star/satvis/internal/propagation"
	"github.com/star/satvis/internal/stream"
	"github.com/star/satvis/internal/tle"
	"github.com/star/satvis/internal/transform"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve visibility queries over HTTP",
		Long: `serve keeps a TLE catalog refreshed in the background and answers
visibility, catalog and pass queries over HTTP. Configuration is read from
SATVIS_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := cmdLogger(cmd, os.Stdout, "info")

	srvCfg, err := loadServerConfig(logger)
	if err != nil {
		logger.Error("invalid server configuration", "error", err)
		return err
	}
	tleCfg := loadTLEConfig(logger)
	queryCfg := loadQueryConfig(logger)

	store := tle.NewStore()
	source := tle.GroupURL(tleCfg.Group)
	if tleCfg.SourceURL != "" {
		source = tleCfg.SourceURL
	}
	fetcher := tle.NewFetcher(source, logger, tleCfg.ExtraSourceURLs...).
		WithRetry(tleCfg.FetchAttempts, time.Second)
	refresher := tle.NewRefresher(fetcher, store, logger)

	// Fetches run in the background; until the first one lands the query
	// endpoints answer 503 and /readyz reports not ready.
	go refresher.Run(ctx, tleCfg.Refresh)

	prop := pipeline.FromSGP4(propagation.New(propagation.Config{Gravity: queryCfg.Gravity}), logger)
	transformer := transform.NewTransformer(queryCfg.Transform)

	pipe := pipeline.New(prop, transformer, queryCfg.Pipeline, logger)

	srv := api.NewServer(srvCfg, logger, api.Deps{
		Store:     store,
		Refresher: refresher,
		Pipeline:  pipe,
		Passes:    passes.NewPredictor(prop, transformer, queryCfg.Pipeline.Workers, logger),
		Stream:    stream.NewHandler(store, pipe, loadStreamConfig(logger, srvCfg.TrustProxy), logger),
	})

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", srvCfg.Addr,
			"auth_enabled", srvCfg.Auth.Enabled,
			"source_url", fetcher.SourceURL(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		logger.Error("server listen error", "error", err)
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

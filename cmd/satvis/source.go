package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/star/satvis/internal/propagation"
	"github.com/star/satvis/internal/tle"
)

// sourceFlags selects the catalog for one-shot commands. Defaults come
// from the SATVIS_TLE_* environment.
type sourceFlags struct {
	file     string
	url      string
	group    string
	extra    []string
	attempts int
	gravity  string
}

func (s *sourceFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&s.file, "file", "", "read TLE text from a local file instead of fetching")
	fs.StringVar(&s.url, "url", "", "catalog URL (env SATVIS_TLE_SOURCE_URL)")
	fs.StringVar(&s.group, "group", "", "CelesTrak group when no URL is given (env SATVIS_TLE_GROUP)")
	fs.StringSliceVar(&s.extra, "extra-url", nil, "additional catalog URLs appended best-effort (env SATVIS_TLE_EXTRA_URLS)")
	fs.IntVar(&s.attempts, "attempts", 0, "fetch attempts per URL (env SATVIS_FETCH_ATTEMPTS)")
	fs.StringVar(&s.gravity, "gravity", "", "SGP4 gravity model: wgs72 or wgs84 (env SATVIS_GRAVITY)")
}

// apply fills unset flags from the environment configuration.
func (s *sourceFlags) apply(cfg tleConfig, q *queryConfig) error {
	if s.url == "" {
		s.url = cfg.SourceURL
	}
	if s.group == "" {
		s.group = cfg.Group
	}
	if s.extra == nil {
		s.extra = cfg.ExtraSourceURLs
	}
	if s.attempts < 1 {
		s.attempts = cfg.FetchAttempts
	}
	if s.gravity != "" {
		g, err := propagation.ParseGravity(s.gravity)
		if err != nil {
			return err
		}
		q.Gravity = g
	}
	return nil
}

// load reads or fetches the catalog.
func (s *sourceFlags) load(ctx context.Context, logger *slog.Logger) (*tle.Catalog, error) {
	if s.file != "" {
		return loadCatalogFile(s.file, logger)
	}

	u := s.url
	if u == "" {
		u = tle.GroupURL(s.group)
	}
	return tle.NewFetcher(u, logger, s.extra...).
		WithRetry(s.attempts, time.Second).
		FetchCatalog(ctx)
}

func loadCatalogFile(path string, logger *slog.Logger) (*tle.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cat, err := tle.Parse(f, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(cat.Records) == 0 {
		return nil, fmt.Errorf("%s: %w", path, tle.ErrNoRecords)
	}

	cat.Source = path
	cat.FetchedAt = time.Now().UTC()
	if st, err := f.Stat(); err == nil {
		cat.FetchedAt = st.ModTime().UTC()
	}
	return cat, nil
}

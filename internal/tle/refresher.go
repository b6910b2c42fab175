package tle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/star/satvis/internal/metrics"
)

// DefaultRefreshInterval is the refresh period Run falls back to when given
// a non-positive interval.
const DefaultRefreshInterval = 6 * time.Hour

// CatalogSource produces complete catalogs. *Fetcher satisfies it.
type CatalogSource interface {
	FetchCatalog(ctx context.Context) (*Catalog, error)
}

// Refresher keeps a Store populated from a CatalogSource.
type Refresher struct {
	source CatalogSource
	store  *Store
	logger *slog.Logger
	mu     sync.Mutex // serializes refreshes
}

// NewRefresher creates a Refresher publishing into store.
func NewRefresher(source CatalogSource, store *Store, logger *slog.Logger) *Refresher {
	return &Refresher{
		source: source,
		store:  store,
		logger: logger,
	}
}

// Refresh fetches a catalog and publishes it. On failure or cancellation the
// previously published catalog stays in place and the error is returned.
func (r *Refresher) Refresh(ctx context.Context) (*Catalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cat, err := r.source.FetchCatalog(ctx)
	if err != nil {
		r.logger.Warn("catalog refresh failed, keeping previous catalog",
			"error", err,
			"have_previous", r.store.Get() != nil,
		)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.store.Set(cat)
	metrics.SetCatalogSize(len(cat.Records))
	metrics.SetCatalogAge(0)
	return cat, nil
}

// Run refreshes immediately and then every interval until ctx is done.
// It also keeps the catalog age gauge current.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		r.logger.Warn("non-positive refresh interval, using default",
			"interval", interval.String(),
			"default", DefaultRefreshInterval.String(),
		)
		interval = DefaultRefreshInterval
	}
	if _, err := r.Refresh(ctx); err != nil && ctx.Err() != nil {
		return
	}

	refresh := time.NewTicker(interval)
	defer refresh.Stop()
	age := time.NewTicker(10 * time.Second)
	defer age.Stop()

	for {
		select {
		case <-refresh.C:
			r.Refresh(ctx)
		case <-age.C:
			if a := r.store.AgeSeconds(); a >= 0 {
				metrics.SetCatalogAge(a)
			}
		case <-ctx.Done():
			return
		}
	}
}

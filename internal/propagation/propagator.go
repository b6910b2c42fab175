package propagation

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/star/satvis/internal/tle"
)

// New creates a Propagator. A zero Gravity falls back to WGS-72.
func New(cfg Config) *Propagator {
	if cfg.Gravity == "" {
		cfg.Gravity = DefaultConfig().Gravity
	}
	return &Propagator{cfg: cfg}
}

// Config returns the propagator configuration.
func (p *Propagator) Config() Config {
	return p.cfg
}

// Prepared holds the initialized SGP4 state for every record of one
// catalog snapshot, indexed like Catalog.Records. Exactly one of
// Satellites[i] and Errors[i] is non-nil. Immutable after construction.
type Prepared struct {
	Catalog    *tle.Catalog
	Satellites []*Satellite
	Errors     []error
}

// catalogCache keeps the Prepared set of the most recent catalog snapshot.
type catalogCache struct {
	current atomic.Pointer[Prepared]
	mu      sync.Mutex // serializes rebuilds
}

// PrepareCatalog returns the prepared state for cat, reusing the previous
// result while the same snapshot is queried. A new snapshot triggers one
// rebuild (double-checked locking); queries still holding the old snapshot
// keep their own Prepared value.
func (p *Propagator) PrepareCatalog(cat *tle.Catalog, logger *slog.Logger) *Prepared {
	if c := p.cache.current.Load(); c != nil && c.Catalog == cat {
		return c
	}

	p.cache.mu.Lock()
	defer p.cache.mu.Unlock()

	if c := p.cache.current.Load(); c != nil && c.Catalog == cat {
		return c
	}

	prep := &Prepared{
		Catalog:    cat,
		Satellites: make([]*Satellite, len(cat.Records)),
		Errors:     make([]error, len(cat.Records)),
	}
	var failed, deep int
	for i, rec := range cat.Records {
		sat, err := p.Prepare(rec)
		if err != nil {
			logger.Warn("sgp4 init failed", "norad_id", rec.NoradID, "name", rec.Name, "error", err)
			prep.Errors[i] = err
			failed++
			continue
		}
		if sat.Model == DeepSpace {
			deep++
		}
		prep.Satellites[i] = sat
	}

	logger.Info("sgp4 state prepared",
		"records", len(cat.Records),
		"failed", failed,
		"deep_space", deep,
		"gravity", string(p.cfg.Gravity),
		"catalog_fetched_at", cat.FetchedAt,
	)
	p.cache.current.Store(prep)
	return prep
}

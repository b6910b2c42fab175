// Package pipeline runs a visibility query over a whole catalog snapshot:
// propagate every record to one instant, place it relative to the observer,
// and classify it, isolating per-satellite failures.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/star/satvis/internal/metrics"
	"github.com/star/satvis/internal/propagation"
	"github.com/star/satvis/internal/tle"
	"github.com/star/satvis/internal/transform"
	"github.com/star/satvis/internal/visibility"
)

// ErrNoCatalog is returned when a query is run without a catalog.
var ErrNoCatalog = errors.New("no TLE catalog loaded")

// ErrPanic marks a failure entry produced by a recovered panic.
var ErrPanic = errors.New("satellite computation panicked")

// Ephemeris yields the state of one satellite at an instant.
// *propagation.Satellite satisfies it.
type Ephemeris interface {
	Propagate(at time.Time) (transform.StateVector, error)
}

// Propagator prepares every record of a catalog snapshot. Entry i of both
// slices belongs to cat.Records[i]; exactly one of the two is non-nil.
type Propagator interface {
	Ephemerides(cat *tle.Catalog) ([]Ephemeris, []error)
}

type sgp4Source struct {
	prop   *propagation.Propagator
	logger *slog.Logger
}

// FromSGP4 adapts an SGP4 propagator, including its per-snapshot cache of
// initialized element sets.
func FromSGP4(prop *propagation.Propagator, logger *slog.Logger) Propagator {
	return sgp4Source{prop: prop, logger: logger}
}

func (s sgp4Source) Ephemerides(cat *tle.Catalog) ([]Ephemeris, []error) {
	prep := s.prop.PrepareCatalog(cat, s.logger)
	eph := make([]Ephemeris, len(prep.Satellites))
	for i, sat := range prep.Satellites {
		if sat != nil {
			eph[i] = sat
		}
	}
	return eph, prep.Errors
}

// Stage names the step at which a satellite failed.
type Stage string

const (
	StagePropagate Stage = "propagate"
	StageTransform Stage = "transform"
)

// Failure records why one satellite produced no result.
type Failure struct {
	NoradID int    `json:"norad_id"`
	Name    string `json:"name"`
	Stage   Stage  `json:"stage"`
	Reason  string `json:"reason"`
	Err     error  `json:"-"`
}

// Report is the outcome of one query. Results and Failures both follow
// catalog order; a satellite appears in exactly one of them.
type Report struct {
	Time         time.Time           `json:"time"`
	Observer     transform.Observer  `json:"observer"`
	ThresholdDeg float64             `json:"threshold_deg"`
	CatalogSize  int                 `json:"catalog_size"`
	Results      []visibility.Result `json:"results"`
	Failures     []Failure           `json:"failures"`
}

// Visible returns the results above the threshold, in catalog order.
func (r *Report) Visible() []visibility.Result {
	out := make([]visibility.Result, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Visible {
			out = append(out, res)
		}
	}
	return out
}

// Config holds pipeline configuration.
type Config struct {
	Workers      int     // worker pool size (default: runtime.NumCPU())
	ThresholdDeg float64 // visibility threshold in degrees
}

// DefaultConfig returns NumCPU workers and the 10 degree threshold.
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.NumCPU(),
		ThresholdDeg: visibility.DefaultThresholdDeg,
	}
}

// Pipeline is immutable after construction and safe for concurrent queries.
type Pipeline struct {
	prop        Propagator
	transformer *transform.Transformer
	evaluator   *visibility.Evaluator
	pool        *workerPool
	logger      *slog.Logger
}

// New creates a Pipeline.
func New(prop Propagator, transformer *transform.Transformer, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Pipeline{
		prop:        prop,
		transformer: transformer,
		evaluator:   visibility.NewEvaluator(cfg.ThresholdDeg),
		pool:        newWorkerPool(cfg.Workers),
		logger:      logger,
	}
}

// WithThreshold returns a pipeline sharing p's propagator and pool that
// classifies against thresholdDeg instead.
func (p *Pipeline) WithThreshold(thresholdDeg float64) *Pipeline {
	cp := *p
	cp.evaluator = visibility.NewEvaluator(thresholdDeg)
	return &cp
}

// ThresholdDeg returns the visibility threshold in degrees.
func (p *Pipeline) ThresholdDeg() float64 {
	return p.evaluator.ThresholdDeg()
}

// Run evaluates every record of cat for obs at the instant at (truncated to
// whole UTC seconds). Per-satellite failures are returned in the report; the
// error result is reserved for a missing catalog, an invalid observer and
// cancellation. cat is only read, so a concurrent refresh that publishes a
// new snapshot does not affect a query already running.
func (p *Pipeline) Run(ctx context.Context, cat *tle.Catalog, obs transform.Observer, at time.Time) (*Report, error) {
	if cat == nil {
		return nil, ErrNoCatalog
	}
	site, err := p.transformer.Site(obs)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	at = at.UTC().Truncate(time.Second)
	gmst := p.transformer.SiderealAngle(at)

	eph, prepErrs := p.prop.Ephemerides(cat)

	outcomes := make([]outcome, len(cat.Records))
	p.pool.run(ctx, len(cat.Records), func(i int) {
		outcomes[i] = p.evaluate(cat.Records[i], eph[i], prepErrs[i], site, at, gmst)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{
		Time:         at,
		Observer:     obs,
		ThresholdDeg: p.evaluator.ThresholdDeg(),
		CatalogSize:  len(cat.Records),
		Results:      make([]visibility.Result, 0, len(outcomes)),
		Failures:     []Failure{},
	}
	var visible int
	for _, o := range outcomes {
		if o.failure != nil {
			report.Failures = append(report.Failures, *o.failure)
			continue
		}
		if o.result.Visible {
			visible++
		}
		report.Results = append(report.Results, o.result)
	}

	duration := time.Since(start)
	metrics.RecordQuery(duration, visible, len(report.Results)-visible, len(report.Failures))
	p.logger.Debug("visibility query complete",
		"records", len(cat.Records),
		"visible", visible,
		"failed", len(report.Failures),
		"target_time", at.Format(time.RFC3339),
		"duration_ms", duration.Milliseconds(),
	)

	return report, nil
}

type outcome struct {
	result  visibility.Result
	failure *Failure
}

// evaluate runs propagate, transform and classify for one record.
func (p *Pipeline) evaluate(rec tle.Record, eph Ephemeris, prepErr error, site transform.Site, at time.Time, gmst float64) (out outcome) {
	fail := func(stage Stage, err error) outcome {
		return outcome{failure: &Failure{
			NoradID: rec.NoradID,
			Name:    rec.Name,
			Stage:   stage,
			Reason:  err.Error(),
			Err:     err,
		}}
	}

	stage := StagePropagate
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("recovered panic in visibility worker", "norad_id", rec.NoradID, "panic", r)
			out = fail(stage, ErrPanic)
		}
	}()

	if prepErr != nil {
		return fail(StagePropagate, prepErr)
	}
	if eph == nil {
		return fail(StagePropagate, &propagation.Error{NoradID: rec.NoradID, Name: rec.Name, Err: propagation.ErrPropagationFailed})
	}

	sv, err := eph.Propagate(at)
	if err != nil {
		return fail(StagePropagate, err)
	}

	stage = StageTransform
	topo, err := p.transformer.TopocentricWithGMST(sv, site, gmst)
	if err != nil {
		return fail(StageTransform, err)
	}

	return outcome{result: p.evaluator.Evaluate(rec.NoradID, rec.Name, topo)}
}

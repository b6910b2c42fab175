// Package passes predicts rise, culmination and set times of satellites over
// an observer by scanning the same propagate/transform/look-angle chain the
// visibility pipeline uses for a single instant.
package passes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/star/satvis/internal/pipeline"
	"github.com/star/satvis/internal/tle"
	"github.com/star/satvis/internal/transform"
	"github.com/star/satvis/internal/visibility"
)

// Prediction errors.
var (
	ErrNoTargets      = errors.New("no satellites requested")
	ErrTooManyTargets = errors.New("too many satellites requested")
	ErrInvalidWindow  = errors.New("invalid prediction window")
	ErrNotInCatalog   = errors.New("not in catalog")
)

const (
	// MaxTargets bounds the satellites per request.
	MaxTargets = 50
	// MaxWindow bounds the prediction window.
	MaxWindow = 7 * 24 * time.Hour

	coarseStep      = 30 * time.Second
	fineStep        = time.Second
	groundTrackStep = 10 * time.Second
	minPassDuration = 10 * time.Second
)

// GroundPoint is the sub-satellite point at one instant of a pass.
type GroundPoint struct {
	Time         time.Time `json:"time"`
	LatDeg       float64   `json:"lat_deg"`
	LonDeg       float64   `json:"lon_deg"`
	AltM         float64   `json:"alt_m"`
	ElevationDeg float64   `json:"elevation_deg"`
}

// Pass is one interval during which a satellite stays at or above the
// requested elevation.
type Pass struct {
	Rise                  time.Time     `json:"rise"`
	Culmination           time.Time     `json:"culmination"`
	Set                   time.Time     `json:"set"`
	DurationSeconds       float64       `json:"duration_seconds"`
	MaxElevationDeg       float64       `json:"max_elevation_deg"`
	RiseAzimuthDeg        float64       `json:"rise_azimuth_deg"`
	CulminationAzimuthDeg float64       `json:"culmination_azimuth_deg"`
	SetAzimuthDeg         float64       `json:"set_azimuth_deg"`
	GroundTrack           []GroundPoint `json:"ground_track"`
}

// SatellitePasses holds the predicted passes for one satellite.
type SatellitePasses struct {
	NoradID int    `json:"norad_id"`
	Name    string `json:"name"`
	Passes  []Pass `json:"passes"`
	Error   string `json:"error,omitempty"`
}

// Request holds the parameters of a pass prediction.
type Request struct {
	Observer        transform.Observer
	NoradIDs        []int
	Start           time.Time
	Window          time.Duration
	MinElevationDeg float64
	MaxPasses       int // per satellite; 0 means unlimited
}

func (r Request) validate() error {
	if len(r.NoradIDs) == 0 {
		return ErrNoTargets
	}
	if len(r.NoradIDs) > MaxTargets {
		return fmt.Errorf("%w: %d > %d", ErrTooManyTargets, len(r.NoradIDs), MaxTargets)
	}
	if r.Window <= 0 || r.Window > MaxWindow {
		return fmt.Errorf("%w: %s not in (0, %s]", ErrInvalidWindow, r.Window, MaxWindow)
	}
	return nil
}

// Predictor scans prediction windows for a set of catalog satellites.
type Predictor struct {
	prop        pipeline.Propagator
	transformer *transform.Transformer
	workers     int
	logger      *slog.Logger
}

// NewPredictor creates a Predictor. workers < 1 means runtime.NumCPU().
func NewPredictor(prop pipeline.Propagator, transformer *transform.Transformer, workers int, logger *slog.Logger) *Predictor {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Predictor{prop: prop, transformer: transformer, workers: workers, logger: logger}
}

// Predict computes passes for every requested satellite of cat. Results
// follow req.NoradIDs order; a satellite that is missing from the catalog or
// cannot be propagated carries an Error instead of passes.
func (p *Predictor) Predict(ctx context.Context, cat *tle.Catalog, req Request) ([]SatellitePasses, error) {
	if cat == nil {
		return nil, pipeline.ErrNoCatalog
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	site, err := p.transformer.Site(req.Observer)
	if err != nil {
		return nil, err
	}
	req.Start = req.Start.UTC().Truncate(time.Second)

	index := make(map[int]int, len(cat.Records))
	for i, rec := range cat.Records {
		if _, dup := index[rec.NoradID]; !dup {
			index[rec.NoradID] = i
		}
	}
	eph, prepErrs := p.prop.Ephemerides(cat)

	results := make([]SatellitePasses, len(req.NoradIDs))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i, id := range req.NoradIDs {
		results[i].NoradID = id
		ci, ok := index[id]
		if !ok {
			results[i].Error = ErrNotInCatalog.Error()
			continue
		}
		results[i].Name = cat.Records[ci].Name
		if prepErrs[ci] != nil {
			results[i].Error = prepErrs[ci].Error()
			continue
		}

		wg.Add(1)
		go func(idx int, e pipeline.Ephemeris) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			s := &scanner{eph: e, transformer: p.transformer, site: site, minEl: req.MinElevationDeg}
			results[idx].Passes = s.scan(ctx, req.Start, req.Start.Add(req.Window), req.MaxPasses)
		}(i, eph[ci])
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Debug("pass prediction complete",
		"satellites", len(req.NoradIDs),
		"window_hours", req.Window.Hours(),
		"min_elevation_deg", req.MinElevationDeg,
	)
	return results, nil
}

// scanner walks one satellite through a window.
type scanner struct {
	eph         pipeline.Ephemeris
	transformer *transform.Transformer
	site        transform.Site
	minEl       float64
}

type sample struct {
	look visibility.LookAngles
	ecef [3]float64
}

func (s *scanner) sample(t time.Time) (sample, error) {
	sv, err := s.eph.Propagate(t)
	if err != nil {
		return sample{}, err
	}
	gmst := s.transformer.SiderealAngle(t)
	topo, err := s.transformer.TopocentricWithGMST(sv, s.site, gmst)
	if err != nil {
		return sample{}, err
	}
	return sample{
		look: visibility.ComputeLookAngles(topo),
		ecef: s.transformer.ToECEF(sv, gmst).Position,
	}, nil
}

// detectEl is the coarse-scan trigger: the horizon, or the requested
// elevation when that lies below it.
func (s *scanner) detectEl() float64 {
	if s.minEl < 0 {
		return s.minEl
	}
	return 0
}

// scan steps coarsely until the satellite clears the detection elevation,
// then hands over to refine for the exact pass boundaries.
func (s *scanner) scan(ctx context.Context, start, end time.Time, maxPasses int) []Pass {
	passes := []Pass{}
	t := start
	for t.Before(end) && (maxPasses <= 0 || len(passes) < maxPasses) {
		if ctx.Err() != nil {
			return passes
		}

		smp, err := s.sample(t)
		if err != nil || smp.look.ElevationDeg <= s.detectEl() {
			t = t.Add(coarseStep)
			continue
		}

		pass, windowEnd := s.refine(ctx, t, start, end)
		if pass != nil && pass.Set.Sub(pass.Rise) >= minPassDuration {
			passes = append(passes, *pass)
		}
		t = windowEnd.Add(coarseStep)
	}
	return passes
}

// refine steps one second at a time from just before the coarse hit. It
// returns the pass, if the satellite reached minEl in this window, and the
// instant the window closed.
func (s *scanner) refine(ctx context.Context, hit, start, end time.Time) (*Pass, time.Time) {
	from := hit.Add(-coarseStep)
	if from.Before(start) {
		from = start
	}

	var (
		pass  *Pass
		above bool
		last  visibility.LookAngles
	)

	t := from
	for ; t.Before(end); t = t.Add(fineStep) {
		if ctx.Err() != nil {
			return nil, t
		}

		smp, err := s.sample(t)
		if err != nil {
			continue
		}
		el := smp.look.ElevationDeg
		last = smp.look

		if pass == nil {
			if el >= s.minEl {
				pass = &Pass{
					Rise:                  t,
					Culmination:           t,
					MaxElevationDeg:       el,
					RiseAzimuthDeg:        smp.look.AzimuthDeg,
					CulminationAzimuthDeg: smp.look.AzimuthDeg,
				}
				above = true
			} else if t.After(hit) && el <= s.detectEl() {
				// Dropped back without reaching minEl.
				return nil, t
			}
		} else if el < s.minEl {
			pass.Set = t
			pass.SetAzimuthDeg = smp.look.AzimuthDeg
			above = false
			break
		}

		if above {
			if el > pass.MaxElevationDeg {
				pass.MaxElevationDeg = el
				pass.Culmination = t
				pass.CulminationAzimuthDeg = smp.look.AzimuthDeg
			}
			if t.Sub(pass.Rise)%groundTrackStep == 0 {
				geo := s.transformer.ECEFToGeodetic(smp.ecef[0], smp.ecef[1], smp.ecef[2])
				pass.GroundTrack = append(pass.GroundTrack, GroundPoint{
					Time:         t,
					LatDeg:       geo.LatDeg,
					LonDeg:       geo.LonDeg,
					AltM:         geo.AltM,
					ElevationDeg: el,
				})
			}
		}
	}

	if pass == nil {
		return nil, t
	}
	// Still up when the window ends: close the pass there.
	if above {
		pass.Set = t
		pass.SetAzimuthDeg = last.AzimuthDeg
	}
	pass.DurationSeconds = pass.Set.Sub(pass.Rise).Seconds()
	return pass, pass.Set
}

package api

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/star/satvis/internal/httputil"
	"github.com/star/satvis/internal/passes"
	"github.com/star/satvis/internal/pipeline"
	"github.com/star/satvis/internal/stream"
	"github.com/star/satvis/internal/tle"
	"github.com/star/satvis/internal/transform"
	"github.com/star/satvis/internal/visibility"
)

const (
	defaultPassHours  = 24
	defaultMaxPasses  = 10
	maxSkippedDetails = 20
)

// badParam reports an invalid or missing query parameter.
type badParam struct {
	name string
	msg  string
}

func (e *badParam) Error() string {
	return fmt.Sprintf("%s: %s", e.name, e.msg)
}

func floatParam(q url.Values, name string, def float64, required bool) (float64, error) {
	v := q.Get(name)
	if v == "" {
		if required {
			return 0, &badParam{name, "is required"}
		}
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &badParam{name, "must be a finite number"}
	}
	return f, nil
}

func intParam(q url.Values, name string, def, lo, hi int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, &badParam{name, fmt.Sprintf("must be an integer in [%d, %d]", lo, hi)}
	}
	return n, nil
}

// timeParam accepts RFC 3339 or Unix seconds; empty means def.
func timeParam(q url.Values, name string, def time.Time) (time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, &badParam{name, "must be RFC 3339 or Unix seconds"}
}

func boolParam(q url.Values, name string) (bool, error) {
	v := q.Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &badParam{name, "must be a boolean"}
	}
	return b, nil
}

func elevationParam(q url.Values, def float64) (float64, error) {
	el, err := floatParam(q, "min_elevation", def, false)
	if err != nil {
		return 0, err
	}
	if el < -90 || el > 90 {
		return 0, &badParam{"min_elevation", "must be within [-90, 90]"}
	}
	return el, nil
}

func observerParams(q url.Values) (transform.Observer, error) {
	lat, err := floatParam(q, "lat", 0, true)
	if err != nil {
		return transform.Observer{}, err
	}
	lon, err := floatParam(q, "lon", 0, true)
	if err != nil {
		return transform.Observer{}, err
	}
	alt, err := floatParam(q, "alt", 0, false)
	if err != nil {
		return transform.Observer{}, err
	}
	return transform.Observer{LatitudeDeg: lat, LongitudeDeg: lon, AltitudeM: alt}, nil
}

// writeQueryError maps query failures onto status codes.
func writeQueryError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var bp *badParam
	switch {
	case errors.As(err, &bp):
		httputil.WriteError(w, http.StatusBadRequest, bp.Error(), map[string]any{"param": bp.name})
	case errors.Is(err, transform.ErrInvalidObserver),
		errors.Is(err, passes.ErrInvalidWindow),
		errors.Is(err, passes.ErrNoTargets),
		errors.Is(err, passes.ErrTooManyTargets):
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, pipeline.ErrNoCatalog):
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		logger.Warn("query aborted", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusServiceUnavailable, "query aborted", nil)
	}
}

type catalogRef struct {
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Count     int       `json:"count"`
}

type visibleResponse struct {
	Time         time.Time           `json:"time"`
	Observer     transform.Observer  `json:"observer"`
	ThresholdDeg float64             `json:"threshold_deg"`
	Catalog      catalogRef          `json:"catalog"`
	Count        int                 `json:"count"`
	Satellites   []visibility.Result `json:"satellites"`
	Failures     []pipeline.Failure  `json:"failures"`
}

// visibleHandler answers which satellites are above the observer's horizon.
// Only visible satellites are listed unless all=true.
func visibleHandler(logger *slog.Logger, store *tle.Store, pipe *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		obs, err := observerParams(q)
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}
		at, err := timeParam(q, "time", time.Now().UTC())
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}
		threshold, err := elevationParam(q, pipe.ThresholdDeg())
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}
		all, err := boolParam(q, "all")
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}

		cat := store.Get()
		if cat == nil {
			writeQueryError(w, logger, pipeline.ErrNoCatalog)
			return
		}

		p := pipe
		if threshold != pipe.ThresholdDeg() {
			p = pipe.WithThreshold(threshold)
		}
		report, err := p.Run(r.Context(), cat, obs, at)
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}

		sats := report.Results
		if !all {
			sats = report.Visible()
		}
		httputil.WriteJSON(w, http.StatusOK, visibleResponse{
			Time:         report.Time,
			Observer:     report.Observer,
			ThresholdDeg: report.ThresholdDeg,
			Catalog:      catalogRef{Source: cat.Source, FetchedAt: cat.FetchedAt, Count: cat.Len()},
			Count:        len(sats),
			Satellites:   sats,
			Failures:     report.Failures,
		})
	}
}

// streamHandler validates the subscription and hands the connection to the
// SSE handler.
func streamHandler(logger *slog.Logger, h *stream.Handler, pipe *pipeline.Pipeline) http.HandlerFunc {
	defInterval := int(stream.DefaultInterval / time.Second)

	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "streaming not configured", nil)
			return
		}

		q := r.URL.Query()
		obs, err := observerParams(q)
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}
		interval, err := intParam(q, "interval", defInterval, 1, 60)
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}
		threshold, err := elevationParam(q, pipe.ThresholdDeg())
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}
		all, err := boolParam(q, "all")
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}

		h.Serve(w, r, stream.Query{
			Observer:     obs,
			Interval:     time.Duration(interval) * time.Second,
			ThresholdDeg: threshold,
			All:          all,
		})
	}
}

type catalogInfo struct {
	Source         string    `json:"source"`
	FetchedAt      time.Time `json:"fetched_at"`
	AgeSeconds     float64   `json:"age_seconds"`
	EpochMin       time.Time `json:"epoch_min"`
	EpochMax       time.Time `json:"epoch_max"`
	Count          int       `json:"count"`
	Skipped        int       `json:"skipped"`
	SkippedDetails []string  `json:"skipped_details,omitempty"`
}

func newCatalogInfo(cat *tle.Catalog) catalogInfo {
	info := catalogInfo{
		Source:     cat.Source,
		FetchedAt:  cat.FetchedAt,
		AgeSeconds: time.Since(cat.FetchedAt).Seconds(),
		EpochMin:   cat.EpochRange.Min,
		EpochMax:   cat.EpochRange.Max,
		Count:      cat.Len(),
		Skipped:    len(cat.Skipped),
	}
	for i, pe := range cat.Skipped {
		if i == maxSkippedDetails {
			break
		}
		info.SkippedDetails = append(info.SkippedDetails, pe.Error())
	}
	return info
}

func catalogHandler(store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cat := store.Get()
		if cat == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, pipeline.ErrNoCatalog.Error(), nil)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newCatalogInfo(cat))
	}
}

// refreshHandler fetches a new catalog synchronously. A failed fetch leaves
// the published catalog in place.
func refreshHandler(logger *slog.Logger, refresher Refresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if refresher == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "catalog refresh not configured", nil)
			return
		}

		cat, err := refresher.Refresh(r.Context())
		if err != nil {
			var fe *tle.FetchError
			if errors.As(err, &fe) {
				httputil.WriteError(w, http.StatusBadGateway, fe.Error(), nil)
				return
			}
			logger.Warn("catalog refresh aborted", "component", "api", "error", err)
			httputil.WriteError(w, http.StatusServiceUnavailable, "refresh aborted", nil)
			return
		}

		logger.Info("catalog refreshed on request", "component", "api", "records", cat.Len())
		httputil.WriteJSON(w, http.StatusOK, newCatalogInfo(cat))
	}
}

// passesHandler predicts passes of one satellite over the observer.
func passesHandler(logger *slog.Logger, store *tle.Store, predictor *passes.Predictor) http.HandlerFunc {
	maxHours := int(passes.MaxWindow / time.Hour)

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("norad_id"))
		if err != nil || id < 0 {
			writeQueryError(w, logger, &badParam{"norad_id", "must be a catalog number"})
			return
		}

		q := r.URL.Query()
		obs, err := observerParams(q)
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}
		start, err := timeParam(q, "start", time.Now().UTC())
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}
		hours, err := intParam(q, "hours", defaultPassHours, 1, maxHours)
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}
		minEl, err := elevationParam(q, visibility.DefaultThresholdDeg)
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}
		maxPasses, err := intParam(q, "max_passes", defaultMaxPasses, 1, 100)
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}

		cat := store.Get()
		if cat == nil {
			writeQueryError(w, logger, pipeline.ErrNoCatalog)
			return
		}

		results, err := predictor.Predict(r.Context(), cat, passes.Request{
			Observer:        obs,
			NoradIDs:        []int{id},
			Start:           start,
			Window:          time.Duration(hours) * time.Hour,
			MinElevationDeg: minEl,
			MaxPasses:       maxPasses,
		})
		if err != nil {
			writeQueryError(w, logger, err)
			return
		}

		res := results[0]
		if res.Error == passes.ErrNotInCatalog.Error() {
			httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("NORAD %d not in catalog", id), nil)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

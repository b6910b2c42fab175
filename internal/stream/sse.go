// Package stream serves a Server-Sent Events feed of visibility reports for
// one observer. Clients connect to GET /api/v1/visible/stream and receive a
// fresh report every interval until they disconnect.
//
// Message format:
//
//	data: {"type":"catalog","source":"...","fetched_at":"...","catalog_age_seconds":1800,"count":2}\n\n
//	data: {"type":"visibility","time":"2025-02-14T12:00:05Z","threshold_deg":10,"count":1,"satellites":[...],"failed":0}\n\n
//
// A catalog message opens every connection and is repeated whenever a
// refresh publishes a new catalog. Keep-alive comments (:\n\n) fill gaps
// longer than KeepaliveInterval.
package stream

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/star/satvis/internal/httputil"
	"github.com/star/satvis/internal/metrics"
	"github.com/star/satvis/internal/pipeline"
	"github.com/star/satvis/internal/tle"
	"github.com/star/satvis/internal/transform"
	"github.com/star/satvis/internal/visibility"
)

// DefaultInterval is the report period when a client names none.
const DefaultInterval = 5 * time.Second

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // default 10
	MaxConcurrent      int           // default 1000
	KeepaliveInterval  time.Duration // default 30s
	TrustProxy         bool          // key limits on X-Forwarded-For / X-Real-IP
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrent:      defaultMaxTotal,
		KeepaliveInterval:  30 * time.Second,
	}
}

// Query is one stream subscription.
type Query struct {
	Observer     transform.Observer
	Interval     time.Duration
	ThresholdDeg float64
	All          bool // include satellites below the threshold
}

// Handler manages SSE connections.
type Handler struct {
	store   *tle.Store
	pipe    *pipeline.Pipeline
	config  Config
	limiter *limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a streaming handler. Zero fields of cfg take their
// DefaultConfig values.
func NewHandler(store *tle.Store, pipe *pipeline.Pipeline, cfg Config, logger *slog.Logger) *Handler {
	def := DefaultConfig()
	if cfg.MaxConcurrentPerIP < 1 {
		cfg.MaxConcurrentPerIP = def.MaxConcurrentPerIP
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = def.KeepaliveInterval
	}
	return &Handler{
		store:   store,
		pipe:    pipe,
		config:  cfg,
		limiter: newLimiter(cfg.MaxConcurrentPerIP, cfg.MaxConcurrent),
		logger:  logger,
		now:     time.Now,
	}
}

type catalogMessage struct {
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds int       `json:"catalog_age_seconds"`
	Count      int       `json:"count"`
}

type visibilityMessage struct {
	Type         string              `json:"type"`
	Time         time.Time           `json:"time"`
	ThresholdDeg float64             `json:"threshold_deg"`
	Count        int                 `json:"count"`
	Satellites   []visibility.Result `json:"satellites"`
	Failed       int                 `json:"failed"`
}

func newCatalogMessage(cat *tle.Catalog) catalogMessage {
	return catalogMessage{
		Type:       "catalog",
		Source:     cat.Source,
		FetchedAt:  cat.FetchedAt,
		AgeSeconds: int(time.Since(cat.FetchedAt).Seconds()),
		Count:      cat.Len(),
	}
}

func newVisibilityMessage(report *pipeline.Report, all bool) visibilityMessage {
	sats := report.Results
	if !all {
		sats = report.Visible()
	}
	return visibilityMessage{
		Type:         "visibility",
		Time:         report.Time,
		ThresholdDeg: report.ThresholdDeg,
		Count:        len(sats),
		Satellites:   sats,
		Failed:       len(report.Failures),
	}
}

// Serve streams reports for q until the request context ends. A
// non-positive q.Interval means DefaultInterval.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, q Query) {
	if q.Interval <= 0 {
		q.Interval = DefaultInterval
	}
	if err := q.Observer.Validate(); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if h.store.Get() == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, pipeline.ErrNoCatalog.Error(), nil)
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream limit exceeded", "component", "stream", "remote_ip", ip, "current_count", h.limiter.count(ip))
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams", nil)
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()
	start := time.Now()
	h.logger.Info("stream connected",
		"component", "stream",
		"remote_ip", ip,
		"interval", q.Interval.String(),
		"threshold_deg", q.ThresholdDeg,
	)
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"component", "stream",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(start).Seconds()),
		)
	}()

	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		metrics.IncStreamErrors("flush_unsupported")
		h.logger.Error("streaming not supported", "component", "stream", "error", err)
		return
	}
	// The server's WriteTimeout would cut long-lived streams; client.write
	// sets a per-frame deadline instead.
	rc.SetWriteDeadline(time.Time{})

	c := &client{w: w, rc: rc}
	if err := h.stream(r.Context(), c, q); err != nil && r.Context().Err() == nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "component", "stream", "remote_ip", ip, "error", err)
	}
}

// stream runs the send loop. It returns nil when ctx ends.
func (h *Handler) stream(ctx context.Context, c *client, q Query) error {
	// Jittered 3-7s reconnect delay spreads clients out after a restart.
	if err := c.sendRetry(3*time.Second + time.Duration(rand.Int63n(int64(4*time.Second)))); err != nil {
		return err
	}

	pipe := h.pipe
	if q.ThresholdDeg != pipe.ThresholdDeg() {
		pipe = pipe.WithThreshold(q.ThresholdDeg)
	}

	var current *tle.Catalog
	send := func() error {
		cat := h.store.Get()
		if cat != current {
			if err := c.sendJSON(newCatalogMessage(cat)); err != nil {
				return err
			}
			current = cat
		}

		report, err := pipe.Run(ctx, cat, q.Observer, h.now())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.IncStreamErrors("query")
			h.logger.Warn("stream query failed", "component", "stream", "error", err)
			return nil
		}
		return c.sendJSON(newVisibilityMessage(report, q.All))
	}

	if err := send(); err != nil {
		return err
	}

	ticker := time.NewTicker(q.Interval)
	defer ticker.Stop()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := send(); err != nil {
				return err
			}
			keepalive.Reset(h.config.KeepaliveInterval)
		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				return err
			}
		}
	}
}

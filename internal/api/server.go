package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/satvis/internal/auth"
	"github.com/star/satvis/internal/health"
	"github.com/star/satvis/internal/httputil"
	"github.com/star/satvis/internal/metrics"
	"github.com/star/satvis/internal/passes"
	"github.com/star/satvis/internal/pipeline"
	"github.com/star/satvis/internal/stream"
	"github.com/star/satvis/internal/tle"
)

// Refresher replaces the published catalog on demand. *tle.Refresher
// satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) (*tle.Catalog, error)
}

// Config holds the HTTP surface configuration.
type Config struct {
	Addr       string
	TrustProxy bool // honour X-Forwarded-For / X-Real-IP when logging
	Auth       auth.Config
}

// Deps are the services the handlers query.
type Deps struct {
	Store     *tle.Store
	Refresher Refresher
	Pipeline  *pipeline.Pipeline
	Passes    *passes.Predictor
	Stream    *stream.Handler
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server. The write timeout covers a
// synchronous refresh waiting on the upstream catalog source.
func NewServer(cfg Config, logger *slog.Logger, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewHandler(cfg, logger, deps),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      90 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed and instrumented handler tree.
func NewHandler(cfg Config, logger *slog.Logger, deps Deps) http.Handler {
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /{$}", indexHandler)
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool { return deps.Store.Get() != nil }))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/visible", visibleHandler(logger, deps.Store, deps.Pipeline))
	mux.HandleFunc("GET /api/v1/visible/stream", streamHandler(logger, deps.Stream, deps.Pipeline))
	mux.HandleFunc("GET /api/v1/catalog", catalogHandler(deps.Store))
	mux.HandleFunc("POST /api/v1/catalog/refresh", refreshHandler(logger, deps.Refresher))
	mux.HandleFunc("GET /api/v1/passes/{norad_id}", passesHandler(logger, deps.Store, deps.Passes))

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func indexHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"service":   "satvis",
		"endpoints": []string{
			"GET /api/v1/visible?lat=&lon=&alt=&time=&min_elevation=&all=",
			"GET /api/v1/visible/stream?lat=&lon=&alt=&interval=&min_elevation=&all=",
			"GET /api/v1/passes/{norad_id}?lat=&lon=&alt=&start=&hours=&min_elevation=&max_passes=",
			"GET /api/v1/catalog",
			"POST /api/v1/catalog/refresh",
			"GET /healthz",
			"GET /readyz",
			"GET /metrics",
		},
	})
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}

package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satvis_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "satvis_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	tleFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satvis_tle_fetch_total",
			Help: "TLE catalog fetches by result.",
		},
		[]string{"result"},
	)

	tleFetchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "satvis_tle_fetch_duration_seconds",
			Help:    "Duration of TLE catalog fetch and parse.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	tleParseErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satvis_tle_parse_errors_total",
			Help: "TLE entries or line runs skipped while parsing.",
		},
	)

	catalogRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satvis_catalog_records",
			Help: "Number of records in the published catalog.",
		},
	)

	catalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satvis_catalog_age_seconds",
			Help: "Seconds since the published catalog was fetched.",
		},
	)

	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "satvis_query_duration_seconds",
			Help:    "Duration of one visibility query over the whole catalog.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	querySatellitesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satvis_query_satellites_total",
			Help: "Satellites evaluated by visibility queries, by outcome.",
		},
		[]string{"outcome"},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satvis_stream_connections_total",
			Help: "Visibility stream connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satvis_streams_active",
			Help: "Open visibility streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satvis_stream_messages_total",
			Help: "SSE messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satvis_stream_bytes_total",
			Help: "Bytes written to visibility streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satvis_stream_errors_total",
			Help: "Visibility stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		tleFetchTotal,
		tleFetchDurationSeconds,
		tleParseErrorsTotal,
		catalogRecords,
		catalogAgeSeconds,
		queryDurationSeconds,
		querySatellitesTotal,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFetch records one catalog fetch attempt.
func RecordFetch(ok bool, d time.Duration) {
	result := "error"
	if ok {
		result = "success"
	}
	tleFetchTotal.WithLabelValues(result).Inc()
	tleFetchDurationSeconds.Observe(d.Seconds())
}

// AddParseErrors counts skipped catalog entries.
func AddParseErrors(n int) {
	if n > 0 {
		tleParseErrorsTotal.Add(float64(n))
	}
}

// SetCatalogSize sets the published catalog record count.
func SetCatalogSize(n int) {
	catalogRecords.Set(float64(n))
}

// SetCatalogAge sets the published catalog age.
func SetCatalogAge(seconds float64) {
	catalogAgeSeconds.Set(seconds)
}

// RecordQuery records one visibility query and its per-satellite outcomes.
func RecordQuery(d time.Duration, visible, hidden, failed int) {
	queryDurationSeconds.Observe(d.Seconds())
	querySatellitesTotal.WithLabelValues("visible").Add(float64(visible))
	querySatellitesTotal.WithLabelValues("hidden").Add(float64(hidden))
	querySatellitesTotal.WithLabelValues("failed").Add(float64(failed))
}

// IncStreamConnections counts a stream "connect" or "disconnect".
func IncStreamConnections(event string) {
	streamConnectionsTotal.WithLabelValues(event).Inc()
}

func IncStreamsActive() { streamsActive.Inc() }
func DecStreamsActive() { streamsActive.Dec() }

func IncStreamMessages() { streamMessagesTotal.Inc() }

func AddStreamBytes(n int) {
	streamBytesTotal.Add(float64(n))
}

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// knownRoutes are the exact paths served. Anything else is labelled
// "other" so that scanners probing random paths cannot grow label
// cardinality.
var knownRoutes = map[string]bool{
	"/":                       true,
	"/healthz":                true,
	"/readyz":                 true,
	"/metrics":                true,
	"/api/v1/visible":         true,
	"/api/v1/visible/stream":  true,
	"/api/v1/catalog":         true,
	"/api/v1/catalog/refresh": true,
}

// passesPrefix carries the NORAD ID as a path value.
const passesPrefix = "/api/v1/passes/"

func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if strings.HasPrefix(path, passesPrefix) && len(path) > len(passesPrefix) && !strings.Contains(path[len(passesPrefix):], "/") {
		return passesPrefix + "{norad_id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}

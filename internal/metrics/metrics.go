// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mirrorRequestsTotal        *prometheus.CounterVec
	mirrorRequestDuration      *prometheus.HistogramVec
	resolveTotal               *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	rowsWrittenTotal           *prometheus.CounterVec
	sinkFlushesTotal           *prometheus.CounterVec
	batchesTotal               *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		mirrorRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_mirror_requests_total",
				Help: "Total number of mirror requests, labeled by mirror and outcome.",
			},
			[]string{"mirror", "outcome"},
		)

		mirrorRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_mirror_request_duration_seconds",
				Help:    "Histogram of mirror request latencies, labeled by mirror.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"mirror"},
		)

		resolveTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_resolve_total",
				Help: "Total number of identifier resolutions, labeled by the tier that answered.",
			},
			[]string{"tier"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_cache_lookups_total",
				Help: "Total number of cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		rowsWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_rows_written_total",
				Help: "Total number of output rows appended, labeled by label.",
			},
			[]string{"label"},
		)

		sinkFlushesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_sink_flushes_total",
				Help: "Total number of output sink flushes, labeled by label.",
			},
			[]string{"label"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_batches_total",
				Help: "Total number of batches handled, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_active_workers",
				Help: "Number of workers currently resolving an identifier.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_rate_limit_delays_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_http_requests_total",
				Help: "Total number of status server requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_http_request_duration_seconds",
				Help:    "Histogram of status server latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveMirror records one mirror request and its latency.
func ObserveMirror(mirror, outcome string, duration time.Duration) {
	Init()
	mirrorRequestsTotal.WithLabelValues(mirror, outcome).Inc()
	mirrorRequestDuration.WithLabelValues(mirror).Observe(duration.Seconds())
}

// ObserveResolve counts which tier produced the final answer.
func ObserveResolve(tier string) {
	Init()
	resolveTotal.WithLabelValues(tier).Inc()
}

// ObserveCacheLookup counts a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveRow counts an appended output row.
func ObserveRow(label string) {
	Init()
	rowsWrittenTotal.WithLabelValues(label).Inc()
}

// ObserveFlush counts a sink flush.
func ObserveFlush(label string) {
	Init()
	sinkFlushesTotal.WithLabelValues(label).Inc()
}

// ObserveBatch increments the batch counter for the given status.
func ObserveBatch(status string) {
	Init()
	batchesTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			routePattern = rctx.RoutePattern()
		}
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

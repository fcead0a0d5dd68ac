// Package metrics provides Prometheus instrumentation for the parity engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecordsCreated counts catalog writes by record kind.
	RecordsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parity_records_created_total",
		Help: "Total records created, by kind",
	}, []string{"kind"})

	DashboardBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parity_dashboard_builds_total",
		Help: "Total dashboard builds, by mode",
	}, []string{"mode"})

	// DashboardBuildSeconds covers snapshot load, series build and report.
	DashboardBuildSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parity_dashboard_build_seconds",
		Help:    "Dashboard build latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"mode"})

	// PriceCells counts computed (market, date) net prices by outcome:
	// available or unavailable.
	PriceCells = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parity_price_cells_total",
		Help: "Net price cells computed, by outcome",
	}, []string{"outcome"})

	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parity_exports_total",
		Help: "Dashboard exports, by format and destination",
	}, []string{"format", "destination"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parity_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// SnapshotCache counts Redis snapshot lookups by result: hit, miss or error.
	SnapshotCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parity_snapshot_cache_total",
		Help: "Snapshot cache lookups, by result",
	}, []string{"result"})

	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parity_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parity_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern labels by chi route pattern (/api/v1/hotels/{hotelID}/...)
// rather than the raw path, keeping cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not support hijacking", w.ResponseWriter)
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

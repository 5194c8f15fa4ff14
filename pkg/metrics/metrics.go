// Package metrics holds the shop's Prometheus collectors and the /metrics
// endpoint. HTTP traffic is labelled by chi route pattern; the order flow
// has its own counters for placements, rejections by reason, stock
// decrements and low-stock alerts.
//
//	r.Use(metrics.Middleware())
//	r.Get("/metrics", "metrics", metrics.Handler())
package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kshop"

var (
	httpDuration = histogramVec("http", "request_duration_seconds", "Duration of HTTP requests in seconds.",
		prometheus.DefBuckets, "method", "path", "status")
	httpRequests = counterVec("http", "requests_total", "HTTP requests served.", "method", "path", "status")
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_in_flight",
		Help: "HTTP requests currently being served.",
	})
	httpSize = histogramVec("http", "response_size_bytes", "Response body sizes in bytes.",
		[]float64{100, 1_000, 10_000, 100_000, 1_000_000}, "method", "path")

	dbQueryDuration = histogramVec("db", "query_duration_seconds", "Duration of repository queries in seconds.",
		[]float64{.001, .005, .01, .025, .05, .1, .5, 1}, "operation")

	queueJobs        = counterVec("queue", "jobs_processed_total", "Queue jobs processed, by outcome.", "status")
	queueJobDuration = histogramVec("queue", "job_duration_seconds", "Duration of queue jobs in seconds.",
		prometheus.DefBuckets, "job_type")

	// CacheHits and CacheMisses are labelled by cache backend.
	CacheHits   = counterVec("cache", "hits_total", "Product cache hits.", "cache")
	CacheMisses = counterVec("cache", "misses_total", "Product cache misses.", "cache")

	// OrdersPlaced is labelled by the status the order was stored with.
	OrdersPlaced    = counterVec("orders", "placed_total", "Orders committed by the placement transaction.", "status")
	orderRejections = counterVec("orders", "rejections_total", "Order placements rolled back, by reason.", "reason")
	StockDecrements = counterVec("stock", "decremented_units_total", "Units removed from stock by committed orders.", "kind")

	LowStockAlerts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "stock", Name: "low_stock_alerts_total",
		Help: "Low-stock alerts handled.",
	})
	OrderPlacementDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "orders", Name: "placement_duration_seconds",
		Help:    "Duration of the order placement transaction.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
)

// Registry is what /metrics serves. It carries the Go runtime and process
// collectors besides the shop's own.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpDuration, httpRequests, httpInFlight, httpSize,
		dbQueryDuration, queueJobs, queueJobDuration,
		CacheHits, CacheMisses,
		OrdersPlaced, orderRejections, StockDecrements, LowStockAlerts, OrderPlacementDuration,
	)
}

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func histogramVec(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

// Register adds c to the registry. Registering the same collector twice is
// not an error, which keeps package init order irrelevant.
func Register(c prometheus.Collector) error {
	err := Registry.Register(c)
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// statusRecorder captures the status and body size. It passes Hijack and
// Flush through so the websocket stock feed can upgrade behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T cannot hijack", r.ResponseWriter)
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Middleware records duration, count, size and in-flight requests.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			path, status := routePattern(r), strconv.Itoa(rec.status)
			httpDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
			httpRequests.WithLabelValues(r.Method, path, status).Inc()
			httpSize.WithLabelValues(r.Method, path).Observe(float64(rec.size))
		})
	}
}

// routePattern labels by chi route pattern ("/api/orders/{id}") so order
// ids do not explode label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Handler serves the registry in text and OpenMetrics formats.
func Handler() http.HandlerFunc {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}).ServeHTTP
}

// ObserveDBQuery times a repository call:
//
//	defer metrics.ObserveDBQuery("select", time.Now())
func ObserveDBQuery(operation string, start time.Time) {
	dbQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func RecordQueueJob(jobType, status string, start time.Time) {
	queueJobs.WithLabelValues(status).Inc()
	queueJobDuration.WithLabelValues(jobType).Observe(time.Since(start).Seconds())
}

// RecordOrderRejection counts a rolled-back placement. reason is one of
// product_not_found, variant_not_found, insufficient_stock,
// invalid_request or persistence.
func RecordOrderRejection(reason string) {
	orderRejections.WithLabelValues(reason).Inc()
}

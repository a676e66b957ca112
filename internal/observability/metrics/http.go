package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal       *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	requestInFlight    prometheus.Gauge
	contextCacheTotal  *prometheus.CounterVec
	contextBuildTokens prometheus.Histogram
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP requests processed.",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		},
	)
	contextCacheTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "context",
			Name:        "cache_requests_total",
			Help:        "Context bundle cache lookups by result.",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)
	contextBuildTokens := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "context",
			Name:        "bundle_tokens",
			Help:        "Estimated tokens per returned context bundle.",
			Buckets:     []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(requestTotal, requestDuration, requestInFlight, contextCacheTotal, contextBuildTokens)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		contextCacheTotal:  contextCacheTotal,
		contextBuildTokens: contextBuildTokens,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordCacheResult counts a context cache lookup ("hit", "miss" or "error").
func (m *HTTPServerMetrics) RecordCacheResult(result string) {
	if result == "" {
		result = "unknown"
	}
	m.contextCacheTotal.WithLabelValues(result).Inc()
}

func (m *HTTPServerMetrics) RecordContextTokens(tokens int) {
	if tokens < 0 {
		return
	}
	m.contextBuildTokens.Observe(float64(tokens))
}

var (
	brandPathPattern = regexp.MustCompile(`^/v1/brands/[^/]+`)
	artifactPattern  = regexp.MustCompile(`^/v1/brands/\{brand_id\}/artifacts/[^/]+`)
	jobPathPattern   = regexp.MustCompile(`^/v1/jobs/[^/]+`)
)

// normalizePath keeps label cardinality bounded by replacing ids.
func normalizePath(path string) string {
	path = brandPathPattern.ReplaceAllString(path, "/v1/brands/{brand_id}")
	path = artifactPattern.ReplaceAllString(path, "/v1/brands/{brand_id}/artifacts/{artifact_id}")
	return jobPathPattern.ReplaceAllString(path, "/v1/jobs/{job_id}")
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
)

// HTTPServerMetrics covers the API process: HTTP traffic plus retrieval and
// ask outcomes. It implements ports.RetrievalObserver.
type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	sourceResults        *prometheus.HistogramVec
	sourceFailuresTotal  *prometheus.CounterVec
	sourceDuration       *prometheus.HistogramVec
	hybridDuration       prometheus.Histogram
	hybridContextSize    prometheus.Histogram
	hybridEmptyTotal     prometheus.Counter
	askTotal             *prometheus.CounterVec
	askDuration          *prometheus.HistogramVec
	rateLimitedTotal     prometheus.Counter
	backpressureRejected prometheus.Counter
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "legal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "legal",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		},
	)
	sourceResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "legal",
			Subsystem:   "retrieval",
			Name:        "source_results",
			Help:        "Distribution of results returned per retrieval source call.",
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
			ConstLabels: constLabels,
		},
		[]string{"source"},
	)
	sourceFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "legal",
			Subsystem:   "retrieval",
			Name:        "source_failures_total",
			Help:        "Total failed retrieval source calls.",
			ConstLabels: constLabels,
		},
		[]string{"source"},
	)
	sourceDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "legal",
			Subsystem:   "retrieval",
			Name:        "source_duration_seconds",
			Help:        "Retrieval source call duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"source"},
	)
	hybridDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "legal",
			Subsystem:   "retrieval",
			Name:        "hybrid_duration_seconds",
			Help:        "Hybrid search duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
	)
	hybridContextSize := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "legal",
			Subsystem:   "retrieval",
			Name:        "context_size",
			Help:        "Distribution of merged results per hybrid search.",
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 10, 20, 50},
			ConstLabels: constLabels,
		},
	)
	hybridEmptyTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "legal",
			Subsystem:   "retrieval",
			Name:        "empty_total",
			Help:        "Total hybrid searches that returned no results.",
			ConstLabels: constLabels,
		},
	)
	askTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "legal",
			Subsystem:   "ask",
			Name:        "requests_total",
			Help:        "Total ask runs by terminal status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	askDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "legal",
			Subsystem:   "ask",
			Name:        "duration_seconds",
			Help:        "Ask run duration in seconds by terminal status.",
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	rateLimitedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "legal",
			Subsystem:   "http",
			Name:        "rate_limited_total",
			Help:        "Total requests rejected by the rate limiter.",
			ConstLabels: constLabels,
		},
	)
	backpressureRejected := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "legal",
			Subsystem:   "http",
			Name:        "backpressure_rejected_total",
			Help:        "Total requests rejected because the in-flight limit was reached.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		sourceResults,
		sourceFailuresTotal,
		sourceDuration,
		hybridDuration,
		hybridContextSize,
		hybridEmptyTotal,
		askTotal,
		askDuration,
		rateLimitedTotal,
		backpressureRejected,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		service:              service,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		sourceResults:        sourceResults,
		sourceFailuresTotal:  sourceFailuresTotal,
		sourceDuration:       sourceDuration,
		hybridDuration:       hybridDuration,
		hybridContextSize:    hybridContextSize,
		hybridEmptyTotal:     hybridEmptyTotal,
		askTotal:             askTotal,
		askDuration:          askDuration,
		rateLimitedTotal:     rateLimitedTotal,
		backpressureRejected: backpressureRejected,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
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

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/ask/traces/"):
		return "/ask/traces/{trace_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) ObserveSourceFetch(source string, results int, failed bool, duration time.Duration) {
	if source == "" {
		source = "unknown"
	}
	m.sourceDuration.WithLabelValues(source).Observe(duration.Seconds())
	if failed {
		m.sourceFailuresTotal.WithLabelValues(source).Inc()
		return
	}
	m.sourceResults.WithLabelValues(source).Observe(float64(results))
}

func (m *HTTPServerMetrics) ObserveHybridSearch(results int, duration time.Duration) {
	m.hybridDuration.Observe(duration.Seconds())
	m.hybridContextSize.Observe(float64(results))
	if results == 0 {
		m.hybridEmptyTotal.Inc()
	}
}

func (m *HTTPServerMetrics) ObserveAsk(status domain.AskStatus, duration time.Duration) {
	label := string(status)
	if label == "" {
		label = "unknown"
	}
	m.askTotal.WithLabelValues(label).Inc()
	m.askDuration.WithLabelValues(label).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordRateLimited() {
	m.rateLimitedTotal.Inc()
}

func (m *HTTPServerMetrics) RecordBackpressureRejected() {
	m.backpressureRejected.Inc()
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

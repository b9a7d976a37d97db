package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	persistTotal    *prometheus.CounterVec
	persistDuration *prometheus.HistogramVec
	persistInFlight prometheus.Gauge
	traceLag        *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	persistTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legal",
			Subsystem: "worker",
			Name:      "trace_persist_total",
			Help:      "Total persisted ask traces by status.",
		},
		[]string{"service", "status"},
	)
	persistDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "legal",
			Subsystem: "worker",
			Name:      "trace_persist_duration_seconds",
			Help:      "Trace persistence duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	persistInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "legal",
			Subsystem: "worker",
			Name:      "trace_persist_in_flight",
			Help:      "Number of in-flight trace writes.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	traceLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "legal",
			Subsystem: "worker",
			Name:      "trace_lag_seconds",
			Help:      "Delay between trace creation and persistence start.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	registry.MustRegister(persistTotal, persistDuration, persistInFlight, traceLag)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		persistTotal:    persistTotal,
		persistDuration: persistDuration,
		persistInFlight: persistInFlight,
		traceLag:        traceLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartTrace() {
	m.persistInFlight.Inc()
}

func (m *WorkerMetrics) FinishTrace(duration time.Duration, err error) {
	m.persistInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.persistTotal.WithLabelValues(m.service, status).Inc()
	m.persistDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveTraceLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.traceLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Record kinds used as the "kind" label.
const (
	KindRiskCheck      = "risk_check"
	KindMargin         = "margin_calculation"
	KindCircuitBreaker = "circuit_breaker"
)

type MetricsCollector struct {
	registry        *prometheus.Registry
	recordsWritten  *prometheus.CounterVec
	writesFailed    *prometheus.CounterVec
	tradesBlocked   prometheus.Counter
	breakerResolved prometheus.Counter
	openBreakers    prometheus.Gauge
	storeDuration   *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	logger          *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &MetricsCollector{
		registry: registry,
		recordsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_records_written_total",
			Help: "Records persisted, by kind",
		}, []string{"kind"}),
		writesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_record_writes_failed_total",
			Help: "Rejected or failed writes, by kind and reason",
		}, []string{"kind", "reason"}),
		tradesBlocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_trades_blocked_total",
			Help: "Risk checks recorded with passed=false",
		}),
		breakerResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_circuit_breakers_resolved_total",
			Help: "Circuit breaker events moved from open to resolved",
		}),
		openBreakers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_circuit_breakers_open",
			Help: "Circuit breaker events currently unresolved",
		}),
		storeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_store_operation_duration_seconds",
			Help:    "Time spent in store operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_http_requests_total",
			Help: "HTTP requests served, by route, method and status",
		}, []string{"path", "method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_http_request_duration_seconds",
			Help:    "HTTP request latency, by route and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		logger: logger,
	}
}

// RecordWrite counts a persisted record. blocked only applies to risk checks.
func (m *MetricsCollector) RecordWrite(kind string, blocked bool) {
	m.recordsWritten.WithLabelValues(kind).Inc()
	if blocked {
		m.tradesBlocked.Inc()
	}
}

// RecordFailure counts a write that did not persist.
func (m *MetricsCollector) RecordFailure(kind, reason string) {
	m.writesFailed.WithLabelValues(kind, reason).Inc()
}

func (m *MetricsCollector) RecordResolve() {
	m.breakerResolved.Inc()
}

func (m *MetricsCollector) SetOpenBreakers(n int) {
	m.openBreakers.Set(float64(n))
}

// ObserveStore records how long a store call took.
func (m *MetricsCollector) ObserveStore(op string, d time.Duration) {
	m.storeDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveHTTP records a served request.
func (m *MetricsCollector) ObserveHTTP(path, method, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(path, method, status).Inc()
	m.httpDuration.WithLabelValues(path, method).Observe(d.Seconds())
}

// Registry exposes the private registry, mainly for tests.
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(m.logger.Handler(), slog.LevelError),
	})
}

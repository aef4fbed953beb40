package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes gateway metrics (e.g. Prometheus handler).
type Metrics interface {
	HTTPHandler() http.Handler
	RecordRequest(endpoint string, statusCode int, duration time.Duration)
	RecordRejection(endpoint, reason string)
	RecordTokens(model string, promptTokens, completionTokens int)
}

// PrometheusMetrics implements Metrics on a private Prometheus registry.
type PrometheusMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rejectionsTotal *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a metrics instance with all gateway metrics.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of HTTP requests by endpoint and status code",
			},
			[]string{"endpoint", "status_code"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"endpoint"},
		),

		rejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rejections_total",
				Help: "Total number of rejected requests by endpoint and reason",
			},
			[]string{"endpoint", "reason"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_tokens_total",
				Help: "Total number of tokens consumed by model and kind",
			},
			[]string{"model", "kind"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.rejectionsTotal,
		m.tokensTotal,
	)

	return m
}

// HTTPHandler returns the scrape handler for the registry.
func (m *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a finished HTTP request.
func (m *PrometheusMetrics) RecordRequest(endpoint string, statusCode int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordRejection records a request turned away before reaching the backend.
func (m *PrometheusMetrics) RecordRejection(endpoint, reason string) {
	m.rejectionsTotal.WithLabelValues(endpoint, reason).Inc()
}

// RecordTokens records token consumption for a completed request.
func (m *PrometheusMetrics) RecordTokens(model string, promptTokens, completionTokens int) {
	m.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	m.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
}

// NoopMetrics is a placeholder metrics implementation.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (m *NoopMetrics) RecordRequest(endpoint string, statusCode int, duration time.Duration) {}

func (m *NoopMetrics) RecordRejection(endpoint, reason string) {}

func (m *NoopMetrics) RecordTokens(model string, promptTokens, completionTokens int) {}

package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics contains Prometheus metrics for the HTTP API.
type HTTPMetrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// SSE (Server-Sent Events) metrics
	sseActiveConnections prometheus.Gauge
	sseMessagesSent      prometheus.Counter
}

// NewHTTPMetrics creates and registers new HTTP metrics.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"}, // path is the route pattern, e.g. /api/v1/levels
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes",
			Buckets: prometheus.ExponentialBuckets(BucketStart100B, BucketFactor10, BucketCount6),
		},
		[]string{"method", "path"},
	)

	m.sseActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_sse_active_connections",
		Help: "Number of open level streams",
	})

	m.sseMessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_sse_messages_sent_total",
		Help: "Total number of readings sent to level streams",
	})
}

// RecordRequest records a completed HTTP request.
func (m *HTTPMetrics) RecordRequest(method, path string, status int, seconds float64, size int64) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
	if size > 0 {
		m.httpResponseSize.WithLabelValues(method, path).Observe(float64(size))
	}
}

// SSEConnected tracks a stream being opened.
func (m *HTTPMetrics) SSEConnected() {
	m.sseActiveConnections.Inc()
}

// SSEDisconnected tracks a stream being closed.
func (m *HTTPMetrics) SSEDisconnected() {
	m.sseActiveConnections.Dec()
}

// SSEMessageSent counts a reading written to a stream.
func (m *HTTPMetrics) SSEMessageSent() {
	m.sseMessagesSent.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	m.httpRequestsTotal.Collect(ch)
	m.httpRequestDuration.Collect(ch)
	m.httpResponseSize.Collect(ch)
	ch <- m.sseActiveConnections
	ch <- m.sseMessagesSent
}

// Describe implements the prometheus.Collector interface.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.httpRequestsTotal.Describe(ch)
	m.httpRequestDuration.Describe(ch)
	m.httpResponseSize.Describe(ch)
	ch <- m.sseActiveConnections.Desc()
	ch <- m.sseMessagesSent.Desc()
}

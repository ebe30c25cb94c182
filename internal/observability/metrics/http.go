package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks API requests.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec
	UploadsTotal    *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers HTTP metrics.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spamguard_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spamguard_http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		ResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spamguard_http_response_size_bytes",
			Help:    "Size of HTTP responses",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"method", "path"}),
		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spamguard_uploads_total",
			Help: "Uploaded files by extension and outcome",
		}, []string{"extension", "status"}),
	}
	set := collectorSet{m.RequestsTotal, m.RequestDuration, m.ResponseSize, m.UploadsTotal}
	if err := register(registry, "http", set); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRequest records a completed request. path is the route template.
func (m *HTTPMetrics) RecordRequest(method, path string, status int, seconds float64, size int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(seconds)
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(size))
}

// RecordUpload records a file extraction attempt.
func (m *HTTPMetrics) RecordUpload(extension string, err error) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(extension, statusOf(err)).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// VerifierMetrics tracks calls to the external LLM verification service.
type VerifierMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	FallbackTotal   *prometheus.CounterVec
	CacheHits       prometheus.Counter
	InFlight        prometheus.Gauge
}

// NewVerifierMetrics creates and registers verifier metrics.
func NewVerifierMetrics(registry *prometheus.Registry) (*VerifierMetrics, error) {
	m := &VerifierMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spamguard_verifier_requests_total",
			Help: "Verification requests sent to the LLM provider",
		}, []string{"provider", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spamguard_verifier_request_duration_seconds",
			Help:    "Latency of LLM verification requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider"}),
		FallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spamguard_verifier_fallback_total",
			Help: "Verdicts produced without a parsable LLM reply",
		}, []string{"reason"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spamguard_verifier_cache_hits_total",
			Help: "Verifications served from the verdict cache",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spamguard_verifier_in_flight",
			Help: "Verification requests currently in flight",
		}),
	}
	set := collectorSet{m.RequestsTotal, m.RequestDuration, m.FallbackTotal, m.CacheHits, m.InFlight}
	if err := register(registry, "verifier", set); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRequest records a finished provider call.
func (m *VerifierMetrics) RecordRequest(provider string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(provider, statusOf(err)).Inc()
	m.RequestDuration.WithLabelValues(provider).Observe(seconds)
}

// RecordFallback counts a verdict that came from a fallback path.
func (m *VerifierMetrics) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.FallbackTotal.WithLabelValues(reason).Inc()
}

// RecordCacheHit counts a cached verdict.
func (m *VerifierMetrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// TrackInFlight increments the in-flight gauge and returns its release func.
func (m *VerifierMetrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

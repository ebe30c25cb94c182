package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClassifierMetrics tracks local model inference.
type ClassifierMetrics struct {
	PredictionTotal    *prometheus.CounterVec
	PredictionDuration *prometheus.HistogramVec
	SpamTotal          *prometheus.CounterVec
	ModelLoadTotal     *prometheus.CounterVec
	ModelLoaded        *prometheus.GaugeVec
}

// NewClassifierMetrics creates and registers classifier metrics.
func NewClassifierMetrics(registry *prometheus.Registry) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{
		PredictionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spamguard_predictions_total",
			Help: "Total number of model predictions",
		}, []string{"type", "status"}),
		PredictionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spamguard_prediction_duration_seconds",
			Help:    "Time taken to preprocess and run a model prediction",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10),
		}, []string{"type"}),
		SpamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spamguard_model_spam_total",
			Help: "Number of inputs the local model scored as spam",
		}, []string{"type"}),
		ModelLoadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spamguard_model_load_total",
			Help: "Model load attempts",
		}, []string{"type", "status"}),
		ModelLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spamguard_model_loaded",
			Help: "Whether the model for a content type is loaded (1) or not (0)",
		}, []string{"type"}),
	}
	set := collectorSet{m.PredictionTotal, m.PredictionDuration, m.SpamTotal, m.ModelLoadTotal, m.ModelLoaded}
	if err := register(registry, "classifier", set); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordPrediction records one prediction outcome.
func (m *ClassifierMetrics) RecordPrediction(contentType string, seconds float64, spam bool, err error) {
	if m == nil {
		return
	}
	m.PredictionTotal.WithLabelValues(contentType, statusOf(err)).Inc()
	if err != nil {
		return
	}
	m.PredictionDuration.WithLabelValues(contentType).Observe(seconds)
	if spam {
		m.SpamTotal.WithLabelValues(contentType).Inc()
	}
}

// RecordModelLoad records a load attempt and updates the loaded gauge.
func (m *ClassifierMetrics) RecordModelLoad(contentType string, err error) {
	if m == nil {
		return
	}
	m.ModelLoadTotal.WithLabelValues(contentType, statusOf(err)).Inc()
	if err != nil {
		m.ModelLoaded.WithLabelValues(contentType).Set(0)
		return
	}
	m.ModelLoaded.WithLabelValues(contentType).Set(1)
}

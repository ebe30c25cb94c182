package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics tracks repository operations.
type DatastoreMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewDatastoreMetrics creates and registers datastore metrics.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spamguard_db_operations_total",
			Help: "Database operations by name and outcome",
		}, []string{"operation", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spamguard_db_operation_duration_seconds",
			Help:    "Database operation latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"operation"}),
	}
	set := collectorSet{m.OperationsTotal, m.OperationDuration}
	if err := register(registry, "datastore", set); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordOperation records one repository call.
func (m *DatastoreMetrics) RecordOperation(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, statusOf(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

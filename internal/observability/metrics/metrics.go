// Package metrics provides the Prometheus collectors used by SpamGuard components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Status label values shared by all operation counters.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// collectorSet implements prometheus.Collector over a fixed list of collectors
type collectorSet []prometheus.Collector

func (s collectorSet) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range s {
		c.Describe(ch)
	}
}

func (s collectorSet) Collect(ch chan<- prometheus.Metric) {
	for _, c := range s {
		c.Collect(ch)
	}
}

func register(registry *prometheus.Registry, name string, set collectorSet) error {
	if err := registry.Register(set); err != nil {
		return fmt.Errorf("failed to register %s metrics: %w", name, err)
	}
	return nil
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

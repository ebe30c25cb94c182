// Package observability wires the Prometheus registry and exposes it over HTTP.
package observability

import "github.com/tphakala/spamguard-go/internal/logger"

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

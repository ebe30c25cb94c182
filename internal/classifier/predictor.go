package classifier

import (
	"context"
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Predictor scores a padded index sequence, returning P(spam).
type Predictor interface {
	Predict(ctx context.Context, seq []int32) (float32, error)
	Close() error
}

// ModelOptions configures the TFLite interpreter.
type ModelOptions struct {
	// Threads is the interpreter thread count; 0 picks the physical core count.
	Threads    int
	UseXNNPACK bool
}

// determineThreadCount resolves the configured thread count against the host.
func determineThreadCount(configured int) int {
	available := runtime.NumCPU()
	if configured > 0 {
		return min(configured, available)
	}
	if cores := cpuid.CPU.PhysicalCores; cores > 0 {
		return min(cores, available)
	}
	return available
}

package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/spamguard-go/internal/classifier"
	"github.com/tphakala/spamguard-go/internal/logger"
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status        string          `json:"status"`
	Version       string          `json:"version"`
	Uptime        string          `json:"uptime"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	Models        map[string]bool `json:"models"`
	Verifier      VerifierStatus  `json:"verifier"`
	System        SystemStatus    `json:"system"`
	Timestamp     string          `json:"timestamp"`
}

// VerifierStatus describes the second-stage verifier.
type VerifierStatus struct {
	Provider   string `json:"provider"`
	Configured bool   `json:"configured"`
}

// SystemStatus is a snapshot of host resource usage.
type SystemStatus struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryTotal   uint64  `json:"memory_total"`
	Goroutines    int     `json:"goroutines"`
}

// HealthCheck reports loaded models, the verifier and host resources.
// Status is "degraded" when no model is loaded.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := time.Since(c.startTime)

	models := make(map[string]bool, len(classifier.AllContentTypes))
	for _, t := range classifier.AllContentTypes {
		models[string(t)] = false
	}
	loaded := 0
	if c.models != nil {
		for _, t := range c.models.Loaded() {
			models[string(t)] = true
			loaded++
		}
	}

	status := "healthy"
	if loaded == 0 {
		status = "degraded"
	}

	return ctx.JSON(http.StatusOK, HealthResponse{
		Status:        status,
		Version:       c.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Models:        models,
		Verifier: VerifierStatus{
			Provider:   c.detector.Provider(),
			Configured: c.detector.HasVerifier(),
		},
		System:    c.systemStatus(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// systemStatus collects host metrics. Failures leave fields at zero.
func (c *Controller) systemStatus() SystemStatus {
	s := SystemStatus{Goroutines: runtime.NumGoroutine()}

	// zero interval compares against the previous call instead of sleeping
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	} else if err != nil {
		c.logger.Debug("failed to read CPU usage", logger.Error(err))
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = vm.UsedPercent
		s.MemoryUsed = vm.Used
		s.MemoryTotal = vm.Total
	} else {
		c.logger.Debug("failed to read memory usage", logger.Error(err))
	}
	return s
}

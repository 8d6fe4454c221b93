package services

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"mktsummary/internal/infrastructure"
)

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	outputDir string
	batches   *BatchService
	hub       ClientCounter
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a health service. batches and hub may be nil.
func NewHealthService(version, outputDir string, batches *BatchService, hub ClientCounter, logger *slog.Logger) *HealthService {
	return &HealthService{
		version:   version,
		outputDir: outputDir,
		batches:   batches,
		hub:       hub,
		startTime: time.Now(),
		logger:    infrastructure.WithComponent(logger, "health_service"),
	}
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// ReadinessCheck returns readiness status
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]interface{}{
			"output_dir": hs.checkOutputDir(),
			"batches":    hs.checkBatches(),
			"websocket":  hs.checkWebSocket(),
		},
	}

	for _, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status != "ready" {
			status.Status = "not_ready"
			break
		}
	}

	if status.Status != "ready" {
		hs.logger.WarnContext(ctx, "Readiness check failed", slog.Any("services", status.Services))
	}
	return status
}

func (hs *HealthService) checkOutputDir() ServiceHealth {
	info, err := os.Stat(hs.outputDir)
	switch {
	case os.IsNotExist(err):
		// created on the first batch
		return ServiceHealth{Status: "ready", Message: "will be created on demand"}
	case err != nil:
		return ServiceHealth{Status: "error", Message: err.Error()}
	case !info.IsDir():
		return ServiceHealth{Status: "error", Message: hs.outputDir + " is not a directory"}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkBatches() ServiceHealth {
	if hs.batches == nil {
		return ServiceHealth{Status: "error", Message: "batch service not configured"}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "ready", Message: "disabled"}
	}
	return ServiceHealth{Status: "ready"}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":    hs.version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     time.Since(hs.startTime).Seconds(),
		"start_time": hs.startTime.Format(time.RFC3339),
	}
	if hs.batches != nil {
		result["active_batches"] = hs.batches.Active()
	}
	if hs.hub != nil {
		result["websocket_clients"] = hs.hub.ClientCount()
	}
	return result
}

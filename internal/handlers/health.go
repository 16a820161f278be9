package handlers

import (
	"net/http"
	"runtime"
	"time"

	"photoframe/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status          string `json:"status"`
	Ready           bool   `json:"ready"`
	Version         string `json:"version"`
	Uptime          string `json:"uptime"`
	StorageProvider string `json:"storageProvider,omitempty"`

	// Queue summary
	PendingTasks   int `json:"pendingTasks"`
	InFlightTasks  int `json:"inFlightTasks"`
	CompletedTasks int `json:"completedTasks"`
	FailedTasks    int `json:"failedTasks"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Ready:        true,
		Status:       statusHealthy,
		Version:      startup.Version,
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if provider, err := h.storage.Provider(); err != nil {
		response.Ready = false
		response.Status = statusDegraded
	} else {
		response.StorageProvider = string(provider.Kind())
	}

	if err := h.db.DB().PingContext(r.Context()); err != nil {
		response.Ready = false
		response.Status = statusDegraded
	}

	if counts, err := h.db.QueueStats(r.Context()); err == nil {
		response.PendingTasks = counts["pending"]
		response.InFlightTasks = counts["in-stages"]
		response.CompletedTasks = counts["completed"]
		response.FailedTasks = counts["failed"]
	}

	w.Header().Set("Content-Type", "application/json")

	if !response.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSONStatus(w, "alive")
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, providerErr := h.storage.Provider()
	if providerErr == nil && h.db.DB().PingContext(r.Context()) == nil {
		w.WriteHeader(http.StatusOK)
		writeJSONStatus(w, "ready")
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSONStatus(w, "not_ready")
	}
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"photoframe/internal/database"
	"photoframe/internal/logging"
	"photoframe/internal/metrics"

	"github.com/gorilla/mux"
)

// enqueueRequest is the POST body accepted by EnqueueTask.
type enqueueRequest struct {
	Type        string   `json:"type"`
	StorageKey  string   `json:"storageKey,omitempty"`
	PhotoID     string   `json:"photoId,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	MaxAttempts int      `json:"maxAttempts,omitempty"`
}

// EnqueueTask adds a new task to the pipeline queue
func (h *Handlers) EnqueueTask(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	switch req.Type {
	case database.TaskTypePhoto, database.TaskTypeLivePhotoVideo:
		if req.StorageKey == "" {
			writeJSONError(w, "storageKey is required for "+req.Type+" tasks", http.StatusBadRequest)
			return
		}
	case database.TaskTypeReverseGeocode:
		if req.PhotoID == "" {
			writeJSONError(w, "photoId is required for "+req.Type+" tasks", http.StatusBadRequest)
			return
		}
	default:
		writeJSONError(w, "unknown task type: "+req.Type, http.StatusBadRequest)
		return
	}

	payload := database.TaskPayload{
		Type:       req.Type,
		StorageKey: req.StorageKey,
		PhotoID:    req.PhotoID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
	}

	id, err := h.db.AddTask(r.Context(), payload, database.TaskOptions{
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		logging.Error("failed to enqueue %s task: %v", req.Type, err)
		writeJSONError(w, "failed to enqueue task", http.StatusInternalServerError)
		return
	}

	metrics.QueueTasksEnqueued.WithLabelValues(req.Type).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]interface{}{
		"id":     id,
		"status": string(database.TaskStatusPending),
	})
}

// GetTask returns a single queue task by id
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeJSONError(w, "invalid task id", http.StatusBadRequest)
		return
	}

	task, err := h.db.GetTask(r.Context(), id)
	if err != nil {
		logging.Error("failed to load task %d: %v", id, err)
		writeJSONError(w, "failed to load task", http.StatusInternalServerError)
		return
	}
	if task == nil {
		writeJSONError(w, "task not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, task)
}

// QueueStats returns queue depth and per-worker statistics
func (h *Handlers) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		logging.Error("failed to collect queue stats: %v", err)
		writeJSONError(w, "failed to collect queue stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, stats)
}

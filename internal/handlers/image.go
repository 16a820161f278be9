package handlers

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"photoframe/internal/logging"
	"photoframe/internal/mediatypes"

	"github.com/gorilla/mux"
)

// ServeImage streams a stored object through the configured storage
// provider. It backs the public URLs the local provider hands out and
// doubles as a debugging aid for remote providers.
func (h *Handlers) ServeImage(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		writeJSONError(w, "missing object key", http.StatusBadRequest)
		return
	}

	provider, err := h.storage.Provider()
	if err != nil {
		writeJSONError(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}

	data, err := provider.Get(r.Context(), key)
	if err != nil {
		logging.Error("failed to fetch object %s: %v", key, err)
		writeJSONError(w, "failed to fetch object", http.StatusInternalServerError)
		return
	}
	if data == nil {
		writeJSONError(w, "object not found", http.StatusNotFound)
		return
	}

	contentType := mediatypes.GetMimeType(strings.ToLower(filepath.Ext(key)))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	if r.Method == http.MethodHead {
		return
	}

	if _, err := w.Write(data); err != nil {
		logging.Debug("client disconnected while streaming %s: %v", key, err)
	}
}

package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns the Prometheus scrape handler exposing the
// photoframe_ queue, pipeline, storage, DB and HTTP collectors.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

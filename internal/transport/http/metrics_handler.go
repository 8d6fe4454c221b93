package http

import (
	"net/http"

	"github.com/go-chi/render"
)

// StatsSource reports counters that are not Prometheus instruments.
type StatsSource interface {
	Stats() map[string]interface{}
}

// MetricsHandler serves the Prometheus exposition and a JSON stats view.
type MetricsHandler struct {
	prometheus http.Handler
	hub        StatsSource
}

// NewMetricsHandler wraps the Prometheus handler. Either argument may be nil.
func NewMetricsHandler(prometheus http.Handler, hub StatsSource) *MetricsHandler {
	return &MetricsHandler{prometheus: prometheus, hub: hub}
}

// Metrics handles GET /metrics
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.prometheus == nil {
		http.Error(w, "metrics disabled", http.StatusNotFound)
		return
	}
	h.prometheus.ServeHTTP(w, r)
}

// Stats handles GET /api/v1/stats
func (h *MetricsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{}
	if h.hub != nil {
		out["websocket"] = h.hub.Stats()
	}
	render.JSON(w, r, out)
}

package api

import (
	"net/http"
)

// StatsProvider reports service counters for GET /stats.
type StatsProvider interface {
	GetStats() map[string]any
}

// StatsHandler serves the service snapshot as JSON.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}

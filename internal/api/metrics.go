package api

import (
	"net/http"
	"time"
)

// handleMetrics returns operational counters for dashboards and scrapers.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"machines":       s.registry.GetMachineCount(),
		"orchestrator":   s.orchestrator.Stats(),
		"reconciler":     s.reconciler.Stats(),
		"websocket": map[string]any{
			"clients": s.hub.ClientCount(),
		},
	})
}

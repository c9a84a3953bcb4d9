package api

import (
	"net/http"
)

func (s *Server) handleMatcherStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		jsonError(w, "matcher stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matcher": s.cfg.MatcherURL,
		"stats":   s.deps.Stats.Snapshot(),
	})
}

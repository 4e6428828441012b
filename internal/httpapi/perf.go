package httpapi

import "net/http"

func (s *Server) handleTaskStats(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generatedAt": "",
			"windowSize":  0,
			"types":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.TaskStats())
}

package api

import (
	"net/http"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Model == nil || s.deps.Model.Stats() == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}

	resp := map[string]any{
		"provider": s.deps.Model.ProviderName(),
		"model":    s.deps.Model.Model(),
		"stats":    s.deps.Model.Stats().Snapshot(),
	}
	if s.deps.Orchestrator != nil {
		resp["queue_depth"] = s.deps.Orchestrator.QueueDepth()
	}
	writeJSON(w, http.StatusOK, resp)
}

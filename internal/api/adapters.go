package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/habitat-home/habitat-core/internal/supervisor"
)

// handleListAdapters returns the health of every supervised adapter.
func (s *Server) handleListAdapters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"adapters": s.sup.Health()})
}

// handleGetAdapter returns the health of one adapter instance.
func (s *Server) handleGetAdapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	health, err := s.sup.AdapterHealth(id)
	if err != nil {
		writeNotFound(w, "adapter not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// handleAdapterLogs returns the retained log ring of one adapter,
// oldest first.
func (s *Server) handleAdapterLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logs, err := s.sup.AdapterLogs(id)
	if err != nil {
		writeNotFound(w, "adapter not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// handleRestartAdapter stops and restarts a supervised adapter.
func (s *Server) handleRestartAdapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sup.RestartAdapter(r.Context(), id); err != nil {
		if errors.Is(err, supervisor.ErrAdapterNotRunning) {
			writeConflict(w, "adapter is not running: "+id)
			return
		}
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "restarted"})
}

// handleStopAdapter stops a supervised adapter. The instance stays in
// the health table as stopped.
func (s *Server) handleStopAdapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sup.StopAdapter(r.Context(), id); err != nil {
		if errors.Is(err, supervisor.ErrAdapterNotRunning) {
			writeConflict(w, "adapter is not running: "+id)
			return
		}
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/spaces", func(r chi.Router) {
			r.Get("/", s.handleListSpaces)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSpace)
				r.Get("/state", s.handleObserve)
				r.Get("/capabilities", s.handleSpaceCapabilities)
				r.Post("/influence", s.handleInfluence)
				r.Post("/query", s.handleQuery)
			})
		})

		r.Get("/capabilities", s.handleCapabilities)

		r.Route("/adapters", func(r chi.Router) {
			r.Get("/", s.handleListAdapters)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAdapter)
				r.Get("/logs", s.handleAdapterLogs)
				r.Post("/restart", s.handleRestartAdapter)
				r.Post("/stop", s.handleStopAdapter)
			})
		})

		r.Get("/events", s.handleListEvents)
		r.Post("/system/reload", s.handleReload)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

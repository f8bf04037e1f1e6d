package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/habitat-home/habitat-core/internal/engine"
	"github.com/habitat-home/habitat-core/internal/property"
)

// targetFromQuery builds an engine target from ?source= and ?property=.
func targetFromQuery(r *http.Request) engine.Target {
	return engine.Target{
		Source:   r.URL.Query().Get("source"),
		Property: property.Name(r.URL.Query().Get("property")),
	}
}

// writeEngineError maps routing errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrSpaceNotFound),
		errors.Is(err, engine.ErrSourceNotFound),
		errors.Is(err, engine.ErrPropertyNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, engine.ErrInvalidTarget):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// handleObserve reads state for the targeted pairs in a space.
//
//	GET /api/v1/spaces/{id}/state?source=lr-light
//	GET /api/v1/spaces/{id}/state?property=illumination&cached=true
//
// With cached=true no adapter is touched; otherwise reachable sources
// get a live read with cache fallback.
func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "id")
	target := targetFromQuery(r)

	var (
		obs []engine.Observation
		err error
	)
	if r.URL.Query().Get("cached") == "true" {
		obs, err = s.engine.ObserveCached(r.Context(), spaceID, target)
	} else {
		obs, err = s.engine.Observe(r.Context(), spaceID, target)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": obs})
}

// commandRequest is the body of an influence or query call.
type commandRequest struct {
	Source   string         `json:"source,omitempty"`
	Property property.Name  `json:"property,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// handleInfluence dispatches a command to the targeted sources.
//
//	POST /api/v1/spaces/{id}/influence
//	{"property": "illumination", "params": {"on": true}}
//
// The response carries one entry per targeted source; adapter failures
// land in the entries, never as an HTTP error.
func (s *Server) handleInfluence(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	results, err := s.engine.Influence(r.Context(), spaceID, engine.Target{Source: req.Source, Property: req.Property}, req.Params)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleQuery fetches collection items for one (source, property) pair.
//
//	POST /api/v1/spaces/{id}/query
//	{"property": "schedule", "params": {"from": "2026-09-01T00:00:00Z"}}
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	outcome, err := s.engine.Query(r.Context(), spaceID, engine.Target{Source: req.Source, Property: req.Property}, req.Params)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

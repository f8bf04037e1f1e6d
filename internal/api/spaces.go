package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/habitat-home/habitat-core/internal/space"
)

// SpaceDetail is a space together with its provisioned sources.
type SpaceDetail struct {
	space.Space
	Sources []space.Source `json:"sources"`
}

// handleListSpaces returns every space with its sources.
func (s *Server) handleListSpaces(w http.ResponseWriter, _ *http.Request) {
	spaces := s.spaces.GetAllSpaces()
	out := make([]SpaceDetail, 0, len(spaces))
	for _, sp := range spaces {
		out = append(out, SpaceDetail{
			Space:   sp,
			Sources: s.spaces.GetSourcesForSpace(sp.ID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"spaces": out})
}

// handleGetSpace returns one space with its sources.
func (s *Server) handleGetSpace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sp := s.spaces.GetSpace(id)
	if sp == nil {
		writeNotFound(w, "space not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, SpaceDetail{
		Space:   *sp,
		Sources: s.spaces.GetSourcesForSpace(sp.ID),
	})
}

// handleCapabilities returns the controllability projection for every
// space.
func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	caps, err := s.engine.Capabilities("")
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": caps})
}

// handleSpaceCapabilities returns the projection for one space.
func (s *Server) handleSpaceCapabilities(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caps, err := s.engine.Capabilities(id)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, caps[0])
}

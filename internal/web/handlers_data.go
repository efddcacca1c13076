package web

import (
	"net/http"
)

// handleDataset returns the session's full mirror.
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	m, err := s.service.Dataset(sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleRows returns one sorted page of the session's mirror.
func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	req, err := parsePageRequest(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.service.View(sessionID(r), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleEndpoint resolves (provisioning on first use) the public API URL of
// the session's dataset.
func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	endpoint, err := s.service.Endpoint(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"endpoint": endpoint})
}

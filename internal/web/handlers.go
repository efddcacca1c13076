package web

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/tablesync/internal/core"
)

// SessionListResponse is the body of GET /api/sessions.
type SessionListResponse struct {
	Sessions []core.SessionSummary `json:"sessions"`
	Active   string                `json:"active,omitempty"`
}

// handleListSessions lists live sessions; ?archived=true includes archived ones.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	includeArchived, err := parseBoolParam(r, "archived", false)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp := SessionListResponse{Sessions: s.service.ListSessions(includeArchived)}
	if active, ok := s.service.ActiveSession(); ok {
		resp.Active = active.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateSession creates a session and makes it active. The body is
// optional; {"name": "..."} overrides the default "Table N" name.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	sess, err := s.service.CreateSession(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleActivate switches the active session.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := s.service.SetActive(r.Context(), sessionID(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": sessionID(r)})
}

// handleArchive hides a session without discarding its mirror.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ArchiveSession(r.Context(), sessionID(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

// handleRestore brings an archived session back.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RestoreSession(r.Context(), sessionID(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// handleStatus reports outstanding remote calls.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.InFlight())
}

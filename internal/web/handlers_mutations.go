package web

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/tablesync/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleEditStatus returns the session's pipeline state.
func (s *Server) handleEditStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.EditStatus(sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleBeginEdit opens the editing cursor on {"row", "column", "value"}.
func (s *Server) handleBeginEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Row    *int   `json:"row"`
		Column string `json:"column"`
		Value  any    `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Row == nil || strings.TrimSpace(req.Column) == "" {
		writeError(w, r, http.StatusBadRequest, "row and column are required")
		return
	}

	if err := s.service.BeginEdit(sessionID(r), *req.Row, req.Column, req.Value); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.handleEditStatus(w, r)
}

// handleUpdateEdit replaces the pending value of the open cursor.
func (s *Server) handleUpdateEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value any `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.service.UpdateEdit(sessionID(r), req.Value); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.handleEditStatus(w, r)
}

// handleCancelEdit drops the open cursor without touching the mirror.
func (s *Server) handleCancelEdit(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelEdit(sessionID(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.handleEditStatus(w, r)
}

// handleCommitEdit sends the open cursor to the dataset store.
func (s *Server) handleCommitEdit(w http.ResponseWriter, r *http.Request) {
	note, err := s.service.CommitEdit(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeMutation(w, r, note)
}

// handleEditCell sets one cell in a single request: {"row", "column", "value"}.
func (s *Server) handleEditCell(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Row    *int   `json:"row"`
		Column string `json:"column"`
		Value  any    `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Row == nil || strings.TrimSpace(req.Column) == "" {
		writeError(w, r, http.StatusBadRequest, "row and column are required")
		return
	}

	note, err := s.service.EditCell(r.Context(), sessionID(r), *req.Row, req.Column, req.Value)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeMutation(w, r, note)
}

// handleAddRow appends a row given as a JSON object of column values.
func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	var values core.Row
	if err := decodeJSON(w, r, &values); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	note, err := s.service.AddRow(r.Context(), sessionID(r), values)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeMutation(w, r, note)
}

// handleDeleteRow deletes the row at {index}.
func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	index, err := rowIndexParam(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	note, err := s.service.DeleteRow(r.Context(), sessionID(r), index)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeMutation(w, r, note)
}

// handleDeleteRowByKey deletes the row with key {rowKey}, wherever it
// currently sits.
func (s *Server) handleDeleteRowByKey(w http.ResponseWriter, r *http.Request) {
	key := core.RowKey(chi.URLParam(r, "rowKey"))

	note, err := s.service.DeleteRowByKey(r.Context(), sessionID(r), key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeMutation(w, r, note)
}

// writeMutation answers a confirmed mutation with its notification and the
// mirror it produced.
func (s *Server) writeMutation(w http.ResponseWriter, r *http.Request, note core.Notification) {
	resp := NotificationResponse{Notification: note}
	if m, err := s.service.Dataset(sessionID(r)); err == nil {
		resp.Data = m
	}
	writeJSON(w, http.StatusOK, resp)
}

package web

import (
	"errors"
	"net/http"
)

// handleUpload sends a multipart CSV (field "file") to the dataset store and
// replaces the session's mirror with the result.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Server.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "file exceeds the maximum upload size")
			return
		}
		writeError(w, r, http.StatusBadRequest, "expected a multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	m, note, err := s.service.Upload(r.Context(), sessionID(r), header.Filename, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NotificationResponse{Notification: note, Data: m})
}

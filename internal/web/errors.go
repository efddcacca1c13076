package web

// errors.go provides unified error response handling for the API.
//
// Every failure is logged with its technical detail and the request id, then
// returned to the client as the same user message and code the engine uses for
// its notifications (core.MapError).

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/tablesync/internal/core"
	"github.com/JonMunkholm/tablesync/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// respondError maps err to a status code and user message, logs it and
// writes the JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	writeJSON(w, status, ErrorResponse{
		Error:     msg.Message,
		Message:   msg.Message,
		Action:    msg.Action,
		Code:      msg.Code,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// statusFor picks the HTTP status for an engine error.
func statusFor(err error) int {
	var rej *core.RemoteRejection
	switch {
	case core.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrSessionArchived),
		errors.Is(err, core.ErrNoDataset),
		errors.Is(err, core.ErrNoOpenEdit):
		return http.StatusConflict
	case errors.As(err, &rej):
		return http.StatusBadGateway
	case core.IsNetwork(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// nginx convention for a client that went away
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error for failures detected in the HTTP layer
// itself, such as malformed parameters.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logging.FromContext(r.Context()).Warn("bad request",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"reason", message,
	)

	writeJSON(w, status, ErrorResponse{
		Error:     message,
		Message:   message,
		Code:      httpCode(status),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "REQ001"
	case http.StatusRequestEntityTooLarge:
		return "REQ002"
	case http.StatusTooManyRequests:
		return "REQ003"
	default:
		return "ERR000"
	}
}

package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/tablesync/internal/logging"
	"github.com/go-chi/chi/v5"
)

type sessionKey struct{}

// sessionContext stores the {sessionID} route parameter on the request context
// and tags the request logger with it.
func (s *Server) sessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		if id == "" {
			writeError(w, r, http.StatusBadRequest, "missing session id")
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, id)
		ctx = logging.WithSession(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionID returns the session addressed by the request.
func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionKey{}).(string)
	return id
}

// clientIP strips the port from RemoteAddr, which TrustedRealIP has already
// resolved for proxied requests.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

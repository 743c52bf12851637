package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-oidc-relay/server/loginsession"
	"github.com/rs/zerolog"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the authenticated login session
	ContextKeySession ContextKey = "session"
)

// RequireSessionAuth admits requests whose session cookie names a live
// session and redirects the rest to login, remembering where they were going.
func (s *Server) RequireSessionAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sessionID := s.loginSessionID(r)

			decision, err := s.guard.Authorize(r.Context(), sessionID, r.URL.RequestURI())
			if err != nil {
				zerolog.Ctx(r.Context()).Err(err).Msg("session lookup failed")
				writeJSONError(w, http.StatusInternalServerError, "server_error", "session store unavailable")
				return
			}
			s.metrics.ObserveGuard(decision.Allowed)

			if !decision.Allowed {
				if sessionID != "" {
					// Stale cookie
					s.ClearLoginSessionCookie(w, r)
				}
				http.Redirect(w, r, decision.RedirectTo, http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, decision.Session)
			next(w, r.WithContext(ctx))
		}
	}
}

// SessionFromContext returns the session put in the context by RequireSessionAuth.
func SessionFromContext(ctx context.Context) (*loginsession.Session, bool) {
	session, ok := ctx.Value(ContextKeySession).(*loginsession.Session)
	return session, ok && session != nil
}

package server

import (
	"net/http"

	"github.com/jrsteele09/go-oidc-relay/internal/metrics"
	"github.com/rs/zerolog"
)

// LogoutHandler destroys the login session and sends the browser to the
// provider to end its session there too.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := s.auth.Logout(r.Context(), s.loginSessionID(r))
		s.metrics.ObserveFlow(metrics.StageLogout, err)

		// The cookie goes whatever happened to the server side session
		s.ClearLoginSessionCookie(w, r)

		if err != nil {
			zerolog.Ctx(r.Context()).Err(err).Msg("logout failed")
			writeJSONError(w, http.StatusInternalServerError, "server_error", "")
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

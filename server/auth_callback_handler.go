package server

import (
	"net/http"

	"github.com/jrsteele09/go-oidc-relay/auth"
	apperrors "github.com/jrsteele09/go-oidc-relay/internal/errors"
	"github.com/jrsteele09/go-oidc-relay/internal/metrics"
	"github.com/rs/zerolog"
)

// BeginAuthHandler starts an authentication flow (GET /auth/openid, GET /login)
func (s *Server) BeginAuthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		redirect, err := s.auth.BeginAuthentication(r.Context(), auth.BeginRequest{
			ReturnTo:        q.Get(paramReturnTo),
			FailureRedirect: q.Get(paramFailureRedirect),
		})
		s.metrics.ObserveFlow(metrics.StageBegin, err)
		if err != nil {
			zerolog.Ctx(r.Context()).Err(err).Msg("failed to begin authentication")
			if apperrors.Is(err, apperrors.ErrStoreUnavailable) {
				writeJSONError(w, http.StatusInternalServerError, "server_error", "flow state store unavailable")
				return
			}
			writeJSONError(w, http.StatusBadGateway, "provider_unavailable", "identity provider unavailable")
			return
		}

		http.Redirect(w, r, redirect.URL, http.StatusFound)
	}
}

// OAuthCallbackHandler completes an authentication flow. The provider calls it
// with GET for query responses and POST for form_post responses.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())

		if err := r.ParseForm(); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed callback")
			return
		}

		completion, err := s.auth.CompleteAuthentication(r.Context(), auth.CallbackParamsFromValues(r.Form))
		s.metrics.ObserveFlow(metrics.StageCallback, err)
		if err != nil {
			code, ok := auth.AuthErrorCode(err)
			if !ok {
				logger.Err(err).Msg("authentication callback failed")
				writeJSONError(w, http.StatusInternalServerError, "server_error", "")
				return
			}
			logger.Warn().Err(err).Str("code", code).Msg("authentication rejected")

			failureURL := auth.FailureURL(err)
			if failureURL == "" {
				failureURL = "/"
			}
			redirectWithError(w, r, failureURL, code)
			return
		}

		s.SetLoginSessionCookie(w, r, completion.SessionID, int(s.sessions.MaxAge().Seconds()))
		redirectSuccess(w, r, completion.ReturnTo)
	}
}

package server

import (
	"errors"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/go-oidc-relay/internal/errors"
	"github.com/jrsteele09/go-oidc-relay/relay"
	"github.com/jrsteele09/go-oidc-relay/users"
	"github.com/rs/zerolog"
)

const contentTypeJSON = "application/json; charset=utf-8"

type indexResponse struct {
	App           string `json:"app"`
	Authenticated bool   `json:"authenticated"`
	Login         string `json:"login,omitempty"`
	Logout        string `json:"logout,omitempty"`
}

// IndexHandler reports whether the browser has a live session (GET /)
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := indexResponse{App: s.config.GetAppName(), Login: RouteLogin}

		if sessionID := s.loginSessionID(r); sessionID != "" {
			_, err := s.sessions.Lookup(r.Context(), sessionID)
			switch {
			case err == nil:
				resp.Authenticated = true
				resp.Login = ""
				resp.Logout = RouteLogout
			case !apperrors.Is(err, apperrors.ErrSessionNotFound):
				zerolog.Ctx(r.Context()).Err(err).Msg("session lookup failed")
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type accountResponse struct {
	User    users.Identity  `json:"user"`
	Session sessionMetadata `json:"session"`
	Tokens  tokenMetadata   `json:"tokens"`
}

type sessionMetadata struct {
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// tokenMetadata describes the cached tokens without exposing them.
type tokenMetadata struct {
	TokenType       string    `json:"token_type,omitempty"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	Expired         bool      `json:"expired"`
	HasAccessToken  bool      `json:"has_access_token"`
	HasRefreshToken bool      `json:"has_refresh_token"`
}

// AccountHandler shows the signed in identity (GET /account)
func (s *Server) AccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}

		tokens := session.Tokens
		writeJSON(w, http.StatusOK, accountResponse{
			User: session.Identity,
			Session: sessionMetadata{
				CreatedAt: session.CreatedAt,
				ExpiresAt: session.ExpiresAt,
			},
			Tokens: tokenMetadata{
				TokenType:       tokens.TokenType,
				IssuedAt:        tokens.IssuedAt,
				ExpiresAt:       tokens.ExpiresAt,
				Expired:         tokens.Expired(time.Now()),
				HasAccessToken:  tokens.AccessToken != "",
				HasRefreshToken: tokens.HasRefreshToken(),
			},
		})
	}
}

// RelayHandler calls ep with the session's token and passes the answer back
// (GET /webapi, GET /graph)
func (s *Server) RelayHandler(ep relay.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())

		session, ok := SessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}

		resp, err := s.relay.Call(r.Context(), session.Tokens, ep, http.MethodGet, nil)
		if err != nil {
			var upstreamErr *relay.UpstreamError
			switch {
			case errors.As(err, &upstreamErr):
				logger.Warn().Int("status", upstreamErr.StatusCode).Str("api", ep.Name).Msg("upstream rejected relay call")
				writeRaw(w, upstreamErr.StatusCode, upstreamErr.ContentType, upstreamErr.Body)
			case errors.Is(err, relay.ErrNoCredentialToken):
				writeJSONError(w, http.StatusUnauthorized, "token_unavailable", "session has no token for "+ep.Name)
			case errors.Is(err, relay.ErrInvalidEndpoint):
				writeJSONError(w, http.StatusServiceUnavailable, "not_configured", ep.Name+" is not configured")
			default:
				logger.Err(err).Str("api", ep.Name).Msg("relay call failed")
				writeJSONError(w, http.StatusBadGateway, "upstream_unavailable", "")
			}
			return
		}

		writeRaw(w, resp.StatusCode, resp.ContentType, resp.Body)
	}
}

// HealthHandler reports whether the session store is reachable (GET /healthz)
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.Ping(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeRaw(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType == "" {
		contentType = contentTypeJSON
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

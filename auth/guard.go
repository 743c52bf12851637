package auth

import (
	"context"
	"fmt"
	"net/url"

	apperrors "github.com/jrsteele09/go-oidc-relay/internal/errors"
	"github.com/jrsteele09/go-oidc-relay/server/loginsession"
)

// SessionLookup finds live login sessions.
type SessionLookup interface {
	Lookup(ctx context.Context, sessionID string) (*loginsession.Session, error)
}

// Decision is the outcome of an authorization check for a protected resource.
type Decision struct {
	Allowed    bool
	RedirectTo string                // Set when not allowed
	Session    *loginsession.Session // Set when allowed
}

// Guard admits requests that carry a live session and sends the rest to login.
type Guard struct {
	sessions  SessionLookup
	loginPath string
}

// NewGuard creates a Guard that sends denied requests to loginPath.
func NewGuard(sessions SessionLookup, loginPath string) *Guard {
	return &Guard{sessions: sessions, loginPath: loginPath}
}

// Authorize decides whether sessionID may access resource. An unknown or
// expired session is a denial; an error means the session store failed.
func (g *Guard) Authorize(ctx context.Context, sessionID, resource string) (Decision, error) {
	if sessionID != "" {
		session, err := g.sessions.Lookup(ctx, sessionID)
		switch {
		case err == nil:
			return Decision{Allowed: true, Session: session}, nil
		case !apperrors.Is(err, apperrors.ErrSessionNotFound):
			return Decision{}, fmt.Errorf("[auth Authorize] %w", err)
		}
	}
	return Decision{RedirectTo: g.LoginRedirect(resource)}, nil
}

// LoginRedirect is the login URL that returns to resource afterwards.
func (g *Guard) LoginRedirect(resource string) string {
	target := SafeLocalPath(resource, "")
	if target == "" {
		return g.loginPath
	}
	return g.loginPath + "?return_to=" + url.QueryEscape(target)
}

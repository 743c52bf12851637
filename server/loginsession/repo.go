package loginsession

import (
	"context"
	"time"

	"github.com/jrsteele09/go-oidc-relay/token"
	"github.com/jrsteele09/go-oidc-relay/users"
)

// Session binds an authenticated user to the tokens issued for them. One
// Session owns exactly one token bundle.
type Session struct {
	ID       string         `json:"id"`
	Identity users.Identity `json:"identity"`
	Tokens   token.Bundle   `json:"tokens"`

	// Session management
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session has passed its absolute expiry.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Repo is the storage primitive behind the session Store. Implementations
// must be safe for concurrent use.
type Repo interface {
	Upsert(ctx context.Context, sessionID string, session Session) error
	Get(ctx context.Context, sessionID string) (Session, error)
	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
	Close() error
}

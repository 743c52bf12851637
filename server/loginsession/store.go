package loginsession

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-oidc-relay/internal/errors"
	"github.com/jrsteele09/go-oidc-relay/token"
	"github.com/jrsteele09/go-oidc-relay/users"
)

// sessionIDBytes is the entropy of a session identifier (256 bits)
const sessionIDBytes = 32

// Store applies identifier generation and expiry policy on top of a Repo.
type Store struct {
	repo    Repo
	maxAge  time.Duration
	nowFunc func() time.Time
}

// NewStore creates a session store whose sessions live for maxAge after creation.
func NewStore(repo Repo, maxAge time.Duration) *Store {
	return &Store{
		repo:    repo,
		maxAge:  maxAge,
		nowFunc: time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.nowFunc = now
	return s
}

// MaxAge returns the absolute lifetime of a session.
func (s *Store) MaxAge() time.Duration {
	return s.maxAge
}

// Create stores a new session for identity and tokens and returns its identifier.
func (s *Store) Create(ctx context.Context, identity users.Identity, tokens token.Bundle) (string, error) {
	if err := tokens.Validate(); err != nil {
		return "", fmt.Errorf("[loginsession Create] %w", err)
	}
	if identity.Subject == "" {
		return "", fmt.Errorf("[loginsession Create] identity has no subject")
	}

	sessionID, err := NewSessionID()
	if err != nil {
		return "", err
	}

	now := s.nowFunc()
	session := Session{
		ID:        sessionID,
		Identity:  identity,
		Tokens:    tokens,
		CreatedAt: now,
		ExpiresAt: now.Add(s.maxAge),
	}
	if err := s.repo.Upsert(ctx, sessionID, session); err != nil {
		return "", fmt.Errorf("[loginsession Create] failed to store session: %w", err)
	}
	return sessionID, nil
}

// Lookup returns the session if it exists and has not expired. A missing or
// expired session yields ErrSessionNotFound; other errors mean the store failed.
func (s *Store) Lookup(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSessionNotFound) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("[loginsession Lookup] %w", err)
	}
	if session.IsExpired(s.nowFunc()) {
		return nil, apperrors.ErrSessionNotFound
	}
	return &session, nil
}

// Destroy removes the session and the tokens it holds. Destroying an unknown session is not an error.
func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("[loginsession Destroy] %w", err)
	}
	return nil
}

// Ping reports whether the backing store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close releases the backing store.
func (s *Store) Close() error {
	return s.repo.Close()
}

// NewSessionID returns a base64url encoded 256 bit random identifier.
func NewSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[loginsession NewSessionID] %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

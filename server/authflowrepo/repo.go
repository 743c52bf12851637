package authflowrepo

import (
	"context"
	"slices"
	"time"
)

// ExpiredRetention is how long an expired flow state is kept so that a late
// callback can be reported as expired rather than unknown.
const ExpiredRetention = 30 * time.Minute

// AuthFlowState is the server side record of one authorization request. It is
// created when the browser is sent to the provider and consumed, exactly once,
// by the callback.
type AuthFlowState struct {
	State          string    `json:"state"`           // Opaque value echoed back by the provider
	Nonce          string    `json:"nonce"`           // Bound into the ID token by the provider
	CodeVerifier   string    `json:"code_verifier"`   // PKCE verifier, empty when no code is requested
	ExpectedIssuer string    `json:"expected_issuer"` // Issuer discovered when the request was built
	Scopes         []string  `json:"scopes"`          // Scopes requested
	ReturnURL      string    `json:"return_url"`      // Local path to continue to after success
	FailureURL     string    `json:"failure_url"`     // Local path to continue to after failure
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// IsExpired reports whether the state can no longer complete a flow.
func (s *AuthFlowState) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *AuthFlowState) clone() *AuthFlowState {
	c := *s
	c.Scopes = slices.Clone(s.Scopes)
	return &c
}

type Repo interface {
	// Upsert stores an auth flow state keyed by its state value
	Upsert(ctx context.Context, state string, authState *AuthFlowState) error
	// Consume returns the auth flow state and removes it in one step. A
	// second Consume for the same state returns ErrNotFound.
	Consume(ctx context.Context, state string) (*AuthFlowState, error)
	Close() error
}

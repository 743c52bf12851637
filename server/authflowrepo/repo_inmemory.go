package authflowrepo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-oidc-relay/internal/errors"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu     sync.RWMutex
	states map[string]*AuthFlowState
}

var _ Repo = (*InMemoryRepo)(nil)

// NewInMemoryRepo creates a new in-memory auth flow state repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		states: make(map[string]*AuthFlowState),
	}
}

// Upsert stores or updates an auth flow state
func (r *InMemoryRepo) Upsert(_ context.Context, state string, authState *AuthFlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if authState == nil {
		return errors.New("authState cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to prevent external modifications
	r.states[state] = authState.clone()
	return nil
}

// Consume retrieves and deletes an auth flow state under a single lock
func (r *InMemoryRepo) Consume(_ context.Context, state string) (*AuthFlowState, error) {
	if state == "" {
		return nil, fmt.Errorf("[authflowrepo Consume] empty state: %w", apperrors.ErrNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	authState, exists := r.states[state]
	if !exists {
		return nil, fmt.Errorf("[authflowrepo Consume] state not found: %w", apperrors.ErrNotFound)
	}
	delete(r.states, state)

	return authState, nil
}

// PurgeExpired removes states that expired before cutoff and returns how many were removed
func (r *InMemoryRepo) PurgeExpired(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, s := range r.states {
		if s.ExpiresAt.Before(cutoff) {
			delete(r.states, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored states
func (r *InMemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}

func (r *InMemoryRepo) Close() error {
	return nil
}

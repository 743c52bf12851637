package authflowrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-oidc-relay/internal/errors"
	"github.com/redis/go-redis/v9"
)

// RedisRepo stores auth flow states in Redis so that any replica can complete
// a flow started by another one.
type RedisRepo struct {
	client    redis.UniversalClient
	keyPrefix string
	nowFunc   func() time.Time
}

var _ Repo = (*RedisRepo)(nil)

// NewRedisRepo creates a Redis backed repo. The repo owns client and closes it on Close.
func NewRedisRepo(client redis.UniversalClient, keyPrefix string) *RedisRepo {
	return &RedisRepo{
		client:    client,
		keyPrefix: keyPrefix,
		nowFunc:   time.Now,
	}
}

func (r *RedisRepo) key(state string) string {
	return r.keyPrefix + "flow:" + state
}

func (r *RedisRepo) Upsert(ctx context.Context, state string, authState *AuthFlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if authState == nil {
		return errors.New("authState cannot be nil")
	}

	payload, err := json.Marshal(authState)
	if err != nil {
		return fmt.Errorf("[authflowrepo RedisRepo.Upsert] marshal: %w", err)
	}

	ttl := authState.ExpiresAt.Sub(r.nowFunc()) + ExpiredRetention
	if ttl <= 0 {
		ttl = ExpiredRetention
	}
	if err := r.client.Set(ctx, r.key(state), payload, ttl).Err(); err != nil {
		return fmt.Errorf("[authflowrepo RedisRepo.Upsert] %w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

// Consume uses GETDEL so concurrent callbacks for the same state cannot both succeed.
func (r *RedisRepo) Consume(ctx context.Context, state string) (*AuthFlowState, error) {
	if state == "" {
		return nil, fmt.Errorf("[authflowrepo RedisRepo.Consume] empty state: %w", apperrors.ErrNotFound)
	}

	payload, err := r.client.GetDel(ctx, r.key(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("[authflowrepo RedisRepo.Consume] state not found: %w", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("[authflowrepo RedisRepo.Consume] %w: %w", apperrors.ErrStoreUnavailable, err)
	}

	var authState AuthFlowState
	if err := json.Unmarshal(payload, &authState); err != nil {
		return nil, fmt.Errorf("[authflowrepo RedisRepo.Consume] unmarshal: %w", err)
	}
	return &authState, nil
}

func (r *RedisRepo) Close() error {
	return r.client.Close()
}

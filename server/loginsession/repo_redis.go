package loginsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-oidc-relay/internal/errors"
	"github.com/redis/go-redis/v9"
)

// RedisLoginSessionRepo stores sealed sessions in Redis with a TTL equal to
// the remaining session lifetime.
type RedisLoginSessionRepo struct {
	client    redis.UniversalClient
	keyPrefix string
	sealer    *Sealer
	nowFunc   func() time.Time
}

var _ Repo = (*RedisLoginSessionRepo)(nil)

// NewRedisLoginSessionRepo creates a Redis backed repo. The repo owns client and closes it on Close.
func NewRedisLoginSessionRepo(client redis.UniversalClient, keyPrefix string, sealer *Sealer) (*RedisLoginSessionRepo, error) {
	if sealer == nil {
		return nil, errors.New("[loginsession NewRedisLoginSessionRepo] a sealer is required")
	}
	return &RedisLoginSessionRepo{
		client:    client,
		keyPrefix: keyPrefix,
		sealer:    sealer,
		nowFunc:   time.Now,
	}, nil
}

func (r *RedisLoginSessionRepo) key(sessionID string) string {
	return r.keyPrefix + "session:" + sessionID
}

func (r *RedisLoginSessionRepo) Upsert(ctx context.Context, sessionID string, session Session) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}
	ttl := session.ExpiresAt.Sub(r.nowFunc())
	if ttl <= 0 {
		return fmt.Errorf("[loginsession RedisLoginSessionRepo.Upsert] %w", apperrors.ErrSessionExpired)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[loginsession RedisLoginSessionRepo.Upsert] marshal: %w", err)
	}
	sealed, err := r.sealer.Seal(payload)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.key(sessionID), sealed, ttl).Err(); err != nil {
		return fmt.Errorf("[loginsession RedisLoginSessionRepo.Upsert] %w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisLoginSessionRepo) Get(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, apperrors.ErrSessionNotFound
	}

	sealed, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("[loginsession RedisLoginSessionRepo.Get] %w: %w", apperrors.ErrStoreUnavailable, err)
	}

	payload, err := r.sealer.Open(sealed)
	if err != nil {
		return Session{}, fmt.Errorf("[loginsession RedisLoginSessionRepo.Get] %w", err)
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return Session{}, fmt.Errorf("[loginsession RedisLoginSessionRepo.Get] unmarshal: %w", err)
	}
	return session, nil
}

func (r *RedisLoginSessionRepo) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("[loginsession RedisLoginSessionRepo.Delete] %w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisLoginSessionRepo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("[loginsession RedisLoginSessionRepo.Ping] %w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisLoginSessionRepo) Close() error {
	return r.client.Close()
}

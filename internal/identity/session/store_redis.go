package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"mariner/internal/identity/models"
	id "mariner/pkg/domain"
	"mariner/pkg/platform/sentinel"
	"mariner/pkg/requestcontext"
)

const sessionKeyPrefix = "merge:session:"

// RedisStore is a Redis-backed session store for multi-process deployments.
// Expiry rides on key TTLs, so no sweep of any kind is needed; the expiry
// timestamp inside the payload is still checked to honor injected clocks.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, session *models.MergeSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode merge session: %w", err)
	}
	ttl := session.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return fmt.Errorf("merge session already expired")
	}
	key := sessionKeyPrefix + session.ID.String()
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("save merge session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID id.MergeSessionID) (*models.MergeSession, error) {
	key := sessionKeyPrefix + sessionID.String()
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get merge session: %w", err)
	}

	var sess models.MergeSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode merge session: %w", err)
	}
	if sess.Expired(requestcontext.Now(ctx)) {
		_ = s.client.Del(ctx, key).Err()
		return nil, sentinel.ErrNotFound
	}
	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID id.MergeSessionID) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+sessionID.String()).Err(); err != nil {
		return fmt.Errorf("delete merge session: %w", err)
	}
	return nil
}

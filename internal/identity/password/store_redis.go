package password

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"mariner/internal/identity/models"
	id "mariner/pkg/domain"
	"mariner/pkg/platform/sentinel"
)

const recordKeyPrefix = "pw:account:"

// RedisStore is a Redis-backed password record store for multi-process
// deployments. Records carry no TTL; reset-code expiry is checked by the
// Gate against the timestamp inside the record.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed password store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, accountID id.AccountID) (*models.PasswordRecord, error) {
	raw, err := s.client.Get(ctx, recordKeyPrefix+accountID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get password record: %w", err)
	}
	var rec models.PasswordRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode password record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Save(ctx context.Context, record *models.PasswordRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode password record: %w", err)
	}
	if err := s.client.Set(ctx, recordKeyPrefix+record.AccountID.String(), raw, 0).Err(); err != nil {
		return fmt.Errorf("save password record: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, accountID id.AccountID) error {
	if err := s.client.Del(ctx, recordKeyPrefix+accountID.String()).Err(); err != nil {
		return fmt.Errorf("delete password record: %w", err)
	}
	return nil
}

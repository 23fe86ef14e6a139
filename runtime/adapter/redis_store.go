package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore backs IdempotencyStore with Redis so the dedup cache
// is shared across every adapter process in a deployment rather than scoped
// to one. Keys expire after TTL, bounding storage to recently-attempted
// calls; a key that has expired is simply re-executed, matching at-least-
// once semantics further up the retry stack.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotencyStore wraps client. ttl defaults to 24h if zero.
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) redisKey(key string) string {
	return "adapter:idempotency:" + key
}

func (s *RedisIdempotencyStore) Load(ctx context.Context, key string) (IdempotencyRecord, bool, error) {
	raw, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	var rec IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, true, nil
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, record IdempotencyRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.client.SetNX(ctx, s.redisKey(record.Key), raw, s.ttl).Err()
}

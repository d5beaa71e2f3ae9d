package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCheckpointTTL = 24 * time.Hour
	defaultAccessKeyTTL  = 30 * 24 * time.Hour
)

// RedisStore persists checkpoints as JSON strings and access keys as plain
// strings, both with TTLs so abandoned tabs do not leak keys forever.
type RedisStore struct {
	client       *redis.Client
	ttl          time.Duration
	accessKeyTTL time.Duration
}

var (
	_ Store          = (*RedisStore)(nil)
	_ AccessKeyStore = (*RedisStore)(nil)
)

// NewRedisStore wraps a Redis client. Non-positive TTLs fall back to defaults.
func NewRedisStore(client *redis.Client, ttl, accessKeyTTL time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultCheckpointTTL
	}
	if accessKeyTTL <= 0 {
		accessKeyTTL = defaultAccessKeyTTL
	}
	return &RedisStore{client: client, ttl: ttl, accessKeyTTL: accessKeyTTL}
}

func (s *RedisStore) Load(ctx context.Context, key string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) GetAccessKey(ctx context.Context, quizID string) (string, error) {
	val, err := s.client.Get(ctx, accessKeyKey(quizID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get access key: %w", err)
	}
	return val, nil
}

func (s *RedisStore) SetAccessKey(ctx context.Context, quizID, accessKey string) error {
	if accessKey == "" {
		return s.client.Del(ctx, accessKeyKey(quizID)).Err()
	}
	return s.client.Set(ctx, accessKeyKey(quizID), accessKey, s.accessKeyTTL).Err()
}

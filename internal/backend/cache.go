package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

const defaultCacheTTL = 5 * time.Minute

// ContentCache keeps quiz headers and question lists in Redis. Both are
// immutable while attempts run against them.
type ContentCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewContentCache creates a Redis backed content cache.
func NewContentCache(client *redis.Client, ttl time.Duration) *ContentCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &ContentCache{client: client, ttl: ttl}
}

// key scopes entries to the caller so a private quiz read by one credential
// or access key is never served to another.
func (c *ContentCache) key(kind, quizID, credential, accessKey string) string {
	sum := sha256.Sum256([]byte(credential + "\x00" + accessKey))
	return strings.Join([]string{"quizcontent", kind, quizID, hex.EncodeToString(sum[:8])}, ":")
}

func (c *ContentCache) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *ContentCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// CachingClient is a Client whose quiz and question reads go through a
// ContentCache. Cache failures fall through to the backend.
type CachingClient struct {
	*Client
	cache  *ContentCache
	logger zerolog.Logger
}

// NewCachingClient wraps client with cache.
func NewCachingClient(client *Client, cache *ContentCache) *CachingClient {
	return &CachingClient{
		Client: client,
		cache:  cache,
		logger: client.logger.With().Str("component", "content_cache").Logger(),
	}
}

// Quiz reads a quiz header, cached.
func (c *CachingClient) Quiz(ctx context.Context, quizID, credential, accessKey string) (*quiz.Quiz, error) {
	key := c.cache.key("quiz", quizID, credential, accessKey)
	var cached quiz.Quiz
	if ok, err := c.cache.get(ctx, key, &cached); err != nil {
		c.logger.Debug().Err(err).Str("quiz_id", quizID).Msg("quiz cache read failed")
	} else if ok {
		return &cached, nil
	}

	q, err := c.Client.Quiz(ctx, quizID, credential, accessKey)
	if err != nil {
		return nil, err
	}
	if err := c.cache.set(ctx, key, q); err != nil {
		c.logger.Debug().Err(err).Str("quiz_id", quizID).Msg("quiz cache write failed")
	}
	return q, nil
}

// Questions reads the questions of a quiz, cached.
func (c *CachingClient) Questions(ctx context.Context, quizID, credential, accessKey string) ([]quiz.Question, error) {
	key := c.cache.key("questions", quizID, credential, accessKey)
	var cached []quiz.Question
	if ok, err := c.cache.get(ctx, key, &cached); err != nil {
		c.logger.Debug().Err(err).Str("quiz_id", quizID).Msg("questions cache read failed")
	} else if ok {
		return cached, nil
	}

	questions, err := c.Client.Questions(ctx, quizID, credential, accessKey)
	if err != nil {
		return nil, err
	}
	if err := c.cache.set(ctx, key, questions); err != nil {
		c.logger.Debug().Err(err).Str("quiz_id", quizID).Msg("questions cache write failed")
	}
	return questions, nil
}

package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
)

// RedisStore backs the dedup guard, the work queues and the shared tick lock
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
}

var (
	_ repo.DedupRepo = (*RedisStore)(nil)
	_ repo.QueueRepo = (*RedisStore)(nil)
	_ repo.LockRepo  = (*RedisStore)(nil)
)

// NewRedisStore creates a new Redis store and checks the connection
func NewRedisStore(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisStore, error) {
	s, err := OpenRedisStore(redisURL, logger)
	if err != nil {
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return s, nil
}

// OpenRedisStore creates a Redis store without dialing; connections are made
// on first use
func OpenRedisStore(redisURL string, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts), logger: logger}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SeenOrMark claims key with SET NX. Store errors report the key as new.
func (s *RedisStore) SeenOrMark(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dedup store unavailable, accepting event")
		return false
	}
	return !ok
}

// Enqueue appends the job to the tail of queue
func (s *RedisStore) Enqueue(ctx context.Context, queue string, job domain.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := s.client.RPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue pops the head of queue, waiting up to timeout
func (s *RedisStore) Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	res, err := s.client.BLPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected dequeue reply of %d elements", len(res))
	}
	return []byte(res[1]), nil
}

// QueueLength returns the number of pending jobs
func (s *RedisStore) QueueLength(ctx context.Context, queue string) (int64, error) {
	return s.client.LLen(ctx, queue).Result()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire claims key for ttl with a random token
func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes key only while it still holds token
func (s *RedisStore) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

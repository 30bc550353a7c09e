package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisOpTimeout = 5 * time.Second

// RedisStore keeps position documents in Redis under bibot:cache:<name>.
// Preferred over FileStore when the bot runs on ephemeral filesystems.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(addr, password string, db int, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		logger: logger.With().Str("component", "RedisStore").Logger(),
	}, nil
}

func redisKey(name string) string {
	return "bibot:cache:" + name
}

func (s *RedisStore) Save(name string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.Set(ctx, redisKey(name), data, 0).Err(); err != nil {
		return fmt.Errorf("error saving cache key %s: %w", redisKey(name), err)
	}
	s.logger.Debug().Str("key", redisKey(name)).Int("bytes", len(data)).Msg("Cache saved")
	return nil
}

func (s *RedisStore) Load(name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, redisKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("error loading cache key %s: %w", redisKey(name), err)
	}
	return data, nil
}

func (s *RedisStore) Clear(name string) error {
	return s.Save(name, emptyDocument)
}

// Close releases the underlying Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)

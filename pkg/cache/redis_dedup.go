package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisDeduplicator is a distributed Deduplicator using SET NX with a TTL,
// so every router instance shares the same deduplication window.
type RedisDeduplicator struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	window      time.Duration
	prefix      string
}

// NewRedisDeduplicator wraps an already connected client.
func NewRedisDeduplicator(client *redis.Client, window time.Duration, logger zerolog.Logger) (*RedisDeduplicator, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &RedisDeduplicator{
		redisClient: client,
		logger:      logger.With().Str("component", "RedisDeduplicator").Logger(),
		window:      window,
		prefix:      "dedup:",
	}, nil
}

// maxClaimAttempts bounds the retries when a key expires between SETNX and GET.
const maxClaimAttempts = 3

// Claim implements Deduplicator. The value is held under the key for the window.
func (d *RedisDeduplicator) Claim(ctx context.Context, key, value string) (string, bool, error) {
	stringKey := d.prefix + key
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		ok, err := d.redisClient.SetNX(ctx, stringKey, value, d.window).Result()
		if err != nil {
			return "", false, fmt.Errorf("redis setnx failed for key %s: %w", stringKey, err)
		}
		if ok {
			return value, true, nil
		}
		stored, err := d.redisClient.Get(ctx, stringKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("redis get failed for key %s: %w", stringKey, err)
		}
		d.logger.Debug().Str("key", stringKey).Msg("Duplicate claim rejected.")
		return stored, false, nil
	}
	return "", false, fmt.Errorf("redis claim for key %s did not settle after %d attempts", stringKey, maxClaimAttempts)
}

// Release implements Deduplicator.
func (d *RedisDeduplicator) Release(ctx context.Context, key string) error {
	stringKey := d.prefix + key
	if err := d.redisClient.Del(ctx, stringKey).Err(); err != nil {
		return fmt.Errorf("redis del failed for key %s: %w", stringKey, err)
	}
	return nil
}

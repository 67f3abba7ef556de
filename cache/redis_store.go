package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robertozimek/eco-tiling/metrics"
	"github.com/robertozimek/eco-tiling/tiling"
	"github.com/rs/zerolog/log"
)

type RedisStore struct {
	redisClient *redis.Client
}

func NewRedisStore(url string) (*RedisStore, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	return NewRedisStoreFromClient(redis.NewClient(options)), nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{redisClient: client}
}

func (store *RedisStore) Client() *redis.Client {
	return store.redisClient
}

func (store *RedisStore) Get(ctx context.Context, key tiling.CacheKey) (tiling.TileSourceDescriptor, bool, error) {
	defer observe("get", time.Now())

	value, err := store.redisClient.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return tiling.TileSourceDescriptor{}, false, nil
	}
	if err != nil {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		return tiling.TileSourceDescriptor{}, false, unavailable("get", err)
	}

	var descriptor tiling.TileSourceDescriptor
	if err := json.Unmarshal(value, &descriptor); err != nil {
		// a value we cannot read is as good as a miss; it is overwritten on resolve
		metrics.CacheErrors.WithLabelValues("decode").Inc()
		log.Warn().Err(err).Str("key", key.String()).Msg("Ignoring undecodable tile source")
		return tiling.TileSourceDescriptor{}, false, nil
	}
	return descriptor, true, nil
}

func (store *RedisStore) Set(ctx context.Context, key tiling.CacheKey, descriptor tiling.TileSourceDescriptor, ttl time.Duration) error {
	defer observe("set", time.Now())

	value, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("%w: encode descriptor: %v", tiling.ErrInternalFault, err)
	}

	if err := store.redisClient.Set(ctx, key.String(), value, ttl).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		return unavailable("set", err)
	}
	return nil
}

func (store *RedisStore) Delete(ctx context.Context, key tiling.CacheKey) error {
	if err := store.redisClient.Del(ctx, key.String()).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("delete").Inc()
		return unavailable("delete", err)
	}
	return nil
}

// InvalidatePrefix deletes every key starting with prefix and reports how
// many were removed.
func (store *RedisStore) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0
	iter := store.redisClient.Scan(ctx, 0, prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		if err := store.redisClient.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, unavailable("delete", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, unavailable("scan", err)
	}
	return removed, nil
}

func (store *RedisStore) Ping(ctx context.Context) error {
	if err := store.redisClient.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (store *RedisStore) Close() error {
	return store.redisClient.Close()
}

func observe(operation string, start time.Time) {
	metrics.CacheOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robertozimek/eco-tiling/metrics"
	"github.com/rs/zerolog/log"
)

// TileCacheProvider caches rendered tile bytes in redis. A nil client turns
// it into a pass-through.
type TileCacheProvider struct {
	redisClient   *redis.Client
	cacheDuration time.Duration
}

func NewTileCacheProvider(client *redis.Client, cacheDuration time.Duration) *TileCacheProvider {
	if cacheDuration <= 0 {
		cacheDuration = time.Hour
	}

	return &TileCacheProvider{
		redisClient:   client,
		cacheDuration: cacheDuration,
	}
}

func (cache *TileCacheProvider) set(ctx context.Context, key string, value []byte) {
	if cache.redisClient == nil {
		return
	}
	if err := cache.redisClient.Set(ctx, key, value, cache.cacheDuration).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache tile bytes")
	}
}

// GetBytes returns the cached bytes for key, or calls fallback and caches its
// result in the background. Redis errors only disable caching for the call.
func (cache *TileCacheProvider) GetBytes(ctx context.Context, key string, fallback func() ([]byte, error)) ([]byte, error) {
	fallbackAndSet := func() ([]byte, error) {
		value, err := fallback()
		if err != nil {
			return nil, err
		}

		go func() {
			cache.set(context.WithoutCancel(ctx), key, value)
		}()
		return value, nil
	}

	if cache.redisClient != nil {
		value, err := cache.redisClient.Get(ctx, key).Bytes()
		if err == nil {
			metrics.TileBytesCache.WithLabelValues("hit").Inc()
			return value, nil
		}
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("Tile byte cache unavailable")
		}
		metrics.TileBytesCache.WithLabelValues("miss").Inc()
	}
	return fallbackAndSet()
}

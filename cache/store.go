package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/robertozimek/eco-tiling/tiling"
)

// Store is a TTL key-value store of tile source descriptors. A miss is not an
// error; transport failures wrap tiling.ErrCacheUnavailable.
type Store interface {
	Get(ctx context.Context, key tiling.CacheKey) (tiling.TileSourceDescriptor, bool, error)
	Set(ctx context.Context, key tiling.CacheKey, descriptor tiling.TileSourceDescriptor, ttl time.Duration) error
	Delete(ctx context.Context, key tiling.CacheKey) error
	Ping(ctx context.Context) error
	Close() error
}

func unavailable(operation string, err error) error {
	return fmt.Errorf("%w: %s: %v", tiling.ErrCacheUnavailable, operation, err)
}

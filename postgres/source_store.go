package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robertozimek/eco-tiling/tiling"
)

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS tile_sources (
		cache_key   TEXT PRIMARY KEY,
		url         TEXT NOT NULL,
		collection  TEXT NOT NULL,
		visparam    TEXT NOT NULL,
		resolved_at TIMESTAMPTZ NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL
	)
`

const selectQuery = `
	SELECT url, collection, visparam, resolved_at
	FROM tile_sources
	WHERE cache_key = $1 AND expires_at > $2
`

const upsertQuery = `
	INSERT INTO tile_sources (cache_key, url, collection, visparam, resolved_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (cache_key) DO UPDATE SET
		url = EXCLUDED.url,
		collection = EXCLUDED.collection,
		visparam = EXCLUDED.visparam,
		resolved_at = EXCLUDED.resolved_at,
		expires_at = EXCLUDED.expires_at
`

// SourceStore keeps tile source descriptors in a postgres table, for
// deployments that already run postgres and no redis.
type SourceStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSourceStore(db *sql.DB) *SourceStore {
	return &SourceStore{db: db, now: time.Now}
}

// Migrate creates the tile_sources table when it does not exist.
func (store *SourceStore) Migrate(ctx context.Context) error {
	if _, err := store.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create tile_sources table: %w", err)
	}
	return nil
}

func (store *SourceStore) Get(ctx context.Context, key tiling.CacheKey) (tiling.TileSourceDescriptor, bool, error) {
	var descriptor tiling.TileSourceDescriptor
	var collection string

	err := store.db.QueryRowContext(ctx, selectQuery, key.String(), store.now()).Scan(
		&descriptor.URL,
		&collection,
		&descriptor.VisParam,
		&descriptor.ResolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return tiling.TileSourceDescriptor{}, false, nil
	}
	if err != nil {
		return tiling.TileSourceDescriptor{}, false, store.unavailable("get", err)
	}

	descriptor.Collection = tiling.Collection(collection)
	return descriptor, true, nil
}

func (store *SourceStore) Set(ctx context.Context, key tiling.CacheKey, descriptor tiling.TileSourceDescriptor, ttl time.Duration) error {
	_, err := store.db.ExecContext(ctx, upsertQuery,
		key.String(),
		descriptor.URL,
		string(descriptor.Collection),
		descriptor.VisParam,
		descriptor.ResolvedAt,
		store.now().Add(ttl),
	)
	if err != nil {
		return store.unavailable("set", err)
	}
	return nil
}

func (store *SourceStore) Delete(ctx context.Context, key tiling.CacheKey) error {
	if _, err := store.db.ExecContext(ctx, `DELETE FROM tile_sources WHERE cache_key = $1`, key.String()); err != nil {
		return store.unavailable("delete", err)
	}
	return nil
}

// PurgeExpired removes rows whose TTL has passed. Reads already ignore them.
func (store *SourceStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := store.db.ExecContext(ctx, `DELETE FROM tile_sources WHERE expires_at <= $1`, store.now())
	if err != nil {
		return 0, store.unavailable("purge", err)
	}
	return result.RowsAffected()
}

func (store *SourceStore) Ping(ctx context.Context) error {
	if err := store.db.PingContext(ctx); err != nil {
		return store.unavailable("ping", err)
	}
	return nil
}

func (store *SourceStore) Close() error {
	return store.db.Close()
}

func (store *SourceStore) unavailable(operation string, err error) error {
	if IsCancellationError(err) {
		return fmt.Errorf("%w: %s cancelled: %w", tiling.ErrCacheUnavailable, operation, err)
	}
	return fmt.Errorf("%w: %s: %v", tiling.ErrCacheUnavailable, operation, err)
}

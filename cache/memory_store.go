package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robertozimek/eco-tiling/tiling"
)

type memoryEntry struct {
	descriptor tiling.TileSourceDescriptor
	expiresAt  time.Time
}

// MemoryStore keeps descriptors in a bounded in-process LRU. It serves local
// development and tests; entries are not shared between replicas.
type MemoryStore struct {
	mu      sync.Mutex
	entries *lru.Cache[tiling.CacheKey, memoryEntry]
	now     func() time.Time
}

func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = 10000
	}
	entries, _ := lru.New[tiling.CacheKey, memoryEntry](size)
	return &MemoryStore{entries: entries, now: time.Now}
}

// WithClock replaces the time source used for expiry.
func (store *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.now = now
	return store
}

func (store *MemoryStore) Get(_ context.Context, key tiling.CacheKey) (tiling.TileSourceDescriptor, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, ok := store.entries.Get(key)
	if !ok {
		return tiling.TileSourceDescriptor{}, false, nil
	}
	if !store.now().Before(entry.expiresAt) {
		store.entries.Remove(key)
		return tiling.TileSourceDescriptor{}, false, nil
	}
	return entry.descriptor, true, nil
}

func (store *MemoryStore) Set(_ context.Context, key tiling.CacheKey, descriptor tiling.TileSourceDescriptor, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.entries.Add(key, memoryEntry{descriptor: descriptor, expiresAt: store.now().Add(ttl)})
	return nil
}

func (store *MemoryStore) Delete(_ context.Context, key tiling.CacheKey) error {
	store.entries.Remove(key)
	return nil
}

func (store *MemoryStore) Len() int {
	return store.entries.Len()
}

func (store *MemoryStore) Ping(context.Context) error {
	return nil
}

func (store *MemoryStore) Close() error {
	store.entries.Purge()
	return nil
}

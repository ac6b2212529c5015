// cache.go - In-memory TTL cache in front of a StateStore

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bosocmputer/document_extract_gemini/internal/model"
)

type cachedState struct {
	data     []byte
	loadedAt time.Time
}

// CachedStateStore caches encoded blobs per app id. Callers always get a
// fresh copy, so mutating a loaded state never touches the cache.
type CachedStateStore struct {
	next StateStore
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedState
}

// NewCachedStateStore wraps next. ttl <= 0 disables caching.
func NewCachedStateStore(next StateStore, ttl time.Duration) *CachedStateStore {
	return &CachedStateStore{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedState),
	}
}

func (c *CachedStateStore) fresh(appID string) ([]byte, bool) {
	entry, exists := c.entries[appID]
	if exists && c.now().Sub(entry.loadedAt) < c.ttl {
		return entry.data, true
	}
	return nil, false
}

// Load returns the cached blob or loads it from the wrapped store.
func (c *CachedStateStore) Load(ctx context.Context, appID string) (*model.AppState, error) {
	c.mu.RLock()
	data, ok := c.fresh(appID)
	c.mu.RUnlock()
	if ok {
		return decodeState(data)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if data, ok := c.fresh(appID); ok {
		return decodeState(data)
	}

	state, err := c.next.Load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := c.put(appID, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Save writes through and refreshes the cache entry.
func (c *CachedStateStore) Save(ctx context.Context, appID string, state *model.AppState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.next.Save(ctx, appID, state); err != nil {
		delete(c.entries, appID)
		return err
	}
	return c.put(appID, state)
}

// Invalidate removes the cache for one app id
func (c *CachedStateStore) Invalidate(appID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, appID)
}

// put must be called with mu held.
func (c *CachedStateStore) put(appID string, state *model.AppState) error {
	if c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state for cache: %w", err)
	}
	c.entries[appID] = cachedState{data: data, loadedAt: c.now()}
	return nil
}

func decodeState(data []byte) (*model.AppState, error) {
	var state model.AppState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode cached state: %w", err)
	}
	return &state, nil
}

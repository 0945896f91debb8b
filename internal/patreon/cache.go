package patreon

import (
	"context"
	"sync"
	"time"
)

const (
	defaultCacheSize = 200
	// Benefits need to be invalidated in a timely manner, but users also
	// deserve a chance to fix a declined pledge before losing access.
	defaultCacheTTL = 2 * time.Hour
)

type cacheEntry struct {
	identity *Identity
	storedAt time.Time
}

// IdentityCache is a bounded access-token -> identity cache in front of the
// pledge API. Entries expire lazily on read; no background sweep runs.
// Invalidation by user id scans for every token mapping to that user, since
// one user may hold several cached tokens.
type IdentityCache struct {
	api API

	mu      sync.RWMutex
	entries map[string]cacheEntry
	maxSize int
	ttl     time.Duration

	now func() time.Time
}

var _ API = (*IdentityCache)(nil)

// NewIdentityCache wraps api with the default bounds (200 entries, 2h TTL).
func NewIdentityCache(api API) *IdentityCache {
	return &IdentityCache{
		api:     api,
		entries: make(map[string]cacheEntry),
		maxSize: defaultCacheSize,
		ttl:     defaultCacheTTL,
		now:     time.Now,
	}
}

// GetIdentity returns the cached identity for the token, fetching upstream
// on a miss. A fetch error is never cached. The cache lock is not held
// across the upstream call, so concurrent misses may each fetch once; that
// is acceptable, correctness only requires the entries stay consistent.
func (c *IdentityCache) GetIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	if identity, ok := c.lookup(accessToken); ok {
		return identity, nil
	}

	identity, err := c.api.GetIdentity(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[accessToken] = cacheEntry{identity: identity, storedAt: c.now()}
	c.mu.Unlock()

	return identity, nil
}

// InvalidateUser drops every cached token belonging to the given external
// user id. Used when a pledge-change webhook arrives.
func (c *IdentityCache) InvalidateUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for token, entry := range c.entries {
		if entry.identity.ID == userID {
			delete(c.entries, token)
		}
	}
}

func (c *IdentityCache) lookup(accessToken string) (*Identity, bool) {
	c.mu.RLock()
	entry, ok := c.entries[accessToken]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.mu.Lock()
		// Re-check: the entry may have been refreshed since the RLock.
		if cur, ok := c.entries[accessToken]; ok && c.now().Sub(cur.storedAt) > c.ttl {
			delete(c.entries, accessToken)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.identity, true
}

func (c *IdentityCache) evictOldestLocked() {
	var (
		oldestToken string
		oldestTime  time.Time
	)
	for token, entry := range c.entries {
		if oldestToken == "" || entry.storedAt.Before(oldestTime) {
			oldestToken = token
			oldestTime = entry.storedAt
		}
	}
	if oldestToken != "" {
		delete(c.entries, oldestToken)
	}
}

package patreon

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingAPI struct {
	mu         sync.Mutex
	calls      int
	identities map[string]*Identity
	err        error
}

func (a *countingAPI) GetIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	identity, ok := a.identities[accessToken]
	if !ok {
		return nil, fmt.Errorf("unknown token %q", accessToken)
	}
	return identity, nil
}

func (a *countingAPI) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func newTestCache(api API) (*IdentityCache, *time.Time) {
	cache := NewIdentityCache(api)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	return cache, &now
}

func TestCacheHitSkipsUpstream(t *testing.T) {
	api := &countingAPI{identities: map[string]*Identity{"tok": {ID: "1"}}}
	cache, _ := newTestCache(api)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		identity, err := cache.GetIdentity(ctx, "tok")
		require.NoError(t, err)
		require.Equal(t, "1", identity.ID)
	}
	require.Equal(t, 1, api.callCount())
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	api := &countingAPI{identities: map[string]*Identity{"tok": {ID: "1"}}}
	cache, now := newTestCache(api)
	ctx := context.Background()

	_, err := cache.GetIdentity(ctx, "tok")
	require.NoError(t, err)

	*now = now.Add(defaultCacheTTL - time.Second)
	_, err = cache.GetIdentity(ctx, "tok")
	require.NoError(t, err)
	require.Equal(t, 1, api.callCount(), "entry inside the TTL must be served from cache")

	*now = now.Add(2 * time.Second)
	_, err = cache.GetIdentity(ctx, "tok")
	require.NoError(t, err)
	require.Equal(t, 2, api.callCount(), "entry past the TTL must be refetched")
}

func TestCacheErrorIsNotCached(t *testing.T) {
	api := &countingAPI{err: fmt.Errorf("upstream down")}
	cache, _ := newTestCache(api)
	ctx := context.Background()

	_, err := cache.GetIdentity(ctx, "tok")
	require.Error(t, err)

	api.mu.Lock()
	api.err = nil
	api.identities = map[string]*Identity{"tok": {ID: "1"}}
	api.mu.Unlock()

	identity, err := cache.GetIdentity(ctx, "tok")
	require.NoError(t, err)
	require.Equal(t, "1", identity.ID)
	require.Equal(t, 2, api.callCount())
}

func TestCacheInvalidateUserDropsAllTokens(t *testing.T) {
	api := &countingAPI{identities: map[string]*Identity{
		"tokA": {ID: "1"},
		"tokB": {ID: "1"},
		"tokC": {ID: "2"},
	}}
	cache, _ := newTestCache(api)
	ctx := context.Background()

	for _, tok := range []string{"tokA", "tokB", "tokC"} {
		_, err := cache.GetIdentity(ctx, tok)
		require.NoError(t, err)
	}
	require.Equal(t, 3, api.callCount())

	// One user may hold several cached tokens; all of them must go.
	cache.InvalidateUser("1")

	for _, tok := range []string{"tokA", "tokB"} {
		_, err := cache.GetIdentity(ctx, tok)
		require.NoError(t, err)
	}
	require.Equal(t, 5, api.callCount())

	_, err := cache.GetIdentity(ctx, "tokC")
	require.NoError(t, err)
	require.Equal(t, 5, api.callCount(), "other users' entries must survive invalidation")
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	identities := make(map[string]*Identity)
	for i := 0; i < defaultCacheSize+1; i++ {
		tok := fmt.Sprintf("tok%d", i)
		identities[tok] = &Identity{ID: fmt.Sprintf("u%d", i)}
	}
	api := &countingAPI{identities: identities}
	cache, now := newTestCache(api)
	ctx := context.Background()

	for i := 0; i < defaultCacheSize; i++ {
		*now = now.Add(time.Second)
		_, err := cache.GetIdentity(ctx, fmt.Sprintf("tok%d", i))
		require.NoError(t, err)
	}
	require.Len(t, cache.entries, defaultCacheSize)

	*now = now.Add(time.Second)
	_, err := cache.GetIdentity(ctx, fmt.Sprintf("tok%d", defaultCacheSize))
	require.NoError(t, err)

	require.Len(t, cache.entries, defaultCacheSize, "cache must stay bounded")
	_, ok := cache.entries["tok0"]
	require.False(t, ok, "the oldest entry must be the one evicted")
}

func TestCacheConcurrentAccess(t *testing.T) {
	api := &countingAPI{identities: map[string]*Identity{
		"tokA": {ID: "1"},
		"tokB": {ID: "2"},
	}}
	cache := NewIdentityCache(api)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := "tokA"
			if i%2 == 0 {
				tok = "tokB"
			}
			for j := 0; j < 100; j++ {
				_, err := cache.GetIdentity(ctx, tok)
				require.NoError(t, err)
				if j%10 == 0 {
					cache.InvalidateUser("1")
				}
			}
		}(i)
	}
	wg.Wait()
}

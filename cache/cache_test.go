package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/schema"
)

func TestLRU_EvictsOldest(t *testing.T) {
	c := NewLRU[int](2, 0)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	_, _ = c.Get("a")
	c.Set("c", 3, 0)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_Expiry(t *testing.T) {
	c := NewLRU[string](4, time.Minute).(*lruCache[string])
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("k", "v", 0)

	now = now.Add(2 * time.Minute)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRU_DeleteAndPurge(t *testing.T) {
	c := NewLRU[int](4, 0)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Delete("a")
	assert.Equal(t, 1, c.Len())
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func newRedisCache(t *testing.T) (*RedisContextCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisContextCache(rdb, "ragchat:", time.Hour), mr
}

func contextCaches(t *testing.T) map[string]ContextCache {
	rc, _ := newRedisCache(t)
	return map[string]ContextCache{
		"memory": NewMemoryContextCache(),
		"redis":  rc,
	}
}

func TestContextCache_AppendOnlyAcrossTurns(t *testing.T) {
	for name, c := range contextCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			empty, err := c.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, empty)

			turn1 := []schema.EvidenceItem{{Content: "one", Metadata: map[string]any{"source": "a.pdf"}}}
			turn2 := []schema.EvidenceItem{{Content: "two"}, {Content: "three"}}
			require.NoError(t, c.Append(ctx, "s1", turn1))
			first, err := c.Load(ctx, "s1")
			require.NoError(t, err)

			require.NoError(t, c.Append(ctx, "s1", turn2))
			second, err := c.Load(ctx, "s1")
			require.NoError(t, err)

			assert.GreaterOrEqual(t, len(second), len(first))
			require.Len(t, second, 3)
			assert.Equal(t, "one", second[0].Content)
			assert.Equal(t, "a.pdf", second[0].Source())
			assert.Equal(t, "three", second[2].Content)

			other, err := c.Load(ctx, "s2")
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

func TestContextCache_Clear(t *testing.T) {
	for name, c := range contextCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.Append(ctx, "s1", []schema.EvidenceItem{{Content: "x"}}))
			require.NoError(t, c.Clear(ctx, "s1"))
			items, err := c.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestContextCache_ConcurrentAppendsKeepEveryItem(t *testing.T) {
	for name, c := range contextCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, c.Append(ctx, "s1", []schema.EvidenceItem{{Content: fmt.Sprintf("item-%d", i)}}))
				}(i)
			}
			wg.Wait()
			items, err := c.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, items, 20)
		})
	}
}

func TestLRU_ZeroCapacityNeverEvicts(t *testing.T) {
	c := NewLRU[int](0, 0)
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, 0)
	}
	assert.Equal(t, 1000, c.Len())
	v, ok := c.Get("k0")
	require.True(t, ok)
	assert.Equal(t, 0, v)
}

func TestMemoryContextCache_OtherSessionsDoNotEvict(t *testing.T) {
	c := NewMemoryContextCache()
	ctx := context.Background()
	require.NoError(t, c.Append(ctx, "s1", []schema.EvidenceItem{{Content: "kept"}}))
	for i := 0; i < 20000; i++ {
		require.NoError(t, c.Append(ctx, fmt.Sprintf("other-%d", i), []schema.EvidenceItem{{Content: "x"}}))
	}
	items, err := c.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "kept", items[0].Content)
	assert.Equal(t, 20001, c.Len())
}

func TestMemoryContextCache_LoadReturnsCopy(t *testing.T) {
	c := NewMemoryContextCache()
	ctx := context.Background()
	require.NoError(t, c.Append(ctx, "s", []schema.EvidenceItem{{Content: "a", Metadata: map[string]any{"k": "v"}}}))

	items, _ := c.Load(ctx, "s")
	items[0].Metadata["k"] = "changed"

	again, _ := c.Load(ctx, "s")
	assert.Equal(t, "v", again[0].Metadata["k"])
}

func TestRedisContextCache_TTLAndCorruptRecord(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	require.NoError(t, c.Append(ctx, "s1", []schema.EvidenceItem{{Content: "x"}}))
	assert.Equal(t, time.Hour, mr.TTL("ragchat:ctx:s1"))

	mr.FastForward(30 * time.Minute)
	require.NoError(t, c.Touch(ctx, "s1"))
	assert.Equal(t, time.Hour, mr.TTL("ragchat:ctx:s1"))

	require.NoError(t, mr.Set("ragchat:ctx:bad", "{not json"))
	_, err := c.Load(ctx, "bad")
	assert.Error(t, err)
}

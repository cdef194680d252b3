package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ppiankov/claimdesk/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := NewMemoryCache(time.Minute)

	value := []byte("payload")
	require.NoError(t, c.Set("k", value, 0))
	value[0] = 'X'

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "payload", string(got), "stored values are copies")

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	require.NoError(t, c.Set("short", []byte("v"), 10*time.Millisecond))

	assert.Eventually(t, func() bool {
		_, ok := c.Get("short")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryCache_Clear(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	require.NoError(t, c.Set("a", []byte("1"), 0))
	require.NoError(t, c.Set("b", []byte("2"), 0))
	require.NoError(t, c.Clear())
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestMemoryCache_RunSweepsAndFlushes(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	require.NoError(t, c.Set("short", []byte("v"), time.Millisecond))
	require.NoError(t, c.Set("long", []byte("v"), 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, 2*time.Millisecond) }()

	assert.Eventually(t, func() bool { return c.store.ItemCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
	_, ok := c.Get("long")
	assert.False(t, ok, "cache is emptied on shutdown")
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("results", "ep-1")
	assert.Equal(t, a, CacheKey("results", "ep-1"))
	assert.NotEqual(t, a, CacheKey("results", "ep-2"))
	assert.NotEqual(t, a, CacheKey("snapshot", "ep-1"))
	assert.Contains(t, a, "claimdesk:v1:results:")
}

func TestResultsCache(t *testing.T) {
	rc := NewResultsCache(NewMemoryCache(time.Minute), time.Minute, zerolog.Nop())

	_, ok := rc.Results("ep")
	assert.False(t, ok)

	rc.SetResults("ep", []model.PublishedResult{{ID: 3, Speaker: "Anna", Claim: "X", Consistency: "hoch"}})
	entry, ok := rc.Results("ep")
	require.True(t, ok)
	assert.Equal(t, "ep", entry.Target)
	require.Len(t, entry.Results, 1)
	assert.EqualValues(t, 3, entry.Results[0].ID)
	assert.False(t, entry.FetchedAt.IsZero())

	rc.SetResults("ep", nil)
	entry, ok = rc.Results("ep")
	require.True(t, ok)
	assert.NotNil(t, entry.Results)
	assert.Empty(t, entry.Results)

	_, ok = rc.Results("other")
	assert.False(t, ok, "targets are cached independently")
}

func TestResultsCache_Disabled(t *testing.T) {
	rc := NewResultsCache(nil, time.Minute, zerolog.Nop())
	rc.SetResults("ep", []model.PublishedResult{{ID: 1}})
	_, ok := rc.Results("ep")
	assert.False(t, ok)
}

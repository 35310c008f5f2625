package geocoding

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"housebot/server/internal/geometry"
)

func TestCacheKey(t *testing.T) {
	assert.Equal(t, cacheKey("Тверская 12"), cacheKey("  тверская   12 "))
	assert.NotEqual(t, cacheKey("Тверская 12"), cacheKey("Тверская 13"))
	assert.Regexp(t, `^geocode:[0-9a-f]{16}$`, cacheKey("Арбат"))
}

func TestMemoryCache_Evicts(t *testing.T) {
	c, err := NewMemoryCache(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", geometry.NewPoint(1, 1)))
	require.NoError(t, c.Set(ctx, "b", geometry.NewPoint(2, 2)))
	require.NoError(t, c.Set(ctx, "c", geometry.NewPoint(3, 3)))

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	p, ok, err := c.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3.0, p.Lat())
}

func TestNewMemoryCache_InvalidSize(t *testing.T) {
	_, err := NewMemoryCache(0)
	assert.Error(t, err)
}

func newMiniRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c, err := NewRedisCache(ctx, mr.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c, mr := newMiniRedisCache(t, time.Hour)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "geocode:missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "geocode:1", geometry.NewPoint(55.7522, 37.6156)))

	raw, err := mr.Get("geocode:1")
	require.NoError(t, err)
	assert.Equal(t, "55.7522,37.6156", raw)

	p, ok, err := c.Get(ctx, "geocode:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 55.7522, p.Lat())
	assert.Equal(t, 37.6156, p.Lon())
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := newMiniRedisCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "geocode:ttl", geometry.NewPoint(1, 2)))
	assert.Equal(t, time.Minute, mr.TTL("geocode:ttl"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, "geocode:ttl")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_CorruptValue(t *testing.T) {
	c, mr := newMiniRedisCache(t, time.Hour)
	require.NoError(t, mr.Set("geocode:bad", "not-a-point"))

	_, _, err := c.Get(context.Background(), "geocode:bad")
	assert.Error(t, err)
}

func TestNewRedisCache_Errors(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "", time.Hour)
	assert.Error(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = NewRedisCache(ctx, addr, time.Hour)
	assert.Error(t, err)
}

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"housebot/server/internal/geometry"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
)

// Cache stores resolved coordinates by address key.
type Cache interface {
	Get(ctx context.Context, key string) (orb.Point, bool, error)
	Set(ctx context.Context, key string, p orb.Point) error
}

// cacheKey normalises case and whitespace so trivially different spellings
// of one address share an entry.
func cacheKey(address string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(address), " "))
	return fmt.Sprintf("geocode:%016x", xxhash.Sum64String(norm))
}

// MemoryCache is a bounded in-process LRU cache.
type MemoryCache struct {
	lru *lru.Cache[string, orb.Point]
}

func NewMemoryCache(size int) (*MemoryCache, error) {
	c, err := lru.New[string, orb.Point](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode cache: %w", err)
	}
	return &MemoryCache{lru: c}, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (orb.Point, bool, error) {
	p, ok := c.lru.Get(key)
	return p, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, p orb.Point) error {
	c.lru.Add(key, p)
	return nil
}

func (c *MemoryCache) Len() int { return c.lru.Len() }

// RedisCache shares resolved coordinates between bot instances.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (orb.Point, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return orb.Point{}, false, nil
	}
	if err != nil {
		return orb.Point{}, false, fmt.Errorf("redis GET %s: %w", key, err)
	}

	p, err := decodePoint(val)
	if err != nil {
		return orb.Point{}, false, fmt.Errorf("invalid cached coordinates for %s: %w", key, err)
	}
	return p, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, p orb.Point) error {
	if err := c.rdb.Set(ctx, key, encodePoint(p), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// Points are stored as "lat,lon".
func encodePoint(p orb.Point) string {
	return geometry.FormatCoord(p.Lat()) + "," + geometry.FormatCoord(p.Lon())
}

func decodePoint(s string) (orb.Point, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return orb.Point{}, fmt.Errorf("malformed value %q", s)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return orb.Point{}, err
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return orb.Point{}, err
	}
	return geometry.NewPoint(lat, lon), nil
}

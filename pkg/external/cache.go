package external

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/hivdr-report/internal/domain"
)

const cacheKeyPrefix = "hivdr:analysis:"

// CacheKey derives the cache key of a query from its sequences
func CacheKey(sequences []domain.Sequence) string {
	h := sha256.New()
	for _, s := range sequences {
		h.Write([]byte(s.Header))
		h.Write([]byte{0})
		h.Write([]byte(s.Residues))
		h.Write([]byte{0})
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// NewResponseCache builds the cache selected by config: Redis when a URL is
// configured, otherwise an in-process LRU in front of persistent when that is
// given, or the LRU alone. It returns nil when caching is off.
func NewResponseCache(config domain.CacheConfig, persistent ResponseCache) (ResponseCache, error) {
	if !config.Enabled {
		return nil, nil
	}
	if config.RedisURL != "" {
		cache, err := NewRedisCache(config)
		if err != nil {
			return nil, err
		}
		return cache, nil
	}
	memory := NewMemoryCache(config.MaxItems, config.TTL)
	if persistent != nil {
		return NewLayeredCache(memory, persistent), nil
	}
	return memory, nil
}

// LayeredCache serves from a fast front cache and falls back to a slower one
// that outlives the process. Back hits are copied to the front.
type LayeredCache struct {
	front *MemoryCache
	back  ResponseCache
}

// NewLayeredCache creates a cache with front checked before back
func NewLayeredCache(front *MemoryCache, back ResponseCache) *LayeredCache {
	return &LayeredCache{front: front, back: back}
}

// Get returns a cached response from the first layer holding it
func (l *LayeredCache) Get(ctx context.Context, key string) (*domain.AnalysisResponse, bool, error) {
	if resp, ok, _ := l.front.Get(ctx, key); ok {
		return resp, true, nil
	}

	resp, ok, err := l.back.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	l.front.Set(ctx, key, resp, 0)
	return resp, true, nil
}

// Set caches a response in both layers
func (l *LayeredCache) Set(ctx context.Context, key string, resp *domain.AnalysisResponse, ttl time.Duration) error {
	l.front.Set(ctx, key, resp, ttl)
	return l.back.Set(ctx, key, resp, ttl)
}

// Close closes both layers
func (l *LayeredCache) Close() error {
	l.front.Close()
	return l.back.Close()
}

// MemoryCache is an in-process LRU cache with a fixed TTL
type MemoryCache struct {
	lru *expirable.LRU[string, *domain.AnalysisResponse]
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(maxItems int, ttl time.Duration) *MemoryCache {
	if maxItems <= 0 {
		maxItems = 100
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, *domain.AnalysisResponse](maxItems, nil, ttl),
	}
}

// Get returns a cached response
func (m *MemoryCache) Get(_ context.Context, key string) (*domain.AnalysisResponse, bool, error) {
	resp, ok := m.lru.Get(key)
	return resp, ok, nil
}

// Set caches a response. The cache-wide TTL applies; ttl is ignored.
func (m *MemoryCache) Set(_ context.Context, key string, resp *domain.AnalysisResponse, _ time.Duration) error {
	m.lru.Add(key, resp)
	return nil
}

// Len returns the number of cached responses
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

// Close purges the cache
func (m *MemoryCache) Close() error {
	m.lru.Purge()
	return nil
}

// RedisCache wraps a Redis client for sharing responses across runs
type RedisCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// CachedAnalysis represents a cached analysis response with metadata
type CachedAnalysis struct {
	Data      *domain.AnalysisResponse `json:"data"`
	CachedAt  time.Time                `json:"cached_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// NewRedisCache creates a new Redis backed cache
func NewRedisCache(config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		redis:      client,
		defaultTTL: config.TTL,
	}, nil
}

// Get retrieves a cached response
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.AnalysisResponse, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached analysis: %w", err)
	}

	var cached CachedAnalysis
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// Set caches a response
func (c *RedisCache) Set(ctx context.Context, key string, resp *domain.AnalysisResponse, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := CachedAnalysis{
		Data:      resp,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis cache data: %w", err)
	}

	return c.redis.Set(ctx, key, jsonData, ttl).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.redis.Close()
}

package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/biomind-nexus-server/internal/domain"
)

// CacheClient wraps Redis with caching for external API responses.
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient connects to Redis and verifies the connection.
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CacheClient{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// CachedCitation is a citation with cache metadata.
type CachedCitation struct {
	Data      *domain.Citation `json:"data"`
	CachedAt  time.Time        `json:"cached_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// CachedHypothesis is a synthesizer response with cache metadata.
type CachedHypothesis struct {
	Data      *domain.Hypothesis `json:"data"`
	CachedAt  time.Time          `json:"cached_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// GetCitation retrieves a cached citation by PMID.
func (c *CacheClient) GetCitation(ctx context.Context, pmid string) (*domain.Citation, bool, error) {
	key := "citation:pmid:" + pmid

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get citation cache: %w", err)
	}

	var cached CachedCitation
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

// SetCitation caches a citation.
func (c *CacheClient) SetCitation(ctx context.Context, citation *domain.Citation, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := CachedCitation{
		Data:      citation,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal citation cache data: %w", err)
	}

	return c.redis.Set(ctx, "citation:pmid:"+citation.PMID, jsonData, ttl).Err()
}

// GetHypothesis retrieves a cached synthesizer response for an input.
func (c *CacheClient) GetHypothesis(ctx context.Context, input domain.SynthesisInput) (*domain.Hypothesis, bool, error) {
	key := c.generateSynthesisKey(input)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get hypothesis cache: %w", err)
	}

	var cached CachedHypothesis
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetHypothesis caches a synthesizer response.
func (c *CacheClient) SetHypothesis(ctx context.Context, input domain.SynthesisInput, h *domain.Hypothesis, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := CachedHypothesis{
		Data:      h,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal hypothesis cache data: %w", err)
	}

	return c.redis.Set(ctx, c.generateSynthesisKey(input), jsonData, ttl).Err()
}

// generateSynthesisKey derives a stable cache key from the synthesis input.
func (c *CacheClient) generateSynthesisKey(input domain.SynthesisInput) string {
	data := fmt.Sprintf("%s|%s|%.4f|%d|%d",
		input.Drug, input.Disease, input.Plausibility, len(input.Paths), len(input.Evidence))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("synthesis:%x", hash[:8]) // First 8 bytes of the hash
}

// Ping checks if the Redis connection is alive.
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *CacheClient) Close() error {
	return c.redis.Close()
}

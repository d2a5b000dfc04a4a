package embedders

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/types"
)

// CacheKey derives a stable cache key from the model name and the exact
// input text. Different models never share entries.
func CacheKey(model, text string) string {
	sum := blake2b.Sum256([]byte(model + "\x00" + text))
	return "cleave:emb:" + hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	vector    types.EmbeddingVector
	timestamp time.Time
	ttl       time.Duration
}

// MemoryCache is an in-process embedding cache with TTL expiry and
// oldest-entry eviction at capacity. Safe for concurrent use.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	maxEntries int
	hits       int64
	misses     int64
}

// NewMemoryCache creates a memory cache holding at most maxEntries vectors
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
	}
}

// Get retrieves a cached vector; the second return reports a hit
func (c *MemoryCache) Get(ctx context.Context, key string) (types.EmbeddingVector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	if entry.ttl > 0 && time.Since(entry.timestamp) > entry.ttl {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	c.hits++

	vector := make(types.EmbeddingVector, len(entry.vector))
	copy(vector, entry.vector)
	return vector, true
}

// Set stores a vector under the key with a time-to-live; ttl zero means no
// expiry
func (c *MemoryCache) Set(ctx context.Context, key string, vector types.EmbeddingVector, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	stored := make(types.EmbeddingVector, len(vector))
	copy(stored, vector)

	c.entries[key] = &cacheEntry{
		vector:    stored,
		timestamp: time.Now(),
		ttl:       ttl,
	}
	return nil
}

// Clear removes all cached entries and resets hit counters
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.hits = 0
	c.misses = 0
	return nil
}

// Close releases cache resources
func (c *MemoryCache) Close() error {
	return c.Clear(context.Background())
}

// Size returns the current number of cached entries
func (c *MemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counts since the last Clear
func (c *MemoryCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// evictOldest removes the entry with the oldest timestamp; callers hold
// the lock
func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.timestamp.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.timestamp
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// CachingEmbedder decorates an embedder with a cache. Batch requests look
// every text up first and forward all misses to the inner embedder in a
// single EmbedBatch call, so the engine's one-batch contract survives the
// decoration.
type CachingEmbedder struct {
	inner interfaces.Embedder
	cache interfaces.EmbeddingCache
	ttl   time.Duration
}

// NewCachingEmbedder wraps an embedder with a cache; ttl bounds entry age
func NewCachingEmbedder(inner interfaces.Embedder, cache interfaces.EmbeddingCache, ttl time.Duration) *CachingEmbedder {
	return &CachingEmbedder{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}
}

// Embed returns the cached vector for text or delegates to the inner
// embedder and caches the result
func (e *CachingEmbedder) Embed(ctx context.Context, text string) (types.EmbeddingVector, error) {
	key := CacheKey(e.inner.GetModelName(), text)
	if vector, ok := e.cache.Get(ctx, key); ok {
		return vector, nil
	}

	vector, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, key, vector, e.ttl); err != nil {
		return nil, fmt.Errorf("failed to cache embedding: %w", err)
	}
	return vector, nil
}

// EmbedBatch serves cached texts from the cache and embeds the rest with
// one inner batch call, preserving input order in the combined result
func (e *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]types.EmbeddingVector, error) {
	if len(texts) == 0 {
		return []types.EmbeddingVector{}, nil
	}

	model := e.inner.GetModelName()
	results := make([]types.EmbeddingVector, len(texts))

	var missTexts []string
	var missIndices []int
	for i, text := range texts {
		if vector, ok := e.cache.Get(ctx, CacheKey(model, text)); ok {
			results[i] = vector
			continue
		}
		missTexts = append(missTexts, text)
		missIndices = append(missIndices, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("inner embedder returned %d vectors for %d texts", len(vectors), len(missTexts))
	}

	for j, vector := range vectors {
		i := missIndices[j]
		results[i] = vector
		if err := e.cache.Set(ctx, CacheKey(model, texts[i]), vector, e.ttl); err != nil {
			return nil, fmt.Errorf("failed to cache embedding: %w", err)
		}
	}

	return results, nil
}

// GetDimension returns the inner embedder's dimension
func (e *CachingEmbedder) GetDimension() int {
	return e.inner.GetDimension()
}

// GetModelName returns the inner embedder's model name
func (e *CachingEmbedder) GetModelName() string {
	return e.inner.GetModelName()
}

// Close closes the cache and then the inner embedder
func (e *CachingEmbedder) Close() error {
	if err := e.cache.Close(); err != nil {
		return err
	}
	return e.inner.Close()
}

var _ interfaces.Embedder = (*CachingEmbedder)(nil)
var _ interfaces.EmbeddingCache = (*MemoryCache)(nil)

package embedders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/types"
)

func TestCacheKey(t *testing.T) {
	t.Run("stable", func(t *testing.T) {
		assert.Equal(t, CacheKey("model-a", "some text"), CacheKey("model-a", "some text"))
	})

	t.Run("distinct per text", func(t *testing.T) {
		assert.NotEqual(t, CacheKey("model-a", "some text"), CacheKey("model-a", "other text"))
	})

	t.Run("distinct per model", func(t *testing.T) {
		assert.NotEqual(t, CacheKey("model-a", "some text"), CacheKey("model-b", "some text"))
	})

	t.Run("prefixed for scoped clearing", func(t *testing.T) {
		assert.Contains(t, CacheKey("m", "t"), "cleave:emb:")
	})
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		cache := NewMemoryCache(10)
		vector := types.EmbeddingVector{1, 2, 3}

		require.NoError(t, cache.Set(ctx, "key", vector, 0))

		got, ok := cache.Get(ctx, "key")
		require.True(t, ok)
		assert.Equal(t, vector, got)
	})

	t.Run("miss", func(t *testing.T) {
		cache := NewMemoryCache(10)

		_, ok := cache.Get(ctx, "absent")
		assert.False(t, ok)
	})

	t.Run("returned vector is a copy", func(t *testing.T) {
		cache := NewMemoryCache(10)
		require.NoError(t, cache.Set(ctx, "key", types.EmbeddingVector{1, 2, 3}, 0))

		got, ok := cache.Get(ctx, "key")
		require.True(t, ok)
		got[0] = 99

		again, ok := cache.Get(ctx, "key")
		require.True(t, ok)
		assert.Equal(t, float32(1), again[0])
	})

	t.Run("ttl expiry", func(t *testing.T) {
		cache := NewMemoryCache(10)
		require.NoError(t, cache.Set(ctx, "key", types.EmbeddingVector{1}, time.Millisecond))

		time.Sleep(5 * time.Millisecond)

		_, ok := cache.Get(ctx, "key")
		assert.False(t, ok)
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("evicts oldest at capacity", func(t *testing.T) {
		cache := NewMemoryCache(2)
		require.NoError(t, cache.Set(ctx, "first", types.EmbeddingVector{1}, 0))
		time.Sleep(time.Millisecond)
		require.NoError(t, cache.Set(ctx, "second", types.EmbeddingVector{2}, 0))
		time.Sleep(time.Millisecond)
		require.NoError(t, cache.Set(ctx, "third", types.EmbeddingVector{3}, 0))

		assert.Equal(t, 2, cache.Size())
		_, ok := cache.Get(ctx, "first")
		assert.False(t, ok, "oldest entry should have been evicted")
		_, ok = cache.Get(ctx, "third")
		assert.True(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewMemoryCache(10)
		require.NoError(t, cache.Set(ctx, "key", types.EmbeddingVector{1}, 0))
		require.NoError(t, cache.Clear(ctx))

		assert.Equal(t, 0, cache.Size())
		hits, misses := cache.Stats()
		assert.Zero(t, hits)
		assert.Zero(t, misses)
	})

	t.Run("stats", func(t *testing.T) {
		cache := NewMemoryCache(10)
		require.NoError(t, cache.Set(ctx, "key", types.EmbeddingVector{1}, 0))

		cache.Get(ctx, "key")
		cache.Get(ctx, "key")
		cache.Get(ctx, "absent")

		hits, misses := cache.Stats()
		assert.Equal(t, int64(2), hits)
		assert.Equal(t, int64(1), misses)
	})
}

// countingEmbedder records batch inputs so tests can assert call shapes
type countingEmbedder struct {
	*MockEmbedder
	batches [][]string
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]types.EmbeddingVector, error) {
	captured := make([]string, len(texts))
	copy(captured, texts)
	c.batches = append(c.batches, captured)
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCachingEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("batches all misses in one inner call", func(t *testing.T) {
		inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(64)}
		cached := NewCachingEmbedder(inner, NewMemoryCache(100), time.Hour)

		texts := []string{"alpha", "beta", "gamma"}
		first, err := cached.EmbedBatch(ctx, texts)
		require.NoError(t, err)
		require.Len(t, first, 3)

		require.Len(t, inner.batches, 1)
		assert.Equal(t, texts, inner.batches[0])
	})

	t.Run("serves repeat batch from cache", func(t *testing.T) {
		inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(64)}
		cached := NewCachingEmbedder(inner, NewMemoryCache(100), time.Hour)

		texts := []string{"alpha", "beta"}
		first, err := cached.EmbedBatch(ctx, texts)
		require.NoError(t, err)

		second, err := cached.EmbedBatch(ctx, texts)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, inner.batches, 1, "second batch should not reach the inner embedder")
	})

	t.Run("forwards only misses", func(t *testing.T) {
		inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(64)}
		cached := NewCachingEmbedder(inner, NewMemoryCache(100), time.Hour)

		_, err := cached.EmbedBatch(ctx, []string{"alpha", "beta"})
		require.NoError(t, err)

		result, err := cached.EmbedBatch(ctx, []string{"alpha", "gamma", "beta"})
		require.NoError(t, err)
		require.Len(t, result, 3)

		require.Len(t, inner.batches, 2)
		assert.Equal(t, []string{"gamma"}, inner.batches[1])

		// Order in the combined result matches the full input
		direct, err := NewMockEmbedder(64).EmbedBatch(ctx, []string{"alpha", "gamma", "beta"})
		require.NoError(t, err)
		assert.Equal(t, direct, result)
	})

	t.Run("single embed uses the cache", func(t *testing.T) {
		inner := NewMockEmbedder(64)
		cached := NewCachingEmbedder(inner, NewMemoryCache(100), time.Hour)

		first, err := cached.Embed(ctx, "alpha")
		require.NoError(t, err)
		second, err := cached.Embed(ctx, "alpha")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, inner.EmbedCalls())
	})

	t.Run("empty batch", func(t *testing.T) {
		cached := NewCachingEmbedder(NewMockEmbedder(64), NewMemoryCache(100), time.Hour)

		result, err := cached.EmbedBatch(ctx, []string{})
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("delegates metadata", func(t *testing.T) {
		inner := NewMockEmbedder(64)
		cached := NewCachingEmbedder(inner, NewMemoryCache(100), time.Hour)

		assert.Equal(t, inner.GetDimension(), cached.GetDimension())
		assert.Equal(t, inner.GetModelName(), cached.GetModelName())
		assert.NoError(t, cached.Close())
	})
}

func TestVectorEncoding(t *testing.T) {
	vector := types.EmbeddingVector{0.5, -1.25, 0, 3.75}

	decoded, err := decodeVector(encodeVector(vector))
	require.NoError(t, err)
	assert.Equal(t, vector, decoded)

	t.Run("corrupt length", func(t *testing.T) {
		_, err := decodeVector([]byte{1, 2, 3})
		assert.Error(t, err)
	})
}

var _ interfaces.Embedder = (*countingEmbedder)(nil)

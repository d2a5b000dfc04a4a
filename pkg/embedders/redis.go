package embedders

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/types"
)

// RedisCache stores embedding vectors in Redis so cache entries survive
// process restarts and are shared between instances. Vectors are encoded
// as little-endian float32 sequences.
type RedisCache struct {
	client *redis.Client
}

// RedisCacheOptions configures the Redis connection
type RedisCacheOptions struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisCache connects to Redis and verifies the connection with a ping
func NewRedisCache(opts RedisCacheOptions) (*RedisCache, error) {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.Port == 0 {
		opts.Port = 6379
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a cached vector; the second return reports a hit
func (c *RedisCache) Get(ctx context.Context, key string) (types.EmbeddingVector, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		// redis.Nil and transport errors both read as a miss
		return nil, false
	}

	vector, err := decodeVector(data)
	if err != nil {
		return nil, false
	}
	return vector, true
}

// Set stores a vector under the key with a time-to-live
func (c *RedisCache) Set(ctx context.Context, key string, vector types.EmbeddingVector, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, encodeVector(vector), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store embedding in redis: %w", err)
	}
	return nil
}

// Clear removes all cleave embedding entries, leaving unrelated keys in
// the same database untouched
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "cleave:emb:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan embedding keys: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// encodeVector packs a float32 vector into little-endian bytes
func encodeVector(vector types.EmbeddingVector) []byte {
	buf := make([]byte, len(vector)*4)
	for i, val := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(val))
	}
	return buf
}

// decodeVector unpacks little-endian bytes into a float32 vector
func decodeVector(data []byte) (types.EmbeddingVector, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector encoding: %d bytes", len(data))
	}

	vector := make(types.EmbeddingVector, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : i*4+4]))
	}
	return vector, nil
}

var _ interfaces.EmbeddingCache = (*RedisCache)(nil)

package embedders

import (
	"fmt"
	"time"

	"github.com/cleaveai/cleave/pkg/config"
	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/types"
)

// NewEmbedder creates an embedder for the configured provider
func NewEmbedder(cfg *Config) (Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Provider {
	case types.BackendOpenAI:
		return NewOpenAIEmbedder(cfg)
	case types.BackendOllama:
		return NewOllamaEmbedder(cfg)
	case types.BackendMock:
		return NewMockEmbedder(cfg.Dimension), nil
	default:
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("unsupported embedding provider: %s", cfg.Provider))
	}
}

// FromConfig builds an embedder from the file-level configuration section
func FromConfig(cfg *config.EmbedderConfig) (Provider, error) {
	if cfg == nil {
		return nil, errors.NewMissingFieldError("embedder")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigInvalidError(err.Error())
	}

	return NewEmbedder(&Config{
		Provider:  cfg.Backend,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Dimension: cfg.Dimension,
		Timeout:   cfg.Timeout,
		MaxLength: 512,
		BatchSize: 32,
		Normalize: true,
	})
}

// NewCache creates an embedding cache for the configured backend
func NewCache(cfg *config.CacheConfig) (interfaces.EmbeddingCache, error) {
	if cfg == nil {
		return NewMemoryCache(0), nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigInvalidError(err.Error())
	}

	switch cfg.Backend {
	case types.BackendMemory:
		return NewMemoryCache(cfg.MaxEntries), nil
	case types.BackendRedis:
		return NewRedisCache(RedisCacheOptions{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("unsupported cache backend: %s", cfg.Backend))
	}
}

// WithCache wraps an embedder with the configured cache. A nil cache
// config wraps with an in-memory cache and a day-long TTL.
func WithCache(embedder interfaces.Embedder, cfg *config.CacheConfig) (interfaces.Embedder, error) {
	cache, err := NewCache(cfg)
	if err != nil {
		return nil, err
	}

	ttl := 24 * time.Hour
	if cfg != nil && cfg.TTL > 0 {
		ttl = cfg.TTL
	}

	return NewCachingEmbedder(embedder, cache, ttl), nil
}

package embedders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/sashabaranov/go-openai"

	"github.com/cleaveai/cleave/pkg/types"
)

// OpenAIEmbedder serves embeddings from the OpenAI API
type OpenAIEmbedder struct {
	*BaseEmbedder
	config      *Config
	client      *openai.Client
	rateLimiter *RateLimiter
	mu          sync.RWMutex
}

// RateLimiter implements simple token-bucket rate limiting for API calls
type RateLimiter struct {
	tokens     int
	maxTokens  int
	lastRefill time.Time
	refillRate time.Duration
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		lastRefill: time.Now(),
		refillRate: refillRate,
	}
}

// Wait blocks until the requested tokens are available or the context ends
func (rl *RateLimiter) Wait(ctx context.Context, tokensNeeded int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	tokensToAdd := int(now.Sub(rl.lastRefill) / rl.refillRate)
	if tokensToAdd > 0 {
		rl.tokens += tokensToAdd
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}

	if rl.tokens >= tokensNeeded {
		rl.tokens -= tokensNeeded
		return nil
	}

	waitTime := time.Duration(tokensNeeded-rl.tokens) * rl.refillRate
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(waitTime):
		rl.tokens = 0
		return nil
	}
}

// NewOpenAIEmbedder creates a new OpenAI embedder
func NewOpenAIEmbedder(config *Config) (Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	if config.Model == "" {
		config.Model = string(openai.SmallEmbedding3)
	}

	// Model-native dimensions; text-embedding-3-* accept a reduced
	// Dimensions parameter, so a smaller configured value stays as-is
	if config.Dimension == 0 {
		switch config.Model {
		case string(openai.LargeEmbedding3):
			config.Dimension = 3072
		default:
			config.Dimension = 1536
		}
	}

	if config.MaxLength == 0 {
		config.MaxLength = 8191 // OpenAI's max input length
	}

	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	oai := &OpenAIEmbedder{
		BaseEmbedder: NewBaseEmbedder(config.Model, config.Dimension),
		config:       config,
		client:       openai.NewClientWithConfig(clientConfig),
		rateLimiter:  NewRateLimiter(100, time.Minute/100),
	}

	oai.SetMaxLength(config.MaxLength)
	if config.Timeout > 0 {
		oai.SetTimeout(config.Timeout)
	}

	return oai, nil
}

// Embed generates an embedding for a single text
func (oai *OpenAIEmbedder) Embed(ctx context.Context, text string) (types.EmbeddingVector, error) {
	start := time.Now()
	defer func() {
		oai.AddToTimer("embed_duration", time.Since(start))
		oai.IncrementCounter("embed_calls")
	}()

	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	embeddings, err := oai.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, slicing the input
// into API-sized batches while keeping the output aligned with the input
func (oai *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]types.EmbeddingVector, error) {
	start := time.Now()
	defer func() {
		oai.AddToTimer("embed_batch_duration", time.Since(start))
		oai.IncrementCounter("embed_batch_calls")
		oai.RecordMetrics("last_batch_size", len(texts))
	}()

	if len(texts) == 0 {
		return []types.EmbeddingVector{}, nil
	}

	processed := make([]string, len(texts))
	for i, text := range texts {
		processed[i] = oai.PreprocessText(text)
	}

	batchSize := oai.config.BatchSize
	allEmbeddings := make([]types.EmbeddingVector, 0, len(processed))

	for i := 0; i < len(processed); i += batchSize {
		end := i + batchSize
		if end > len(processed) {
			end = len(processed)
		}

		if err := oai.rateLimiter.Wait(ctx, 1); err != nil {
			return nil, fmt.Errorf("rate limiting error: %w", err)
		}

		batch, err := oai.createEmbeddingsWithRetry(ctx, processed[i:end])
		if err != nil {
			oai.IncrementCounter("embed_batch_errors")
			return nil, fmt.Errorf("batch processing failed at index %d: %w", i, err)
		}

		for j, embedding := range batch {
			if oai.config.Normalize {
				embedding = oai.NormalizeVector(embedding)
			}
			if err := oai.ValidateVector(embedding); err != nil {
				return nil, fmt.Errorf("invalid embedding at index %d: %w", i+j, err)
			}
			allEmbeddings = append(allEmbeddings, embedding)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	return allEmbeddings, nil
}

// createEmbeddingsWithRetry calls the embeddings endpoint with backoff
func (oai *OpenAIEmbedder) createEmbeddingsWithRetry(ctx context.Context, texts []string) ([]types.EmbeddingVector, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(oai.config.Model),
	}
	// Request reduced vectors server-side when the configured dimension is
	// below the model's native width (text-embedding-3-* only)
	if oai.config.Dimension > 0 && oai.config.Model != string(openai.AdaEmbeddingV2) {
		req.Dimensions = oai.config.Dimension
	}

	var result []types.EmbeddingVector

	err := retry.Do(
		func() error {
			resp, err := oai.client.CreateEmbeddings(ctx, req)
			if err != nil {
				return err
			}
			if len(resp.Data) != len(texts) {
				return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
			}

			result = make([]types.EmbeddingVector, len(resp.Data))
			for i, data := range resp.Data {
				embedding := make(types.EmbeddingVector, len(data.Embedding))
				copy(embedding, data.Embedding)
				result[i] = embedding
			}

			oai.RecordMetrics("total_tokens", resp.Usage.TotalTokens)
			oai.IncrementCounter("api_calls")
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			oai.IncrementCounter("api_retries")
		}),
		retry.Context(ctx),
	)

	return result, err
}

// GetProviderName returns the provider name
func (oai *OpenAIEmbedder) GetProviderName() string {
	return "openai"
}

// HealthCheck performs a health check against the live API
func (oai *OpenAIEmbedder) HealthCheck(ctx context.Context) error {
	if _, err := oai.Embed(ctx, "health check"); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// GetConfig returns a copy of the current configuration
func (oai *OpenAIEmbedder) GetConfig() *Config {
	oai.mu.RLock()
	defer oai.mu.RUnlock()

	configCopy := *oai.config
	return &configCopy
}

// Close closes the embedder and releases resources
func (oai *OpenAIEmbedder) Close() error {
	// OpenAI client doesn't need explicit cleanup
	return oai.BaseEmbedder.Close()
}

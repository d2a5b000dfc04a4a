package embedders

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"

	"github.com/cleaveai/cleave/pkg/types"
)

// OllamaEmbedder serves embeddings from a local Ollama instance
type OllamaEmbedder struct {
	*BaseEmbedder
	config  *Config
	client  *resty.Client
	baseURL string
}

// OllamaEmbeddingRequest represents an Ollama embedding request
type OllamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// OllamaEmbeddingResponse represents an Ollama embedding response
type OllamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// OllamaTagsResponse represents the response from /api/tags
type OllamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaEmbedder creates a new Ollama embedder
func NewOllamaEmbedder(config *Config) (Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	if config.Model == "" {
		config.Model = "nomic-embed-text"
	}
	if config.MaxLength == 0 {
		config.MaxLength = 2048 // Default for most Ollama models
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10 // Smaller batch size for local models
	}
	if config.Dimension == 0 {
		// Refined from the first response when the model disagrees
		config.Dimension = 768
	}

	client := resty.New()
	client.SetTimeout(30 * time.Second)
	if config.Timeout > 0 {
		client.SetTimeout(config.Timeout)
	}

	ollama := &OllamaEmbedder{
		BaseEmbedder: NewBaseEmbedder(config.Model, config.Dimension),
		config:       config,
		client:       client,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
	}

	ollama.SetMaxLength(config.MaxLength)
	if config.Timeout > 0 {
		ollama.SetTimeout(config.Timeout)
	}

	return ollama, nil
}

// Embed generates an embedding for a single text
func (ol *OllamaEmbedder) Embed(ctx context.Context, text string) (types.EmbeddingVector, error) {
	start := time.Now()
	defer func() {
		ol.AddToTimer("embed_duration", time.Since(start))
		ol.IncrementCounter("embed_calls")
	}()

	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	embedding, err := ol.createEmbeddingWithRetry(ctx, ol.PreprocessText(text))
	if err != nil {
		ol.IncrementCounter("embed_errors")
		return nil, fmt.Errorf("ollama API error: %w", err)
	}

	result := make(types.EmbeddingVector, len(embedding))
	for i, val := range embedding {
		result[i] = float32(val)
	}

	// Auto-detect dimension on first call
	if ol.GetDimension() != len(result) {
		ol.setDimension(len(result))
		ol.RecordMetrics("auto_detected_dimension", len(result))
	}

	if ol.config.Normalize {
		result = ol.NormalizeVector(result)
	}

	if err := ol.ValidateVector(result); err != nil {
		return nil, fmt.Errorf("invalid embedding: %w", err)
	}

	return result, nil
}

// EmbedBatch generates embeddings for multiple texts. Ollama has no batch
// endpoint, so prompts are embedded one at a time; the caller still sees a
// single ordered result set.
func (ol *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]types.EmbeddingVector, error) {
	start := time.Now()
	defer func() {
		ol.AddToTimer("embed_batch_duration", time.Since(start))
		ol.IncrementCounter("embed_batch_calls")
		ol.RecordMetrics("last_batch_size", len(texts))
	}()

	if len(texts) == 0 {
		return []types.EmbeddingVector{}, nil
	}

	allEmbeddings := make([]types.EmbeddingVector, 0, len(texts))
	for i, text := range texts {
		embedding, err := ol.Embed(ctx, text)
		if err != nil {
			ol.IncrementCounter("embed_batch_errors")
			return nil, fmt.Errorf("batch processing failed at index %d: %w", i, err)
		}

		allEmbeddings = append(allEmbeddings, embedding)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	return allEmbeddings, nil
}

// createEmbeddingWithRetry creates an embedding with retry logic
func (ol *OllamaEmbedder) createEmbeddingWithRetry(ctx context.Context, text string) ([]float64, error) {
	var result []float64

	err := retry.Do(
		func() error {
			embedding, err := ol.createEmbedding(ctx, text)
			if err != nil {
				return err
			}
			result = embedding
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			ol.IncrementCounter("api_retries")
		}),
		retry.Context(ctx),
	)

	return result, err
}

// createEmbedding calls the Ollama embeddings endpoint once
func (ol *OllamaEmbedder) createEmbedding(ctx context.Context, text string) ([]float64, error) {
	req := OllamaEmbeddingRequest{
		Model:  ol.config.Model,
		Prompt: text,
	}

	resp, err := ol.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&OllamaEmbeddingResponse{}).
		Post(fmt.Sprintf("%s/api/embeddings", ol.baseURL))

	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode(), resp.String())
	}

	result, ok := resp.Result().(*OllamaEmbeddingResponse)
	if !ok || result == nil {
		return nil, fmt.Errorf("invalid response format")
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned for model %s", ol.config.Model)
	}

	return result.Embedding, nil
}

// GetProviderName returns the provider name
func (ol *OllamaEmbedder) GetProviderName() string {
	return "ollama"
}

// HealthCheck verifies the Ollama server is reachable and the configured
// model is present
func (ol *OllamaEmbedder) HealthCheck(ctx context.Context) error {
	resp, err := ol.client.R().
		SetContext(ctx).
		SetResult(&OllamaTagsResponse{}).
		Get(fmt.Sprintf("%s/api/tags", ol.baseURL))

	if err != nil {
		return fmt.Errorf("ollama server unreachable: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("ollama server returned status %d", resp.StatusCode())
	}

	tags, ok := resp.Result().(*OllamaTagsResponse)
	if !ok || tags == nil {
		return fmt.Errorf("invalid tags response")
	}

	for _, model := range tags.Models {
		if model.Name == ol.config.Model || strings.HasPrefix(model.Name, ol.config.Model+":") {
			return nil
		}
	}

	return fmt.Errorf("model %s not found on ollama server", ol.config.Model)
}

// GetConfig returns a copy of the current configuration
func (ol *OllamaEmbedder) GetConfig() *Config {
	configCopy := *ol.config
	return &configCopy
}

// Close closes the embedder and releases resources
func (ol *OllamaEmbedder) Close() error {
	return ol.BaseEmbedder.Close()
}

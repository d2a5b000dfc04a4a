// Package embedders provides embedding provider implementations for Cleave.
// The chunking engine consumes providers through interfaces.Embedder and
// relies on EmbedBatch preserving input order and cardinality.
package embedders

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/types"
)

// BaseEmbedder provides common functionality for all embedder implementations
type BaseEmbedder struct {
	modelName string
	dimension int
	maxLength int
	timeout   time.Duration
	metrics   map[string]interface{}
	mu        sync.RWMutex
}

// NewBaseEmbedder creates a new base embedder instance
func NewBaseEmbedder(modelName string, dimension int) *BaseEmbedder {
	return &BaseEmbedder{
		modelName: modelName,
		dimension: dimension,
		maxLength: 512, // Default max length for most models
		timeout:   30 * time.Second,
		metrics:   make(map[string]interface{}),
	}
}

// GetDimension returns the embedding dimension
func (b *BaseEmbedder) GetDimension() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dimension
}

// GetModelName returns the model name
func (b *BaseEmbedder) GetModelName() string {
	return b.modelName
}

// SetMaxLength sets the maximum input length in tokens
func (b *BaseEmbedder) SetMaxLength(maxLength int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxLength = maxLength
}

// GetMaxLength returns the maximum input length in tokens
func (b *BaseEmbedder) GetMaxLength() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.maxLength
}

// SetTimeout sets the request timeout
func (b *BaseEmbedder) SetTimeout(timeout time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = timeout
}

// GetTimeout returns the request timeout
func (b *BaseEmbedder) GetTimeout() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.timeout
}

// setDimension updates the dimension after provider auto-detection
func (b *BaseEmbedder) setDimension(dimension int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dimension = dimension
}

// PreprocessText normalizes whitespace and truncates overlong input at a
// word boundary so providers never see more than maxLength tokens
func (b *BaseEmbedder) PreprocessText(text string) string {
	words := strings.Fields(text)
	if max := b.GetMaxLength(); len(words) > max {
		words = words[:max]
	}
	return strings.Join(words, " ")
}

// NormalizeVector normalizes an embedding vector to unit length
func (b *BaseEmbedder) NormalizeVector(vector types.EmbeddingVector) types.EmbeddingVector {
	var norm float64
	for _, val := range vector {
		norm += float64(val) * float64(val)
	}
	norm = math.Sqrt(norm)

	if norm == 0 {
		return vector
	}

	normalized := make(types.EmbeddingVector, len(vector))
	for i, val := range vector {
		normalized[i] = float32(float64(val) / norm)
	}

	return normalized
}

// ValidateVector checks an embedding vector against the configured
// dimension and rejects NaN or Inf components
func (b *BaseEmbedder) ValidateVector(vector types.EmbeddingVector) error {
	if len(vector) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}

	if len(vector) != b.GetDimension() {
		return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", b.GetDimension(), len(vector))
	}

	for i, val := range vector {
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return fmt.Errorf("invalid value at index %d: %f", i, val)
		}
	}

	return nil
}

// RecordMetrics records usage metrics
func (b *BaseEmbedder) RecordMetrics(metric string, value interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics[metric] = value
}

// GetMetrics returns accumulated metrics
func (b *BaseEmbedder) GetMetrics() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// Return a copy to prevent concurrent modification
	metrics := make(map[string]interface{})
	for k, v := range b.metrics {
		metrics[k] = v
	}
	return metrics
}

// IncrementCounter increments a counter metric
func (b *BaseEmbedder) IncrementCounter(metric string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if count, ok := b.metrics[metric].(int); ok {
		b.metrics[metric] = count + 1
	} else {
		b.metrics[metric] = 1
	}
}

// AddToTimer adds a duration to a timer metric
func (b *BaseEmbedder) AddToTimer(metric string, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if total, ok := b.metrics[metric].(time.Duration); ok {
		b.metrics[metric] = total + duration
	} else {
		b.metrics[metric] = duration
	}
}

// Close provides default close implementation
func (b *BaseEmbedder) Close() error {
	return nil
}

// Config represents configuration for embedder instances
type Config struct {
	Provider  types.BackendType `json:"provider"`
	Model     string            `json:"model"`
	APIKey    string            `json:"api_key"`
	BaseURL   string            `json:"base_url"`
	Dimension int               `json:"dimension"`
	MaxLength int               `json:"max_length"`
	Timeout   time.Duration     `json:"timeout"`
	BatchSize int               `json:"batch_size"`
	Normalize bool              `json:"normalize"`
}

// Validate validates the embedder configuration
func (c *Config) Validate() error {
	if c.Provider == "" {
		return errors.NewMissingFieldError("provider")
	}
	if c.Model == "" {
		return errors.NewMissingFieldError("model")
	}
	if c.Dimension <= 0 {
		return errors.NewInvalidArgumentError(fmt.Sprintf("dimension must be positive, got %d", c.Dimension))
	}
	if c.MaxLength <= 0 {
		return errors.NewInvalidArgumentError(fmt.Sprintf("max_length must be positive, got %d", c.MaxLength))
	}
	if c.BatchSize <= 0 {
		return errors.NewInvalidArgumentError(fmt.Sprintf("batch_size must be positive, got %d", c.BatchSize))
	}
	return nil
}

// DefaultConfig returns the reference deployment configuration: 384-wide
// vectors matching the sentence-transformer models used in production,
// served by the deterministic mock provider
func DefaultConfig() *Config {
	return &Config{
		Provider:  types.BackendMock,
		Model:     "mock-minilm-384",
		Dimension: 384,
		MaxLength: 512,
		Timeout:   30 * time.Second,
		BatchSize: 32,
		Normalize: true,
	}
}

// Provider extends the embedder contract with provider identity and a
// liveness probe
type Provider interface {
	interfaces.Embedder

	// GetProviderName returns the backend name
	GetProviderName() string

	// HealthCheck verifies the provider can serve embeddings
	HealthCheck(ctx context.Context) error
}

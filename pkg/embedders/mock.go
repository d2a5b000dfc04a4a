package embedders

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/cleaveai/cleave/pkg/types"
)

// MockEmbedder produces deterministic embeddings without a model. Every
// token maps to a pseudo-random vector seeded by its blake2b hash, and a
// text embeds as the normalized sum of its token vectors. Texts sharing
// vocabulary therefore score high cosine similarity while disjoint texts
// land near zero, which is enough signal for boundary detection in tests
// and local development.
type MockEmbedder struct {
	*BaseEmbedder
	config     *Config
	batchCalls int64
	embedCalls int64
}

// NewMockEmbedder creates a mock embedder with the given dimension
func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &MockEmbedder{
		BaseEmbedder: NewBaseEmbedder(fmt.Sprintf("mock-minilm-%d", dimension), dimension),
		config: &Config{
			Provider:  types.BackendMock,
			Model:     fmt.Sprintf("mock-minilm-%d", dimension),
			Dimension: dimension,
			MaxLength: 512,
			Timeout:   time.Second,
			BatchSize: 32,
			Normalize: true,
		},
	}
}

// Embed generates a deterministic embedding for a single text
func (m *MockEmbedder) Embed(ctx context.Context, text string) (types.EmbeddingVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	atomic.AddInt64(&m.embedCalls, 1)

	return m.embedText(text), nil
}

// EmbedBatch generates deterministic embeddings for multiple texts in one
// call, preserving input order
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]types.EmbeddingVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	atomic.AddInt64(&m.batchCalls, 1)

	embeddings := make([]types.EmbeddingVector, len(texts))
	for i, text := range texts {
		embeddings[i] = m.embedText(text)
	}
	return embeddings, nil
}

// BatchCalls returns how many times EmbedBatch has been invoked
func (m *MockEmbedder) BatchCalls() int {
	return int(atomic.LoadInt64(&m.batchCalls))
}

// EmbedCalls returns how many times Embed has been invoked
func (m *MockEmbedder) EmbedCalls() int {
	return int(atomic.LoadInt64(&m.embedCalls))
}

// embedText sums the token vectors of text and normalizes the result.
// Tokens are lowercased so capitalization does not change the topic signal.
func (m *MockEmbedder) embedText(text string) types.EmbeddingVector {
	dimension := m.GetDimension()

	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		tokens = []string{""}
	}

	sum := make([]float64, dimension)
	for _, token := range tokens {
		vec := tokenVector(token, dimension)
		for i, val := range vec {
			sum[i] += val
		}
	}

	var norm float64
	for _, val := range sum {
		norm += val * val
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}

	result := make(types.EmbeddingVector, dimension)
	for i, val := range sum {
		result[i] = float32(val / norm)
	}
	return result
}

// tokenVector expands a token's blake2b hash into dimension components in
// [-1, 1). The mapping is stable across processes and platforms.
func tokenVector(token string, dimension int) []float64 {
	xof, err := blake2b.NewXOF(uint32(dimension*4), nil)
	if err != nil {
		panic(err) // only reachable with an invalid output size
	}
	xof.Write([]byte(token))

	buf := make([]byte, dimension*4)
	if _, err := io.ReadFull(xof, buf); err != nil {
		panic(err)
	}

	vec := make([]float64, dimension)
	for i := 0; i < dimension; i++ {
		bits := binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
		vec[i] = float64(bits)/float64(math.MaxUint32)*2 - 1
	}
	return vec
}

// GetProviderName returns the provider name
func (m *MockEmbedder) GetProviderName() string {
	return "mock"
}

// HealthCheck always succeeds for the mock provider
func (m *MockEmbedder) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// GetConfig returns a copy of the current configuration
func (m *MockEmbedder) GetConfig() *Config {
	configCopy := *m.config
	return &configCopy
}

var _ Provider = (*MockEmbedder)(nil)

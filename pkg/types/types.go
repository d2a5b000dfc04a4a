// Package types defines the core types shared across Cleave packages.
package types

import (
	"fmt"
	"time"
)

// EmbeddingVector represents a vector embedding
type EmbeddingVector []float32

// ErrorType categorizes errors by their broad cause
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeInternal   ErrorType = "internal"
)

// Granularity selects the chunk size regime a caller asked for
type Granularity string

const (
	// GranularityParent produces context-sized chunks (~200 tokens by default)
	GranularityParent Granularity = "parent"
	// GranularityChild produces scan-sized chunks (~25 tokens by default)
	GranularityChild Granularity = "child"
)

// IsValid reports whether the granularity is a known value
func (g Granularity) IsValid() bool {
	return g == GranularityParent || g == GranularityChild
}

// Common source entity types. SourceType is free-form; these cover the
// usual ingestion inputs.
const (
	SourceTypeDocument   = "document"
	SourceTypeTranscript = "transcript"
	SourceTypeNote       = "note"
)

// BackendType identifies a pluggable backend implementation
type BackendType string

const (
	// Embedding backends
	BackendOpenAI BackendType = "openai"
	BackendOllama BackendType = "ollama"
	BackendMock   BackendType = "mock"

	// Cache backends
	BackendMemory BackendType = "memory"
	BackendRedis  BackendType = "redis"

	// Index backends
	BackendQdrant BackendType = "qdrant"

	// Graph backends
	BackendNeo4j BackendType = "neo4j"

	// Event backends
	BackendNATS BackendType = "nats"
	BackendNoop BackendType = "noop"
)

// Chunk is the engine's output unit: a half-open token range over the
// whitespace-normalized source text. It carries no text of its own; the
// text-reconstruction collaborator maps (SourceID, StartToken, EndToken)
// back to displayable text.
type Chunk struct {
	ID          string      `json:"id"`
	SourceID    string      `json:"source_id"`
	SourceType  string      `json:"source_type"`
	StartToken  int         `json:"start_token"`
	EndToken    int         `json:"end_token"`
	Granularity Granularity `json:"granularity"`
	CreatedAt   time.Time   `json:"created_at"`
}

// TokenCount returns the number of tokens the chunk spans
func (c *Chunk) TokenCount() int {
	return c.EndToken - c.StartToken
}

// Validate checks the structural integrity of the chunk
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("chunk ID cannot be empty")
	}
	if c.StartToken < 0 {
		return fmt.Errorf("chunk start token cannot be negative")
	}
	if c.EndToken <= c.StartToken {
		return fmt.Errorf("chunk end token %d must be greater than start token %d", c.EndToken, c.StartToken)
	}
	if !c.Granularity.IsValid() {
		return fmt.Errorf("unknown granularity %q", c.Granularity)
	}
	return nil
}

// ChunkList represents an ordered sequence of chunks
type ChunkList []Chunk

// TotalTokens returns the summed token counts of all chunks
func (cl ChunkList) TotalTokens() int {
	total := 0
	for i := range cl {
		total += cl[i].TokenCount()
	}
	return total
}

// Contiguous reports whether the chunks form a gapless, non-overlapping
// sequence: every chunk starts where the previous one ended.
func (cl ChunkList) Contiguous() bool {
	for i := 1; i < len(cl); i++ {
		if cl[i].StartToken != cl[i-1].EndToken {
			return false
		}
	}
	return true
}

// ChunkPoint pairs a chunk with its embedding and display text for indexing
type ChunkPoint struct {
	Chunk  Chunk           `json:"chunk"`
	Vector EmbeddingVector `json:"vector"`
	Text   string          `json:"text"`
}

// SearchHit is one result from the chunk index, resolved back to text
type SearchHit struct {
	ChunkID     string      `json:"chunk_id"`
	SourceID    string      `json:"source_id"`
	SourceType  string      `json:"source_type"`
	Granularity Granularity `json:"granularity"`
	StartToken  int         `json:"start_token"`
	EndToken    int         `json:"end_token"`
	Score       float32     `json:"score"`
	Text        string      `json:"text,omitempty"`
	ParentText  string      `json:"parent_text,omitempty"`
}

// DocumentChunked is the event emitted after a document has been chunked,
// stored, and indexed.
type DocumentChunked struct {
	SourceID    string      `json:"source_id"`
	SourceType  string      `json:"source_type"`
	Granularity Granularity `json:"granularity"`
	ChunkCount  int         `json:"chunk_count"`
	TokenCount  int         `json:"token_count"`
	DurationMS  int64       `json:"duration_ms"`
	Timestamp   time.Time   `json:"timestamp"`
}

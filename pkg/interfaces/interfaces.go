// Package interfaces defines the contracts between Cleave subsystems.
// Implementations live in their own packages; consumers depend on these
// interfaces so collaborators stay swappable.
package interfaces

import (
	"context"
	"time"

	"github.com/cleaveai/cleave/pkg/types"
)

// Embedder defines the interface for embedding providers.
// EmbedBatch must preserve input order and return exactly one vector per
// input text; the chunking engine relies on both guarantees.
type Embedder interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) (types.EmbeddingVector, error)

	// EmbedBatch generates embeddings for multiple texts in one request
	EmbedBatch(ctx context.Context, texts []string) ([]types.EmbeddingVector, error)

	// GetDimension returns the embedding dimension
	GetDimension() int

	// GetModelName returns the underlying model identifier
	GetModelName() string

	// Close closes the embedder
	Close() error
}

// EmbeddingCache defines the interface for embedding caches
type EmbeddingCache interface {
	// Get retrieves a cached vector; the second return reports a hit
	Get(ctx context.Context, key string) (types.EmbeddingVector, bool)

	// Set stores a vector under the key with a time-to-live
	Set(ctx context.Context, key string, vector types.EmbeddingVector, ttl time.Duration) error

	// Clear removes all cached entries
	Clear(ctx context.Context) error

	// Close releases cache resources
	Close() error
}

// ChunkStore persists source documents and their chunk ranges, and serves
// as the text-reconstruction collaborator: it maps (sourceID, startToken,
// endToken) back to literal displayable text.
type ChunkStore interface {
	// UpsertDocument stores the whitespace-normalized content of a source
	// entity and reports whether the content changed since the last upsert
	UpsertDocument(sourceID, sourceType, content string) (changed bool, err error)

	// GetChunks returns the stored chunks for a source at one granularity,
	// ordered by position
	GetChunks(sourceID string, granularity types.Granularity) ([]types.Chunk, error)

	// ReplaceChunks transactionally swaps the stored chunk set for a source
	// at the chunks' granularity
	ReplaceChunks(sourceID string, chunks []types.Chunk) error

	// ReconstructRange returns the literal text of a token range
	ReconstructRange(sourceID string, startToken, endToken int) (string, error)

	// ParentOf returns the parent-granularity chunk containing the child's
	// token range
	ParentOf(child *types.Chunk) (*types.Chunk, error)

	// DeleteDocument removes a source document and all of its chunks
	DeleteDocument(sourceID string) error

	// HealthCheck verifies the backing database is reachable
	HealthCheck() error

	// Close closes the store
	Close() error
}

// ChunkIndex is the approximate-nearest-neighbor indexing collaborator:
// it holds chunk vectors and serves similarity search.
type ChunkIndex interface {
	// EnsureCollection creates the collection when it does not exist
	EnsureCollection(ctx context.Context, name string, vectorSize int) error

	// UpsertChunks inserts or updates chunk points
	UpsertChunks(ctx context.Context, collection string, points []types.ChunkPoint) error

	// Search returns the chunks most similar to the query vector;
	// sourceID narrows the search to one source when non-empty
	Search(ctx context.Context, collection string, vector types.EmbeddingVector, limit int, sourceID string) ([]types.SearchHit, error)

	// DeleteBySource removes every point belonging to a source
	DeleteBySource(ctx context.Context, collection string, sourceID string) error

	// HealthCheck verifies the index is reachable
	HealthCheck(ctx context.Context) error

	// Close closes the index connection
	Close() error
}

// GraphStore maintains the chunk adjacency and parent/child hierarchy graph
type GraphStore interface {
	// SyncChunks replaces a source's chunk nodes and NEXT edges at the
	// chunks' granularity
	SyncChunks(ctx context.Context, sourceID string, chunks []types.Chunk) error

	// LinkHierarchy creates CHILD_OF edges from child chunks to the parent
	// chunks containing them
	LinkHierarchy(ctx context.Context, parents, children []types.Chunk) error

	// Neighbors returns the IDs of the chunks before and after the given
	// chunk; empty strings mark sequence ends
	Neighbors(ctx context.Context, chunkID string) (prev, next string, err error)

	// DeleteSource removes a source's document node and chunk nodes
	DeleteSource(ctx context.Context, sourceID string) error

	// HealthCheck verifies graph connectivity
	HealthCheck(ctx context.Context) error

	// Close closes the driver
	Close(ctx context.Context) error
}

// EventPublisher emits pipeline notifications
type EventPublisher interface {
	// Publish emits a document-chunked event
	Publish(ctx context.Context, event *types.DocumentChunked) error

	// Close flushes and closes the publisher
	Close() error
}

// ConfigManager defines the interface for dynamic configuration access
type ConfigManager interface {
	// Load loads configuration from a file
	Load(ctx context.Context, path string) error

	// Get retrieves a configuration value
	Get(key string) interface{}

	// Set sets a configuration value
	Set(key string, value interface{}) error

	// Save saves configuration to a file
	Save(ctx context.Context, path string) error

	// Watch watches for configuration changes
	Watch(ctx context.Context, callback func(key string, value interface{})) error
}

// Logger defines the interface for logging
type Logger interface {
	// Debug logs debug level messages
	Debug(msg string, fields ...map[string]interface{})

	// Info logs info level messages
	Info(msg string, fields ...map[string]interface{})

	// Warn logs warning level messages
	Warn(msg string, fields ...map[string]interface{})

	// Error logs error level messages
	Error(msg string, err error, fields ...map[string]interface{})

	// Fatal logs fatal level messages and exits
	Fatal(msg string, err error, fields ...map[string]interface{})

	// WithFields returns a logger with preset fields
	WithFields(fields map[string]interface{}) Logger
}

// Metrics defines the interface for metrics collection
type Metrics interface {
	// Counter increments a counter metric
	Counter(name string, value float64, labels map[string]string)

	// Gauge sets a gauge metric
	Gauge(name string, value float64, labels map[string]string)

	// Histogram records a histogram metric
	Histogram(name string, value float64, labels map[string]string)

	// Timer records timing metrics
	Timer(name string, duration float64, labels map[string]string)
}

// HealthChecker defines the interface for health checking
type HealthChecker interface {
	// Check performs a health check
	Check(ctx context.Context) error

	// GetStatus returns the current health status
	GetStatus() string

	// RegisterCheck registers a health check
	RegisterCheck(name string, check func(ctx context.Context) error)
}

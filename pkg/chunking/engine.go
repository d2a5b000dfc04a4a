package chunking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/logger"
	"github.com/cleaveai/cleave/pkg/metrics"
	"github.com/cleaveai/cleave/pkg/types"
)

// Engine wires the segmenter, boundary detector, assembler, and
// normalizer into the single chunking entry point. It holds no per-call
// state; concurrent SegmentAndChunk calls are safe.
type Engine struct {
	embedder interfaces.Embedder
	logger   interfaces.Logger
	metrics  interfaces.Metrics
}

// NewEngine creates a chunking engine around an embedding provider. A nil
// logger or metrics sink falls back to the package defaults.
func NewEngine(embedder interfaces.Embedder, log interfaces.Logger, m interfaces.Metrics) *Engine {
	if log == nil {
		log = logger.NewLogger()
	}
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	return &Engine{
		embedder: embedder,
		logger:   log,
		metrics:  m,
	}
}

// SegmentAndChunk splits text into non-overlapping chunks in original
// token coordinates. The configuration is validated before any work
// happens. Segments are embedded in exactly one batch call, and only when
// there are at least two of them; any provider shortfall aborts the run
// rather than degrading to a size-only split.
func (e *Engine) SegmentAndChunk(ctx context.Context, text string, cfg *Config) ([]types.Chunk, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	tokens := Tokens(text)
	total := len(tokens)
	if total == 0 {
		return []types.Chunk{}, nil
	}

	segmenter := NewSegmenter(cfg.WindowSize, cfg.WindowOverlap)
	segments := segmenter.segmentTokens(tokens)

	boundaries := map[int]bool{}
	if len(segments) >= 2 {
		var err error
		boundaries, err = e.detectBoundaries(ctx, segments, cfg)
		if err != nil {
			return nil, err
		}
	}

	spans := NewAssembler(cfg).Assemble(segments, boundaries)
	normalized, err := NewNormalizer(cfg).Normalize(spans, total)
	if err != nil {
		return nil, err
	}

	chunks := e.stamp(normalized, cfg)

	elapsed := time.Since(start)
	e.logger.Debug("chunked text", map[string]interface{}{
		"source_id":   cfg.SourceID,
		"granularity": string(cfg.Granularity),
		"tokens":      total,
		"segments":    len(segments),
		"boundaries":  len(boundaries),
		"chunks":      len(chunks),
		"duration_ms": elapsed.Milliseconds(),
	})

	labels := map[string]string{"granularity": string(cfg.Granularity)}
	e.metrics.Counter("chunking_runs_total", 1, labels)
	e.metrics.Histogram("chunking_chunks_per_run", float64(len(chunks)), labels)
	e.metrics.Timer("chunking_duration_ms", float64(elapsed.Milliseconds()), labels)

	return chunks, nil
}

// detectBoundaries embeds every segment in one batch call and flags the
// low-similarity transitions
func (e *Engine) detectBoundaries(ctx context.Context, segments []Segment, cfg *Config) (map[int]bool, error) {
	if e.embedder == nil {
		return nil, errors.NewEmbeddingUnavailableError("no embedding provider configured", nil)
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, errors.NewEmbeddingUnavailableError("embedding provider failed", err)
	}
	if len(vectors) != len(segments) {
		return nil, errors.NewEmbeddingUnavailableError(
			fmt.Sprintf("provider returned %d vectors for %d segments", len(vectors), len(segments)), nil)
	}

	detector := NewBoundaryDetector(cfg.SimilarityThreshold)
	boundaries, err := detector.DetectBoundaries(segments, vectors)
	if err != nil {
		// inconsistent vector dimensions inside one batch land here
		return nil, errors.NewEmbeddingUnavailableError("embedding provider returned unusable vectors", err)
	}
	return boundaries, nil
}

// stamp converts token spans into chunks with identity and provenance
func (e *Engine) stamp(spans []Span, cfg *Config) []types.Chunk {
	sourceType := cfg.SourceType
	if sourceType == "" {
		sourceType = types.SourceTypeDocument
	}
	now := time.Now().UTC()

	chunks := make([]types.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = types.Chunk{
			ID:          uuid.New().String(),
			SourceID:    cfg.SourceID,
			SourceType:  sourceType,
			StartToken:  s.StartToken,
			EndToken:    s.EndToken,
			Granularity: cfg.Granularity,
			CreatedAt:   now,
		}
	}
	return chunks
}

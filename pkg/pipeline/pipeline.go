// Package pipeline orchestrates document ingestion: parse, chunk at two
// granularities, persist, embed, index, graph, notify. The chunking
// engine stays a pure function from text to chunk ranges; everything
// lifecycle-shaped lives here.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cleaveai/cleave/pkg/chunking"
	"github.com/cleaveai/cleave/pkg/config"
	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/events"
	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/logger"
	"github.com/cleaveai/cleave/pkg/metrics"
	"github.com/cleaveai/cleave/pkg/parsers"
	"github.com/cleaveai/cleave/pkg/types"
)

// defaultCollection is used when no index configuration names one.
const defaultCollection = "cleave_chunks"

// Options carries the collaborators a pipeline runs with. Embedder and
// Store are required. Index, Graph, and Events are optional and further
// gated by the EnableIndexing/EnableGraph/EnableEvents flags on the
// configuration; a nil collaborator disables its stage regardless of
// the flag.
type Options struct {
	Config   *config.CleaveConfig
	Embedder interfaces.Embedder
	Store    interfaces.ChunkStore
	Index    interfaces.ChunkIndex
	Graph    interfaces.GraphStore
	Events   interfaces.EventPublisher
	Parsers  *parsers.ParserFactory
	Logger   interfaces.Logger
	Metrics  interfaces.Metrics

	// ParentOnly skips the child-granularity pass
	ParentOnly bool
}

// Pipeline owns the chunk lifecycle for source documents. The engine
// produces chunk ranges; the pipeline decides when to rechunk, what to
// persist, what to index, and who to tell.
type Pipeline struct {
	config     *config.CleaveConfig
	engine     *chunking.Engine
	embedder   interfaces.Embedder
	store      interfaces.ChunkStore
	index      interfaces.ChunkIndex
	graph      interfaces.GraphStore
	events     interfaces.EventPublisher
	parsers    *parsers.ParserFactory
	logger     interfaces.Logger
	metrics    interfaces.Metrics
	parentOnly bool
}

// ProcessResult summarizes one ingestion run
type ProcessResult struct {
	SourceID     string        `json:"source_id"`
	SourceType   string        `json:"source_type"`
	Changed      bool          `json:"changed"`
	TokenCount   int           `json:"token_count"`
	ParentChunks int           `json:"parent_chunks"`
	ChildChunks  int           `json:"child_chunks"`
	Indexed      int           `json:"indexed"`
	Duration     time.Duration `json:"duration"`
}

// New creates a pipeline from the given collaborators
func New(opts Options) (*Pipeline, error) {
	if opts.Embedder == nil {
		return nil, errors.NewMissingFieldError("embedder")
	}
	if opts.Store == nil {
		return nil, errors.NewMissingFieldError("store")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewCleaveConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("invalid pipeline config: %v", err))
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewConsoleLogger(cfg.LogLevel)
	}
	m := opts.Metrics
	if m == nil || !cfg.MetricsEnabled {
		m = metrics.NewNoOpMetrics()
	}
	pub := opts.Events
	if pub == nil {
		pub = events.NewNoopPublisher()
	}
	factory := opts.Parsers
	if factory == nil {
		factory = parsers.NewParserFactory()
	}

	p := &Pipeline{
		config:     cfg,
		engine:     chunking.NewEngine(opts.Embedder, log, m),
		embedder:   opts.Embedder,
		store:      opts.Store,
		index:      opts.Index,
		graph:      opts.Graph,
		events:     pub,
		parsers:    factory,
		logger:     log,
		metrics:    m,
		parentOnly: opts.ParentOnly,
	}

	if cfg.EnableIndexing && p.index == nil {
		log.Warn("indexing enabled but no index collaborator wired, skipping index stage")
	}
	if cfg.EnableGraph && p.graph == nil {
		log.Warn("graph enabled but no graph collaborator wired, skipping graph stage")
	}

	return p, nil
}

// ProcessText ingests one source document end to end: upsert, chunk at
// parent and child granularity, replace stored chunks, embed and index,
// sync the graph, publish events. A run whose content hash is unchanged
// stops after the upsert. Any stage error aborts the run and surfaces to
// the caller; only event publishing is advisory.
func (p *Pipeline) ProcessText(ctx context.Context, sourceID, sourceType, text string) (*ProcessResult, error) {
	if sourceID == "" {
		return nil, errors.NewMissingFieldError("sourceID")
	}
	if sourceType == "" {
		sourceType = types.SourceTypeDocument
	}

	start := time.Now()

	changed, err := p.store.UpsertDocument(sourceID, sourceType, text)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{
		SourceID:   sourceID,
		SourceType: sourceType,
		Changed:    changed,
		TokenCount: chunking.CountTokens(text),
	}

	if !changed {
		p.logger.Debug("content unchanged, keeping existing chunks", map[string]interface{}{
			"source_id": sourceID,
		})
		p.metrics.Counter("pipeline_unchanged_total", 1, map[string]string{"source_type": sourceType})
		result.Duration = time.Since(start)
		return result, nil
	}

	parents, err := p.chunk(ctx, sourceID, sourceType, text, types.GranularityParent)
	if err != nil {
		return nil, err
	}

	var children []types.Chunk
	if !p.parentOnly {
		children, err = p.chunk(ctx, sourceID, sourceType, text, types.GranularityChild)
		if err != nil {
			return nil, err
		}
	}

	if err := p.replaceStored(sourceID, parents, children); err != nil {
		return nil, err
	}

	indexed := 0
	if p.indexingOn() {
		all := make([]types.Chunk, 0, len(parents)+len(children))
		all = append(all, parents...)
		all = append(all, children...)

		indexed, err = p.indexChunks(ctx, sourceID, text, all)
		if err != nil {
			return nil, err
		}
	}

	if p.graphOn() {
		if err := p.syncGraph(ctx, sourceID, parents, children); err != nil {
			return nil, err
		}
	}

	elapsed := time.Since(start)
	p.publish(ctx, sourceID, sourceType, types.GranularityParent, len(parents), result.TokenCount, elapsed)
	if !p.parentOnly {
		p.publish(ctx, sourceID, sourceType, types.GranularityChild, len(children), result.TokenCount, elapsed)
	}

	result.ParentChunks = len(parents)
	result.ChildChunks = len(children)
	result.Indexed = indexed
	result.Duration = time.Since(start)

	labels := map[string]string{"source_type": sourceType}
	p.metrics.Counter("pipeline_documents_total", 1, labels)
	p.metrics.Histogram("pipeline_parent_chunks", float64(len(parents)), labels)
	p.metrics.Histogram("pipeline_child_chunks", float64(len(children)), labels)
	p.metrics.Timer("pipeline_duration_ms", float64(result.Duration.Milliseconds()), labels)

	p.logger.Info("processed document", map[string]interface{}{
		"source_id":     sourceID,
		"source_type":   sourceType,
		"tokens":        result.TokenCount,
		"parent_chunks": len(parents),
		"child_chunks":  len(children),
		"indexed":       indexed,
		"duration_ms":   result.Duration.Milliseconds(),
	})

	return result, nil
}

// ProcessFile parses a file into plain text and ingests it. The cleaned
// path becomes the source ID.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*ProcessResult, error) {
	if path == "" {
		return nil, errors.NewMissingFieldError("path")
	}

	doc, err := p.parsers.ParseFile(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	sourceID := filepath.Clean(path)

	fields := map[string]interface{}{"path": sourceID, "parser": doc.ParserType}
	if doc.Metadata != nil {
		fields["words"] = doc.Metadata.WordCount
	}
	p.logger.Debug("parsed file", fields)

	return p.ProcessText(ctx, sourceID, types.SourceTypeDocument, doc.Content)
}

// Search embeds the query and returns the closest chunks with their text
// resolved through the store. Child hits also carry the text of their
// containing parent chunk for display context.
func (p *Pipeline) Search(ctx context.Context, query string, limit int) ([]types.SearchHit, error) {
	return p.SearchSource(ctx, query, limit, "")
}

// SearchSource is Search narrowed to one source entity
func (p *Pipeline) SearchSource(ctx context.Context, query string, limit int, sourceID string) ([]types.SearchHit, error) {
	if !p.indexingOn() {
		return nil, errors.NewIndexError("search requires the index collaborator", nil)
	}
	if chunking.CountTokens(query) == 0 {
		return nil, errors.NewInvalidArgumentError("query cannot be empty")
	}

	vector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.NewEmbeddingUnavailableError("failed to embed query", err)
	}

	hits, err := p.index.Search(ctx, p.collection(), vector, limit, sourceID)
	if err != nil {
		return nil, err
	}

	resolved := p.resolveHits(hits)

	p.metrics.Counter("pipeline_searches_total", 1, nil)
	p.metrics.Histogram("pipeline_search_hits", float64(len(resolved)), nil)

	return resolved, nil
}

// DeleteSource removes a source everywhere it is known: the stored
// document and chunks, the index points, and the graph nodes
func (p *Pipeline) DeleteSource(ctx context.Context, sourceID string) error {
	if sourceID == "" {
		return errors.NewMissingFieldError("sourceID")
	}

	if err := p.store.DeleteDocument(sourceID); err != nil {
		return err
	}
	if p.indexingOn() {
		if err := p.index.DeleteBySource(ctx, p.collection(), sourceID); err != nil {
			return err
		}
	}
	if p.graphOn() {
		if err := p.graph.DeleteSource(ctx, sourceID); err != nil {
			return err
		}
	}

	p.metrics.Counter("pipeline_deletes_total", 1, nil)
	p.logger.Info("deleted source", map[string]interface{}{"source_id": sourceID})
	return nil
}

// HealthCheck verifies every enabled collaborator is reachable
func (p *Pipeline) HealthCheck(ctx context.Context) error {
	if err := p.store.HealthCheck(); err != nil {
		return err
	}
	if p.indexingOn() {
		if err := p.index.HealthCheck(ctx); err != nil {
			return err
		}
	}
	if p.graphOn() {
		if err := p.graph.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every collaborator the pipeline was built with
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error

	errs = append(errs, p.embedder.Close())
	errs = append(errs, p.store.Close())
	if p.index != nil {
		errs = append(errs, p.index.Close())
	}
	if p.graph != nil {
		errs = append(errs, p.graph.Close(ctx))
	}
	errs = append(errs, p.events.Close())

	return stderrors.Join(errs...)
}

// chunk runs one granularity pass over the document text
func (p *Pipeline) chunk(ctx context.Context, sourceID, sourceType, text string, g types.Granularity) ([]types.Chunk, error) {
	return p.engine.SegmentAndChunk(ctx, text, p.chunkingConfig(g, sourceID, sourceType))
}

// replaceStored swaps the persisted chunk sets. A parent-only run clears
// child rows left by an earlier two-granularity run before inserting.
func (p *Pipeline) replaceStored(sourceID string, parents, children []types.Chunk) error {
	if p.parentOnly {
		if err := p.store.ReplaceChunks(sourceID, nil); err != nil {
			return err
		}
	} else if err := p.store.ReplaceChunks(sourceID, children); err != nil {
		return err
	}
	return p.store.ReplaceChunks(sourceID, parents)
}

// indexChunks embeds the chunk texts in one batch call and upserts them
// as points carrying the token range payload. Chunk IDs change on every
// rechunk, so the source's stale points are deleted before the upsert.
func (p *Pipeline) indexChunks(ctx context.Context, sourceID, text string, chunks []types.Chunk) (int, error) {
	collection := p.collection()
	if err := p.index.EnsureCollection(ctx, collection, p.embedder.GetDimension()); err != nil {
		return 0, err
	}
	if err := p.index.DeleteBySource(ctx, collection, sourceID); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunking.ExtractChunkText(text, chunks[i])
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, errors.NewEmbeddingUnavailableError("failed to embed chunk texts", err)
	}
	if len(vectors) != len(chunks) {
		return 0, errors.NewEmbeddingUnavailableError(
			fmt.Sprintf("provider returned %d vectors for %d chunks", len(vectors), len(chunks)), nil)
	}

	points := make([]types.ChunkPoint, len(chunks))
	for i := range chunks {
		points[i] = types.ChunkPoint{Chunk: chunks[i], Vector: vectors[i], Text: texts[i]}
	}

	if err := p.index.UpsertChunks(ctx, collection, points); err != nil {
		return 0, err
	}
	return len(points), nil
}

// syncGraph mirrors the chunk chains and hierarchy into the graph store
func (p *Pipeline) syncGraph(ctx context.Context, sourceID string, parents, children []types.Chunk) error {
	if err := p.graph.SyncChunks(ctx, sourceID, parents); err != nil {
		return err
	}
	if p.parentOnly {
		return nil
	}
	if err := p.graph.SyncChunks(ctx, sourceID, children); err != nil {
		return err
	}
	return p.graph.LinkHierarchy(ctx, parents, children)
}

// publish emits a DocumentChunked notification for one granularity.
// Publishing is advisory: the chunks are already committed, so a failure
// is logged and counted rather than surfaced.
func (p *Pipeline) publish(ctx context.Context, sourceID, sourceType string, g types.Granularity, chunkCount, tokenCount int, elapsed time.Duration) {
	if !p.eventsOn() {
		return
	}

	event := &types.DocumentChunked{
		SourceID:    sourceID,
		SourceType:  sourceType,
		Granularity: g,
		ChunkCount:  chunkCount,
		TokenCount:  tokenCount,
		DurationMS:  elapsed.Milliseconds(),
		Timestamp:   time.Now().UTC(),
	}
	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish document-chunked event", err, map[string]interface{}{
			"source_id":   sourceID,
			"granularity": string(g),
		})
		p.metrics.Counter("pipeline_event_failures_total", 1, map[string]string{"source_type": sourceType})
		return
	}
	p.metrics.Counter("pipeline_events_total", 1, map[string]string{"source_type": sourceType})
}

// resolveHits fills hit text from the store. Hits whose source document
// has disappeared or shrunk since indexing are dropped rather than
// returned blank.
func (p *Pipeline) resolveHits(hits []types.SearchHit) []types.SearchHit {
	resolved := make([]types.SearchHit, 0, len(hits))
	for _, hit := range hits {
		if hit.Text == "" {
			text, err := p.store.ReconstructRange(hit.SourceID, hit.StartToken, hit.EndToken)
			if err != nil {
				p.logger.Warn("dropping unresolvable search hit", map[string]interface{}{
					"chunk_id":  hit.ChunkID,
					"source_id": hit.SourceID,
					"error":     err.Error(),
				})
				continue
			}
			hit.Text = text
		}

		if hit.Granularity == types.GranularityChild {
			hit.ParentText = p.parentText(&hit)
		}
		resolved = append(resolved, hit)
	}
	return resolved
}

// parentText returns the text of the parent chunk containing the hit, or
// an empty string when the hierarchy has none
func (p *Pipeline) parentText(hit *types.SearchHit) string {
	child := types.Chunk{
		ID:          hit.ChunkID,
		SourceID:    hit.SourceID,
		SourceType:  hit.SourceType,
		StartToken:  hit.StartToken,
		EndToken:    hit.EndToken,
		Granularity: hit.Granularity,
	}

	parent, err := p.store.ParentOf(&child)
	if err != nil {
		if !errors.IsNotFound(err) {
			p.logger.Warn("parent lookup failed", map[string]interface{}{
				"chunk_id": hit.ChunkID,
				"error":    err.Error(),
			})
		}
		return ""
	}

	text, err := p.store.ReconstructRange(parent.SourceID, parent.StartToken, parent.EndToken)
	if err != nil {
		return ""
	}
	return text
}

// chunkingConfig maps a configured granularity preset onto an engine run
// configuration stamped with source identity
func (p *Pipeline) chunkingConfig(g types.Granularity, sourceID, sourceType string) *chunking.Config {
	spec := p.config.Chunking.Parent
	if g == types.GranularityChild {
		spec = p.config.Chunking.Child
	}

	return &chunking.Config{
		TargetSize:          spec.TargetSize,
		MinSize:             spec.MinSize,
		MaxSize:             spec.MaxSize,
		SimilarityThreshold: p.config.Chunking.SimilarityThreshold,
		WindowSize:          p.config.Chunking.WindowSize,
		WindowOverlap:       p.config.Chunking.WindowOverlap,
		Granularity:         g,
		SourceID:            sourceID,
		SourceType:          sourceType,
	}
}

// collection resolves the index collection name
func (p *Pipeline) collection() string {
	if p.config.Index != nil && p.config.Index.Collection != "" {
		return p.config.Index.Collection
	}
	return defaultCollection
}

func (p *Pipeline) indexingOn() bool {
	return p.config.EnableIndexing && p.index != nil
}

func (p *Pipeline) graphOn() bool {
	return p.config.EnableGraph && p.graph != nil
}

func (p *Pipeline) eventsOn() bool {
	return p.config.EnableEvents
}

package pipeline

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleaveai/cleave/pkg/config"
	"github.com/cleaveai/cleave/pkg/embedders"
	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/events"
	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/logger"
	"github.com/cleaveai/cleave/pkg/metrics"
	"github.com/cleaveai/cleave/pkg/store"
	"github.com/cleaveai/cleave/pkg/types"
)

var solarWords = []string{
	"solar", "panel", "photovoltaic", "inverter", "sunlight", "energy",
	"grid", "voltage", "silicon", "renewable", "battery", "efficiency",
}

var jungleWords = []string{
	"gorilla", "rainforest", "canopy", "troop", "foliage", "primate",
	"habitat", "vines", "jungle", "silverback", "nesting", "undergrowth",
}

// topicText builds n period-terminated sentences of exactly ten tokens
// each, drawn from one topic vocabulary
func topicText(n int, vocabulary []string) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		words := make([]string, 0, 10)
		for j := 0; j < 10; j++ {
			words = append(words, vocabulary[(i*3+j)%len(vocabulary)])
		}
		parts = append(parts, strings.Join(words, " ")+".")
	}
	return strings.Join(parts, " ")
}

// fakeIndex is an in-memory stand-in for the vector index: brute-force
// dot-product search over stored points. Hits carry no text, which
// forces the pipeline down the store-reconstruction path.
type fakeIndex struct {
	mu          sync.Mutex
	collections map[string]int
	points      map[string]map[string]types.ChunkPoint
}

var _ interfaces.ChunkIndex = (*fakeIndex)(nil)

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		collections: map[string]int{},
		points:      map[string]map[string]types.ChunkPoint{},
	}
}

func (f *fakeIndex) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[name]; !ok {
		f.collections[name] = vectorSize
		f.points[name] = map[string]types.ChunkPoint{}
	}
	return nil
}

func (f *fakeIndex) UpsertChunks(ctx context.Context, collection string, points []types.ChunkPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.points[collection]
	if !ok {
		bucket = map[string]types.ChunkPoint{}
		f.points[collection] = bucket
	}
	for _, point := range points {
		bucket[point.Chunk.ID] = point
	}
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, collection string, vector types.EmbeddingVector, limit int, sourceID string) ([]types.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var hits []types.SearchHit
	for _, point := range f.points[collection] {
		if sourceID != "" && point.Chunk.SourceID != sourceID {
			continue
		}
		hits = append(hits, types.SearchHit{
			ChunkID:     point.Chunk.ID,
			SourceID:    point.Chunk.SourceID,
			SourceType:  point.Chunk.SourceType,
			Granularity: point.Chunk.Granularity,
			StartToken:  point.Chunk.StartToken,
			EndToken:    point.Chunk.EndToken,
			Score:       dot(vector, point.Vector),
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeIndex) DeleteBySource(ctx context.Context, collection string, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, point := range f.points[collection] {
		if point.Chunk.SourceID == sourceID {
			delete(f.points[collection], id)
		}
	}
	return nil
}

func (f *fakeIndex) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeIndex) Close() error                          { return nil }

func (f *fakeIndex) count(sourceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, bucket := range f.points {
		for _, point := range bucket {
			if sourceID == "" || point.Chunk.SourceID == sourceID {
				n++
			}
		}
	}
	return n
}

func dot(a, b types.EmbeddingVector) float32 {
	var sum float32
	for i := range a {
		if i >= len(b) {
			break
		}
		sum += a[i] * b[i]
	}
	return sum
}

// recordingGraph counts graph operations without a live server
type recordingGraph struct {
	mu        sync.Mutex
	syncCalls int
	linkCalls int
	parents   []types.Chunk
	children  []types.Chunk
	deleted   []string
}

var _ interfaces.GraphStore = (*recordingGraph)(nil)

func (g *recordingGraph) SyncChunks(ctx context.Context, sourceID string, chunks []types.Chunk) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.syncCalls++
	if len(chunks) > 0 {
		if chunks[0].Granularity == types.GranularityParent {
			g.parents = append([]types.Chunk{}, chunks...)
		} else {
			g.children = append([]types.Chunk{}, chunks...)
		}
	}
	return nil
}

func (g *recordingGraph) LinkHierarchy(ctx context.Context, parents, children []types.Chunk) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.linkCalls++
	return nil
}

func (g *recordingGraph) Neighbors(ctx context.Context, chunkID string) (string, string, error) {
	return "", "", nil
}

func (g *recordingGraph) DeleteSource(ctx context.Context, sourceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, sourceID)
	return nil
}

func (g *recordingGraph) HealthCheck(ctx context.Context) error { return nil }
func (g *recordingGraph) Close(ctx context.Context) error       { return nil }

type failingPublisher struct{}

var _ interfaces.EventPublisher = (*failingPublisher)(nil)

func (f *failingPublisher) Publish(ctx context.Context, event *types.DocumentChunked) error {
	return stderrors.New("broker unreachable")
}

func (f *failingPublisher) Close() error { return nil }

type fixture struct {
	pipeline *Pipeline
	embedder *embedders.MockEmbedder
	store    *store.Store
	index    *fakeIndex
	graph    *recordingGraph
	events   *events.MemoryPublisher
	metrics  *metrics.MemoryMetrics
	config   *config.CleaveConfig
}

// testPipeline wires a pipeline over the mock embedder, a temp sqlite
// store, and in-memory fakes for the index, graph, and event publisher
func testPipeline(t *testing.T, tweak func(cfg *config.CleaveConfig, opts *Options)) *fixture {
	t.Helper()

	cfg := config.NewCleaveConfig()
	cfg.EnableIndexing = true
	cfg.EnableGraph = true
	cfg.EnableEvents = true
	cfg.Store.Path = filepath.Join(t.TempDir(), "pipeline_test.db")

	mock := embedders.NewMockEmbedder(64)
	st, err := store.NewStore(cfg.Store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		embedder: mock,
		store:    st,
		index:    newFakeIndex(),
		graph:    &recordingGraph{},
		events:   events.NewMemoryPublisher(),
		metrics:  metrics.NewTestMetrics(),
		config:   cfg,
	}

	opts := Options{
		Config:   cfg,
		Embedder: mock,
		Store:    st,
		Index:    f.index,
		Graph:    f.graph,
		Events:   f.events,
		Logger:   logger.NewConsoleLogger("error"),
		Metrics:  f.metrics,
	}
	if tweak != nil {
		tweak(cfg, &opts)
	}

	p, err := New(opts)
	require.NoError(t, err)
	f.pipeline = p

	return f
}

func TestNew_Validation(t *testing.T) {
	t.Run("MissingEmbedder", func(t *testing.T) {
		_, err := New(Options{Store: &store.Store{}})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeMissingField, errors.GetCleaveError(err).Code)
	})

	t.Run("MissingStore", func(t *testing.T) {
		_, err := New(Options{Embedder: embedders.NewMockEmbedder(16)})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeMissingField, errors.GetCleaveError(err).Code)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		cfg := config.NewCleaveConfig()
		cfg.Chunking = nil

		_, err := New(Options{
			Config:   cfg,
			Embedder: embedders.NewMockEmbedder(16),
			Store:    &store.Store{},
		})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCleaveError(err).Code)
	})
}

func TestPipeline_ProcessText(t *testing.T) {
	f := testPipeline(t, nil)
	text := topicText(50, solarWords) + " " + topicText(50, jungleWords)

	result, err := f.pipeline.ProcessText(context.Background(), "doc-1", types.SourceTypeDocument, text)
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Equal(t, 1000, result.TokenCount)
	assert.Greater(t, result.ParentChunks, 1)
	assert.Greater(t, result.ChildChunks, result.ParentChunks)
	assert.Equal(t, result.ParentChunks+result.ChildChunks, result.Indexed)

	// Stored chunks at each granularity partition the token range exactly.
	for _, g := range []types.Granularity{types.GranularityParent, types.GranularityChild} {
		chunks, err := f.store.GetChunks("doc-1", g)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		list := types.ChunkList(chunks)
		assert.True(t, list.Contiguous(), "granularity %s has gaps or overlaps", g)
		assert.Equal(t, 0, chunks[0].StartToken)
		assert.Equal(t, 1000, chunks[len(chunks)-1].EndToken)
	}

	assert.Equal(t, result.Indexed, f.index.count("doc-1"))

	// One provider batch per engine pass plus one for chunk indexing.
	assert.Equal(t, 3, f.embedder.BatchCalls())
	assert.Equal(t, 0, f.embedder.EmbedCalls())

	assert.Equal(t, 2, f.graph.syncCalls)
	assert.Equal(t, 1, f.graph.linkCalls)
	assert.Len(t, f.graph.parents, result.ParentChunks)
	assert.Len(t, f.graph.children, result.ChildChunks)

	published := f.events.Events()
	require.Len(t, published, 2)
	assert.Equal(t, types.GranularityParent, published[0].Granularity)
	assert.Equal(t, result.ParentChunks, published[0].ChunkCount)
	assert.Equal(t, types.GranularityChild, published[1].Granularity)
	assert.Equal(t, result.ChildChunks, published[1].ChunkCount)
	assert.Equal(t, "doc-1", published[0].SourceID)
	assert.Equal(t, 1000, published[0].TokenCount)

	snap := f.metrics.Snapshot()
	assert.Equal(t, float64(1), snap.Counters["pipeline_documents_total{source_type=document}"])
	assert.Equal(t, float64(2), snap.Counters["pipeline_events_total{source_type=document}"])
}

func TestPipeline_ProcessTextUnchanged(t *testing.T) {
	f := testPipeline(t, nil)
	text := topicText(30, solarWords)

	first, err := f.pipeline.ProcessText(context.Background(), "doc-1", types.SourceTypeDocument, text)
	require.NoError(t, err)
	require.True(t, first.Changed)

	before, err := f.store.GetChunks("doc-1", types.GranularityParent)
	require.NoError(t, err)
	batchesBefore := f.embedder.BatchCalls()
	eventsBefore := len(f.events.Events())

	second, err := f.pipeline.ProcessText(context.Background(), "doc-1", types.SourceTypeDocument, text)
	require.NoError(t, err)

	assert.False(t, second.Changed)
	assert.Zero(t, second.ParentChunks)
	assert.Equal(t, first.TokenCount, second.TokenCount)

	// Nothing re-embedded, nothing republished, chunk identities stable.
	assert.Equal(t, batchesBefore, f.embedder.BatchCalls())
	assert.Equal(t, eventsBefore, len(f.events.Events()))

	after, err := f.store.GetChunks("doc-1", types.GranularityParent)
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
	}
}

func TestPipeline_ProcessTextRechunksChangedContent(t *testing.T) {
	f := testPipeline(t, nil)

	first, err := f.pipeline.ProcessText(context.Background(), "doc-1", types.SourceTypeDocument, topicText(40, solarWords))
	require.NoError(t, err)
	require.Positive(t, first.Indexed)

	second, err := f.pipeline.ProcessText(context.Background(), "doc-1", types.SourceTypeDocument, topicText(12, jungleWords))
	require.NoError(t, err)

	assert.True(t, second.Changed)
	assert.Equal(t, 120, second.TokenCount)

	// The index holds only the new version's points.
	assert.Equal(t, second.Indexed, f.index.count("doc-1"))

	chunks, err := f.store.GetChunks("doc-1", types.GranularityParent)
	require.NoError(t, err)
	assert.Equal(t, second.ParentChunks, len(chunks))
	assert.Equal(t, 120, chunks[len(chunks)-1].EndToken)
}

func TestPipeline_ProcessTextEmptied(t *testing.T) {
	f := testPipeline(t, nil)

	_, err := f.pipeline.ProcessText(context.Background(), "doc-1", types.SourceTypeDocument, topicText(20, solarWords))
	require.NoError(t, err)
	require.Positive(t, f.index.count("doc-1"))

	result, err := f.pipeline.ProcessText(context.Background(), "doc-1", types.SourceTypeDocument, "")
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Zero(t, result.TokenCount)
	assert.Zero(t, result.ParentChunks)
	assert.Zero(t, result.Indexed)

	// Chunks and index points are gone everywhere.
	assert.Zero(t, f.index.count("doc-1"))
	parents, err := f.store.GetChunks("doc-1", types.GranularityParent)
	require.NoError(t, err)
	assert.Empty(t, parents)
}

func TestPipeline_ProcessTextEmptySourceID(t *testing.T) {
	f := testPipeline(t, nil)

	_, err := f.pipeline.ProcessText(context.Background(), "", types.SourceTypeDocument, "some text")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMissingField, errors.GetCleaveError(err).Code)
}

func TestPipeline_ParentOnly(t *testing.T) {
	f := testPipeline(t, func(cfg *config.CleaveConfig, opts *Options) {
		opts.ParentOnly = true
	})

	result, err := f.pipeline.ProcessText(context.Background(), "doc-1", types.SourceTypeDocument, topicText(40, solarWords))
	require.NoError(t, err)

	assert.Positive(t, result.ParentChunks)
	assert.Zero(t, result.ChildChunks)
	assert.Equal(t, result.ParentChunks, result.Indexed)

	children, err := f.store.GetChunks("doc-1", types.GranularityChild)
	require.NoError(t, err)
	assert.Empty(t, children)

	assert.Equal(t, 1, f.graph.syncCalls)
	assert.Zero(t, f.graph.linkCalls)
	assert.Len(t, f.events.Events(), 1)

	// Two engine passes collapse to one; indexing still batches once.
	assert.Equal(t, 2, f.embedder.BatchCalls())
}

func TestPipeline_StagesDisabled(t *testing.T) {
	f := testPipeline(t, func(cfg *config.CleaveConfig, opts *Options) {
		cfg.EnableIndexing = false
		cfg.EnableGraph = false
		cfg.EnableEvents = false
	})

	result, err := f.pipeline.ProcessText(context.Background(), "doc-1", types.SourceTypeDocument, topicText(30, solarWords))
	require.NoError(t, err)

	assert.Positive(t, result.ParentChunks)
	assert.Zero(t, result.Indexed)
	assert.Zero(t, f.index.count(""))
	assert.Zero(t, f.graph.syncCalls)
	assert.Empty(t, f.events.Events())

	// Only the two engine passes touched the provider.
	assert.Equal(t, 2, f.embedder.BatchCalls())
}

func TestPipeline_EventFailureIsAdvisory(t *testing.T) {
	f := testPipeline(t, func(cfg *config.CleaveConfig, opts *Options) {
		opts.Events = &failingPublisher{}
	})

	result, err := f.pipeline.ProcessText(context.Background(), "doc-1", types.SourceTypeDocument, topicText(20, solarWords))
	require.NoError(t, err)
	assert.Positive(t, result.ParentChunks)

	snap := f.metrics.Snapshot()
	assert.Equal(t, float64(2), snap.Counters["pipeline_event_failures_total{source_type=document}"])
}

func TestPipeline_ProcessFile(t *testing.T) {
	f := testPipeline(t, nil)

	path := filepath.Join(t.TempDir(), "guide.md")
	content := "# Solar Guide\n\n" + topicText(30, solarWords) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	result, err := f.pipeline.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean(path), result.SourceID)
	assert.Equal(t, types.SourceTypeDocument, result.SourceType)
	assert.True(t, result.Changed)
	assert.Positive(t, result.ParentChunks)

	// The heading text survives parsing, the markup does not.
	text, err := f.store.ReconstructRange(result.SourceID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, "Solar Guide", text)
}

func TestPipeline_ProcessFileMissing(t *testing.T) {
	f := testPipeline(t, nil)

	_, err := f.pipeline.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestPipeline_Search(t *testing.T) {
	f := testPipeline(t, nil)
	ctx := context.Background()

	_, err := f.pipeline.ProcessText(ctx, "doc-solar", types.SourceTypeDocument, topicText(50, solarWords))
	require.NoError(t, err)
	_, err = f.pipeline.ProcessText(ctx, "doc-jungle", types.SourceTypeDocument, topicText(50, jungleWords))
	require.NoError(t, err)

	hits, err := f.pipeline.Search(ctx, "solar photovoltaic renewable energy grid", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, "doc-solar", hits[0].SourceID)
	for _, hit := range hits {
		assert.NotEmpty(t, hit.Text, "hit %s has no text", hit.ChunkID)
	}

	// Scores come back descending.
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestPipeline_SearchSource(t *testing.T) {
	f := testPipeline(t, nil)
	ctx := context.Background()

	_, err := f.pipeline.ProcessText(ctx, "doc-solar", types.SourceTypeDocument, topicText(50, solarWords))
	require.NoError(t, err)
	_, err = f.pipeline.ProcessText(ctx, "doc-jungle", types.SourceTypeDocument, topicText(50, jungleWords))
	require.NoError(t, err)

	hits, err := f.pipeline.SearchSource(ctx, "solar photovoltaic renewable energy grid", 10, "doc-jungle")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, hit := range hits {
		assert.Equal(t, "doc-jungle", hit.SourceID)
	}
}

func TestPipeline_SearchChildParentContext(t *testing.T) {
	f := testPipeline(t, nil)
	ctx := context.Background()

	// 90 tokens stay below the parent MinSize, so exactly one parent chunk
	// covers the document and every child chunk nests inside it.
	text := topicText(9, solarWords)
	result, err := f.pipeline.ProcessText(ctx, "doc-1", types.SourceTypeDocument, text)
	require.NoError(t, err)
	require.Equal(t, 1, result.ParentChunks)
	require.Greater(t, result.ChildChunks, 1)

	hits, err := f.pipeline.Search(ctx, "solar panel photovoltaic inverter", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	childHits := 0
	for _, hit := range hits {
		if hit.Granularity != types.GranularityChild {
			continue
		}
		childHits++
		require.NotEmpty(t, hit.ParentText)
		assert.Contains(t, hit.ParentText, hit.Text)
	}
	assert.Positive(t, childHits)
}

func TestPipeline_SearchValidation(t *testing.T) {
	t.Run("EmptyQuery", func(t *testing.T) {
		f := testPipeline(t, nil)

		_, err := f.pipeline.Search(context.Background(), "   ", 5)
		require.Error(t, err)
		assert.True(t, errors.IsInvalidArgument(err))
	})

	t.Run("IndexingDisabled", func(t *testing.T) {
		f := testPipeline(t, func(cfg *config.CleaveConfig, opts *Options) {
			cfg.EnableIndexing = false
		})

		_, err := f.pipeline.Search(context.Background(), "anything", 5)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeIndexError, errors.GetCleaveError(err).Code)
	})
}

func TestPipeline_DeleteSource(t *testing.T) {
	f := testPipeline(t, nil)
	ctx := context.Background()

	_, err := f.pipeline.ProcessText(ctx, "doc-1", types.SourceTypeDocument, topicText(20, solarWords))
	require.NoError(t, err)
	require.Positive(t, f.index.count("doc-1"))

	require.NoError(t, f.pipeline.DeleteSource(ctx, "doc-1"))

	_, err = f.store.GetDocument("doc-1")
	assert.True(t, errors.IsNotFound(err))
	assert.Zero(t, f.index.count("doc-1"))
	assert.Equal(t, []string{"doc-1"}, f.graph.deleted)

	// Deleting again reports the missing document.
	err = f.pipeline.DeleteSource(ctx, "doc-1")
	assert.True(t, errors.IsNotFound(err))
}

func TestPipeline_HealthCheck(t *testing.T) {
	f := testPipeline(t, nil)
	assert.NoError(t, f.pipeline.HealthCheck(context.Background()))
}

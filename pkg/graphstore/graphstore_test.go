package graphstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleaveai/cleave/pkg/config"
	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/types"
)

func TestGraphConfigValidation(t *testing.T) {
	t.Run("DefaultsNeedPassword", func(t *testing.T) {
		cfg := config.NewGraphConfig()
		assert.Error(t, cfg.Validate())

		cfg.Password = "secret"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("InvalidConfigs", func(t *testing.T) {
		invalid := []*config.GraphConfig{
			{},
			{Backend: types.BackendNeo4j},
			{Backend: types.BackendNeo4j, URI: "bolt://localhost:7687"},
			{Backend: types.BackendNeo4j, URI: "bolt://localhost:7687", Username: "neo4j"},
			{Backend: "dgraph", URI: "bolt://localhost:7687", Username: "neo4j", Password: "pass"},
		}
		for _, cfg := range invalid {
			assert.Error(t, cfg.Validate())
		}
	})
}

func TestValidateChunkSet(t *testing.T) {
	t.Run("EmptyMeansAll", func(t *testing.T) {
		granularity, err := validateChunkSet("doc-1", nil)
		require.NoError(t, err)
		assert.Empty(t, granularity)
	})

	t.Run("UniformSet", func(t *testing.T) {
		chunks := []types.Chunk{
			graphChunk("doc-1", 0, 10, types.GranularityChild),
			graphChunk("doc-1", 10, 20, types.GranularityChild),
		}
		granularity, err := validateChunkSet("doc-1", chunks)
		require.NoError(t, err)
		assert.Equal(t, "child", granularity)
	})

	t.Run("MixedGranularity", func(t *testing.T) {
		chunks := []types.Chunk{
			graphChunk("doc-1", 0, 10, types.GranularityParent),
			graphChunk("doc-1", 10, 20, types.GranularityChild),
		}
		_, err := validateChunkSet("doc-1", chunks)
		require.Error(t, err)
		assert.True(t, errors.IsInvalidArgument(err))
	})

	t.Run("ForeignSource", func(t *testing.T) {
		chunks := []types.Chunk{graphChunk("doc-2", 0, 10, types.GranularityChild)}
		_, err := validateChunkSet("doc-1", chunks)
		require.Error(t, err)
		assert.True(t, errors.IsInvalidArgument(err))
	})
}

func TestChunkPropsList(t *testing.T) {
	chunks := []types.Chunk{
		graphChunk("doc-1", 0, 10, types.GranularityChild),
		graphChunk("doc-1", 10, 25, types.GranularityChild),
	}

	props := chunkPropsList(chunks)
	require.Len(t, props, 2)

	assert.Equal(t, chunks[0].ID, props[0]["id"])
	assert.Equal(t, "doc-1", props[0]["source_id"])
	assert.Equal(t, "child", props[0]["granularity"])
	assert.Equal(t, 0, props[0]["start_token"])
	assert.Equal(t, 10, props[0]["end_token"])
	assert.Equal(t, 0, props[0]["position"])

	assert.Equal(t, 10, props[1]["start_token"])
	assert.Equal(t, 25, props[1]["end_token"])
	assert.Equal(t, 1, props[1]["position"])
}

func TestNextPairs(t *testing.T) {
	t.Run("ChainsConsecutiveChunks", func(t *testing.T) {
		chunks := []types.Chunk{
			graphChunk("doc-1", 0, 10, types.GranularityChild),
			graphChunk("doc-1", 10, 20, types.GranularityChild),
			graphChunk("doc-1", 20, 30, types.GranularityChild),
		}

		pairs := nextPairs(chunks)
		require.Len(t, pairs, 2)
		assert.Equal(t, chunks[0].ID, pairs[0]["from"])
		assert.Equal(t, chunks[1].ID, pairs[0]["to"])
		assert.Equal(t, chunks[1].ID, pairs[1]["from"])
		assert.Equal(t, chunks[2].ID, pairs[1]["to"])
	})

	t.Run("SingleChunkHasNoEdges", func(t *testing.T) {
		chunks := []types.Chunk{graphChunk("doc-1", 0, 10, types.GranularityChild)}
		assert.Nil(t, nextPairs(chunks))
	})

	t.Run("EmptyHasNoEdges", func(t *testing.T) {
		assert.Nil(t, nextPairs(nil))
	})
}

func TestHierarchyPairs(t *testing.T) {
	parents := []types.Chunk{
		graphChunk("doc-1", 0, 50, types.GranularityParent),
		graphChunk("doc-1", 50, 100, types.GranularityParent),
	}

	t.Run("MapsChildrenToContainingParent", func(t *testing.T) {
		children := []types.Chunk{
			graphChunk("doc-1", 0, 25, types.GranularityChild),
			graphChunk("doc-1", 25, 50, types.GranularityChild),
			graphChunk("doc-1", 50, 80, types.GranularityChild),
		}

		pairs, err := hierarchyPairs(parents, children)
		require.NoError(t, err)
		require.Len(t, pairs, 3)

		assert.Equal(t, parents[0].ID, pairs[0]["parent"])
		assert.Equal(t, children[0].ID, pairs[0]["child"])
		assert.Equal(t, parents[0].ID, pairs[1]["parent"])
		assert.Equal(t, parents[1].ID, pairs[2]["parent"])
	})

	t.Run("UncontainedChildGetsNoEdge", func(t *testing.T) {
		// Child straddling the parent boundary
		children := []types.Chunk{graphChunk("doc-1", 40, 60, types.GranularityChild)}

		pairs, err := hierarchyPairs(parents, children)
		require.NoError(t, err)
		assert.Empty(t, pairs)
	})

	t.Run("ChildOfAnotherSourceGetsNoEdge", func(t *testing.T) {
		children := []types.Chunk{graphChunk("doc-2", 0, 25, types.GranularityChild)}

		pairs, err := hierarchyPairs(parents, children)
		require.NoError(t, err)
		assert.Empty(t, pairs)
	})

	t.Run("GranularityMismatchRejected", func(t *testing.T) {
		_, err := hierarchyPairs(parents, parents)
		require.Error(t, err)
		assert.True(t, errors.IsInvalidArgument(err))

		children := []types.Chunk{graphChunk("doc-1", 0, 25, types.GranularityChild)}
		_, err = hierarchyPairs(children, children)
		require.Error(t, err)
		assert.True(t, errors.IsInvalidArgument(err))
	})
}

func TestNewNeo4jGraphRejectsInvalidConfig(t *testing.T) {
	cfg := config.NewGraphConfig()
	// Password left empty

	_, err := NewNeo4jGraph(context.Background(), cfg)
	require.Error(t, err)
	cleaveErr := errors.GetCleaveError(err)
	require.NotNil(t, cleaveErr)
	assert.Equal(t, errors.ErrCodeConfigInvalid, cleaveErr.Code)
}

func graphChunk(sourceID string, start, end int, granularity types.Granularity) types.Chunk {
	return types.Chunk{
		ID:          uuid.New().String(),
		SourceID:    sourceID,
		SourceType:  types.SourceTypeDocument,
		StartToken:  start,
		EndToken:    end,
		Granularity: granularity,
	}
}

package types

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGranularity(t *testing.T) {
	t.Run("Granularity Constants", func(t *testing.T) {
		assert.Equal(t, Granularity("parent"), GranularityParent)
		assert.Equal(t, Granularity("child"), GranularityChild)
	})

	t.Run("Granularity Validation", func(t *testing.T) {
		assert.True(t, GranularityParent.IsValid())
		assert.True(t, GranularityChild.IsValid())
		assert.False(t, Granularity("verse").IsValid())
		assert.False(t, Granularity("").IsValid())
		assert.False(t, Granularity("Parent").IsValid())
	})
}

func TestSourceTypes(t *testing.T) {
	t.Run("SourceType Constants", func(t *testing.T) {
		assert.Equal(t, "document", SourceTypeDocument)
		assert.Equal(t, "transcript", SourceTypeTranscript)
		assert.Equal(t, "note", SourceTypeNote)
	})
}

func TestBackendType(t *testing.T) {
	t.Run("BackendType Constants", func(t *testing.T) {
		assert.Equal(t, BackendType("openai"), BackendOpenAI)
		assert.Equal(t, BackendType("ollama"), BackendOllama)
		assert.Equal(t, BackendType("mock"), BackendMock)
		assert.Equal(t, BackendType("memory"), BackendMemory)
		assert.Equal(t, BackendType("redis"), BackendRedis)
		assert.Equal(t, BackendType("qdrant"), BackendQdrant)
		assert.Equal(t, BackendType("neo4j"), BackendNeo4j)
		assert.Equal(t, BackendType("nats"), BackendNATS)
		assert.Equal(t, BackendType("noop"), BackendNoop)
	})
}

func TestChunk(t *testing.T) {
	t.Run("Chunk Creation", func(t *testing.T) {
		now := time.Now()
		chunk := Chunk{
			ID:          "chunk-1",
			SourceID:    "doc-1",
			SourceType:  SourceTypeDocument,
			StartToken:  0,
			EndToken:    200,
			Granularity: GranularityParent,
			CreatedAt:   now,
		}

		assert.Equal(t, "chunk-1", chunk.ID)
		assert.Equal(t, "doc-1", chunk.SourceID)
		assert.Equal(t, SourceTypeDocument, chunk.SourceType)
		assert.Equal(t, GranularityParent, chunk.Granularity)
		assert.Equal(t, now, chunk.CreatedAt)
	})

	t.Run("Chunk TokenCount", func(t *testing.T) {
		chunk := Chunk{StartToken: 150, EndToken: 350}
		assert.Equal(t, 200, chunk.TokenCount())

		single := Chunk{StartToken: 7, EndToken: 8}
		assert.Equal(t, 1, single.TokenCount())
	})

	t.Run("Chunk JSON Serialization", func(t *testing.T) {
		chunk := Chunk{
			ID:          "chunk-2",
			SourceID:    "doc-1",
			SourceType:  SourceTypeTranscript,
			StartToken:  500,
			EndToken:    700,
			Granularity: GranularityChild,
			CreatedAt:   time.Now().UTC(),
		}

		data, err := json.Marshal(chunk)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"start_token":500`)
		assert.Contains(t, string(data), `"end_token":700`)

		var decoded Chunk
		err = json.Unmarshal(data, &decoded)
		require.NoError(t, err)

		assert.Equal(t, chunk.ID, decoded.ID)
		assert.Equal(t, chunk.StartToken, decoded.StartToken)
		assert.Equal(t, chunk.EndToken, decoded.EndToken)
		assert.Equal(t, chunk.Granularity, decoded.Granularity)
	})
}

func TestChunkValidate(t *testing.T) {
	valid := Chunk{
		ID:          "chunk-1",
		SourceID:    "doc-1",
		StartToken:  0,
		EndToken:    10,
		Granularity: GranularityParent,
	}

	t.Run("Valid Chunk", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("Empty ID", func(t *testing.T) {
		chunk := valid
		chunk.ID = ""
		assert.Error(t, chunk.Validate())
	})

	t.Run("Negative Start", func(t *testing.T) {
		chunk := valid
		chunk.StartToken = -1
		assert.Error(t, chunk.Validate())
	})

	t.Run("Empty Range", func(t *testing.T) {
		chunk := valid
		chunk.EndToken = chunk.StartToken
		assert.Error(t, chunk.Validate())
	})

	t.Run("Inverted Range", func(t *testing.T) {
		chunk := valid
		chunk.StartToken = 10
		chunk.EndToken = 5
		assert.Error(t, chunk.Validate())
	})

	t.Run("Unknown Granularity", func(t *testing.T) {
		chunk := valid
		chunk.Granularity = Granularity("verse")
		assert.Error(t, chunk.Validate())
	})
}

func TestChunkList(t *testing.T) {
	t.Run("TotalTokens", func(t *testing.T) {
		chunks := ChunkList{
			{StartToken: 0, EndToken: 200},
			{StartToken: 200, EndToken: 350},
			{StartToken: 350, EndToken: 450},
		}
		assert.Equal(t, 450, chunks.TotalTokens())
	})

	t.Run("TotalTokens Empty", func(t *testing.T) {
		assert.Equal(t, 0, ChunkList{}.TotalTokens())
	})

	t.Run("Contiguous Sequence", func(t *testing.T) {
		chunks := ChunkList{
			{StartToken: 0, EndToken: 200},
			{StartToken: 200, EndToken: 400},
			{StartToken: 400, EndToken: 500},
		}
		assert.True(t, chunks.Contiguous())
	})

	t.Run("Gap Breaks Contiguity", func(t *testing.T) {
		chunks := ChunkList{
			{StartToken: 0, EndToken: 200},
			{StartToken: 250, EndToken: 400},
		}
		assert.False(t, chunks.Contiguous())
	})

	t.Run("Overlap Breaks Contiguity", func(t *testing.T) {
		chunks := ChunkList{
			{StartToken: 0, EndToken: 200},
			{StartToken: 150, EndToken: 400},
		}
		assert.False(t, chunks.Contiguous())
	})

	t.Run("Empty And Single Are Contiguous", func(t *testing.T) {
		assert.True(t, ChunkList{}.Contiguous())
		assert.True(t, ChunkList{{StartToken: 5, EndToken: 10}}.Contiguous())
	})
}

func TestEmbeddingVector(t *testing.T) {
	t.Run("EmbeddingVector Creation", func(t *testing.T) {
		vec := EmbeddingVector{0.1, 0.2, 0.3}
		assert.Len(t, vec, 3)
		assert.Equal(t, float32(0.2), vec[1])
	})
}

func TestChunkPoint(t *testing.T) {
	t.Run("ChunkPoint Creation", func(t *testing.T) {
		point := ChunkPoint{
			Chunk: Chunk{
				ID:          "chunk-1",
				SourceID:    "doc-1",
				StartToken:  0,
				EndToken:    25,
				Granularity: GranularityChild,
			},
			Vector: EmbeddingVector{0.5, 0.5},
			Text:   "the reconstructed chunk text",
		}

		assert.Equal(t, "chunk-1", point.Chunk.ID)
		assert.Len(t, point.Vector, 2)
		assert.Equal(t, "the reconstructed chunk text", point.Text)
	})
}

func TestSearchHit(t *testing.T) {
	t.Run("SearchHit Creation", func(t *testing.T) {
		hit := SearchHit{
			ChunkID:     "chunk-1",
			SourceID:    "doc-1",
			SourceType:  SourceTypeDocument,
			Granularity: GranularityChild,
			StartToken:  100,
			EndToken:    125,
			Score:       0.93,
			Text:        "matched text",
			ParentText:  "surrounding parent text",
		}

		assert.Equal(t, "chunk-1", hit.ChunkID)
		assert.Equal(t, float32(0.93), hit.Score)
		assert.Equal(t, "surrounding parent text", hit.ParentText)
	})

	t.Run("SearchHit Omits Empty Text", func(t *testing.T) {
		hit := SearchHit{
			ChunkID:     "chunk-1",
			SourceID:    "doc-1",
			Granularity: GranularityParent,
			StartToken:  0,
			EndToken:    200,
			Score:       0.5,
		}

		data, err := json.Marshal(hit)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "\"text\"")
		assert.NotContains(t, string(data), "parent_text")
	})
}

func TestDocumentChunked(t *testing.T) {
	t.Run("DocumentChunked Creation", func(t *testing.T) {
		now := time.Now().UTC()
		event := DocumentChunked{
			SourceID:    "doc-1",
			SourceType:  SourceTypeTranscript,
			Granularity: GranularityParent,
			ChunkCount:  6,
			TokenCount:  1000,
			DurationMS:  42,
			Timestamp:   now,
		}

		assert.Equal(t, "doc-1", event.SourceID)
		assert.Equal(t, 6, event.ChunkCount)
		assert.Equal(t, 1000, event.TokenCount)
		assert.Equal(t, now, event.Timestamp)
	})

	t.Run("DocumentChunked JSON Serialization", func(t *testing.T) {
		event := DocumentChunked{
			SourceID:    "doc-1",
			SourceType:  SourceTypeDocument,
			Granularity: GranularityChild,
			ChunkCount:  40,
			TokenCount:  1000,
			DurationMS:  7,
			Timestamp:   time.Now().UTC(),
		}

		data, err := json.Marshal(event)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"chunk_count":40`)
		assert.Contains(t, string(data), `"duration_ms":7`)

		var decoded DocumentChunked
		err = json.Unmarshal(data, &decoded)
		require.NoError(t, err)

		assert.Equal(t, event.SourceID, decoded.SourceID)
		assert.Equal(t, event.Granularity, decoded.Granularity)
		assert.Equal(t, event.ChunkCount, decoded.ChunkCount)
		assert.True(t, event.Timestamp.Equal(decoded.Timestamp))
	})
}

func BenchmarkChunkListContiguous(b *testing.B) {
	chunks := make(ChunkList, 0, 500)
	for i := 0; i < 500; i++ {
		chunks = append(chunks, Chunk{StartToken: i * 200, EndToken: (i + 1) * 200})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !chunks.Contiguous() {
			b.Fatal("expected contiguous chunks")
		}
	}
}

func TestChunkLifecycle(t *testing.T) {
	t.Run("Chunks Partition A Source", func(t *testing.T) {
		created := time.Now().UTC()
		ranges := [][2]int{{0, 200}, {200, 400}, {400, 500}}

		chunks := make(ChunkList, 0, len(ranges))
		for i, r := range ranges {
			chunk := Chunk{
				ID:          fmt.Sprintf("chunk-%d", i),
				SourceID:    "doc-1",
				SourceType:  SourceTypeDocument,
				StartToken:  r[0],
				EndToken:    r[1],
				Granularity: GranularityParent,
				CreatedAt:   created,
			}
			require.NoError(t, chunk.Validate())
			chunks = append(chunks, chunk)
		}

		assert.True(t, chunks.Contiguous())
		assert.Equal(t, 500, chunks.TotalTokens())
		assert.Equal(t, 0, chunks[0].StartToken)
		assert.Equal(t, 500, chunks[len(chunks)-1].EndToken)
	})
}

package chunking

import (
	"github.com/cleaveai/cleave/pkg/types"
)

// ChunkingStats summarizes the shape of a chunking result
type ChunkingStats struct {
	TotalChunks      int     `json:"total_chunks"`
	TotalTokens      int     `json:"total_tokens"`
	MinChunkSize     int     `json:"min_chunk_size"`
	MaxChunkSize     int     `json:"max_chunk_size"`
	AverageChunkSize float64 `json:"average_chunk_size"`
	Contiguous       bool    `json:"contiguous"`
}

// CalculateStats computes summary statistics for a chunk sequence
func CalculateStats(chunks []types.Chunk) *ChunkingStats {
	stats := &ChunkingStats{
		TotalChunks: len(chunks),
		Contiguous:  types.ChunkList(chunks).Contiguous(),
	}
	if len(chunks) == 0 {
		return stats
	}

	stats.MinChunkSize = chunks[0].TokenCount()
	for i := range chunks {
		size := chunks[i].TokenCount()
		stats.TotalTokens += size
		if size < stats.MinChunkSize {
			stats.MinChunkSize = size
		}
		if size > stats.MaxChunkSize {
			stats.MaxChunkSize = size
		}
	}
	stats.AverageChunkSize = float64(stats.TotalTokens) / float64(stats.TotalChunks)

	return stats
}

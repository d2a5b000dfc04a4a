package chunking

import (
	"fmt"
	"math"

	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/types"
)

// SimilarityEdge records the cosine similarity between two adjacent
// segments, identified by their indices
type SimilarityEdge struct {
	A     int     `json:"a"`
	B     int     `json:"b"`
	Score float64 `json:"score"`
}

// BoundaryDetector flags topic boundaries between adjacent segments whose
// embedding similarity drops below a threshold fixed at construction
type BoundaryDetector struct {
	threshold float64
}

// NewBoundaryDetector creates a detector with the given similarity
// threshold
func NewBoundaryDetector(threshold float64) *BoundaryDetector {
	return &BoundaryDetector{threshold: threshold}
}

// Threshold returns the detector's similarity threshold
func (d *BoundaryDetector) Threshold() float64 {
	return d.threshold
}

// DetectBoundaries returns the segment indices that open a new topic: a
// boundary at index i+1 means segments i and i+1 read as different topics.
// Similarity exactly at the threshold is not a boundary. Zero or one
// segment yields an empty set.
func (d *BoundaryDetector) DetectBoundaries(segments []Segment, embeddings []types.EmbeddingVector) (map[int]bool, error) {
	if len(embeddings) != len(segments) {
		return nil, errors.NewInvalidArgumentError(
			fmt.Sprintf("embedding count %d does not match segment count %d", len(embeddings), len(segments)))
	}

	boundaries := make(map[int]bool)
	if len(segments) < 2 {
		return boundaries, nil
	}

	edges, err := AdjacentScores(embeddings)
	if err != nil {
		return nil, err
	}

	for _, edge := range edges {
		if edge.Score < d.threshold {
			boundaries[edge.B] = true
		}
	}

	return boundaries, nil
}

// AdjacentScores computes the cosine similarity of every adjacent embedding
// pair
func AdjacentScores(embeddings []types.EmbeddingVector) ([]SimilarityEdge, error) {
	edges := make([]SimilarityEdge, 0, max(len(embeddings)-1, 0))

	for i := 0; i+1 < len(embeddings); i++ {
		score, err := CosineSimilarity(embeddings[i], embeddings[i+1])
		if err != nil {
			return nil, errors.WrapError(err, types.ErrorTypeValidation, errors.ErrCodeInvalidArgument,
				fmt.Sprintf("failed to score pair (%d, %d)", i, i+1))
		}
		edges = append(edges, SimilarityEdge{A: i, B: i + 1, Score: score})
	}

	return edges, nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// A zero vector has similarity 0 with everything.
func CosineSimilarity(a, b types.EmbeddingVector) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.NewInvalidArgumentError(
			fmt.Sprintf("vectors must have the same dimension: %d vs %d", len(a), len(b)))
	}
	if len(a) == 0 {
		return 0, errors.NewInvalidArgumentError("vectors cannot be empty")
	}

	var dotProduct, normA, normB float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

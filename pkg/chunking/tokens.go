// Package chunking splits natural-language text into non-overlapping,
// size-bounded chunks suitable for embedding-based retrieval. Chunks are
// token ranges over the whitespace-normalized input; the text itself is
// reconstructed by collaborators from those ranges.
package chunking

import (
	"strings"

	"github.com/cleaveai/cleave/pkg/types"
)

// Tokens splits text into whitespace-delimited tokens. A token is a word;
// token positions index the whitespace-normalized text.
func Tokens(text string) []string {
	return strings.Fields(text)
}

// CountTokens returns the number of whitespace-delimited tokens in text
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// NormalizeWhitespace collapses all whitespace runs to single spaces and
// trims the ends. Reconstructing any token range with a single-space join
// yields a substring of the normalized text.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ExtractChunkText returns the text a chunk's token range covers in the
// given source text. Out-of-range positions are clamped; an empty range
// yields an empty string.
func ExtractChunkText(text string, chunk types.Chunk) string {
	tokens := strings.Fields(text)

	start := chunk.StartToken
	end := chunk.EndToken
	if start < 0 {
		start = 0
	}
	if end > len(tokens) {
		end = len(tokens)
	}
	if start >= end {
		return ""
	}

	return strings.Join(tokens[start:end], " ")
}

package chunking

import (
	"strings"
	"testing"
	"time"

	"github.com/cleaveai/cleave/pkg/types"
)

func TestTokens(t *testing.T) {
	// Test plain whitespace splitting
	tokens := Tokens("the quick brown fox")
	if len(tokens) != 4 {
		t.Errorf("Expected 4 tokens, got %d", len(tokens))
	}

	// Test mixed whitespace collapses
	tokens = Tokens("  the\tquick\n\nbrown   fox  ")
	if len(tokens) != 4 {
		t.Errorf("Expected 4 tokens for mixed whitespace, got %d", len(tokens))
	}
	if tokens[0] != "the" || tokens[3] != "fox" {
		t.Errorf("Expected tokens to keep their text, got %v", tokens)
	}

	// Test punctuation stays attached to its word
	tokens = Tokens("Hello, world. Goodbye!")
	if len(tokens) != 3 {
		t.Errorf("Expected 3 tokens, got %d", len(tokens))
	}
	if tokens[1] != "world." {
		t.Errorf("Expected punctuation attached to token, got %q", tokens[1])
	}

	// Test empty and whitespace-only input
	if len(Tokens("")) != 0 {
		t.Error("Expected no tokens for empty input")
	}
	if len(Tokens(" \t\n ")) != 0 {
		t.Error("Expected no tokens for whitespace-only input")
	}
}

func TestCountTokens(t *testing.T) {
	if count := CountTokens("one two three"); count != 3 {
		t.Errorf("Expected 3 tokens, got %d", count)
	}
	if count := CountTokens(""); count != 0 {
		t.Errorf("Expected 0 tokens for empty input, got %d", count)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	normalized := NormalizeWhitespace("  the\tquick\n\nbrown   fox  ")
	if normalized != "the quick brown fox" {
		t.Errorf("Expected single-space text, got %q", normalized)
	}

	if NormalizeWhitespace("") != "" {
		t.Error("Expected empty output for empty input")
	}
}

func TestExtractChunkText(t *testing.T) {
	text := "alpha beta gamma delta epsilon"
	chunk := types.Chunk{
		ID:         "c1",
		StartToken: 1,
		EndToken:   3,
		CreatedAt:  time.Now(),
	}

	if got := ExtractChunkText(text, chunk); got != "beta gamma" {
		t.Errorf("Expected %q, got %q", "beta gamma", got)
	}

	// Test full range reconstructs the normalized text
	chunk.StartToken = 0
	chunk.EndToken = 5
	if got := ExtractChunkText(text, chunk); got != text {
		t.Errorf("Expected full text back, got %q", got)
	}

	// Test out-of-range coordinates clamp instead of panicking
	chunk.StartToken = -2
	chunk.EndToken = 50
	if got := ExtractChunkText(text, chunk); got != text {
		t.Errorf("Expected clamped full text, got %q", got)
	}

	// Test inverted range yields nothing
	chunk.StartToken = 4
	chunk.EndToken = 2
	if got := ExtractChunkText(text, chunk); got != "" {
		t.Errorf("Expected empty text for inverted range, got %q", got)
	}
}

func TestExtractChunkTextRoundTrip(t *testing.T) {
	// Joining adjacent chunk texts must reproduce the normalized source
	text := NormalizeWhitespace(strings.Repeat("alpha beta gamma delta ", 25))
	chunks := []types.Chunk{
		{StartToken: 0, EndToken: 40},
		{StartToken: 40, EndToken: 75},
		{StartToken: 75, EndToken: 100},
	}

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, ExtractChunkText(text, c))
	}

	if joined := strings.Join(parts, " "); joined != text {
		t.Error("Expected joined chunk texts to equal the normalized source")
	}
}

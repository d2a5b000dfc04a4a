package chunking

import (
	"testing"

	"github.com/cleaveai/cleave/pkg/errors"
)

func TestNormalizeSequentialStarts(t *testing.T) {
	n := NewNormalizer(DefaultConfig())

	// Overlapping assembler output: the second span keeps its end but is
	// reassigned to start where the first one ended
	spans, err := n.Normalize([]Span{{0, 150}, {100, 200}}, 200)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []Span{{0, 150}, {150, 200}}
	if len(spans) != len(want) {
		t.Fatalf("Expected %d spans, got %v", len(want), spans)
	}
	for i, w := range want {
		if spans[i] != w {
			t.Errorf("Span %d: expected [%d, %d), got [%d, %d)", i, w.StartToken, w.EndToken, spans[i].StartToken, spans[i].EndToken)
		}
	}
}

func TestNormalizeDropsCoveredSpans(t *testing.T) {
	n := NewNormalizer(DefaultConfig())

	// The middle span ends inside the first one and contributes nothing
	spans, err := n.Normalize([]Span{{0, 100}, {40, 80}, {80, 180}}, 180)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []Span{{0, 100}, {100, 180}}
	if len(spans) != len(want) {
		t.Fatalf("Expected %d spans, got %v", len(want), spans)
	}
	for i, w := range want {
		if spans[i] != w {
			t.Errorf("Span %d: expected [%d, %d), got [%d, %d)", i, w.StartToken, w.EndToken, spans[i].StartToken, spans[i].EndToken)
		}
	}
}

func TestNormalizeClampsToTotal(t *testing.T) {
	n := NewNormalizer(DefaultConfig())

	spans, err := n.Normalize([]Span{{0, 100}, {100, 250}}, 220)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %v", spans)
	}
	if last := spans[1]; last.EndToken != 220 {
		t.Errorf("Expected final span clamped to 220, got %d", last.EndToken)
	}
}

func TestNormalizeSplitsOversized(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 50
	n := NewNormalizer(cfg)

	// A 120-token span must be word-split into ceiling-sized pieces plus a
	// remainder
	spans, err := n.Normalize([]Span{{0, 120}}, 120)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []Span{{0, 50}, {50, 100}, {100, 120}}
	if len(spans) != len(want) {
		t.Fatalf("Expected %d spans, got %v", len(want), spans)
	}
	for i, w := range want {
		if spans[i] != w {
			t.Errorf("Span %d: expected [%d, %d), got [%d, %d)", i, w.StartToken, w.EndToken, spans[i].StartToken, spans[i].EndToken)
		}
	}
}

func TestNormalizePartitionInvariant(t *testing.T) {
	n := NewNormalizer(DefaultConfig())

	// Window-path assembler output: overlapping spans in, strict partition out
	input := []Span{{0, 200}, {150, 350}, {300, 500}, {450, 620}}
	spans, err := n.Normalize(input, 620)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if spans[0].StartToken != 0 {
		t.Errorf("Expected first span to start at 0, got %d", spans[0].StartToken)
	}
	if last := spans[len(spans)-1]; last.EndToken != 620 {
		t.Errorf("Expected last span to end at 620, got %d", last.EndToken)
	}
	for i := 1; i < len(spans); i++ {
		if spans[i].StartToken != spans[i-1].EndToken {
			t.Errorf("Expected span %d to start where span %d ended", i, i-1)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer(DefaultConfig())

	// An already-normal partition passes through unchanged
	input := []Span{{0, 150}, {150, 300}}
	spans, err := n.Normalize(input, 300)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(spans) != len(input) {
		t.Fatalf("Expected %d spans, got %v", len(input), spans)
	}
	for i := range input {
		if spans[i] != input[i] {
			t.Errorf("Span %d: expected [%d, %d) unchanged, got [%d, %d)", i, input[i].StartToken, input[i].EndToken, spans[i].StartToken, spans[i].EndToken)
		}
	}
}

func TestNormalizeEmpty(t *testing.T) {
	n := NewNormalizer(DefaultConfig())

	spans, err := n.Normalize(nil, 100)
	if err != nil {
		t.Errorf("Expected no error for no spans, got %v", err)
	}
	if len(spans) != 0 {
		t.Errorf("Expected no spans, got %v", spans)
	}

	spans, err = n.Normalize([]Span{{0, 10}}, 0)
	if err != nil {
		t.Errorf("Expected no error for zero tokens, got %v", err)
	}
	if len(spans) != 0 {
		t.Errorf("Expected no spans for zero tokens, got %v", spans)
	}
}

func TestNormalizeCoverageViolation(t *testing.T) {
	n := NewNormalizer(DefaultConfig())

	// Spans that stop short of the total token count cannot be repaired
	spans, err := n.Normalize([]Span{{0, 100}}, 150)
	if err == nil {
		t.Fatal("Expected an invariant violation")
	}
	if !errors.IsInvariantViolation(err) {
		t.Errorf("Expected invariant violation error, got %v", err)
	}
	if spans != nil {
		t.Errorf("Expected no spans on violation, got %v", spans)
	}
}

func TestNormalizeNoSurvivors(t *testing.T) {
	n := NewNormalizer(DefaultConfig())

	// A degenerate zero-width span leaves nothing to cover the range with
	_, err := n.Normalize([]Span{{0, 0}}, 100)
	if err == nil {
		t.Fatal("Expected an invariant violation")
	}
	if !errors.IsInvariantViolation(err) {
		t.Errorf("Expected invariant violation error, got %v", err)
	}
}

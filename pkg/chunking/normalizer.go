package chunking

import (
	"fmt"

	"github.com/cleaveai/cleave/pkg/errors"
)

// Normalizer rewrites provisional spans into a strict partition of the
// token range and enforces the size ceiling
type Normalizer struct {
	cfg *Config
}

// NewNormalizer creates a normalizer for the given configuration
func NewNormalizer(cfg *Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Normalize reassigns span starts sequentially: the first span starts at
// zero and each subsequent span starts where the previous one ended, while
// every span keeps its own end. Overlap introduced by windowed segments
// disappears here. A final pass splits any span still above MaxSize at
// word positions; that pass always runs, whichever path produced the
// spans. A ceiling violation surviving the split, or a result that does
// not cover [0, totalTokens) exactly, is an invariant violation.
func (n *Normalizer) Normalize(spans []Span, totalTokens int) ([]Span, error) {
	if len(spans) == 0 || totalTokens == 0 {
		return []Span{}, nil
	}

	sequential := make([]Span, 0, len(spans))
	cursor := 0
	for _, s := range spans {
		end := s.EndToken
		if end > totalTokens {
			end = totalTokens
		}
		if end <= cursor {
			// fully covered by the previous span
			continue
		}
		sequential = append(sequential, Span{StartToken: cursor, EndToken: end})
		cursor = end
	}

	out := make([]Span, 0, len(sequential))
	for _, s := range sequential {
		for s.Width() > n.cfg.MaxSize {
			out = append(out, Span{StartToken: s.StartToken, EndToken: s.StartToken + n.cfg.MaxSize})
			s.StartToken += n.cfg.MaxSize
		}
		out = append(out, s)
	}

	if len(out) == 0 {
		return nil, errors.NewInvariantViolationError(
			fmt.Sprintf("no spans survived normalization for %d tokens", totalTokens))
	}
	for _, s := range out {
		if s.Width() > n.cfg.MaxSize {
			return nil, errors.NewInvariantViolationError(
				fmt.Sprintf("span [%d, %d) exceeds max size %d after normalization", s.StartToken, s.EndToken, n.cfg.MaxSize))
		}
	}
	if out[0].StartToken != 0 || out[len(out)-1].EndToken != totalTokens {
		return nil, errors.NewInvariantViolationError(
			fmt.Sprintf("normalized spans cover [%d, %d), want [0, %d)", out[0].StartToken, out[len(out)-1].EndToken, totalTokens))
	}

	return out, nil
}

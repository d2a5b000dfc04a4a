package chunking

// Span is a provisional chunk range in original token coordinates.
// Assembler output spans may still overlap when segments came from the
// window path; the normalizer resolves that overlap.
type Span struct {
	StartToken int `json:"start_token"`
	EndToken   int `json:"end_token"`
}

// Width returns the number of tokens the span covers
func (s Span) Width() int {
	return s.EndToken - s.StartToken
}

// Assembler groups segments into provisional spans, closing chunks at
// flagged boundaries and size limits
type Assembler struct {
	cfg *Config
}

// NewAssembler creates an assembler for the given configuration
func NewAssembler(cfg *Config) *Assembler {
	return &Assembler{cfg: cfg}
}

// Assemble walks segments in order, accumulating a buffer measured as the
// deduplicated original-token range so overlapping windows are not double
// counted. The buffer closes when the next segment is a flagged boundary,
// when appending it would push the range past MaxSize, when TargetSize has
// been reached, or when input runs out.
func (a *Assembler) Assemble(segments []Segment, boundaries map[int]bool) []Span {
	if len(segments) == 0 {
		return []Span{}
	}

	cuts := segmentCuts(segments)

	spans := []Span{}
	var cur *Span

	for i, seg := range segments {
		if cur == nil {
			cur = &Span{StartToken: seg.StartToken, EndToken: seg.EndToken}
		} else if seg.EndToken > cur.EndToken {
			cur.EndToken = seg.EndToken
		}

		if i == len(segments)-1 {
			spans = a.close(spans, *cur, cuts)
			cur = nil
			continue
		}

		next := segments[i+1]
		switch {
		case next.EndToken-cur.StartToken > a.cfg.MaxSize:
			spans = a.close(spans, *cur, cuts)
			cur = nil
		case boundaries[i+1]:
			spans = a.close(spans, *cur, cuts)
			cur = nil
		case cur.Width() >= a.cfg.TargetSize:
			spans = a.close(spans, *cur, cuts)
			cur = nil
		}
	}

	return spans
}

// close appends span to spans, merging it backward into its predecessor
// when undersized. A merged result above MaxSize is re-split at the
// segment boundary yielding the longest first part within MaxSize; the
// correction does not cascade. An undersized span with no predecessor is
// kept as-is.
func (a *Assembler) close(spans []Span, span Span, cuts []int) []Span {
	if span.Width() >= a.cfg.MinSize || len(spans) == 0 {
		return append(spans, span)
	}

	prev := spans[len(spans)-1]
	merged := Span{StartToken: prev.StartToken, EndToken: span.EndToken}
	if merged.Width() <= a.cfg.MaxSize {
		spans[len(spans)-1] = merged
		return spans
	}

	split := splitPoint(merged, cuts, a.cfg.MaxSize)
	if split <= merged.StartToken || split >= merged.EndToken {
		// no usable boundary; the normalizer enforces the ceiling
		spans[len(spans)-1] = merged
		return spans
	}

	spans[len(spans)-1] = Span{StartToken: merged.StartToken, EndToken: split}
	return append(spans, Span{StartToken: split, EndToken: merged.EndToken})
}

// segmentCuts returns the ordered set of segment end positions, the legal
// split points for merge corrections
func segmentCuts(segments []Segment) []int {
	cuts := make([]int, 0, len(segments))
	for _, seg := range segments {
		if len(cuts) == 0 || seg.EndToken > cuts[len(cuts)-1] {
			cuts = append(cuts, seg.EndToken)
		}
	}
	return cuts
}

// splitPoint picks the largest cut inside the span whose distance from the
// span start stays within maxSize; zero means no cut qualifies
func splitPoint(span Span, cuts []int, maxSize int) int {
	best := 0
	for _, cut := range cuts {
		if cut <= span.StartToken || cut >= span.EndToken {
			continue
		}
		if cut-span.StartToken <= maxSize && cut > best {
			best = cut
		}
	}
	return best
}

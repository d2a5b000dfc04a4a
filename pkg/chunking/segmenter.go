package chunking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// punctuationDensityThreshold separates punctuated prose from unpunctuated
// text such as raw speech transcripts. Density at or above the threshold
// takes the sentence path.
const punctuationDensityThreshold = 0.05

// terminalPunct matches sentence-terminal punctuation at the end of a token
var terminalPunct = regexp.MustCompile(`[.!?]+$`)

// Segment is an intermediate segmentation unit: a sentence, or an analysis
// window over unpunctuated text. Token positions always refer to the
// original input, never to window-relative coordinates.
type Segment struct {
	// Text is the segment content, single-space joined
	Text string `json:"text"`

	// StartToken is the inclusive start position in the original text
	StartToken int `json:"start_token"`

	// EndToken is the exclusive end position in the original text
	EndToken int `json:"end_token"`

	// IsWindowed marks segments produced by the overlapping-window path
	IsWindowed bool `json:"is_windowed"`
}

// TokenCount returns the number of tokens the segment covers
func (s Segment) TokenCount() int {
	return s.EndToken - s.StartToken
}

// Segmenter splits text into sentences when punctuation density permits,
// and into overlapping token windows otherwise
type Segmenter struct {
	windowSize    int
	windowOverlap int
}

// NewSegmenter creates a segmenter with the given window geometry
func NewSegmenter(windowSize, windowOverlap int) *Segmenter {
	return &Segmenter{
		windowSize:    windowSize,
		windowOverlap: windowOverlap,
	}
}

// Segment splits text into segments. Empty or whitespace-only input yields
// an empty slice. The function is pure and performs no I/O.
func (s *Segmenter) Segment(text string) []Segment {
	return s.segmentTokens(Tokens(text))
}

func (s *Segmenter) segmentTokens(tokens []string) []Segment {
	if len(tokens) == 0 {
		return []Segment{}
	}

	if PunctuationDensity(tokens) < punctuationDensityThreshold {
		return s.windows(tokens)
	}
	return s.sentences(tokens)
}

// sentences splits at tokens carrying terminal punctuation followed by an
// uppercase-initial token. The final token always closes the last sentence,
// punctuated or not.
func (s *Segmenter) sentences(tokens []string) []Segment {
	segments := []Segment{}
	start := 0

	for i, tok := range tokens {
		last := i == len(tokens)-1
		if !last && !(endsWithTerminal(tok) && startsWithUpper(tokens[i+1])) {
			continue
		}

		segments = append(segments, Segment{
			Text:       strings.Join(tokens[start:i+1], " "),
			StartToken: start,
			EndToken:   i + 1,
		})
		start = i + 1
	}

	return segments
}

// windows emits overlapping fixed-size windows. Emission stops after the
// first window whose end reaches the total token count, so the final
// window may be shorter and no fully-contained trailing window appears.
func (s *Segmenter) windows(tokens []string) []Segment {
	total := len(tokens)
	stride := s.windowSize - s.windowOverlap

	segments := []Segment{}
	for start := 0; ; start += stride {
		end := start + s.windowSize
		if end > total {
			end = total
		}

		segments = append(segments, Segment{
			Text:       strings.Join(tokens[start:end], " "),
			StartToken: start,
			EndToken:   end,
			IsWindowed: true,
		})

		if end >= total {
			break
		}
	}

	return segments
}

// PunctuationDensity is the ratio of sentence boundaries to tokens. A
// boundary is a token ending in terminal punctuation followed by an
// uppercase-initial token; a terminal token at the end of input also
// counts.
func PunctuationDensity(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}

	boundaries := 0
	for i, tok := range tokens {
		if !endsWithTerminal(tok) {
			continue
		}
		if i == len(tokens)-1 || startsWithUpper(tokens[i+1]) {
			boundaries++
		}
	}

	return float64(boundaries) / float64(len(tokens))
}

func endsWithTerminal(token string) bool {
	return terminalPunct.MatchString(token)
}

func startsWithUpper(token string) bool {
	r, _ := utf8.DecodeRuneInString(token)
	return unicode.IsUpper(r)
}

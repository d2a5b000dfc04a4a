package parsers

import (
	"context"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cleaveai/cleave/pkg/chunking"
	"github.com/cleaveai/cleave/pkg/errors"
)

// TextParser implements parsing for plain text files
type TextParser struct{}

// NewTextParser creates a new text parser
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse parses a text document from a reader
func (tp *TextParser) Parse(ctx context.Context, reader io.Reader, config *Config) (*Document, error) {
	if config == nil {
		config = DefaultConfig()
	}

	startTime := time.Now()

	content, err := readInput(reader, config.MaxFileSize)
	if err != nil {
		return nil, err
	}

	if !utf8.Valid(content) {
		return nil, errors.NewParseError("content is not valid UTF-8 text", nil)
	}

	textContent := strings.TrimPrefix(string(content), "\uFEFF")

	metadata := &Metadata{
		MimeType:  "text/plain",
		FileSize:  int64(len(content)),
		WordCount: chunking.CountTokens(textContent),
	}

	return &Document{
		Content:    textContent,
		Metadata:   metadata,
		ParserType: string(ParserTypeText),
		ParsedAt:   time.Now(),
		Duration:   time.Since(startTime),
	}, nil
}

// ParseFile parses a text document from a file path
func (tp *TextParser) ParseFile(ctx context.Context, filePath string, config *Config) (*Document, error) {
	return parseFromFile(ctx, tp, filePath, config)
}

// ParseBytes parses a text document from byte data
func (tp *TextParser) ParseBytes(ctx context.Context, data []byte, filename string, config *Config) (*Document, error) {
	return parseFromBytes(ctx, tp, data, filename, config)
}

// SupportedTypes returns the MIME types supported by this parser
func (tp *TextParser) SupportedTypes() []string {
	return []string{
		"text/plain",
		"text/x-log",
		"text/x-readme",
	}
}

// SupportedExtensions returns the file extensions supported by this parser
func (tp *TextParser) SupportedExtensions() []string {
	return []string{
		".txt", ".text", ".log", ".rst", ".asc",
		".conf", ".cfg", ".ini", ".properties",
	}
}

// GetParserType returns the type identifier for this parser
func (tp *TextParser) GetParserType() string {
	return string(ParserTypeText)
}

// Package parsers converts document formats into the plain text the
// chunking engine operates on. Each parser extracts displayable text and
// lightweight metadata; markup, scripts, and binary structure never reach
// the tokenizer.
package parsers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cleaveai/cleave/pkg/errors"
)

// ParserType identifies a parser implementation.
type ParserType string

const (
	// ParserTypeText for plain text files
	ParserTypeText ParserType = "text"

	// ParserTypeMarkdown for Markdown documents
	ParserTypeMarkdown ParserType = "markdown"

	// ParserTypeHTML for HTML documents
	ParserTypeHTML ParserType = "html"

	// ParserTypePDF for PDF documents
	ParserTypePDF ParserType = "pdf"
)

// SupportedParserTypes returns all supported parser types
func SupportedParserTypes() []ParserType {
	return []ParserType{
		ParserTypeText,
		ParserTypeMarkdown,
		ParserTypeHTML,
		ParserTypePDF,
	}
}

// IsValidParserType checks if a parser type is supported
func IsValidParserType(parserType ParserType) bool {
	for _, supported := range SupportedParserTypes() {
		if supported == parserType {
			return true
		}
	}
	return false
}

// Metadata contains metadata extracted from a parsed document
type Metadata struct {
	// Title of the document, from document metadata or the filename
	Title string `json:"title,omitempty"`

	// Author of the document, when the format carries one
	Author string `json:"author,omitempty"`

	// Language hint extracted from the document
	Language string `json:"language,omitempty"`

	// MimeType of the source format
	MimeType string `json:"mime_type,omitempty"`

	// FileExtension of the original file
	FileExtension string `json:"file_extension,omitempty"`

	// FileSize of the original input in bytes
	FileSize int64 `json:"file_size,omitempty"`

	// PageCount for paginated formats
	PageCount int `json:"page_count,omitempty"`

	// WordCount of the extracted text, counted the way the chunking
	// tokenizer counts
	WordCount int `json:"word_count,omitempty"`
}

// Document is the parsed form of an input: plain text ready for
// tokenization plus metadata about where it came from.
type Document struct {
	// Content is the extracted plain text
	Content string `json:"content"`

	// Metadata describes the source document
	Metadata *Metadata `json:"metadata"`

	// ParserType indicates which parser produced this document
	ParserType string `json:"parser_type"`

	// ParsedAt is when the document was parsed
	ParsedAt time.Time `json:"parsed_at"`

	// Duration is how long parsing took
	Duration time.Duration `json:"duration"`
}

// Config controls parsing behavior shared by all parsers
type Config struct {
	// ExtractMetadata controls whether title, author, and language
	// metadata are populated
	ExtractMetadata bool `json:"extract_metadata"`

	// MaxFileSize is the maximum input size in bytes; zero disables the
	// limit
	MaxFileSize int64 `json:"max_file_size"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		ExtractMetadata: true,
		MaxFileSize:     100 * 1024 * 1024, // 100MB
	}
}

// Parser defines the interface for all document parsing implementations
type Parser interface {
	// Parse parses a document from a reader
	Parse(ctx context.Context, reader io.Reader, config *Config) (*Document, error)

	// ParseFile parses a document from a file path
	ParseFile(ctx context.Context, filePath string, config *Config) (*Document, error)

	// ParseBytes parses a document from byte data
	ParseBytes(ctx context.Context, data []byte, filename string, config *Config) (*Document, error)

	// SupportedTypes returns the MIME types supported by this parser
	SupportedTypes() []string

	// SupportedExtensions returns the file extensions supported by this parser
	SupportedExtensions() []string

	// GetParserType returns the type identifier for this parser
	GetParserType() string
}

// fileTitle derives a document title from a filename by stripping the
// directory and extension.
func fileTitle(filename string) string {
	name := filepath.Base(filename)
	if ext := filepath.Ext(name); ext != "" {
		name = name[:len(name)-len(ext)]
	}
	return name
}

// applyFilename fills in filename-derived metadata on a parsed document.
// An existing title from document metadata is kept.
func applyFilename(doc *Document, filename string) {
	if doc.Metadata == nil || filename == "" {
		return
	}
	doc.Metadata.FileExtension = strings.ToLower(filepath.Ext(filename))
	if doc.Metadata.Title == "" {
		doc.Metadata.Title = fileTitle(filename)
	}
}

// readInput drains a reader, enforcing the size limit in bytes.
func readInput(reader io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.NewParseError("failed to read input", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, errors.NewParseError(
			fmt.Sprintf("input size %d bytes exceeds limit %d bytes", len(data), limit), nil)
	}
	return data, nil
}

// parseFromFile runs a parser against a file on disk. The size limit is
// enforced from file metadata before any content is read.
func parseFromFile(ctx context.Context, p Parser, filePath string, config *Config) (*Document, error) {
	if config == nil {
		config = DefaultConfig()
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(filePath)
		}
		return nil, errors.NewParseError("failed to stat file", err)
	}
	if config.MaxFileSize > 0 && fileInfo.Size() > config.MaxFileSize {
		return nil, errors.NewFileTooLargeError(filePath, fileInfo.Size(), config.MaxFileSize)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.NewParseError("failed to open file", err)
	}
	defer file.Close()

	doc, err := p.Parse(ctx, file, config)
	if err != nil {
		return nil, err
	}
	applyFilename(doc, filePath)
	return doc, nil
}

// parseFromBytes runs a parser against in-memory data, stamping
// filename-derived metadata when a filename is known.
func parseFromBytes(ctx context.Context, p Parser, data []byte, filename string, config *Config) (*Document, error) {
	doc, err := p.Parse(ctx, bytes.NewReader(data), config)
	if err != nil {
		return nil, err
	}
	applyFilename(doc, filename)
	return doc, nil
}


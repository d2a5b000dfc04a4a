package parsers

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/cleaveai/cleave/pkg/errors"
)

// ParserFactory routes documents to the right parser by type, MIME type,
// or file extension.
type ParserFactory struct {
	parsers    map[ParserType]Parser
	mimeTypes  map[string]ParserType
	extensions map[string]ParserType
}

// NewParserFactory creates a factory with all available parsers registered
func NewParserFactory() *ParserFactory {
	factory := &ParserFactory{
		parsers:    make(map[ParserType]Parser),
		mimeTypes:  make(map[string]ParserType),
		extensions: make(map[string]ParserType),
	}

	_ = factory.RegisterParser(ParserTypeText, NewTextParser())
	_ = factory.RegisterParser(ParserTypeMarkdown, NewMarkdownParser())
	_ = factory.RegisterParser(ParserTypeHTML, NewHTMLParser())
	_ = factory.RegisterParser(ParserTypePDF, NewPDFParser())

	return factory
}

// RegisterParser registers a parser and claims its MIME types and
// extensions
func (pf *ParserFactory) RegisterParser(parserType ParserType, parser Parser) error {
	if !IsValidParserType(parserType) {
		return errors.NewInvalidArgumentError(fmt.Sprintf("invalid parser type: %s", parserType))
	}
	if parser == nil {
		return errors.NewInvalidArgumentError("parser cannot be nil")
	}

	pf.parsers[parserType] = parser
	for _, mimeType := range parser.SupportedTypes() {
		pf.mimeTypes[strings.ToLower(mimeType)] = parserType
	}
	for _, ext := range parser.SupportedExtensions() {
		pf.extensions[strings.ToLower(ext)] = parserType
	}
	return nil
}

// GetParser retrieves a parser by type
func (pf *ParserFactory) GetParser(parserType ParserType) (Parser, error) {
	parser, exists := pf.parsers[parserType]
	if !exists {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("no parser registered for type: %s", parserType))
	}
	return parser, nil
}

// GetParserByMimeType retrieves a parser by MIME type
func (pf *ParserFactory) GetParserByMimeType(mimeType string) (Parser, error) {
	// Drop charset and other parameters.
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = mimeType[:idx]
	}
	parserType, exists := pf.mimeTypes[strings.ToLower(strings.TrimSpace(mimeType))]
	if !exists {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("no parser for MIME type: %s", mimeType))
	}
	return pf.GetParser(parserType)
}

// GetParserByExtension retrieves a parser by file extension
func (pf *ParserFactory) GetParserByExtension(extension string) (Parser, error) {
	if !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	parserType, exists := pf.extensions[strings.ToLower(extension)]
	if !exists {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("no parser for extension: %s", extension))
	}
	return pf.GetParser(parserType)
}

// CreateParserFromFilename selects a parser for a filename, falling back
// to the text parser when nothing matches.
func (pf *ParserFactory) CreateParserFromFilename(filename string) (Parser, error) {
	if filename == "" {
		return nil, errors.NewMissingFieldError("filename")
	}

	ext := filepath.Ext(filename)
	if ext != "" {
		if parser, err := pf.GetParserByExtension(ext); err == nil {
			return parser, nil
		}
		if mimeType := mime.TypeByExtension(ext); mimeType != "" {
			if parser, err := pf.GetParserByMimeType(mimeType); err == nil {
				return parser, nil
			}
		}
	}

	return pf.GetParser(ParserTypeText)
}

// DetectParserByContent picks a parser from content sniffing: PDF magic
// bytes, then HTML markup, then Markdown markers, then plain text.
func (pf *ParserFactory) DetectParserByContent(data []byte) Parser {
	parser, err := pf.GetParser(pf.detectContentType(data))
	if err != nil {
		parser, _ = pf.GetParser(ParserTypeText)
	}
	return parser
}

func (pf *ParserFactory) detectContentType(data []byte) ParserType {
	sample := data
	if len(sample) > 2048 {
		sample = sample[:2048]
	}
	content := string(sample)
	contentLower := strings.ToLower(content)

	if len(data) >= 5 && string(data[:5]) == "%PDF-" {
		return ParserTypePDF
	}

	htmlPatterns := []string{"<!doctype html", "<html", "<head>", "<body>", "<div", "<p>"}
	for _, pattern := range htmlPatterns {
		if strings.Contains(contentLower, pattern) {
			return ParserTypeHTML
		}
	}

	markdownPatterns := []string{"# ", "## ", "```", "](", "![", "* ", "- "}
	markdownScore := 0
	for _, pattern := range markdownPatterns {
		if strings.Contains(content, pattern) {
			markdownScore++
		}
	}
	if markdownScore >= 2 {
		return ParserTypeMarkdown
	}

	return ParserTypeText
}

// ParseFile parses a file with the parser selected from its name
func (pf *ParserFactory) ParseFile(ctx context.Context, filePath string, config *Config) (*Document, error) {
	parser, err := pf.CreateParserFromFilename(filePath)
	if err != nil {
		return nil, err
	}
	return parser.ParseFile(ctx, filePath, config)
}

// ParseBytes parses in-memory data, selecting the parser from the
// filename when one is given and from the content otherwise.
func (pf *ParserFactory) ParseBytes(ctx context.Context, data []byte, filename string, config *Config) (*Document, error) {
	var parser Parser
	if filename != "" {
		p, err := pf.CreateParserFromFilename(filename)
		if err != nil {
			return nil, err
		}
		parser = p
	} else {
		parser = pf.DetectParserByContent(data)
	}
	return parser.ParseBytes(ctx, data, filename, config)
}

// SupportedTypes returns all registered MIME types
func (pf *ParserFactory) SupportedTypes() []string {
	var types []string
	for mimeType := range pf.mimeTypes {
		types = append(types, mimeType)
	}
	return types
}

// SupportedExtensions returns all registered file extensions
func (pf *ParserFactory) SupportedExtensions() []string {
	var extensions []string
	for ext := range pf.extensions {
		extensions = append(extensions, ext)
	}
	return extensions
}

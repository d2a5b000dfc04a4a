package parsers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/cleaveai/cleave/pkg/chunking"
	"github.com/cleaveai/cleave/pkg/errors"
)

// PDFParser implements parsing for PDF documents
type PDFParser struct{}

// NewPDFParser creates a new PDF parser
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse parses a PDF document from a reader
func (pp *PDFParser) Parse(ctx context.Context, reader io.Reader, config *Config) (*Document, error) {
	if config == nil {
		config = DefaultConfig()
	}

	startTime := time.Now()

	content, err := readInput(reader, config.MaxFileSize)
	if err != nil {
		return nil, err
	}

	if !pp.isPDFContent(content) {
		return nil, errors.NewParseError("input does not look like a PDF document", nil)
	}

	pdfReader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, errors.NewParseError("failed to open PDF document", err)
	}

	metadata := &Metadata{
		MimeType:  "application/pdf",
		FileSize:  int64(len(content)),
		PageCount: pp.pageCount(pdfReader),
	}
	if config.ExtractMetadata {
		pp.extractInfo(pdfReader, metadata)
	}

	textContent, err := pp.extractText(pdfReader)
	if err != nil {
		return nil, err
	}
	metadata.WordCount = chunking.CountTokens(textContent)

	return &Document{
		Content:    textContent,
		Metadata:   metadata,
		ParserType: string(ParserTypePDF),
		ParsedAt:   time.Now(),
		Duration:   time.Since(startTime),
	}, nil
}

// ParseFile parses a PDF document from a file path
func (pp *PDFParser) ParseFile(ctx context.Context, filePath string, config *Config) (*Document, error) {
	return parseFromFile(ctx, pp, filePath, config)
}

// ParseBytes parses a PDF document from byte data
func (pp *PDFParser) ParseBytes(ctx context.Context, data []byte, filename string, config *Config) (*Document, error) {
	return parseFromBytes(ctx, pp, data, filename, config)
}

// SupportedTypes returns the MIME types supported by this parser
func (pp *PDFParser) SupportedTypes() []string {
	return []string{
		"application/pdf",
	}
}

// SupportedExtensions returns the file extensions supported by this parser
func (pp *PDFParser) SupportedExtensions() []string {
	return []string{
		".pdf",
	}
}

// GetParserType returns the type identifier for this parser
func (pp *PDFParser) GetParserType() string {
	return string(ParserTypePDF)
}

// isPDFContent checks for the PDF magic bytes
func (pp *PDFParser) isPDFContent(content []byte) bool {
	return len(content) >= 5 && string(content[:5]) == "%PDF-"
}

// pageCount resolves the page tree, which panics on damaged files
func (pp *PDFParser) pageCount(reader *pdf.Reader) (count int) {
	defer func() {
		_ = recover()
	}()
	return reader.NumPage()
}

// extractInfo reads title and author from the document info dictionary.
// Best effort: a malformed info dictionary leaves metadata empty.
func (pp *PDFParser) extractInfo(reader *pdf.Reader, metadata *Metadata) {
	defer func() {
		_ = recover()
	}()

	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return
	}
	if title := info.Key("Title").Text(); title != "" {
		metadata.Title = title
	}
	if author := info.Key("Author").Text(); author != "" {
		metadata.Author = author
	}
}

// extractText pulls plain text from the whole document, falling back to
// page-by-page extraction. The underlying library panics on malformed
// content streams, so extraction is fenced with a recover.
func (pp *PDFParser) extractText(reader *pdf.Reader) (textContent string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewParseError(fmt.Sprintf("PDF text extraction failed: %v", r), nil)
		}
	}()

	if plain, perr := reader.GetPlainText(); perr == nil {
		var buf bytes.Buffer
		if _, rerr := buf.ReadFrom(plain); rerr == nil && buf.Len() > 0 {
			return buf.String(), nil
		}
	}

	var buf bytes.Buffer
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pp.writePageText(&buf, page)
		buf.WriteString("\n")
	}
	return buf.String(), nil
}

// writePageText joins a page's positioned text runs, breaking lines when
// the vertical position changes.
func (pp *PDFParser) writePageText(buf *bytes.Buffer, page pdf.Page) {
	var lastY float64
	for _, item := range page.Content().Text {
		if lastY != 0 && item.Y != lastY {
			buf.WriteString("\n")
		}
		buf.WriteString(item.S)
		lastY = item.Y
	}
}

package parsers

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/cleaveai/cleave/pkg/chunking"
	"github.com/cleaveai/cleave/pkg/errors"
)

// Elements whose text never belongs in extracted content.
var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"iframe":   true,
	"head":     true,
}

// Elements that end a run of inline text.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"div": true, "dd": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"td": true, "th": true, "tr": true, "ul": true,
}

// HTMLParser implements parsing for HTML documents
type HTMLParser struct{}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

// Parse parses an HTML document from a reader. Script, style, and other
// non-content elements are stripped before text extraction.
func (hp *HTMLParser) Parse(ctx context.Context, reader io.Reader, config *Config) (*Document, error) {
	if config == nil {
		config = DefaultConfig()
	}

	startTime := time.Now()

	content, err := readInput(reader, config.MaxFileSize)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.NewParseError("failed to parse HTML document", err)
	}

	metadata := &Metadata{
		MimeType: "text/html",
		FileSize: int64(len(content)),
	}
	if config.ExtractMetadata {
		hp.extractMetadata(doc, metadata)
	}

	doc.Find("script, style, noscript, template").Remove()

	textContent := hp.extractText(doc)
	metadata.WordCount = chunking.CountTokens(textContent)

	return &Document{
		Content:    textContent,
		Metadata:   metadata,
		ParserType: string(ParserTypeHTML),
		ParsedAt:   time.Now(),
		Duration:   time.Since(startTime),
	}, nil
}

// ParseFile parses an HTML document from a file path
func (hp *HTMLParser) ParseFile(ctx context.Context, filePath string, config *Config) (*Document, error) {
	return parseFromFile(ctx, hp, filePath, config)
}

// ParseBytes parses an HTML document from byte data
func (hp *HTMLParser) ParseBytes(ctx context.Context, data []byte, filename string, config *Config) (*Document, error) {
	return parseFromBytes(ctx, hp, data, filename, config)
}

// SupportedTypes returns the MIME types supported by this parser
func (hp *HTMLParser) SupportedTypes() []string {
	return []string{
		"text/html",
		"application/xhtml+xml",
	}
}

// SupportedExtensions returns the file extensions supported by this parser
func (hp *HTMLParser) SupportedExtensions() []string {
	return []string{
		".html", ".htm", ".xhtml",
	}
}

// GetParserType returns the type identifier for this parser
func (hp *HTMLParser) GetParserType() string {
	return string(ParserTypeHTML)
}

// extractMetadata reads title, meta tags, and the document language
func (hp *HTMLParser) extractMetadata(doc *goquery.Document, metadata *Metadata) {
	metadata.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("meta").Each(func(i int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		if content == "" {
			return
		}
		switch strings.ToLower(name) {
		case "author":
			metadata.Author = content
		}
	})

	if lang, exists := doc.Find("html").First().Attr("lang"); exists {
		metadata.Language = lang
	}
}

// extractText walks the document body and collects text nodes, inserting
// line breaks at block element boundaries so separate elements tokenize
// separately.
func (hp *HTMLParser) extractText(doc *goquery.Document) string {
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var buf bytes.Buffer
	for _, node := range root.Nodes {
		hp.writeNodeText(node, &buf)
	}
	return strings.TrimSpace(buf.String())
}

// writeNodeText recursively extracts text from an HTML node tree
func (hp *HTMLParser) writeNodeText(node *html.Node, buf *bytes.Buffer) {
	switch node.Type {
	case html.TextNode:
		buf.WriteString(node.Data)
		return
	case html.ElementNode:
		if skippedTags[node.Data] {
			return
		}
		if node.Data == "br" {
			buf.WriteString("\n")
			return
		}
	case html.CommentNode:
		return
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		hp.writeNodeText(child, buf)
	}

	if node.Type == html.ElementNode && blockTags[node.Data] {
		buf.WriteString("\n")
	}
}

package parsers

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/cleaveai/cleave/pkg/chunking"
)

// Front matter blocks delimited by --- (YAML) or +++ (TOML).
var (
	yamlFrontMatter = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*(\n|$)`)
	tomlFrontMatter = regexp.MustCompile(`(?s)^\+\+\+\s*\n(.*?)\n\+\+\+\s*(\n|$)`)
)

// MarkdownParser implements parsing for Markdown files
type MarkdownParser struct {
	md goldmark.Markdown
}

// NewMarkdownParser creates a new markdown parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Parse parses a Markdown document from a reader. Formatting is flattened:
// the goldmark AST is walked and only text content survives, with block
// boundaries preserved as line breaks.
func (mp *MarkdownParser) Parse(ctx context.Context, reader io.Reader, config *Config) (*Document, error) {
	if config == nil {
		config = DefaultConfig()
	}

	startTime := time.Now()

	content, err := readInput(reader, config.MaxFileSize)
	if err != nil {
		return nil, err
	}

	markdownContent := string(content)

	metadata := &Metadata{
		MimeType: "text/markdown",
		FileSize: int64(len(content)),
	}
	if config.ExtractMetadata {
		mp.extractFrontMatter(markdownContent, metadata)
	}

	body := mp.removeFrontMatter(markdownContent)
	plain, firstHeading := mp.plainText([]byte(body))

	if config.ExtractMetadata && metadata.Title == "" {
		metadata.Title = firstHeading
	}
	metadata.WordCount = chunking.CountTokens(plain)

	return &Document{
		Content:    plain,
		Metadata:   metadata,
		ParserType: string(ParserTypeMarkdown),
		ParsedAt:   time.Now(),
		Duration:   time.Since(startTime),
	}, nil
}

// ParseFile parses a Markdown document from a file path
func (mp *MarkdownParser) ParseFile(ctx context.Context, filePath string, config *Config) (*Document, error) {
	return parseFromFile(ctx, mp, filePath, config)
}

// ParseBytes parses a Markdown document from byte data
func (mp *MarkdownParser) ParseBytes(ctx context.Context, data []byte, filename string, config *Config) (*Document, error) {
	return parseFromBytes(ctx, mp, data, filename, config)
}

// SupportedTypes returns the MIME types supported by this parser
func (mp *MarkdownParser) SupportedTypes() []string {
	return []string{
		"text/markdown",
		"text/x-markdown",
	}
}

// SupportedExtensions returns the file extensions supported by this parser
func (mp *MarkdownParser) SupportedExtensions() []string {
	return []string{
		".md", ".markdown", ".mdown", ".mkdn", ".mkd",
	}
}

// GetParserType returns the type identifier for this parser
func (mp *MarkdownParser) GetParserType() string {
	return string(ParserTypeMarkdown)
}

// plainText walks the Markdown AST and collects text content, dropping
// markup. Returns the flattened text and the first level-1 heading.
func (mp *MarkdownParser) plainText(source []byte) (string, string) {
	doc := mp.md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	var firstHeading string

	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			// Separate blocks so adjacent paragraphs do not merge into
			// one token.
			if node.Type() == ast.TypeBlock && buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
				buf.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			if n.Level == 1 && firstHeading == "" {
				firstHeading = mp.nodeText(n, source)
			}
		case *ast.Text:
			buf.Write(n.Segment.Value(source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				buf.WriteString("\n")
			}
		case *ast.String:
			buf.Write(n.Value)
		case *ast.AutoLink:
			buf.Write(n.URL(source))
		case *ast.FencedCodeBlock:
			mp.writeCodeLines(&buf, n, source)
		case *ast.CodeBlock:
			mp.writeCodeLines(&buf, n, source)
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(buf.String()), firstHeading
}

// nodeText extracts the text content beneath an AST node
func (mp *MarkdownParser) nodeText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		if textNode, ok := child.(*ast.Text); ok {
			buf.Write(textNode.Segment.Value(source))
		} else if child.HasChildren() {
			buf.WriteString(mp.nodeText(child, source))
		}
	}
	return strings.TrimSpace(buf.String())
}

// writeCodeLines copies the raw lines of a code block
func (mp *MarkdownParser) writeCodeLines(buf *bytes.Buffer, node ast.Node, source []byte) {
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(source))
	}
}

// extractFrontMatter pulls title, author, and language fields out of YAML
// or TOML front matter.
func (mp *MarkdownParser) extractFrontMatter(content string, metadata *Metadata) {
	if matches := yamlFrontMatter.FindStringSubmatch(content); len(matches) > 1 {
		mp.parseFrontMatterFields(matches[1], metadata)
		return
	}
	if matches := tomlFrontMatter.FindStringSubmatch(content); len(matches) > 1 {
		mp.parseFrontMatterFields(matches[1], metadata)
	}
}

// parseFrontMatterFields parses key-value front matter lines into metadata
func (mp *MarkdownParser) parseFrontMatterFields(frontMatter string, metadata *Metadata) {
	for _, line := range strings.Split(frontMatter, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			parts = strings.SplitN(line, "=", 2)
		}
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		switch strings.ToLower(key) {
		case "title":
			metadata.Title = value
		case "author":
			metadata.Author = value
		case "language", "lang":
			metadata.Language = value
		}
	}
}

// removeFrontMatter strips a leading front matter block from the content
func (mp *MarkdownParser) removeFrontMatter(content string) string {
	if loc := yamlFrontMatter.FindStringIndex(content); loc != nil {
		return content[loc[1]:]
	}
	if loc := tomlFrontMatter.FindStringIndex(content); loc != nil {
		return content[loc[1]:]
	}
	return content
}

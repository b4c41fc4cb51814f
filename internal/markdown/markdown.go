package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// ErrRender indicates the Markdown source could not be converted.
var ErrRender = errors.New("markdown render failed")

// Renderer converts Markdown to HTML fragments.
type Renderer interface {
	// Render converts a full document into block-level HTML.
	Render(src []byte) (string, error)
	// RenderInline converts a short string, dropping the paragraph wrapper.
	RenderInline(s string) (string, error)
}

// Goldmark is the Renderer used in production. Raw HTML passes through
// untouched so inline markup authored in the essay survives rendering.
type Goldmark struct {
	md goldmark.Markdown
}

func NewGoldmark() *Goldmark {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			extension.Strikethrough,
			extension.Footnote,
			extension.DefinitionList,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAttribute(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
	return &Goldmark{md: md}
}

func (g *Goldmark) Render(src []byte) (string, error) {
	var buf bytes.Buffer
	if err := g.md.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.String(), nil
}

func (g *Goldmark) RenderInline(s string) (string, error) {
	out, err := g.Render([]byte(s))
	if err != nil {
		return "", err
	}
	out = strings.TrimRight(out, "\n")
	if strings.HasPrefix(out, "<p>") && strings.HasSuffix(out, "</p>") && strings.Count(out, "<p>") == 1 {
		out = out[len("<p>") : len(out)-len("</p>")]
	}
	return out, nil
}

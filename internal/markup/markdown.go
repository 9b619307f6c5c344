package markup

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// Converter turns directive-translated text into the final HTML.
type Converter interface {
	Convert(src string) (string, error)
}

// Markdown is the goldmark-backed Converter. Raw HTML passes through, and
// code blocks and code spans are written out exactly as authored.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates the default converter.
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				html.WithUnsafe(),
				// Lower value wins over the html renderer's 1000.
				renderer.WithNodeRenderers(util.Prioritized(verbatimCode{}, 100)),
			),
		),
	}
}

// Convert renders src as HTML.
func (m *Markdown) Convert(src string) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// verbatimCode renders code without <pre> wrappers or escaping. Earlier
// passes may leave generated markup inside code that must survive intact.
type verbatimCode struct{}

func (r verbatimCode) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindCodeBlock, r.renderBlock)
	reg.Register(ast.KindFencedCodeBlock, r.renderBlock)
	reg.Register(ast.KindCodeSpan, r.renderSpan)
}

func (r verbatimCode) renderBlock(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		_, _ = w.Write(line.Value(source))
	}
	return ast.WalkSkipChildren, nil
}

func (r verbatimCode) renderSpan(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("</code>")
		return ast.WalkContinue, nil
	}
	_, _ = w.WriteString("<code>")
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			_, _ = w.Write(t.Segment.Value(source))
		}
	}
	return ast.WalkSkipChildren, nil
}

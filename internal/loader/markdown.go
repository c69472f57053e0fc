package loader

import (
	"bytes"
	"fmt"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/docgloss/internal/document"
)

// MarkdownLoader renders Markdown to HTML with goldmark. The first level-one
// heading becomes the title, else the file name.
type MarkdownLoader struct{}

func (l *MarkdownLoader) Load(r io.Reader, name string) (*document.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	title := stem(name)
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			title = string(h.Text(src))
			break
		}
	}

	var body bytes.Buffer
	if err := md.Renderer().Render(&body, src, root); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return page(title, body.Bytes())
}

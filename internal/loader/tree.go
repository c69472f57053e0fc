package loader

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/docgloss/internal/doctree"
	"github.com/dgallion1/docgloss/internal/document"
)

// TreeParser converts raw document bytes into an outline.
type TreeParser interface {
	Parse(r io.Reader, name string) (*doctree.DocTree, error)
}

// treeLoader renders a TreeParser's outline as HTML.
type treeLoader struct {
	p TreeParser
}

func (l treeLoader) Load(r io.Reader, name string) (*document.Document, error) {
	tree, err := l.p.Parse(r, name)
	if err != nil {
		return nil, err
	}
	return RenderTree(tree)
}

// RenderTree turns an outline into a Document: one <section> per node with
// a heading for its depth and one <p> per blank-line separated paragraph.
func RenderTree(tree *doctree.DocTree) (*document.Document, error) {
	var body bytes.Buffer
	if tree.Title != "" {
		fmt.Fprintf(&body, "<h1>%s</h1>\n", html.EscapeString(tree.Title))
	}

	type frame struct {
		node  *doctree.DocNode
		depth int
		close bool
	}
	stack := make([]frame, 0, len(tree.Children))
	for i := len(tree.Children) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: tree.Children[i], depth: 2})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.close {
			body.WriteString("</section>\n")
			continue
		}

		body.WriteString("<section>\n")
		if f.node.Title != "" {
			level := min(f.depth, 6)
			fmt.Fprintf(&body, "<h%d>%s</h%d>\n", level, html.EscapeString(f.node.Title), level)
		}
		writeParagraphs(&body, f.node.Text)

		stack = append(stack, frame{close: true})
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: f.node.Children[i], depth: f.depth + 1})
		}
	}
	return page(tree.Title, body.Bytes())
}

func writeParagraphs(w *bytes.Buffer, text string) {
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		w.WriteString("<p>")
		w.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>\n"))
		w.WriteString("</p>\n")
	}
}

// outline builds a DocTree from a flat run of headings and paragraphs.
type outline struct {
	root  *doctree.DocNode
	stack []outlineEntry
	text  strings.Builder
}

type outlineEntry struct {
	node  *doctree.DocNode
	level int
}

func newOutline(title string) *outline {
	root := &doctree.DocNode{Title: title}
	return &outline{root: root, stack: []outlineEntry{{node: root}}}
}

func (o *outline) heading(level int, title string) {
	o.flush()
	n := &doctree.DocNode{Title: title}
	for len(o.stack) > 1 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	parent := o.stack[len(o.stack)-1].node
	parent.Children = append(parent.Children, n)
	o.stack = append(o.stack, outlineEntry{node: n, level: level})
}

func (o *outline) paragraph(text string) {
	if text == "" {
		return
	}
	if o.text.Len() > 0 {
		o.text.WriteString("\n\n")
	}
	o.text.WriteString(text)
}

func (o *outline) flush() {
	t := strings.TrimSpace(o.text.String())
	o.text.Reset()
	if t == "" {
		return
	}
	top := o.stack[len(o.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// tree finishes the outline. Text before the first heading becomes a leading
// untitled node.
func (o *outline) tree() *doctree.DocTree {
	o.flush()
	t := &doctree.DocTree{Title: o.root.Title}
	if o.root.Text != "" {
		t.Children = append(t.Children, &doctree.DocNode{Text: o.root.Text})
	}
	t.Children = append(t.Children, o.root.Children...)
	return t
}

package document

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MarkerClass is the class carried by every definition marker.
const MarkerClass = "docgloss-term"

// UIAttr flags elements injected for the reveal interaction. Their content is
// never treated as document text.
const UIAttr = "data-docgloss-ui"

var ErrNotFound = errors.New("selection not found")

// Document is a live, mutable HTML tree.
type Document struct {
	Root *html.Node
	ID   string

	// Text nodes produced by a replacement. They are never rewritten again.
	processed map[*html.Node]struct{}
}

// Parse reads HTML and builds a Document whose ID is the content hash of the source.
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return New(root, ContentHashHex(data)), nil
}

// ParseString is Parse for in-memory markup.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func New(root *html.Node, id string) *Document {
	return &Document{
		Root:      root,
		ID:        id,
		processed: make(map[*html.Node]struct{}),
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

// Render writes the current tree as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.Root)
}

// HTML returns the current tree as a string.
func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// Text returns the whitespace-normalized text of every leaf, in document order.
func (d *Document) Text() string {
	var words []string
	for _, l := range d.TextLeaves() {
		words = append(words, strings.Fields(l.node.Data)...)
	}
	return strings.Join(words, " ")
}

// Markers returns every definition marker in document order.
func (d *Document) Markers() []*html.Node {
	var out []*html.Node
	Walk(d.Root, func(n *html.Node) bool {
		if IsMarker(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

func (d *Document) markProcessed(n *html.Node) {
	d.processed[n] = struct{}{}
}

func (d *Document) isProcessed(n *html.Node) bool {
	_, ok := d.processed[n]
	return ok
}

// Walk visits n and its descendants in document order without recursion.
// Returning false from fn skips the node's children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	stack := []*html.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			continue
		}
		for c := cur.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
}

// Find returns the first element matching pred in document order, or nil.
func Find(n *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	Walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if pred(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

// IsElement reports whether n is an element of the given tag.
func IsElement(n *html.Node, a atom.Atom) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == a
}

// Attr returns the value of attribute key, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// SetAttr sets or replaces attribute key.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// HasClass reports whether the class list of n contains class.
func HasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// IsMarker reports whether n is a definition marker.
func IsMarker(n *html.Node) bool {
	return IsElement(n, atom.Span) && HasClass(n, MarkerClass)
}

// NewMarker builds a marker wrapping text.
func NewMarker(term, definition, text string) *html.Node {
	span := &html.Node{
		Type:     html.ElementNode,
		Data:     "span",
		DataAtom: atom.Span,
		Attr: []html.Attribute{
			{Key: "class", Val: MarkerClass},
			{Key: "data-term", Val: term},
			{Key: "data-definition", Val: definition},
		},
	}
	span.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return span
}

// skipped reports whether the content of n is not document text.
func skipped(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return n.Type == html.CommentNode || n.Type == html.DoctypeNode
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Textarea, atom.Head:
		return true
	}
	return HasAttr(n, UIAttr)
}

// TextContent returns the whitespace-normalized text under n, ignoring
// non-content elements.
func TextContent(n *html.Node) string {
	var words []string
	Walk(n, func(c *html.Node) bool {
		if c != n && skipped(c) {
			return false
		}
		if c.Type == html.TextNode {
			words = append(words, strings.Fields(c.Data)...)
		}
		return true
	})
	return strings.Join(words, " ")
}

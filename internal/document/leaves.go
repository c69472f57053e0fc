package document

import (
	"iter"
	"strings"

	"github.com/dgallion1/docgloss/internal/doctree"
	"golang.org/x/net/html"
)

// Leaf is a text node of a Document.
type Leaf struct {
	doc      *Document
	node     *html.Node
	start    int
	words    int
	inMarker bool
	replaced bool
}

// Text returns the raw text of the leaf.
func (l *Leaf) Text() string { return l.node.Data }

// Node returns the underlying text node.
func (l *Leaf) Node() *html.Node { return l.node }

// Start is the offset of the leaf's first word in the document word list.
func (l *Leaf) Start() int { return l.start }

// Words is the number of whitespace-separated words in the leaf.
func (l *Leaf) Words() int { return l.words }

// Annotatable reports whether the leaf may still be rewritten.
func (l *Leaf) Annotatable() bool {
	return !l.replaced && !l.inMarker && l.node.Parent != nil && !l.doc.isProcessed(l.node)
}

// Replace swaps the leaf for the given segments. Plain segments become new
// text nodes that later passes skip; annotated ones become markers.
func (l *Leaf) Replace(segs []doctree.Segment) {
	if !l.Annotatable() {
		return
	}
	parent := l.node.Parent
	for _, s := range segs {
		if s.Text == "" {
			continue
		}
		var n *html.Node
		if s.Term != nil {
			n = NewMarker(s.Term.Term, s.Term.Definition, s.Text)
			l.doc.markProcessed(n.FirstChild)
		} else {
			n = &html.Node{Type: html.TextNode, Data: s.Text}
			l.doc.markProcessed(n)
		}
		parent.InsertBefore(n, l.node)
	}
	parent.RemoveChild(l.node)
	l.replaced = true
}

// TextLeaves returns every text-bearing leaf in document order. Marker
// contents are included but never annotatable.
func (d *Document) TextLeaves() []*Leaf {
	type entry struct {
		n        *html.Node
		inMarker bool
	}
	var out []*Leaf
	offset := 0
	stack := []entry{{n: d.Root}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := cur.n
		if n.Type == html.TextNode {
			if w := len(strings.Fields(n.Data)); w > 0 {
				out = append(out, &Leaf{doc: d, node: n, start: offset, words: w, inMarker: cur.inMarker})
				offset += w
			}
			continue
		}
		if skipped(n) {
			continue
		}
		inMarker := cur.inMarker || IsMarker(n)
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, entry{n: c, inMarker: inMarker})
		}
	}
	return out
}

// Leaves yields the annotatable leaves of the whole document.
func (d *Document) Leaves() iter.Seq[doctree.TextLeaf] {
	return LeafSet(d.TextLeaves()).Leaves()
}

// LeafSet is an ordered group of leaves, typically those attributed to one chunk.
type LeafSet []*Leaf

// Leaves yields the leaves of the set that are still annotatable when reached.
func (s LeafSet) Leaves() iter.Seq[doctree.TextLeaf] {
	return func(yield func(doctree.TextLeaf) bool) {
		for _, l := range s {
			if !l.Annotatable() {
				continue
			}
			if !yield(l) {
				return
			}
		}
	}
}

// Partition attributes each leaf to the chunk containing its last word, so a
// leaf that crosses a chunk boundary is handled once every chunk it touches
// has been seen. The result has one set per chunk, aligned by index.
func Partition(leaves []*Leaf, chunks []doctree.Chunk) []LeafSet {
	sets := make([]LeafSet, len(chunks))
	if len(chunks) == 0 {
		return sets
	}
	ci := 0
	for _, l := range leaves {
		last := l.start + l.words - 1
		for ci < len(chunks)-1 && last >= chunks[ci].WordStart+chunks[ci].Words {
			ci++
		}
		sets[ci] = append(sets[ci], l)
	}
	return sets
}

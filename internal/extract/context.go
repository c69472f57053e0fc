package extract

import (
	"strings"

	"github.com/dgallion1/docgloss/internal/doctree"
	"github.com/dgallion1/docgloss/internal/document"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Context describes doc for prompt construction. sel may be nil. The
// document is only read.
func Context(doc *document.Document, sel *document.Selection) doctree.DocumentContext {
	return doctree.DocumentContext{
		Title:          Title(doc),
		Abstract:       Abstract(doc),
		Sections:       Sections(doc),
		FocusParagraph: FocusParagraph(sel),
	}
}

// Title returns the <title> text, else the first <h1>, else "".
func Title(doc *document.Document) string {
	if n := document.Find(doc.Root, func(n *html.Node) bool { return document.IsElement(n, atom.Title) }); n != nil {
		if t := document.TextContent(n); t != "" {
			return t
		}
	}
	if n := findContent(doc.Root, func(n *html.Node) bool { return document.IsElement(n, atom.H1) }); n != nil {
		return document.TextContent(n)
	}
	return ""
}

// Abstract returns the text of the first element with class or id "abstract".
func Abstract(doc *document.Document) string {
	n := findContent(doc.Root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && (document.HasClass(n, "abstract") || document.Attr(n, "id") == "abstract")
	})
	if n == nil {
		return ""
	}
	return document.TextContent(n)
}

// Sections lists <section> elements with their heading. Documents without
// any are grouped by heading instead.
func Sections(doc *document.Document) []doctree.Section {
	var out []doctree.Section
	lastHeading := ""
	walkContent(doc.Root, func(n *html.Node) bool {
		if headingLevel(n) > 0 {
			lastHeading = document.TextContent(n)
			return true
		}
		if !document.IsElement(n, atom.Section) {
			return true
		}
		heading := lastHeading
		if h := findContent(n, func(c *html.Node) bool { return c != n && headingLevel(c) > 0 }); h != nil {
			heading = document.TextContent(h)
		}
		out = append(out, doctree.Section{Heading: heading, Content: document.TextContent(n)})
		// Headings inside the section still update lastHeading.
		return true
	})
	if len(out) > 0 {
		return out
	}
	return headingSections(doc.Root)
}

// headingSections groups block text under the nearest preceding heading.
func headingSections(root *html.Node) []doctree.Section {
	var out []doctree.Section
	cur := doctree.Section{}
	var blocks []string
	flush := func() {
		if len(blocks) > 0 {
			cur.Content = strings.Join(blocks, " ")
			out = append(out, cur)
		}
		blocks = nil
	}
	walkContent(root, func(n *html.Node) bool {
		if headingLevel(n) > 0 {
			flush()
			cur = doctree.Section{Heading: document.TextContent(n)}
			return false
		}
		if n.Type != html.ElementNode {
			return true
		}
		switch n.DataAtom {
		case atom.Nav, atom.Footer, atom.Header:
			return false
		case atom.P, atom.Li, atom.Td, atom.Blockquote, atom.Pre:
			if t := document.TextContent(n); t != "" {
				blocks = append(blocks, t)
			}
			return false
		}
		return true
	})
	flush()
	return out
}

var paragraphLike = map[atom.Atom]bool{
	atom.P:          true,
	atom.Li:         true,
	atom.Blockquote: true,
	atom.Td:         true,
	atom.Th:         true,
	atom.Dd:         true,
	atom.Dt:         true,
	atom.Figcaption: true,
	atom.Pre:        true,
	atom.Caption:    true,
}

// FocusParagraph returns the text of the closest paragraph-like ancestor of
// the selection, or "".
func FocusParagraph(sel *document.Selection) string {
	if sel.Empty() {
		return ""
	}
	for n := sel.Node.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && paragraphLike[n.DataAtom] {
			return document.TextContent(n)
		}
	}
	return ""
}

func headingLevel(n *html.Node) int {
	if n.Type != html.ElementNode {
		return 0
	}
	switch n.DataAtom {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

// walkContent is document.Walk without non-content subtrees.
func walkContent(root *html.Node, fn func(*html.Node) bool) {
	document.Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return false
			}
			if document.HasAttr(n, document.UIAttr) {
				return false
			}
		}
		return fn(n)
	})
}

func findContent(root *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	walkContent(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

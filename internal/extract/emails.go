package extract

import (
	"regexp"
	"strings"

	"github.com/dgallion1/docgloss/internal/document"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// AuthorEmails returns the unique email addresses in the document text and
// mailto links, in order of first appearance.
func AuthorEmails(doc *document.Document) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		for _, m := range emailPattern.FindAllString(s, -1) {
			key := strings.ToLower(m)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, m)
		}
	}
	walkContent(doc.Root, func(n *html.Node) bool {
		switch {
		case n.Type == html.TextNode:
			add(n.Data)
		case document.IsElement(n, atom.A):
			if href := document.Attr(n, "href"); strings.HasPrefix(strings.ToLower(href), "mailto:") {
				add(href[len("mailto:"):])
			}
		}
		return true
	})
	return out
}

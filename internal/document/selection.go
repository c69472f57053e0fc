package document

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Selection is a byte range within a single text node.
type Selection struct {
	Node       *html.Node
	Start, End int
}

// Text returns the selected text.
func (s *Selection) Text() string {
	if s.Empty() {
		return ""
	}
	return s.Node.Data[s.Start:s.End]
}

// Empty reports whether s selects nothing.
func (s *Selection) Empty() bool {
	return s == nil || s.Node == nil || s.End <= s.Start
}

// Select finds the zero-based occurrence of quote within a single text leaf.
func (d *Document) Select(quote string, occurrence int) (*Selection, error) {
	quote = strings.TrimSpace(quote)
	if quote == "" || occurrence < 0 {
		return nil, ErrNotFound
	}
	seen := 0
	for _, l := range d.TextLeaves() {
		data := l.node.Data
		from := 0
		for {
			i := strings.Index(data[from:], quote)
			if i < 0 {
				break
			}
			start := from + i
			if seen == occurrence {
				return &Selection{Node: l.node, Start: start, End: start + len(quote)}, nil
			}
			seen++
			from = start + len(quote)
		}
	}
	return nil, fmt.Errorf("%q occurrence %d: %w", quote, occurrence, ErrNotFound)
}

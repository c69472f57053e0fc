package overlay

import (
	"iter"
	"strings"
	"unicode"

	"github.com/dgallion1/docgloss/internal/doctree"
)

// Leaf is a text-bearing leaf that can be rewritten into segments.
type Leaf = doctree.TextLeaf

// Segment is one piece of a rewritten leaf.
type Segment = doctree.Segment

// LeafSource yields the leaves an Engine may rewrite, in document order.
type LeafSource interface {
	Leaves() iter.Seq[Leaf]
}

// Positioned is a Leaf that knows the document word offset of its first word.
type Positioned interface {
	Start() int
}

// Terms maps lowercased terms to their annotation.
type Terms map[string]*doctree.TermAnnotation

func (t Terms) at(int) Terms { return t }

// Engine replaces term occurrences with markers.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Apply wraps every token matching an annotation term and returns the number
// of markers inserted. Leaves without a match are left untouched.
func (e *Engine) Apply(src LeafSource, annotations []doctree.TermAnnotation) int {
	terms := Index(annotations)
	if len(terms) == 0 {
		return 0
	}
	return e.ApplyByWord(src, terms.at)
}

// ApplyByWord is Apply with the terms chosen per word: termsAt receives the
// document word offset of each token. Leaves that are not Positioned start
// at word 0.
func (e *Engine) ApplyByWord(src LeafSource, termsAt func(word int) Terms) int {
	// Collect first so rewriting never disturbs the iteration.
	var leaves []Leaf
	for l := range src.Leaves() {
		leaves = append(leaves, l)
	}

	total := 0
	for _, l := range leaves {
		start := 0
		if p, ok := l.(Positioned); ok {
			start = p.Start()
		}
		segs, n := rewrite(l.Text(), start, termsAt)
		if n == 0 {
			continue
		}
		l.Replace(segs)
		total += n
	}
	return total
}

// Index keys annotations by lowercased term. The first definition of a term
// in the slice wins.
func Index(annotations []doctree.TermAnnotation) Terms {
	terms := make(Terms, len(annotations))
	for i := range annotations {
		key := strings.ToLower(strings.TrimSpace(annotations[i].Term))
		if key == "" || annotations[i].Definition == "" {
			continue
		}
		if _, ok := terms[key]; !ok {
			terms[key] = &annotations[i]
		}
	}
	return terms
}

// rewrite splits text into plain and annotated segments. Word w of text is
// matched against termsAt(first+w). Concatenating the segment texts always
// reproduces text exactly.
func rewrite(text string, first int, termsAt func(word int) Terms) ([]Segment, int) {
	var segs []Segment
	matched := 0
	last := 0
	for w, loc := range fields(text) {
		terms := termsAt(first + w)
		if len(terms) == 0 {
			continue
		}
		start, end := loc[0], loc[1]
		ann, ok := terms[strings.ToLower(text[start:end])]
		if !ok {
			start, end = trimPunct(text, start, end)
			if start >= end {
				continue
			}
			if ann, ok = terms[strings.ToLower(text[start:end])]; !ok {
				continue
			}
		}
		if start > last {
			segs = append(segs, Segment{Text: text[last:start]})
		}
		segs = append(segs, Segment{Text: text[start:end], Term: ann})
		last = end
		matched++
	}
	if matched == 0 {
		return nil, 0
	}
	if last < len(text) {
		segs = append(segs, Segment{Text: text[last:]})
	}
	return segs, matched
}

// fields returns the byte ranges of the words of text, split the way
// strings.Fields splits them so word offsets line up with the chunker.
func fields(text string) [][2]int {
	var out [][2]int
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, [2]int{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, [2]int{start, len(text)})
	}
	return out
}

// trimPunct narrows [start,end) past leading and trailing punctuation.
func trimPunct(text string, start, end int) (int, int) {
	tok := text[start:end]
	trimmed := strings.TrimLeftFunc(tok, isEdge)
	start += len(tok) - len(trimmed)
	tok = strings.TrimRightFunc(trimmed, isEdge)
	end = start + len(tok)
	return start, end
}

func isEdge(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

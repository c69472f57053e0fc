package doctree

// DocumentContext describes a document for prompt construction.
// It is built fresh per invocation and not mutated afterwards.
type DocumentContext struct {
	Title          string    `json:"title"`
	Abstract       string    `json:"abstract"`
	Sections       []Section `json:"sections"`
	FocusParagraph string    `json:"focus_paragraph"` // Paragraph enclosing the selection, "" if none
}

// Section is a section-like block paired with its nearest heading.
type Section struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// Chunk is a bounded, contiguous word span of document text.
type Chunk struct {
	Index     int    // Sequence number within the document
	Text      string // Words joined by single spaces
	WordStart int    // Offset of the first word in the document word list
	Words     int
}

// TermAnnotation is a model-supplied definition for a term.
type TermAnnotation struct {
	Term       string `json:"word"`
	Definition string `json:"definition"`
}

// Headings returns the non-empty section headings, used as a breadcrumb in prompts.
func (c DocumentContext) Headings() []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range c.Sections {
		if s.Heading == "" || seen[s.Heading] {
			continue
		}
		seen[s.Heading] = true
		out = append(out, s.Heading)
	}
	return out
}

// Segment is one piece of a rewritten text leaf. Term is nil for plain text.
type Segment struct {
	Text string
	Term *TermAnnotation
}

// TextLeaf is a text-bearing leaf of a document tree.
type TextLeaf interface {
	Text() string
	Replace(segs []Segment)
}

// DocTree is a heading outline of a non-HTML source (PDF, DOCX, CSV, text)
// before it is rendered into a live document.
type DocTree struct {
	Title    string
	Children []*DocNode
}

// DocNode is a heading with its body text and nested subsections.
type DocNode struct {
	Title    string
	Text     string
	Children []*DocNode
}

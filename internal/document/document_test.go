package document

import (
	"strings"
	"testing"

	"github.com/dgallion1/docgloss/internal/doctree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const sample = `<html><head><title>Paper</title><style>p { color: red }</style></head>
<body>
<h1>Heading</h1>
<p>the quick  brown fox</p>
<script>var x = "not text";</script>
<p>jumps <b>over</b> the dog</p>
</body></html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseString(s)
	require.NoError(t, err)
	return doc
}

func TestParse_IDIsContentHash(t *testing.T) {
	doc := mustParse(t, sample)
	assert.Equal(t, ContentHashHex([]byte(sample)), doc.ID)
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := ContentHashHex([]byte{}); got != want {
		t.Errorf("expected hash %q, got %q", want, got)
	}
}

func TestText_SkipsNonContent(t *testing.T) {
	doc := mustParse(t, sample)
	assert.Equal(t, "Heading the quick brown fox jumps over the dog", doc.Text())
}

func TestTextLeaves_DocumentOrder(t *testing.T) {
	doc := mustParse(t, sample)
	var got []string
	for _, l := range doc.TextLeaves() {
		got = append(got, strings.TrimSpace(l.Text()))
	}
	assert.Equal(t, []string{"Heading", "the quick  brown fox", "jumps", "over", "the dog"}, got)
}

func TestTextLeaves_DeepTreeNoRecursion(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<body>")
	for range 400 {
		sb.WriteString("<div>")
	}
	sb.WriteString("deep")
	for range 400 {
		sb.WriteString("</div>")
	}
	doc := mustParse(t, sb.String())
	leaves := doc.TextLeaves()
	require.Len(t, leaves, 1)
	assert.Equal(t, "deep", leaves[0].Text())
}

func TestReplace_InsertsMarkerAndPreservesText(t *testing.T) {
	doc := mustParse(t, `<p>the quick brown fox</p>`)
	leaves := doc.TextLeaves()
	require.Len(t, leaves, 1)

	ann := &doctree.TermAnnotation{Term: "quick", Definition: "fast"}
	leaves[0].Replace([]doctree.Segment{{Text: "the "}, {Text: "quick", Term: ann}, {Text: " brown fox"}})

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Contains(t, out, `<p>the <span class="docgloss-term" data-term="quick" data-definition="fast">quick</span> brown fox</p>`)
	assert.Len(t, doc.Markers(), 1)
	assert.False(t, leaves[0].Annotatable())
}

func TestReplace_NewLeavesNotAnnotatable(t *testing.T) {
	doc := mustParse(t, `<p>alpha beta</p>`)
	doc.TextLeaves()[0].Replace([]doctree.Segment{
		{Text: "alpha", Term: &doctree.TermAnnotation{Term: "alpha", Definition: "first"}},
		{Text: " beta"},
	})

	count := 0
	for range doc.Leaves() {
		count++
	}
	assert.Zero(t, count, "rewritten text and marker contents must be skipped")
	// Marker text still counts as document text.
	assert.Equal(t, "alpha beta", doc.Text())
}

func TestPartition_LastWordAttribution(t *testing.T) {
	doc := mustParse(t, `<p>one two three</p><p>four five</p><p>six</p>`)
	leaves := doc.TextLeaves()
	chunks := []doctree.Chunk{
		{Index: 0, WordStart: 0, Words: 4},
		{Index: 1, WordStart: 4, Words: 2},
	}
	sets := Partition(leaves, chunks)
	require.Len(t, sets, 2)
	// "four five" starts inside chunk 0 but ends in chunk 1.
	require.Len(t, sets[0], 1)
	assert.Equal(t, "one two three", sets[0][0].Text())
	require.Len(t, sets[1], 2)
	assert.Equal(t, "four five", sets[1][0].Text())
	assert.Equal(t, 3, sets[1][0].Start())
	assert.Equal(t, "six", sets[1][1].Text())
	assert.Equal(t, 5, sets[1][1].Start())
}

func TestPartition_NoChunks(t *testing.T) {
	doc := mustParse(t, `<p>x</p>`)
	assert.Empty(t, Partition(doc.TextLeaves(), nil))
}

func TestSelect(t *testing.T) {
	doc := mustParse(t, `<p>the fox and the dog</p><p>the end</p>`)

	sel, err := doc.Select("the", 2)
	require.NoError(t, err)
	assert.Equal(t, "the", sel.Text())
	assert.Equal(t, "the end", sel.Node.Data)

	_, err = doc.Select("the", 3)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = doc.Select("  ", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSelection_Empty(t *testing.T) {
	var sel *Selection
	assert.True(t, sel.Empty())
	assert.Equal(t, "", sel.Text())
}

func TestTextContent_Normalized(t *testing.T) {
	doc := mustParse(t, "<div id=a>  a\n\tb <script>x</script><em>c</em></div>")
	div := Find(doc.Root, func(n *html.Node) bool { return Attr(n, "id") == "a" })
	require.NotNil(t, div)
	assert.Equal(t, "a b c", TextContent(div))
}

package extract

import (
	"testing"

	"github.com/dgallion1/docgloss/internal/doctree"
	"github.com/dgallion1/docgloss/internal/document"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, s string) *document.Document {
	t.Helper()
	doc, err := document.ParseString(s)
	require.NoError(t, err)
	return doc
}

const paper = `<html><head><title>On Gravity</title></head><body>
<h1>Ignored Title</h1>
<div class="meta abstract">We study   falling apples.</div>
<section><h2>Intro</h2><p>Apples fall.</p></section>
<h2>Methods</h2>
<section><p>We dropped <em>many</em> apples.</p><script>ignore()</script></section>
<section><ul><li>One item with a selection target</li></ul></section>
</body></html>`

func TestContext_FullDocument(t *testing.T) {
	doc := parse(t, paper)
	sel, err := doc.Select("selection", 0)
	require.NoError(t, err)

	got := Context(doc, sel)
	want := doctree.DocumentContext{
		Title:    "On Gravity",
		Abstract: "We study falling apples.",
		Sections: []doctree.Section{
			{Heading: "Intro", Content: "Intro Apples fall."},
			{Heading: "Methods", Content: "We dropped many apples."},
			{Heading: "Methods", Content: "One item with a selection target"},
		},
		FocusParagraph: "One item with a selection target",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
}

func TestContext_MissingAbstractDefaultsEmpty(t *testing.T) {
	got := Context(parse(t, `<p>No abstract here.</p>`), nil)
	assert.Equal(t, "", got.Abstract)
	assert.Equal(t, "", got.Title)
	assert.Equal(t, "", got.FocusParagraph)
}

func TestTitle_FallsBackToH1(t *testing.T) {
	assert.Equal(t, "Main", Title(parse(t, `<body><h1>Main</h1><h1>Second</h1></body>`)))
}

func TestAbstract_ByID(t *testing.T) {
	assert.Equal(t, "Summary text", Abstract(parse(t, `<p id="abstract">Summary text</p>`)))
}

func TestSections_HeadingWalkWithoutSectionElements(t *testing.T) {
	doc := parse(t, `<body><nav><p>menu</p></nav><p>preface</p><h2>A</h2><p>one</p><p>two</p><h3>B</h3><li>three</li></body>`)
	want := []doctree.Section{
		{Heading: "", Content: "preface"},
		{Heading: "A", Content: "one two"},
		{Heading: "B", Content: "three"},
	}
	if diff := cmp.Diff(want, Sections(doc)); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestFocusParagraph_NoParagraphAncestor(t *testing.T) {
	doc := parse(t, `<body><div>loose text</div></body>`)
	sel, err := doc.Select("loose", 0)
	require.NoError(t, err)
	assert.Equal(t, "", FocusParagraph(sel))
}

func TestContext_DoesNotMutate(t *testing.T) {
	doc := parse(t, paper)
	before, err := doc.HTML()
	require.NoError(t, err)
	Context(doc, nil)
	after, err := doc.HTML()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAuthorEmails(t *testing.T) {
	doc := parse(t, `<body>
<p>Contact: alice@example.org, Bob &lt;bob.smith@uni.edu&gt;</p>
<a href="mailto:carol@lab.io">Carol</a>
<p>Again ALICE@example.org</p>
<script>var x = "hidden@example.com"</script>
</body>`)
	assert.Equal(t, []string{"alice@example.org", "bob.smith@uni.edu", "carol@lab.io"}, AuthorEmails(doc))
}

func TestAuthorEmails_None(t *testing.T) {
	assert.Empty(t, AuthorEmails(parse(t, `<p>nobody</p>`)))
}

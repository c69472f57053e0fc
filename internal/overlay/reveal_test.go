package overlay

import (
	"strings"
	"testing"

	"github.com/dgallion1/docgloss/internal/doctree"
	"github.com/dgallion1/docgloss/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func annotated(t *testing.T) *document.Document {
	t.Helper()
	doc, err := document.ParseString(`<html><body><p>an atom and a quark</p></body></html>`)
	require.NoError(t, err)
	NewEngine().Apply(doc, []doctree.TermAnnotation{
		{Term: "atom", Definition: "smallest unit of an element"},
		{Term: "quark", Definition: "elementary particle"},
	})
	return doc
}

func TestAttachReveal_DecoratesMarkers(t *testing.T) {
	doc := annotated(t)
	assert.Equal(t, 2, AttachReveal(doc))

	for _, m := range doc.Markers() {
		assert.Equal(t, "0", document.Attr(m, "tabindex"))
		assert.Equal(t, "button", document.Attr(m, "role"))
		assert.Equal(t, ViewID, document.Attr(m, "aria-describedby"))
	}
}

func TestAttachReveal_Idempotent(t *testing.T) {
	doc := annotated(t)
	AttachReveal(doc)
	first, err := doc.HTML()
	require.NoError(t, err)

	AttachReveal(doc)
	second, err := doc.HTML()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, strings.Count(second, `id="`+ViewID+`"`))
	// Injected assets are not document text.
	assert.Equal(t, "an atom and a quark", doc.Text())
}

func TestViewer_AtMostOneVisible(t *testing.T) {
	doc := annotated(t)
	markers := doc.Markers()
	require.Len(t, markers, 2)

	var v Viewer
	_, ok := v.Visible()
	assert.False(t, ok)

	view, ok := v.Show(markers[0])
	require.True(t, ok)
	assert.Equal(t, "atom", view.Term)

	v.Show(markers[1])
	got, ok := v.Visible()
	require.True(t, ok)
	assert.Equal(t, "elementary particle", got.Definition)
	assert.Same(t, markers[1], got.Anchor)

	v.Hide()
	_, ok = v.Visible()
	assert.False(t, ok)
}

func TestViewer_IgnoresNonMarkers(t *testing.T) {
	doc := annotated(t)
	var v Viewer
	_, ok := v.Show(doc.Root)
	assert.False(t, ok)
}

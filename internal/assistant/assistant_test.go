package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docgloss/internal/analytics"
	"github.com/dgallion1/docgloss/internal/command"
	"github.com/dgallion1/docgloss/internal/doctree"
	"github.com/dgallion1/docgloss/internal/document"
	"github.com/dgallion1/docgloss/internal/pipeline"
)

const paper = `<html><head><title>On Heat</title></head><body>
<p class="abstract">We study entropy.</p>
<section><h2>Results</h2><p>Entropy always increases in closed systems.</p></section>
<p>Contact: ada@example.org or <a href="mailto:bob@example.org">Bob</a></p>
</body></html>`

type stubScanner struct {
	calls int
	rep   pipeline.Report
	err   error
}

func (s *stubScanner) Run(_ context.Context, doc *document.Document) (pipeline.Report, error) {
	s.calls++
	r := s.rep
	r.DocID = doc.ID
	return r, s.err
}

type stubModel struct {
	dc        doctree.DocumentContext
	selection string
	err       error
}

func (m *stubModel) Annotate(_ context.Context, dc doctree.DocumentContext, selection string) (string, error) {
	m.dc, m.selection = dc, selection
	return "explained: " + selection, m.err
}

func (m *stubModel) Chat(_ context.Context, message string) (string, error) {
	return "echo " + message, m.err
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*Assistant, *stubScanner, *stubModel, *document.Document) {
	t.Helper()
	sc := &stubScanner{rep: pipeline.Report{Chunks: 1, Succeeded: 1}}
	m := &stubModel{}
	a := New(sc, m, nil, quiet())
	require.NoError(t, a.RegisterDefaults(DefaultBindings()))
	doc, err := document.ParseString(paper)
	require.NoError(t, err)
	return a, sc, m, doc
}

func TestRegisterDefaults(t *testing.T) {
	a, _, _, _ := setup(t)
	assert.Equal(t, []string{"shift+a", "shift+e", "shift+s"}, a.Combos())
}

func TestRegisterCommand_Duplicate(t *testing.T) {
	a, _, _, _ := setup(t)
	err := a.RegisterCommand("A+Shift", func(context.Context, command.Event) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, command.ErrDuplicateCommand)
}

func TestRegisterDefaults_Overrides(t *testing.T) {
	a := New(&stubScanner{}, &stubModel{}, nil, quiet())
	require.NoError(t, a.RegisterDefaults(Bindings{Annotate: "ctrl+shift+x", Scan: ""}))
	assert.Equal(t, []string{"ctrl+shift+x"}, a.Combos())
}

func TestTriggerAnnotate(t *testing.T) {
	a, _, m, doc := setup(t)
	sel, err := doc.Select("always increases", 0)
	require.NoError(t, err)

	got, err := a.TriggerAnnotate(context.Background(), doc, sel)
	require.NoError(t, err)
	assert.Equal(t, "explained: always increases", got.Text)
	assert.Equal(t, "Entropy always increases in closed systems.", got.FocusParagraph)
	assert.Equal(t, "On Heat", m.dc.Title)
	assert.Equal(t, "We study entropy.", m.dc.Abstract)
}

func TestTriggerAnnotate_EmptySelection(t *testing.T) {
	a, _, _, doc := setup(t)
	_, err := a.TriggerAnnotate(context.Background(), doc, nil)
	assert.ErrorIs(t, err, ErrEmptySelection)

	_, err = a.Dispatch(context.Background(), "shift+a", command.Event{Doc: doc})
	assert.ErrorIs(t, err, ErrEmptySelection)
}

func TestTriggerAnnotate_ModelError(t *testing.T) {
	a, _, m, doc := setup(t)
	m.err = errors.New("down")
	sel, err := doc.Select("Entropy", 0)
	require.NoError(t, err)
	_, err = a.TriggerAnnotate(context.Background(), doc, sel)
	assert.ErrorIs(t, err, m.err)
}

func TestDispatch_Scan(t *testing.T) {
	a, sc, _, doc := setup(t)
	out, err := a.Dispatch(context.Background(), "Shift+S", command.Event{Doc: doc})
	require.NoError(t, err)
	rep, ok := out.(pipeline.Report)
	require.True(t, ok)
	assert.Equal(t, doc.ID, rep.DocID)
	assert.Equal(t, 1, sc.calls)
}

func TestDispatch_Unknown(t *testing.T) {
	a, _, _, doc := setup(t)
	_, err := a.Dispatch(context.Background(), "ctrl+q", command.Event{Doc: doc})
	assert.ErrorIs(t, err, command.ErrUnknownCommand)
}

func TestComposeAuthorEmail(t *testing.T) {
	a, _, _, doc := setup(t)
	sel, err := doc.Select("closed systems", 0)
	require.NoError(t, err)

	d, err := a.ComposeAuthorEmail(doc, sel)
	require.NoError(t, err)
	assert.Equal(t, []string{"ada@example.org", "bob@example.org"}, d.To)
	assert.Equal(t, "Question about: On Heat", d.Subject)
	assert.Contains(t, d.Body, "> closed systems")

	u, err := url.Parse(d.Mailto)
	require.NoError(t, err)
	assert.Equal(t, "mailto", u.Scheme)
	assert.Equal(t, "ada@example.org,bob@example.org", u.Opaque)
	assert.NotContains(t, u.RawQuery, "+")
	q, err := url.ParseQuery(u.RawQuery)
	require.NoError(t, err)
	assert.Equal(t, d.Subject, q.Get("subject"))
	assert.Equal(t, d.Body, q.Get("body"))
}

func TestComposeAuthorEmail_NoEmails(t *testing.T) {
	a, _, _, _ := setup(t)
	doc, err := document.ParseString("<p>no contact here</p>")
	require.NoError(t, err)
	_, err = a.ComposeAuthorEmail(doc, nil)
	assert.ErrorIs(t, err, ErrNoAuthorEmail)
}

func TestChat(t *testing.T) {
	a, _, _, _ := setup(t)
	reply, err := a.Chat(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo hi", reply)

	_, err = a.Chat(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestAnalyticsBeacons(t *testing.T) {
	var (
		mu    sync.Mutex
		types []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev analytics.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		mu.Lock()
		types = append(types, ev.Type+":"+strings.TrimSpace(ev.Content))
		mu.Unlock()
	}))
	defer srv.Close()

	tr := analytics.NewTracker(srv.URL, quiet())
	a := New(&stubScanner{}, &stubModel{}, tr, quiet())
	require.NoError(t, a.RegisterDefaults(DefaultBindings()))
	doc, err := document.ParseString(paper)
	require.NoError(t, err)
	sel, err := doc.Select("Entropy", 0)
	require.NoError(t, err)

	_, err = a.Dispatch(context.Background(), "shift+a", command.Event{Doc: doc, Selection: sel})
	require.NoError(t, err)
	tr.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"annotation:Entropy", "command:shift+a"}, types)
}

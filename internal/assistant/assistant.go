// Package assistant is the command surface offered to hosts: key bindings,
// whole-document scans, selection annotations, author emails and chat.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dgallion1/docgloss/internal/analytics"
	"github.com/dgallion1/docgloss/internal/command"
	"github.com/dgallion1/docgloss/internal/doctree"
	"github.com/dgallion1/docgloss/internal/document"
	"github.com/dgallion1/docgloss/internal/extract"
	"github.com/dgallion1/docgloss/internal/pipeline"
)

var (
	ErrEmptySelection = errors.New("empty selection")
	ErrEmptyMessage   = errors.New("empty message")
	ErrNoAuthorEmail  = errors.New("no author email found in document")
)

// Scanner runs a whole-document scan. *pipeline.Orchestrator implements it.
type Scanner interface {
	Run(ctx context.Context, doc *document.Document) (pipeline.Report, error)
}

// Model answers selection and chat requests. *model.Client implements it.
type Model interface {
	Annotate(ctx context.Context, dc doctree.DocumentContext, selection string) (string, error)
	Chat(ctx context.Context, message string) (string, error)
}

// Bindings names the combos of the built-in commands.
type Bindings struct {
	Annotate string `yaml:"annotate" json:"annotate"`
	Scan     string `yaml:"scan" json:"scan"`
	Email    string `yaml:"email" json:"email"`
}

func DefaultBindings() Bindings {
	return Bindings{Annotate: "shift+a", Scan: "shift+s", Email: "shift+e"}
}

// Annotation is the explanation of a selection.
type Annotation struct {
	Selection      string `json:"selection"`
	Text           string `json:"annotation"`
	FocusParagraph string `json:"focus_paragraph"`
}

// EmailDraft is a message to the document's authors about a selection.
type EmailDraft struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	Mailto  string   `json:"mailto"`
}

type Assistant struct {
	registry *command.Registry
	scanner  Scanner
	model    Model
	tracker  *analytics.Tracker
	log      *slog.Logger
}

// New builds an Assistant with an empty registry. tracker may be nil.
func New(scanner Scanner, m Model, tracker *analytics.Tracker, log *slog.Logger) *Assistant {
	if log == nil {
		log = slog.Default()
	}
	return &Assistant{
		registry: command.NewRegistry(),
		scanner:  scanner,
		model:    m,
		tracker:  tracker,
		log:      log,
	}
}

// RegisterCommand binds handler to combo. See command.Registry.Register.
func (a *Assistant) RegisterCommand(combo string, h command.Handler) error {
	return a.registry.Register(combo, h)
}

// RegisterDefaults binds the built-in commands. Empty combos are skipped.
func (a *Assistant) RegisterDefaults(b Bindings) error {
	builtin := []struct {
		combo string
		h     command.Handler
	}{
		{b.Annotate, func(ctx context.Context, ev command.Event) (any, error) {
			return a.TriggerAnnotate(ctx, ev.Doc, ev.Selection)
		}},
		{b.Scan, func(ctx context.Context, ev command.Event) (any, error) {
			return a.TriggerScan(ctx, ev.Doc)
		}},
		{b.Email, func(_ context.Context, ev command.Event) (any, error) {
			return a.ComposeAuthorEmail(ev.Doc, ev.Selection)
		}},
	}
	for _, c := range builtin {
		if c.combo == "" {
			continue
		}
		if err := a.RegisterCommand(c.combo, c.h); err != nil {
			return fmt.Errorf("register default binding: %w", err)
		}
	}
	return nil
}

// Dispatch delivers one key event to its handler.
func (a *Assistant) Dispatch(ctx context.Context, combo string, ev command.Event) (any, error) {
	out, err := a.registry.Dispatch(ctx, combo, ev)
	if errors.Is(err, command.ErrUnknownCommand) || errors.Is(err, command.ErrInvalidCombo) {
		return nil, err
	}
	a.tracker.Track(analytics.Event{Type: analytics.TypeCommand, Content: combo})
	return out, err
}

// Combos lists the bound combos.
func (a *Assistant) Combos() []string {
	return a.registry.Combos()
}

// TriggerScan annotates every known term in doc.
func (a *Assistant) TriggerScan(ctx context.Context, doc *document.Document) (pipeline.Report, error) {
	if doc == nil {
		return pipeline.Report{}, errors.New("scan: no document")
	}
	return a.scanner.Run(ctx, doc)
}

// TriggerAnnotate explains the selected text in the context of doc.
func (a *Assistant) TriggerAnnotate(ctx context.Context, doc *document.Document, sel *document.Selection) (Annotation, error) {
	text := strings.TrimSpace(sel.Text())
	if doc == nil || text == "" {
		return Annotation{}, ErrEmptySelection
	}
	dc := extract.Context(doc, sel)
	a.tracker.Track(analytics.Event{Type: analytics.TypeAnnotation, Content: text})

	out, err := a.model.Annotate(ctx, dc, text)
	if err != nil {
		return Annotation{}, fmt.Errorf("annotate selection: %w", err)
	}
	a.log.Debug("selection annotated", "doc_id", doc.ID, "chars", len(text))
	return Annotation{Selection: text, Text: out, FocusParagraph: dc.FocusParagraph}, nil
}

// ComposeAuthorEmail drafts a message to the document's authors quoting the
// selection, if any.
func (a *Assistant) ComposeAuthorEmail(doc *document.Document, sel *document.Selection) (EmailDraft, error) {
	if doc == nil {
		return EmailDraft{}, ErrNoAuthorEmail
	}
	to := extract.AuthorEmails(doc)
	if len(to) == 0 {
		return EmailDraft{}, ErrNoAuthorEmail
	}
	title := extract.Title(doc)
	d := EmailDraft{To: to, Subject: "Question about your paper"}
	if title != "" {
		d.Subject = "Question about: " + title
	}

	var body strings.Builder
	if q := strings.TrimSpace(sel.Text()); q != "" {
		body.WriteString("Regarding this passage:\n\n")
		for _, line := range strings.Split(q, "\n") {
			body.WriteString("> " + line + "\n")
		}
		body.WriteString("\n")
	}
	d.Body = body.String()
	d.Mailto = mailto(d)
	return d, nil
}

func mailto(d EmailDraft) string {
	v := url.Values{}
	v.Set("subject", d.Subject)
	if d.Body != "" {
		v.Set("body", d.Body)
	}
	// mailto wants %20 for spaces.
	query := strings.ReplaceAll(v.Encode(), "+", "%20")
	return "mailto:" + strings.Join(d.To, ",") + "?" + query
}

// Chat sends one message to the model.
func (a *Assistant) Chat(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}
	return a.model.Chat(ctx, message)
}

package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgallion1/docgloss/internal/doctree"
)

const termsSystem = `You annotate documents for readers who are not specialists. Identify technical terms, jargon and acronyms in the given text that a general reader may not know, and define each one briefly in the context of the document.

Rules:
- "word" must be a single word copied exactly as it appears in the text
- Skip common words and names that need no explanation
- Definitions are one or two plain sentences, under 300 characters
- Return an empty list if the text has nothing worth defining`

const annotationSystem = `You help readers understand research documents. Explain the highlighted text in the context of the document.

Provide:
1. Simple explanation
2. Key terms definitions
3. Related concepts
4. Potential questions for further research`

// ChatMaxOutputTokens is the default reply budget for chat.
const ChatMaxOutputTokens = 1000

var termsSchema = []FieldSpec{{
	Name:        "terms",
	Kind:        KindArray,
	Description: "Terms found in the text with their definitions",
	Items: &FieldSpec{
		Kind: KindObject,
		Fields: []FieldSpec{
			{Name: "word", Kind: KindString, Description: "The term exactly as written in the text"},
			{Name: "definition", Kind: KindString, Description: "A short definition of the term"},
		},
	},
}}

var annotationSchema = []FieldSpec{{
	Name:        "annotation",
	Kind:        KindString,
	Description: "The explanation of the highlighted text",
}}

var chatSchema = []FieldSpec{{
	Name:        "message",
	Kind:        KindString,
	Description: "The reply to the user's message",
}}

// TermsQuery asks for term definitions in one chunk.
func TermsQuery(dc doctree.DocumentContext, chunk doctree.Chunk, maxOutputTokens int) Query {
	var sb strings.Builder
	writeContext(&sb, dc)
	fmt.Fprintf(&sb, "Part %d of the document:\n", chunk.Index+1)
	sb.WriteString(chunk.Text)
	return Query{
		Function:        "define_terms",
		Description:     "Record definitions for the technical terms found in the text",
		System:          termsSystem,
		Text:            sb.String(),
		Schema:          termsSchema,
		MaxOutputTokens: maxOutputTokens,
	}
}

// AnnotationQuery asks for an explanation of a selection.
func AnnotationQuery(dc doctree.DocumentContext, selection string) Query {
	var sb strings.Builder
	writeContext(&sb, dc)
	if dc.FocusParagraph != "" {
		fmt.Fprintf(&sb, "Paragraph: %s\n\n", dc.FocusParagraph)
	}
	fmt.Fprintf(&sb, "Selected Text: %q", selection)
	return Query{
		Function:    "annotate_selection",
		Description: "Record the explanation of the selected text",
		System:      annotationSystem,
		Text:        sb.String(),
		Schema:      annotationSchema,
	}
}

// ChatQuery is a single-turn chat message.
func ChatQuery(message string) Query {
	return Query{
		Function:        "get_response",
		Description:     "Get a response to the user's message",
		Text:            message,
		Schema:          chatSchema,
		MaxOutputTokens: ChatMaxOutputTokens,
	}
}

func writeContext(sb *strings.Builder, dc doctree.DocumentContext) {
	if dc.Title != "" {
		fmt.Fprintf(sb, "Article Title: %s\n", dc.Title)
	}
	if dc.Abstract != "" {
		fmt.Fprintf(sb, "Abstract: %s\n", dc.Abstract)
	}
	if h := dc.Headings(); len(h) > 0 {
		fmt.Fprintf(sb, "Sections: %s\n", strings.Join(h, " > "))
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
}

// Terms queries one chunk and returns the usable annotations plus the number
// of reply items that were dropped.
func (c *Client) Terms(ctx context.Context, dc doctree.DocumentContext, chunk doctree.Chunk, maxOutputTokens int) ([]doctree.TermAnnotation, int, error) {
	res, err := c.Query(ctx, TermsQuery(dc, chunk, maxOutputTokens))
	if err != nil {
		return nil, 0, err
	}
	terms, dropped := ParseTerms(res)
	return terms, dropped, nil
}

// Annotate explains a selection.
func (c *Client) Annotate(ctx context.Context, dc doctree.DocumentContext, selection string) (string, error) {
	res, err := c.Query(ctx, AnnotationQuery(dc, selection))
	if err != nil {
		return "", err
	}
	return res.String("annotation"), nil
}

// Chat sends one message and returns the reply.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	res, err := c.Query(ctx, ChatQuery(message))
	if err != nil {
		return "", err
	}
	return res.String("message"), nil
}

// Package loader builds Documents from files, URLs and rendered pages.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/docgloss/internal/document"
)

var ErrUnsupported = errors.New("unsupported document format")

// Loader converts raw document bytes into a Document.
type Loader interface {
	Load(r io.Reader, name string) (*document.Document, error)
}

// Options tunes format-specific behaviour.
type Options struct {
	FallbackPdftotext bool
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".xhtml":    true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate loader for a filename.
func ForFile(name string, opts Options) (Loader, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".txt":
		return treeLoader{&TextParser{}}, nil
	case ".md", ".markdown":
		return &MarkdownLoader{}, nil
	case ".csv":
		return treeLoader{&CSVParser{}}, nil
	case ".html", ".htm", ".xhtml":
		return &HTMLLoader{}, nil
	case ".pdf":
		return treeLoader{&PDFParser{FallbackPdftotext: opts.FallbackPdftotext}}, nil
	case ".docx":
		return treeLoader{&DOCXParser{}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(name string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(name))]
}

// Load picks a loader by file name and runs it.
func Load(r io.Reader, name string, opts Options) (*document.Document, error) {
	l, err := ForFile(name, opts)
	if err != nil {
		return nil, err
	}
	return l.Load(r, name)
}

// HTMLLoader parses HTML as is.
type HTMLLoader struct{}

func (HTMLLoader) Load(r io.Reader, _ string) (*document.Document, error) {
	doc, err := document.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// stem strips the directory and extension from a file name.
func stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// page wraps body HTML in a minimal document with a title.
func page(title string, body []byte) (*document.Document, error) {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(title))
	buf.WriteString("</title></head><body>\n")
	buf.Write(body)
	buf.WriteString("</body></html>\n")
	return document.Parse(&buf)
}

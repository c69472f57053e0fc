package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/dgallion1/docgloss/internal/document"
)

// Fetcher downloads documents over HTTP.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	opts       Options
}

// NewFetcher returns a Fetcher that refuses bodies above maxBytes.
func NewFetcher(maxBytes int64, opts Options) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxBytes:   maxBytes,
		opts:       opts,
	}
}

var contentTypeExt = map[string]string{
	"text/html":             ".html",
	"application/xhtml+xml": ".html",
	"text/markdown":         ".md",
	"text/x-markdown":       ".md",
	"text/plain":            ".txt",
	"text/csv":              ".csv",
	"application/pdf":       ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

// Fetch downloads rawURL and loads it by content type, falling back to the
// URL's file extension.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*document.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid document url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", u.Redacted(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Redacted(), err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", u.Redacted(), f.maxBytes)
	}

	name := path.Base(u.Path)
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if ext, ok := contentTypeExt[mt]; ok {
		name = stem(name) + ext
	} else if !IsSupportedExtension(name) {
		// Most pages without a usable type are HTML.
		name = stem(name) + ".html"
	}
	return Load(bytes.NewReader(body), name, f.opts)
}

package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docgloss/internal/document"
	"github.com/dgallion1/docgloss/internal/loader"
	"github.com/dgallion1/docgloss/internal/overlay"
	"github.com/dgallion1/docgloss/internal/store"
)

// handleCreateScan accepts either a multipart "file" or a "url" form field
// and queues a whole-document scan.
func (s *Server) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	// extra 1MB for form overhead
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()
	} else if err := r.ParseForm(); err != nil {
		jsonError(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}

	var (
		doc    *document.Document
		source string
		code   int
		err    error
	)
	if file, header, ferr := r.FormFile("file"); ferr == nil {
		defer file.Close()
		source = sanitizeFilename(header.Filename)
		doc, code, err = s.loadUpload(file, source)
	} else if u := strings.TrimSpace(r.FormValue("url")); u != "" {
		source = u
		doc, code, err = s.loadURL(r, u, r.FormValue("render") == "true")
	} else {
		jsonError(w, "file or url is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	scan := s.deps.Orchestrator.NewScan(source, doc)
	if err := s.deps.Orchestrator.Submit(scan); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	snap := scan.Snapshot()
	s.log.Info("scan queued", "scan_id", snap.ID, "doc_id", snap.DocID, "source", source, "subject", Subject(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"scan_id":  snap.ID,
		"doc_id":   snap.DocID,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/scans/%s", snap.ID),
	})
}

func (s *Server) loadUpload(file multipart.File, filename string) (*document.Document, int, error) {
	if !loader.IsSupportedExtension(filename) {
		return nil, http.StatusBadRequest, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, http.StatusInternalServerError, errors.New("failed to read file")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes)
	}
	doc, err := loader.Load(bytes.NewReader(data), filename, loader.Options{FallbackPdftotext: s.cfg.PDFFallbackPdftotext})
	if err != nil {
		return nil, http.StatusUnprocessableEntity, err
	}
	return doc, 0, nil
}

func (s *Server) loadURL(r *http.Request, u string, render bool) (*document.Document, int, error) {
	var (
		doc *document.Document
		err error
	)
	switch {
	case render && s.deps.Renderer != nil:
		doc, err = s.deps.Renderer.Render(r.Context(), u)
	case !render && s.deps.Fetcher != nil:
		doc, err = s.deps.Fetcher.Fetch(r.Context(), u)
	default:
		return nil, http.StatusNotImplemented, errors.New("url loading is not configured")
	}
	if err != nil {
		s.log.Warn("load url failed", "url", u, "render", render, "error", err)
		return nil, http.StatusBadGateway, err
	}
	return doc, 0, nil
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	if scan := s.deps.Orchestrator.GetScan(scanID); scan != nil {
		writeJSON(w, http.StatusOK, scan.Snapshot())
		return
	}

	// Expired from memory; fall back to the persisted report.
	if s.deps.Reports == nil {
		jsonError(w, "scan not found", http.StatusNotFound)
		return
	}
	rep, err := s.deps.Reports.Get(r.Context(), scanID)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "scan not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := "done"
	if rep.Cancelled {
		status = "cancelled"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan_id": rep.ScanID,
		"doc_id":  rep.DocID,
		"status":  status,
		"report":  rep,
	})
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	if s.deps.Orchestrator.GetScan(scanID) == nil {
		jsonError(w, "scan not found", http.StatusNotFound)
		return
	}
	if !s.deps.Orchestrator.Cancel(scanID) {
		jsonError(w, "scan already finished", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"scan_id": scanID,
		"status":  s.deps.Orchestrator.GetScan(scanID).Snapshot().Status,
	})
}

// handleScanDocument returns the annotated document with the definition
// view attached. The scan must have finished.
func (s *Server) handleScanDocument(w http.ResponseWriter, r *http.Request) {
	scan := s.deps.Orchestrator.GetScan(chi.URLParam(r, "scanID"))
	if scan == nil {
		jsonError(w, "scan not found", http.StatusNotFound)
		return
	}
	if !scan.Snapshot().Status.Terminal() {
		jsonError(w, "scan still running", http.StatusConflict)
		return
	}

	s.docMu.Lock()
	doc := scan.Document()
	overlay.AttachReveal(doc)
	out, err := doc.HTML()
	s.docMu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, out)
}

func sanitizeFilename(name string) string {
	// Keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}

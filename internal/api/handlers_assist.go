package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docgloss/internal/command"
	"github.com/dgallion1/docgloss/internal/document"
	"github.com/dgallion1/docgloss/internal/overlay"
)

// selectionRequest carries a document and an optional quote within it.
// Occurrence is zero-based.
type selectionRequest struct {
	HTML       string `json:"html"`
	Selection  string `json:"selection"`
	Occurrence int    `json:"occurrence"`
}

// decodeSelection parses the request document and locates the selection.
// A blank selection yields a nil Selection.
func (s *Server) decodeSelection(w http.ResponseWriter, r *http.Request) (*document.Document, *document.Selection, bool) {
	var req selectionRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	if req.HTML == "" {
		jsonError(w, "html is required", http.StatusBadRequest)
		return nil, nil, false
	}
	doc, err := document.ParseString(req.HTML)
	if err != nil {
		jsonError(w, "invalid html: "+err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	if req.Selection == "" {
		return doc, nil, true
	}
	sel, err := doc.Select(req.Selection, req.Occurrence)
	if err != nil {
		s.fail(w, r, err)
		return nil, nil, false
	}
	return doc, sel, true
}

func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	doc, sel, ok := s.decodeSelection(w, r)
	if !ok {
		return
	}
	ann, err := s.deps.Assistant.TriggerAnnotate(r.Context(), doc, sel)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ann)
}

// handleCommand dispatches a key combo against the posted document. When
// the command leaves markers in the document, the annotated HTML is
// returned alongside the result.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	combo, err := url.PathUnescape(chi.URLParam(r, "combo"))
	if err != nil {
		jsonError(w, "invalid combo", http.StatusBadRequest)
		return
	}
	doc, sel, ok := s.decodeSelection(w, r)
	if !ok {
		return
	}

	out, err := s.deps.Assistant.Dispatch(r.Context(), combo, command.Event{Combo: combo, Doc: doc, Selection: sel})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := map[string]any{"combo": combo, "result": out}
	if overlay.AttachReveal(doc) > 0 {
		html, err := doc.HTML()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp["html"] = html
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"combos": s.deps.Assistant.Combos()})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	reply, err := s.deps.Assistant.Chat(r.Context(), req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

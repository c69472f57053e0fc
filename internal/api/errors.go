package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/docgloss/internal/assistant"
	"github.com/dgallion1/docgloss/internal/command"
	"github.com/dgallion1/docgloss/internal/document"
	"github.com/dgallion1/docgloss/internal/model"
	"github.com/dgallion1/docgloss/internal/pipeline"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, assistant.ErrEmptySelection),
		errors.Is(err, assistant.ErrEmptyMessage),
		errors.Is(err, command.ErrInvalidCombo):
		return http.StatusBadRequest
	case errors.Is(err, command.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, document.ErrNotFound),
		errors.Is(err, assistant.ErrNoAuthorEmail):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrScanInProgress):
		return http.StatusConflict
	case model.IsTransport(err), model.IsMalformed(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	jsonError(w, err.Error(), code)
}

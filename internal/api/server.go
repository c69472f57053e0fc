package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/docgloss/internal/assistant"
	"github.com/dgallion1/docgloss/internal/auth"
	"github.com/dgallion1/docgloss/internal/config"
	"github.com/dgallion1/docgloss/internal/document"
	"github.com/dgallion1/docgloss/internal/model"
	"github.com/dgallion1/docgloss/internal/pipeline"
)

// Fetcher downloads a document. *loader.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*document.Document, error)
}

// Renderer loads a page in a browser. *loader.Renderer implements it.
type Renderer interface {
	Render(ctx context.Context, url string) (*document.Document, error)
}

// ModelInfo exposes model stats. *model.Client implements it.
type ModelInfo interface {
	Stats() *model.LLMStats
	Model() string
	ProviderName() string
}

// ReportReader looks up persisted reports. *store.ReportStore implements it.
type ReportReader interface {
	Get(ctx context.Context, scanID string) (pipeline.Report, error)
}

// Deps are the services behind the API. Fetcher, Renderer, Model and
// Reports may be nil.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Assistant    *assistant.Assistant
	Fetcher      Fetcher
	Renderer     Renderer
	Model        ModelInfo
	Reports      ReportReader
}

// Server is the HTTP API server for docgloss.
type Server struct {
	router chi.Router
	deps   Deps
	tokens *auth.Tokens
	log    *slog.Logger
	cfg    config.Config

	// docMu serializes work on stored scan documents.
	docMu sync.Mutex
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps:   deps,
		tokens: auth.NewTokens(cfg.JWTSecret),
		log:    log,
		cfg:    cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.DocglossAPIKey, s.tokens, s.log))

		r.Post("/api/scans", s.handleCreateScan)
		r.Get("/api/scans/{scanID}", s.handleScanStatus)
		r.Delete("/api/scans/{scanID}", s.handleCancelScan)
		r.Get("/api/scans/{scanID}/document", s.handleScanDocument)

		r.Post("/api/annotate", s.handleAnnotate)
		r.Post("/api/commands/{combo}", s.handleCommand)
		r.Get("/api/commands", s.handleListCommands)
		r.Post("/api/chat", s.handleChat)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

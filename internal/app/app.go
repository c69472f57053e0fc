// Package app wires configuration into the running services shared by the
// server and the command line tool.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docgloss/internal/analytics"
	"github.com/dgallion1/docgloss/internal/assistant"
	"github.com/dgallion1/docgloss/internal/chunker"
	"github.com/dgallion1/docgloss/internal/config"
	"github.com/dgallion1/docgloss/internal/lock"
	"github.com/dgallion1/docgloss/internal/loader"
	"github.com/dgallion1/docgloss/internal/model"
	"github.com/dgallion1/docgloss/internal/pipeline"
	"github.com/dgallion1/docgloss/internal/store"
)

// App holds the wired services. Reports is nil without DATABASE_URL.
type App struct {
	Model        *model.Client
	Orchestrator *pipeline.Orchestrator
	Assistant    *assistant.Assistant
	Tracker      *analytics.Tracker
	Reports      *store.ReportStore
	Fetcher      *loader.Fetcher
	Renderer     *loader.Renderer

	closers []func()
}

// ScanOptions maps configuration onto pipeline options.
func ScanOptions(cfg config.Config) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Chunking = chunker.Config{WordsPerUnit: cfg.WordsPerPage, Units: cfg.PagesPerChunk}
	opts.Concurrency = cfg.ScanConcurrency
	opts.MaxRetries = cfg.ScanMaxRetries
	opts.MaxOutputTokens = cfg.MaxOutputTokens
	opts.ScanTimeout = cfg.ScanTimeout
	opts.WorkerCount = cfg.WorkerCount
	opts.MaxQueueSize = cfg.MaxQueueSize
	opts.ScanTTL = cfg.ScanTTL
	return opts
}

// LoaderOptions maps configuration onto loader options.
func LoaderOptions(cfg config.Config) loader.Options {
	return loader.Options{FallbackPdftotext: cfg.PDFFallbackPdftotext}
}

// Build connects the optional backends and wires the services. The caller
// starts the orchestrator and must call Close.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{}

	client, err := model.New(ctx, model.Config{
		Provider:        cfg.ModelProvider,
		Model:           cfg.ModelName,
		BaseURL:         cfg.ModelBaseURL,
		APIKey:          cfg.ModelAPIKey,
		Timeout:         cfg.ModelTimeout,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}, log)
	if err != nil {
		return nil, err
	}
	a.Model = client
	a.closers = append(a.closers, client.Close)

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		r, err := lock.Open(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		log.Info("using redis scan lock", "owner", r.OwnerID())
		locker = r
		a.closers = append(a.closers, func() { r.Close() })
	}

	var saver pipeline.ReportSaver
	if cfg.DatabaseURL != "" {
		reports, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("report store: %w", err)
		}
		a.Reports = reports
		saver = reports
		a.closers = append(a.closers, reports.Close)
	}

	a.Orchestrator = pipeline.NewOrchestrator(ScanOptions(cfg), client, locker, saver, log)

	a.Tracker = analytics.NewTracker(cfg.AnalyticsEndpoint, log)
	a.closers = append(a.closers, a.Tracker.Close)

	a.Assistant = assistant.New(a.Orchestrator, client, a.Tracker, log)
	if err := a.Assistant.RegisterDefaults(assistant.Bindings(cfg.Keybindings)); err != nil {
		a.Close()
		return nil, err
	}

	a.Fetcher = loader.NewFetcher(cfg.MaxUploadBytes, LoaderOptions(cfg))
	a.Renderer = &loader.Renderer{Timeout: 60 * time.Second}
	return a, nil
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

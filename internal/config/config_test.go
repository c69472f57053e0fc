package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every key Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DOCGLOSS_CONFIG", "PORT", "DOCGLOSS_API_KEY", "DOCGLOSS_JWT_SECRET", "MODEL_PROVIDER", "MODEL_NAME",
		"MODEL_BASE_URL", "MODEL_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY",
		"MODEL_TIMEOUT", "MAX_OUTPUT_TOKENS", "WORDS_PER_PAGE", "PAGES_PER_CHUNK",
		"SCAN_CONCURRENCY", "SCAN_MAX_RETRIES", "SCAN_TIMEOUT", "SCAN_TTL", "WORKER_COUNT",
		"MAX_QUEUE_SIZE", "MAX_UPLOAD_BYTES", "REDIS_URL", "DATABASE_URL", "ANALYTICS_ENDPOINT",
		"PDF_FALLBACK_PDFTOTEXT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8090" {
		t.Errorf("expected port 8090, got %q", cfg.Port)
	}
	if cfg.ModelProvider != "anthropic" {
		t.Errorf("expected anthropic provider, got %q", cfg.ModelProvider)
	}
	if cfg.WordsPerPage != 500 || cfg.PagesPerChunk != 4 {
		t.Errorf("unexpected chunking %d x %d", cfg.WordsPerPage, cfg.PagesPerChunk)
	}
	if cfg.ScanConcurrency != 1 || cfg.ScanMaxRetries != 3 {
		t.Errorf("unexpected scan settings %d, %d", cfg.ScanConcurrency, cfg.ScanMaxRetries)
	}
	if cfg.ModelTimeout != 120*time.Second {
		t.Errorf("expected 120s timeout, got %v", cfg.ModelTimeout)
	}
	want := Keybindings{Annotate: "shift+a", Scan: "shift+s", Email: "shift+e"}
	if cfg.Keybindings != want {
		t.Errorf("expected default keybindings, got %+v", cfg.Keybindings)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if err := cfg.ValidateServer(); err == nil {
		t.Error("expected server validation to require an api key or token secret")
	}
	cfg.JWTSecret = "k"
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("token secret alone should validate: %v", err)
	}
}

func TestLoad_ProviderKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ModelAPIKey != "sk-openai" {
		t.Errorf("expected provider key, got %q", cfg.ModelAPIKey)
	}

	t.Setenv("MODEL_API_KEY", "explicit")
	cfg, _ = Load()
	if cfg.ModelAPIKey != "explicit" {
		t.Errorf("expected MODEL_API_KEY to win, got %q", cfg.ModelAPIKey)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "docgloss.yaml")
	data := `
model:
  provider: ollama
  name: llama3.1
  timeout: 30s
chunking:
  words_per_page: 250
scan:
  concurrency: 4
  max_retries: 0
keybindings:
  annotate: ctrl+shift+a
  scan: ""
  email: shift+e
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCGLOSS_CONFIG", path)
	t.Setenv("SCAN_CONCURRENCY", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ModelProvider != "ollama" || cfg.ModelName != "llama3.1" {
		t.Errorf("unexpected model %q/%q", cfg.ModelProvider, cfg.ModelName)
	}
	if cfg.ModelTimeout != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.ModelTimeout)
	}
	if cfg.WordsPerPage != 250 || cfg.PagesPerChunk != 4 {
		t.Errorf("unexpected chunking %d x %d", cfg.WordsPerPage, cfg.PagesPerChunk)
	}
	if cfg.ScanConcurrency != 2 {
		t.Errorf("expected env to override file, got %d", cfg.ScanConcurrency)
	}
	if cfg.ScanMaxRetries != 0 {
		t.Errorf("expected explicit zero retries, got %d", cfg.ScanMaxRetries)
	}
	if cfg.Keybindings.Annotate != "ctrl+shift+a" || cfg.Keybindings.Scan != "" {
		t.Errorf("unexpected keybindings %+v", cfg.Keybindings)
	}
}

func TestLoad_BadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCGLOSS_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Error("expected parse error")
	}

	t.Setenv("DOCGLOSS_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected read error")
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_PROVIDER", "watson")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected unknown provider error")
	}
}

func TestValidate_ChunkSizeOverflow(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_PROVIDER", "ollama")
	t.Setenv("WORDS_PER_PAGE", "1073741824")
	t.Setenv("PAGES_PER_CHUNK", "4")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("expected chunk size overflow error, got %v", err)
	}
}

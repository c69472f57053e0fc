package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string

	// Auth. Either a static key or signed tokens.
	DocglossAPIKey string
	JWTSecret      string

	// Model provider
	ModelProvider   string
	ModelName       string
	ModelBaseURL    string
	ModelAPIKey     string
	ModelTimeout    time.Duration
	MaxOutputTokens int

	// Chunking
	WordsPerPage  int
	PagesPerChunk int

	// Scans
	ScanConcurrency int
	ScanMaxRetries  int
	ScanTimeout     time.Duration
	ScanTTL         time.Duration

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Optional backends
	RedisURL          string
	DatabaseURL       string
	AnalyticsEndpoint string

	// PDF
	PDFFallbackPdftotext bool

	Keybindings Keybindings
}

// Keybindings names the combos of the built-in commands. An empty combo
// leaves the command unbound.
type Keybindings struct {
	Annotate string `yaml:"annotate"`
	Scan     string `yaml:"scan"`
	Email    string `yaml:"email"`
}

// File is the optional YAML config named by DOCGLOSS_CONFIG. Environment
// variables take precedence over it.
type File struct {
	Model struct {
		Provider        string `yaml:"provider"`
		Name            string `yaml:"name"`
		BaseURL         string `yaml:"base_url"`
		Timeout         string `yaml:"timeout"`
		MaxOutputTokens int    `yaml:"max_output_tokens"`
	} `yaml:"model"`
	Chunking struct {
		WordsPerPage  int `yaml:"words_per_page"`
		PagesPerChunk int `yaml:"pages_per_chunk"`
	} `yaml:"chunking"`
	Scan struct {
		Concurrency int    `yaml:"concurrency"`
		MaxRetries  *int   `yaml:"max_retries"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"scan"`
	Keybindings *Keybindings `yaml:"keybindings"`
}

// ReadFile parses a YAML config file.
func ReadFile(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return f, nil
}

var providerKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// Load reads the YAML file named by DOCGLOSS_CONFIG, if any, then the
// environment.
func Load() (Config, error) {
	var f File
	if path := os.Getenv("DOCGLOSS_CONFIG"); path != "" {
		var err error
		if f, err = ReadFile(path); err != nil {
			return Config{}, err
		}
	}

	kb := Keybindings{Annotate: "shift+a", Scan: "shift+s", Email: "shift+e"}
	if f.Keybindings != nil {
		kb = *f.Keybindings
	}
	maxRetries := 3
	if f.Scan.MaxRetries != nil {
		maxRetries = *f.Scan.MaxRetries
	}

	cfg := Config{
		Port: envOr("PORT", "8090"),

		DocglossAPIKey: os.Getenv("DOCGLOSS_API_KEY"),
		JWTSecret:      os.Getenv("DOCGLOSS_JWT_SECRET"),

		ModelProvider:   envOr("MODEL_PROVIDER", or(f.Model.Provider, "anthropic")),
		ModelName:       envOr("MODEL_NAME", f.Model.Name),
		ModelBaseURL:    envOr("MODEL_BASE_URL", f.Model.BaseURL),
		ModelTimeout:    envDuration("MODEL_TIMEOUT", parseDuration(f.Model.Timeout, 120*time.Second)),
		MaxOutputTokens: envInt("MAX_OUTPUT_TOKENS", or(f.Model.MaxOutputTokens, 4096)),

		WordsPerPage:  envInt("WORDS_PER_PAGE", or(f.Chunking.WordsPerPage, 500)),
		PagesPerChunk: envInt("PAGES_PER_CHUNK", or(f.Chunking.PagesPerChunk, 4)),

		ScanConcurrency: envInt("SCAN_CONCURRENCY", or(f.Scan.Concurrency, 1)),
		ScanMaxRetries:  envInt("SCAN_MAX_RETRIES", maxRetries),
		ScanTimeout:     envDuration("SCAN_TIMEOUT", parseDuration(f.Scan.Timeout, 0)),
		ScanTTL:         envDuration("SCAN_TTL", 1*time.Hour),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 50),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		RedisURL:          os.Getenv("REDIS_URL"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AnalyticsEndpoint: os.Getenv("ANALYTICS_ENDPOINT"),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		Keybindings: kb,
	}
	cfg.ModelAPIKey = os.Getenv("MODEL_API_KEY")
	if cfg.ModelAPIKey == "" {
		if key, ok := providerKeyEnv[cfg.ModelProvider]; ok {
			cfg.ModelAPIKey = os.Getenv(key)
		}
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.ScanConcurrency <= 0 {
		cfg.ScanConcurrency = 1
	}
	if cfg.ScanMaxRetries < 0 {
		cfg.ScanMaxRetries = 0
	}
	if cfg.ScanTTL <= 0 {
		cfg.ScanTTL = 1 * time.Hour
	}
	return cfg, nil
}

// Validate checks settings shared by every entry point.
func (c Config) Validate() error {
	switch c.ModelProvider {
	case "anthropic", "openai", "gemini", "ollama":
	default:
		return fmt.Errorf("MODEL_PROVIDER %q is not one of anthropic, openai, gemini, ollama", c.ModelProvider)
	}
	if c.WordsPerPage <= 0 || c.PagesPerChunk <= 0 {
		return fmt.Errorf("WORDS_PER_PAGE and PAGES_PER_CHUNK must be positive")
	}
	if c.WordsPerPage > math.MaxInt32/c.PagesPerChunk {
		return fmt.Errorf("WORDS_PER_PAGE * PAGES_PER_CHUNK exceeds %d", math.MaxInt32)
	}
	return nil
}

// ValidateServer also requires the settings the HTTP server needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DocglossAPIKey == "" && c.JWTSecret == "" {
		return fmt.Errorf("DOCGLOSS_API_KEY or DOCGLOSS_JWT_SECRET is required")
	}
	return nil
}

func or[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

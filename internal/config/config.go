package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	LinkerAPIKey string

	// Reference matcher
	MatcherURL     string
	MatcherAPIKey  string
	MatcherTimeout time.Duration

	// Reference cache (optional)
	RedisURL    string
	RefCacheTTL time.Duration

	// Extraction
	HostSelectorsFile string

	// Locator
	MaxWordsAround  int
	MaxSearchLength int

	// Popup placement
	ViewportWidth  float64
	ViewportHeight float64

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Fetching pages by URL
	FetchTimeout time.Duration

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		LinkerAPIKey: os.Getenv("LINKER_API_KEY"),

		MatcherURL:     envOr("MATCHER_URL", "https://www.sefaria.org"),
		MatcherAPIKey:  os.Getenv("MATCHER_API_KEY"),
		MatcherTimeout: envDuration("MATCHER_TIMEOUT", 30*time.Second),

		RedisURL:    os.Getenv("REDIS_URL"),
		RefCacheTTL: envDuration("REF_CACHE_TTL", 24*time.Hour),

		HostSelectorsFile: os.Getenv("HOST_SELECTORS_FILE"),

		MaxWordsAround:  envInt("MAX_WORDS_AROUND", 10),
		MaxSearchLength: envInt("MAX_SEARCH_LENGTH", 30),

		ViewportWidth:  envFloat("VIEWPORT_WIDTH", 1280),
		ViewportHeight: envFloat("VIEWPORT_HEIGHT", 800),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		FetchTimeout: envDuration("FETCH_TIMEOUT", 20*time.Second),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.MatcherTimeout <= 0 {
		cfg.MatcherTimeout = 30 * time.Second
	}
	if cfg.RefCacheTTL <= 0 {
		cfg.RefCacheTTL = 24 * time.Hour
	}
	if cfg.MaxWordsAround <= 0 {
		cfg.MaxWordsAround = 10
	}
	if cfg.MaxSearchLength <= 0 {
		cfg.MaxSearchLength = 30
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1280
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 800
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.LinkerAPIKey == "" {
		return fmt.Errorf("LINKER_API_KEY is required")
	}
	u, err := url.Parse(c.MatcherURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("MATCHER_URL must be an absolute URL, got %q", c.MatcherURL)
	}
	return nil
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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

package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds enrichment pipeline configuration.
type Config struct {
	// Upstream endpoints.
	OpenLibraryBaseURL string
	FallbackBaseURL    string

	// Per-source request timeouts.
	BookTimeout     time.Duration
	SearchTimeout   time.Duration
	FallbackTimeout time.Duration

	// Pacing. Delay applies between items for cooperative sources; the
	// fallback host gets a wide randomized delay because it actively
	// blocks bursty traffic.
	Delay            time.Duration
	FallbackDelayMin time.Duration
	FallbackDelayMax time.Duration

	// Batch shape.
	BatchSize        int
	MaxFallbackItems int
	UseFallback      bool
	MaxRetries       int

	// Cover storage.
	MaxCoverBytes int64
	CoverDir      string

	DatabasePath string
	InputFile    string
	UserAgent    string
	MetricsAddr  string
	Verbose      bool
}

// DefaultConfig returns conservative defaults tuned for courteous batch runs.
func DefaultConfig() *Config {
	return &Config{
		OpenLibraryBaseURL: "https://openlibrary.org",
		FallbackBaseURL:    "https://www.amazon.com",
		BookTimeout:        15 * time.Second,
		SearchTimeout:      15 * time.Second,
		FallbackTimeout:    20 * time.Second,
		Delay:              700 * time.Millisecond,
		FallbackDelayMin:   5 * time.Minute,
		FallbackDelayMax:   15 * time.Minute,
		BatchSize:          50,
		MaxFallbackItems:   30,
		UseFallback:        false,
		MaxRetries:         2,
		MaxCoverBytes:      5 << 20,
		CoverDir:           "data/covers",
		DatabasePath:       "data/catalog.db",
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		MetricsAddr:        "",
		Verbose:            false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	for _, base := range []struct {
		name  string
		value string
	}{
		{name: "openlibrary base URL", value: c.OpenLibraryBaseURL},
		{name: "fallback base URL", value: c.FallbackBaseURL},
	} {
		if base.value == "" {
			return fmt.Errorf("%s cannot be empty", base.name)
		}
		parsed, err := url.Parse(base.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", base.name, err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("%s must include a host", base.name)
		}
	}

	if c.BookTimeout <= 0 || c.SearchTimeout <= 0 || c.FallbackTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.FallbackDelayMin < 0 {
		return fmt.Errorf("fallback delay min cannot be negative")
	}
	if c.FallbackDelayMax < c.FallbackDelayMin {
		return fmt.Errorf("fallback delay max (%s) cannot be below min (%s)", c.FallbackDelayMax, c.FallbackDelayMin)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxFallbackItems <= 0 {
		return fmt.Errorf("max fallback items must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.MaxCoverBytes <= 0 {
		return fmt.Errorf("max cover bytes must be positive")
	}
	if c.CoverDir == "" {
		return fmt.Errorf("cover directory cannot be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

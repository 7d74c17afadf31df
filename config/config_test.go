package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty openlibrary url",
			mutate: func(cfg *Config) {
				cfg.OpenLibraryBaseURL = ""
			},
			wantErr: "openlibrary base URL",
		},
		{
			name: "hostless fallback url",
			mutate: func(cfg *Config) {
				cfg.FallbackBaseURL = "http://"
			},
			wantErr: "fallback base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.BookTimeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "negative delay",
			mutate: func(cfg *Config) {
				cfg.Delay = -1 * time.Millisecond
			},
			wantErr: "delay",
		},
		{
			name: "fallback delay range inverted",
			mutate: func(cfg *Config) {
				cfg.FallbackDelayMin = time.Minute
				cfg.FallbackDelayMax = time.Second
			},
			wantErr: "fallback delay max",
		},
		{
			name: "zero batch size",
			mutate: func(cfg *Config) {
				cfg.BatchSize = 0
			},
			wantErr: "batch size",
		},
		{
			name: "zero cover cap",
			mutate: func(cfg *Config) {
				cfg.MaxCoverBytes = 0
			},
			wantErr: "max cover bytes",
		},
		{
			name: "empty database path",
			mutate: func(cfg *Config) {
				cfg.DatabasePath = ""
			},
			wantErr: "database path",
		},
		{
			name: "empty user agent",
			mutate: func(cfg *Config) {
				cfg.UserAgent = ""
			},
			wantErr: "user agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("ENRICH_TEST_INT", "42")
	t.Setenv("ENRICH_TEST_STR", "hello")
	t.Setenv("ENRICH_TEST_DUR", "750ms")
	t.Setenv("ENRICH_TEST_BAD", "nope")

	if v, ok, err := EnvInt("ENRICH_TEST_INT"); err != nil || !ok || v != 42 {
		t.Fatalf("EnvInt = %d/%v/%v", v, ok, err)
	}
	if _, ok, err := EnvInt("ENRICH_TEST_MISSING"); ok || err != nil {
		t.Fatalf("missing env should report ok=false, got %v/%v", ok, err)
	}
	if _, _, err := EnvInt("ENRICH_TEST_BAD"); err == nil {
		t.Fatalf("expected parse error for non-integer")
	}
	if v, ok := EnvString("ENRICH_TEST_STR"); !ok || v != "hello" {
		t.Fatalf("EnvString = %q/%v", v, ok)
	}
	if v, ok, err := EnvDuration("ENRICH_TEST_DUR"); err != nil || !ok || v != 750*time.Millisecond {
		t.Fatalf("EnvDuration = %v/%v/%v", v, ok, err)
	}
}

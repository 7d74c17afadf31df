package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookenrich/config"
	"bookenrich/covers"
	"bookenrich/enrich"
	"bookenrich/models"
	"bookenrich/ratelimit"
	"bookenrich/report"
	"bookenrich/source"
	"bookenrich/store"
)

func main() {
	defaultCfg := config.DefaultConfig()
	inputDefault := defaultCfg.InputFile
	if value, ok := config.EnvString("ENRICH_INPUT"); ok {
		inputDefault = value
	}
	dbDefault := defaultCfg.DatabasePath
	if value, ok := config.EnvString("ENRICH_DB"); ok {
		dbDefault = value
	}
	coverDirDefault := defaultCfg.CoverDir
	if value, ok := config.EnvString("ENRICH_COVER_DIR"); ok {
		coverDirDefault = value
	}
	batchDefault := defaultCfg.BatchSize
	if value, ok, err := config.EnvInt("ENRICH_BATCH"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid ENRICH_BATCH: %v\n", err)
		os.Exit(1)
	} else if ok {
		batchDefault = value
	}
	delayDefault := defaultCfg.Delay
	if value, ok, err := config.EnvDuration("ENRICH_DELAY"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid ENRICH_DELAY: %v\n", err)
		os.Exit(1)
	} else if ok {
		delayDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("ENRICH_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	inputFile := flag.String("input", inputDefault, "Catalog CSV with isbn13/isbn10 columns to seed the queue")
	dbPath := flag.String("db", dbDefault, "SQLite database path")
	coverDir := flag.String("cover-dir", coverDirDefault, "Directory for downloaded cover assets")
	batchSize := flag.Int("batch", batchDefault, "Maximum identifiers per run")
	delay := flag.Duration("delay", delayDefault, "Minimum delay between requests to cooperative hosts")
	useFallback := flag.Bool("use-fallback", defaultCfg.UseFallback, "Scrape the marketplace listing when the primary source has no entry")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per request")
	reportFile := flag.String("report", "", "Per-item outcome report path (empty disables)")
	reportFormat := flag.String("format", "csv", "Report format: csv, jsonl, or dual")
	baseURL := flag.String("base-url", defaultCfg.OpenLibraryBaseURL, "Primary metadata API base URL")
	fallbackURL := flag.String("fallback-url", defaultCfg.FallbackBaseURL, "Fallback listing base URL")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.OpenLibraryBaseURL = *baseURL
	cfg.FallbackBaseURL = *fallbackURL
	cfg.Delay = *delay
	cfg.BatchSize = *batchSize
	cfg.UseFallback = *useFallback
	cfg.MaxRetries = *maxRetries
	cfg.CoverDir = *coverDir
	cfg.DatabasePath = *dbPath
	cfg.InputFile = *inputFile
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing the current item")
	}()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("opening catalog database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("close store", slog.Any("error", err))
		}
	}()

	if cfg.InputFile != "" {
		pairs, err := enrich.LoadIdentifiers(cfg.InputFile)
		if err != nil {
			slog.Error("loading input file", slog.Any("error", err))
			os.Exit(1)
		}
		created, err := enrich.Seed(ctx, st, pairs)
		if err != nil {
			slog.Error("seeding catalog", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("catalog seeded",
			slog.String("input", cfg.InputFile),
			slog.Int("rows", len(pairs)),
			slog.Int("created", created),
		)
	}

	pending, err := st.ListPending(ctx, cfg.BatchSize)
	if err != nil {
		slog.Error("listing pending records", slog.Any("error", err))
		os.Exit(1)
	}
	if len(pending) == 0 {
		slog.Info("nothing to enrich")
		return
	}

	metrics := enrich.NewMetrics()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	// All primary-host traffic shares one token so book, search, work, and
	// cover requests never burst together.
	primaryLimiter := ratelimit.NewFixed(cfg.Delay)

	primary := source.NewPrimary(cfg.OpenLibraryBaseURL, cfg.UserAgent, cfg.BookTimeout, primaryLimiter, cfg.MaxRetries)
	social := source.NewSocial(cfg.OpenLibraryBaseURL, cfg.UserAgent, cfg.SearchTimeout, primaryLimiter, cfg.MaxRetries)
	descriptions, err := source.NewDescriptions(cfg.OpenLibraryBaseURL, cfg.UserAgent, cfg.BookTimeout, primaryLimiter, cfg.MaxRetries)
	if err != nil {
		slog.Error("initialising description source", slog.Any("error", err))
		os.Exit(1)
	}

	var fallback enrich.FallbackSource
	if cfg.UseFallback {
		fb, err := source.NewFallback(cfg.FallbackBaseURL, cfg.UserAgent, cfg.FallbackTimeout, cfg.MaxFallbackItems,
			ratelimit.NewRandomDelay(cfg.FallbackDelayMin, cfg.FallbackDelayMax))
		if err != nil {
			slog.Error("initialising fallback source", slog.Any("error", err))
			os.Exit(1)
		}
		fallback = fb
	}

	coverFetcher := covers.NewFetcher(cfg.CoverDir, cfg.UserAgent, cfg.MaxCoverBytes, cfg.BookTimeout, primaryLimiter)

	writer, err := createWriter(*reportFormat, *reportFile)
	if err != nil {
		slog.Error("creating report writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close report writer", slog.Any("error", err))
		}
	}()

	orch := enrich.NewOrchestrator(primary, social, social, descriptions, fallback, st, coverFetcher, metrics)
	runner := enrich.NewRunner(orch, st, ratelimit.NewFixed(cfg.Delay), writer, metrics)

	slog.Info("starting enrichment run",
		slog.Int("pending", len(pending)),
		slog.Bool("fallback", cfg.UseFallback),
		slog.String("database", cfg.DatabasePath),
	)

	summary, runErr := runner.Run(ctx, pending)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(summary)

	if runErr != nil && summary.StopReason == enrich.StopBlocked {
		os.Exit(2)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}
}

func createWriter(format, filename string) (report.Writer, error) {
	if filename == "" {
		return report.Discard{}, nil
	}
	switch strings.ToLower(format) {
	case "csv":
		return report.NewCSVWriter(filename)
	case "jsonl":
		return report.NewJSONLWriter(filename)
	case "dual":
		jsonlFilename := strings.TrimSuffix(filename, ".csv") + ".jsonl"
		return report.NewDualWriter(filename, jsonlFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(summary models.RunSummary) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Enrichment run complete")
	fmt.Printf("  Processed:    %d\n", summary.Processed)
	fmt.Printf("  Enriched:     %d\n", summary.Enriched)
	fmt.Printf("  Failed:       %d\n", summary.Failed)
	fmt.Printf("  Skipped:      %d\n", summary.Skipped)
	fmt.Printf("  Stop reason:  %s\n", summary.StopReason)
	fmt.Printf("  Duration:     %v\n", summary.EndTime.Sub(summary.StartTime).Round(time.Millisecond))
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

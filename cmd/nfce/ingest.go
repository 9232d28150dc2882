package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jgoriasilva/nfs/config"
	"github.com/jgoriasilva/nfs/models"
	"github.com/jgoriasilva/nfs/pipeline"
	"github.com/jgoriasilva/nfs/scraper"
	"github.com/jgoriasilva/nfs/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newIngestCommand() *cobra.Command {
	cfg := config.DefaultConfig()
	envErr := cfg.FromEnv()

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch every receipt URL and merge new receipts into the tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return fmt.Errorf("invalid environment: %w", envErr)
			}
			cfg.Backend = strings.ToLower(cfg.Backend)
			cfg.Source = strings.ToLower(cfg.Source)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runIngest(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.URLsFile, "urls", cfg.URLsFile, "File with one receipt URL per line")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding the csv tables")
	flags.StringVar(&cfg.Backend, "backend", cfg.Backend, "Storage backend: csv or sqlite")
	flags.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "SQLite database file for the sqlite backend")
	flags.StringVar(&cfg.Source, "source", cfg.Source, "Page source: http or browser")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Maximum wait for a page to load")
	flags.StringVar(&cfg.WaitSelector, "wait-selector", cfg.WaitSelector, "CSS selector the browser source waits for")
	flags.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run the browser source headless")
	flags.StringVar(&cfg.BrowserPath, "browser-path", cfg.BrowserPath, "Chrome executable for the browser source")
	flags.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User agent sent with page requests")
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Retries per URL for timeouts, connection errors and rate limits")
	flags.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	flags.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	flags.IntVar(&cfg.StoreCacheSize, "store-cache", cfg.StoreCacheSize, "Store lookup cache entries")
	flags.BoolVar(&cfg.EagerStoreFlush, "eager-stores", cfg.EagerStoreFlush, "Write the store table on every new store")
	flags.BoolVar(&cfg.Checkpoint, "checkpoint", cfg.Checkpoint, "Write purchases and ledger after every receipt")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.StringVar(&cfg.ReportFile, "report", cfg.ReportFile, "Write a JSON run report to this file")

	return cmd
}

func runIngest(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	urls, err := pipeline.ReadURLsFile(cfg.URLsFile)
	if err != nil {
		return err
	}

	tables, err := storage.Open(cfg.Backend, cfg.StorageLocation())
	if err != nil {
		return fmt.Errorf("open tables: %w", err)
	}
	defer func() {
		if err := tables.Close(); err != nil {
			slog.Error("close tables", slog.Any("error", err))
		}
	}()

	source, err := scraper.New(cfg)
	if err != nil {
		return fmt.Errorf("initialising page source: %w", err)
	}
	defer func() {
		if err := source.Close(); err != nil {
			slog.Error("close page source", slog.Any("error", err))
		}
	}()

	metrics := pipeline.NewMetrics()
	p, err := pipeline.New(source, tables, pipeline.Options{
		StoreCacheSize:  cfg.StoreCacheSize,
		DeferStoreFlush: !cfg.EagerStoreFlush,
		Checkpoint:      cfg.Checkpoint,
		Metrics:         metrics,
	})
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	slog.Info("starting ingestion",
		slog.Int("urls", len(urls)),
		slog.String("source", cfg.Source),
		slog.String("backend", cfg.Backend),
		slog.String("location", cfg.StorageLocation()),
	)

	result, runErr := p.IngestAll(ctx, urls)
	if result != nil && cfg.ReportFile != "" {
		if err := storage.WriteReport(cfg.ReportFile, result); err != nil {
			slog.Error("write report", slog.Any("error", err))
		}
	}
	if runErr != nil {
		return fmt.Errorf("ingestion failed: %w", runErr)
	}

	printSummary(out, result, len(p.Stores()), len(p.Purchases()), len(p.Ledger()))
	return nil
}

func printSummary(w io.Writer, result *models.RunResult, stores, purchases, receipts int) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	if result.Interrupted {
		fmt.Fprintln(w, "Ingestion interrupted")
	} else {
		fmt.Fprintln(w, "Ingestion complete")
	}
	fmt.Fprintf(w, "  URLs:          %d\n", result.URLCount)
	fmt.Fprintf(w, "  Parsed:        %d\n", result.ParsedCount)
	fmt.Fprintf(w, "  Skipped:       %d\n", result.SkippedCount)
	fmt.Fprintf(w, "  Failed:        %d\n", result.FailedCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Fprintf(w, "  Items added:   %d (%d raw values)\n", result.ItemCount, result.RawValues)
	fmt.Fprintf(w, "  New stores:    %d\n", result.NewStores)
	fmt.Fprintf(w, "  Retries:       %d\n", result.RetryCount)
	fmt.Fprintf(w, "  Totals:        %d stores, %d purchases, %d receipts\n", stores, purchases, receipts)
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Fprintln(w, separator)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-categories/config"
	"github.com/aluiziolira/go-scrape-categories/models"
	"github.com/aluiziolira/go-scrape-categories/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	envErr := applyEnv(cfg)

	cmd := &cobra.Command{
		Use:           "scraper",
		Short:         "Crawl every catalogue category into per-category CSV files and image folders",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				fmt.Fprintf(os.Stderr, "invalid environment: %v\n", envErr)
				return envErr
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.RootURL, "root-url", cfg.RootURL, "Catalogue root URL ($SCRAPER_ROOT_URL)")
	flags.StringSliceVar(&cfg.Categories, "category", cfg.Categories, "Only crawl these categories (repeatable)")
	flags.IntVar(&cfg.MaxPages, "max-pages", cfg.MaxPages, "Maximum listing pages per category ($SCRAPER_PAGES)")
	flags.IntVar(&cfg.Parallelism, "parallel", cfg.Parallelism, "Concurrent item extractions per category ($SCRAPER_PARALLEL)")
	flags.IntVar(&cfg.ImageWorkers, "image-workers", cfg.ImageWorkers, "Concurrent image downloads with --async-images")
	flags.BoolVar(&cfg.AsyncImages, "async-images", cfg.AsyncImages, "Download images in the background")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout ($SCRAPER_TIMEOUT)")
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Retry attempts for transient fetch errors")
	flags.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	flags.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	flags.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	flags.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for output files and image folders ($SCRAPER_OUTPUT_DIR)")
	flags.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, or dual")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address, e.g. :9090 ($SCRAPER_METRICS_ADDR)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose logging")

	return cmd
}

// applyEnv overlays SCRAPER_* environment variables onto cfg.
func applyEnv(cfg *config.Config) error {
	if value, ok := config.EnvString("SCRAPER_ROOT_URL"); ok {
		cfg.RootURL = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT_DIR"); ok {
		cfg.OutputDir = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_PAGES"); err != nil {
		return err
	} else if ok {
		cfg.MaxPages = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_PARALLEL"); err != nil {
		return err
	} else if ok {
		cfg.Parallelism = value
	}
	if value, ok, err := config.EnvDuration("SCRAPER_TIMEOUT"); err != nil {
		return err
	} else if ok {
		cfg.Timeout = value
	}
	if value, ok, err := config.EnvBool("SCRAPER_VERBOSE"); err != nil {
		return err
	} else if ok {
		cfg.Verbose = value
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return err
	}

	slog.Info("starting crawl",
		slog.String("root_url", cfg.RootURL),
		slog.String("output_dir", cfg.OutputDir),
		slog.Int("workers", cfg.Parallelism),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	result, err := s.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if err != nil {
		slog.Error("crawl failed", slog.Any("error", err))
		return err
	}

	printSummary(result, cfg.OutputDir)
	return nil
}

func printSummary(result *models.CrawlResult, outputDir string) {
	duration := result.EndTime.Sub(result.StartTime)
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(result.ItemsSucceeded) / duration.Seconds()
	}

	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")
	fmt.Printf("  Categories:    %d/%d\n", result.CategoriesSucceeded, result.CategoriesAttempted)
	fmt.Printf("  Items:         %d/%d\n", result.ItemsSucceeded, result.ItemsAttempted)
	fmt.Printf("  Images:        %d saved, %d failed\n", result.ImagesSaved, result.ImagesFailed)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	if len(result.FailedCategories) > 0 {
		fmt.Printf("  Failed:        %s\n", strings.Join(result.FailedCategories, ", "))
	}
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Printf("  Output dir:    %s\n", outputDir)
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
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
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

// Package scraper discovers catalogue categories, walks their listings and
// writes one output file per category.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-categories/config"
	"github.com/aluiziolira/go-scrape-categories/fetcher"
	"github.com/aluiziolira/go-scrape-categories/models"
	"github.com/aluiziolira/go-scrape-categories/pipeline"
)

// Scraper runs a full crawl: discover, then for each category walk, extract
// and write.
type Scraper struct {
	cfg     *config.Config
	root    *url.URL
	fetcher fetcher.Fetcher
	colly   *fetcher.CollyFetcher
	retry   *fetcher.RetryingFetcher
	images  *ImageFetcher
	queue   *ImageQueue
	Metrics *Metrics

	imagesSaved  atomic.Int64
	imagesFailed atomic.Int64

	mu           sync.Mutex
	failedItems  []string
	errorsByType map[string]int
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, opts ...fetcher.Option) (*Scraper, error) {
	metrics := NewMetrics()
	collyFetcher, err := fetcher.NewCollyFetcher(cfg, metrics, opts...)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	retry := fetcher.NewRetryingFetcher(collyFetcher, cfg, metrics)

	s, err := newScraper(cfg, retry, metrics)
	if err != nil {
		return nil, err
	}
	s.colly = collyFetcher
	s.retry = retry
	return s, nil
}

func newScraper(cfg *config.Config, f fetcher.Fetcher, metrics *Metrics) (*Scraper, error) {
	root, err := cfg.Root()
	if err != nil {
		return nil, err
	}
	return &Scraper{
		cfg:          cfg,
		root:         root,
		fetcher:      f,
		images:       NewImageFetcher(f, cfg.OutputDir),
		Metrics:      metrics,
		errorsByType: make(map[string]int),
	}, nil
}

// Run crawls every discovered category. Only a discovery failure is returned
// as an error; per-category and per-item failures are recorded in the result.
// Cancelling ctx stops the crawl after the work in flight.
func (s *Scraper) Run(ctx context.Context) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	result := &models.CrawlResult{StartTime: time.Now()}

	categories, err := s.Discover(ctx)
	if err != nil {
		s.recordError(err)
		return nil, err
	}
	slog.Info("categories discovered", slog.Int("count", len(categories)))

	if s.cfg.AsyncImages {
		s.queue = NewImageQueue(ctx, s.images, s.cfg.ImageWorkers, s.recordImage)
	}

	for _, category := range categories {
		if ctx.Err() != nil {
			slog.Warn("crawl cancelled, skipping remaining categories")
			break
		}
		result.CategoriesAttempted++

		attempted, succeeded, err := s.crawlCategory(ctx, category)
		result.ItemsAttempted += attempted
		result.ItemsSucceeded += succeeded
		if err != nil {
			s.recordError(err)
			s.Metrics.IncCategory("failed")
			result.FailedCategories = append(result.FailedCategories, category.Name)
			slog.Error("category failed",
				slog.String("category", category.Name),
				slog.String("kind", errorKind(err)),
				slog.Any("error", err),
			)
			continue
		}
		result.CategoriesSucceeded++
		s.Metrics.IncCategory("succeeded")
		slog.Info("category written",
			slog.String("category", category.Name),
			slog.Int("items", succeeded),
		)
	}

	if s.queue != nil {
		s.queue.Wait()
	}

	result.EndTime = time.Now()
	result.ImagesSaved = int(s.imagesSaved.Load())
	result.ImagesFailed = int(s.imagesFailed.Load())
	result.FailedItems = s.snapshotFailedItems()
	result.ErrorsByType = s.snapshotErrors()
	if s.colly != nil {
		result.RequestCount = s.colly.RequestCount()
	}
	if s.retry != nil {
		result.RetryCount = s.retry.TotalRetries()
	}
	return result, nil
}

// crawlCategory writes one category's output file. Once the first listing
// page is read the file is created, so rows gathered before a later listing
// failure are still written; the listing error is then returned.
func (s *Scraper) crawlCategory(ctx context.Context, category models.CategoryRef) (attempted, succeeded int, err error) {
	urls, walkErr := s.Walk(ctx, category.ListingURL)
	var listingErr *ListingError
	if errors.As(walkErr, &listingErr) && listingErr.Page == 1 {
		return 0, 0, walkErr
	}

	writer, err := pipeline.NewCategoryWriter(s.cfg.OutputFormat, s.cfg.OutputDir, category.Name)
	if err != nil {
		return len(urls), 0, err
	}

	p := pipeline.NewPipeline(writer, s.Extract, s.cfg.Parallelism)
	p.OnFailure(func(itemURL string, err error) {
		s.recordError(err)
		s.mu.Lock()
		s.failedItems = append(s.failedItems, itemURL)
		s.mu.Unlock()
		slog.Warn("item skipped", slog.String("url", itemURL), slog.Any("error", err))
	})

	runErr := p.Run(ctx, urls)
	closeErr := writer.Close()
	if processed, ok := p.GetMetrics()["processed_records"].(int64); ok {
		succeeded = int(processed)
	}

	switch {
	case runErr != nil:
		return len(urls), succeeded, runErr
	case closeErr != nil:
		return len(urls), succeeded, closeErr
	}
	if err := writer.Validate(); err != nil {
		return len(urls), succeeded, err
	}
	return len(urls), succeeded, walkErr
}

func (s *Scraper) recordImage(err error) {
	if err == nil {
		s.imagesSaved.Add(1)
		s.Metrics.IncImage("saved")
		return
	}
	s.imagesFailed.Add(1)
	s.Metrics.IncImage("failed")
	s.recordError(err)
	slog.Warn("image not saved", slog.Any("error", err))
}

func (s *Scraper) recordError(err error) {
	kind := errorKind(err)
	if errors.Is(err, context.Canceled) {
		kind = "cancelled"
	}
	s.mu.Lock()
	s.errorsByType[kind]++
	s.mu.Unlock()
}

func (s *Scraper) snapshotFailedItems() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedItems))
	copy(out, s.failedItems)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

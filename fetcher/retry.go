package fetcher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-categories/config"
)

// RetryingFetcher retries transient failures of the wrapped fetcher with
// capped exponential backoff. With MaxRetries == 0 it is a pass-through.
type RetryingFetcher struct {
	next       Fetcher
	maxRetries int
	base       time.Duration
	max        time.Duration
	recorder   Recorder

	totalRetries atomic.Int64
}

// NewRetryingFetcher wraps next using the retry settings in cfg.
func NewRetryingFetcher(next Fetcher, cfg *config.Config, recorder Recorder) *RetryingFetcher {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &RetryingFetcher{
		next:       next,
		maxRetries: cfg.MaxRetries,
		base:       cfg.RetryBackoff,
		max:        cfg.RetryBackoffMax,
		recorder:   recorder,
	}
}

// Fetch implements Fetcher.
func (rf *RetryingFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	for attempt := 0; ; attempt++ {
		page, err := rf.next.Fetch(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		if attempt >= rf.maxRetries || !IsTransient(err) || ctx.Err() != nil {
			return nil, err
		}

		rf.totalRetries.Add(1)
		rf.recorder.IncRetries()
		delay := rf.backoff(attempt + 1)
		slog.Debug("retrying fetch",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
	}
}

// TotalRetries returns the number of retries scheduled so far.
func (rf *RetryingFetcher) TotalRetries() int {
	return int(rf.totalRetries.Load())
}

func (rf *RetryingFetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rf.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rf.max; max > 0 && delay > max {
		delay = max
	}
	return delay
}

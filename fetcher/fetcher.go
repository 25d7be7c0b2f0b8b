// Package fetcher resolves URLs to response bodies over HTTP.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-categories/config"
	"github.com/gocolly/colly/v2"
)

// Page is a fetched resource.
type Page struct {
	Body        []byte
	FinalURL    string
	StatusCode  int
	ContentType string
}

// Fetcher resolves a URL to its body and final (post-redirect) URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// Recorder receives request-level measurements.
type Recorder interface {
	IncRequest(phase string)
	ObserveDuration(d time.Duration)
	IncRetries()
	IncError(errorType string)
}

type noopRecorder struct{}

func (noopRecorder) IncRequest(string) {}
func (noopRecorder) ObserveDuration(time.Duration) {}
func (noopRecorder) IncRetries() {}
func (noopRecorder) IncError(string) {}

// Option customises the underlying collector.
type Option func(*colly.Collector)

// WithTransport replaces the HTTP transport, e.g. with a mock in tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *colly.Collector) {
		c.WithTransport(rt)
	}
}

// CollyFetcher fetches pages and images through a shared colly collector.
// Every call runs on a clone so callbacks never cross between requests.
type CollyFetcher struct {
	collector *colly.Collector
	recorder  Recorder

	requestCount atomic.Int64
}

// NewCollyFetcher builds a fetcher configured from cfg.
func NewCollyFetcher(cfg *config.Config, recorder Recorder, opts ...Option) (*CollyFetcher, error) {
	root, err := cfg.Root()
	if err != nil {
		return nil, err
	}
	if root.Host == "" {
		return nil, fmt.Errorf("root url must include a host")
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(root.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism + cfg.ImageWorkers,
	}); err != nil {
		return nil, fmt.Errorf("configure limits: %w", err)
	}

	for _, opt := range opts {
		opt(collector)
	}

	return &CollyFetcher{
		collector: collector,
		recorder:  recorder,
	}, nil
}

// Fetch issues a GET for rawURL. Non-2xx responses are errors.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	c := f.collector.Clone()

	var page *Page
	var status int
	c.OnResponse(func(r *colly.Response) {
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		page = &Page{
			Body:        r.Body,
			FinalURL:    r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: contentType,
		}
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	f.requestCount.Add(1)
	f.recorder.IncRequest("started")
	start := time.Now()
	err := c.Visit(rawURL)
	f.recorder.ObserveDuration(time.Since(start))

	if err != nil {
		classified := classifyError(err, status)
		f.recorder.IncError(Label(classified))
		return nil, &FetchError{URL: rawURL, StatusCode: status, Err: classified}
	}
	if page == nil {
		f.recorder.IncError("other")
		return nil, &FetchError{URL: rawURL, Err: errors.New("no response received")}
	}
	f.recorder.IncRequest("completed")
	return page, nil
}

// RequestCount returns how many requests were issued.
func (f *CollyFetcher) RequestCount() int {
	return int(f.requestCount.Load())
}

// Package pipeline turns item URLs into rows of a category output file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-categories/models"
	"github.com/aluiziolira/go-scrape-categories/parser"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrPipelineClosed is returned when Run is called more than once.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []*models.ItemRecord) error
	Close() error
	Validate() error
}

// ExtractFunc produces the record for one item URL.
type ExtractFunc func(ctx context.Context, itemURL string) (*models.ItemRecord, error)

// FailureFunc is told about every item that did not produce a row.
type FailureFunc func(itemURL string, err error)

// Pipeline extracts items with a bounded worker pool and writes their rows
// in input order. Only the goroutine calling Run touches the writer.
type Pipeline struct {
	writer    OutputWriter
	extract   ExtractFunc
	workers   int
	onFailure FailureFunc

	metrics *metrics

	mu  sync.Mutex
	ran bool
}

// NewPipeline builds a pipeline writing to writer.
func NewPipeline(writer OutputWriter, extract ExtractFunc, workers int) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		writer:  writer,
		extract: extract,
		workers: workers,
		metrics: newMetrics(),
	}
}

// OnFailure registers fn to be called for items that are skipped.
func (p *Pipeline) OnFailure(fn FailureFunc) {
	p.onFailure = fn
}

type result struct {
	seq    int
	url    string
	record *models.ItemRecord
	err    error
}

// Run extracts every URL and writes the successful records in the order the
// URLs were given. Extraction failures skip the item; a write failure stops
// the run and is returned.
func (p *Pipeline) Run(ctx context.Context, urls []string) error {
	p.mu.Lock()
	if p.ran {
		p.mu.Unlock()
		return ErrPipelineClosed
	}
	p.ran = true
	p.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, p.workers)
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(p.workers)

	go func() {
		for i, itemURL := range urls {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				record, err := p.extract(gctx, itemURL)
				select {
				case results <- result{seq: i, url: itemURL, record: record, err: err}:
				case <-gctx.Done():
				}
				return nil
			})
		}
		g.Wait()
		close(results)
	}()

	pending := make(map[int]result)
	next := 0
	var runErr error
	for r := range results {
		if runErr != nil {
			continue
		}
		pending[r.seq] = r
		for runErr == nil {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			if err := ctx.Err(); err != nil {
				runErr = err
			} else if err := p.emit(cur); err != nil {
				runErr = err
			}
			if runErr != nil {
				cancel()
			}
		}
	}

	if runErr != nil {
		return runErr
	}
	return ctx.Err()
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

func (p *Pipeline) emit(r result) error {
	if r.err != nil {
		p.metrics.addFailure("extraction")
		p.fail(r.url, r.err)
		return nil
	}
	if err := parser.ValidateRecord(r.record); err != nil {
		p.metrics.addFailure("invalid_record")
		p.fail(r.url, fmt.Errorf("validate record: %w", err))
		return nil
	}
	if err := p.writer.Write([]*models.ItemRecord{r.record}); err != nil {
		return err
	}
	p.metrics.incrementProcessed()
	return nil
}

func (p *Pipeline) fail(itemURL string, err error) {
	if p.onFailure != nil {
		p.onFailure(itemURL, err)
	}
}

type metrics struct {
	mu        sync.Mutex
	processed int64
	failures  map[string]int
}

func newMetrics() *metrics {
	return &metrics{
		failures: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addFailure(kind string) {
	m.mu.Lock()
	m.failures[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyFailures := make(map[string]int, len(m.failures))
	for k, v := range m.failures {
		copyFailures[k] = v
	}

	return map[string]interface{}{
		"processed_records": m.processed,
		"failed_records":    copyFailures,
	}
}

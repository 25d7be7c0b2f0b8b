package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-categories/fetcher"
	"github.com/aluiziolira/go-scrape-categories/parser"
)

// ImageFetcher downloads item images into per-category directories.
type ImageFetcher struct {
	fetcher   fetcher.Fetcher
	outputDir string
}

// NewImageFetcher returns an ImageFetcher writing below outputDir.
func NewImageFetcher(f fetcher.Fetcher, outputDir string) *ImageFetcher {
	return &ImageFetcher{fetcher: f, outputDir: outputDir}
}

// Save downloads imageURL into <outputDir>/<category>_images/ under the URL's
// last path segment, replacing any existing file. It returns the written path.
func (i *ImageFetcher) Save(ctx context.Context, imageURL, category string) (string, error) {
	fail := func(err error) (string, error) {
		return "", &ImageError{URL: imageURL, Category: category, Err: err}
	}

	name, err := parser.ImageFilename(imageURL)
	if err != nil {
		return fail(err)
	}
	dir := filepath.Join(i.outputDir, parser.ImageDirName(category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(fmt.Errorf("create image directory: %w", err))
	}

	page, err := i.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return fail(err)
	}

	target := filepath.Join(dir, name)
	if err := writeFileAtomic(target, page.Body); err != nil {
		return fail(err)
	}
	return target, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close image: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod image: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename image: %w", err)
	}
	return nil
}

// ImageQueue saves images on a bounded set of background goroutines.
// Wait blocks until every submitted image has finished.
type ImageQueue struct {
	ctx    context.Context
	images *ImageFetcher
	sem    chan struct{}
	wg     sync.WaitGroup
	onDone func(err error)
}

// NewImageQueue creates a queue running at most workers saves at once.
// onDone is called once per submitted image with the save result.
func NewImageQueue(ctx context.Context, images *ImageFetcher, workers int, onDone func(err error)) *ImageQueue {
	if workers <= 0 {
		workers = 1
	}
	if onDone == nil {
		onDone = func(error) {}
	}
	return &ImageQueue{
		ctx:    ctx,
		images: images,
		sem:    make(chan struct{}, workers),
		onDone: onDone,
	}
}

// Submit schedules an image save. It blocks while all workers are busy.
func (q *ImageQueue) Submit(imageURL, category string) {
	q.wg.Add(1)
	select {
	case q.sem <- struct{}{}:
	case <-q.ctx.Done():
		q.wg.Done()
		q.onDone(&ImageError{URL: imageURL, Category: category, Err: q.ctx.Err()})
		return
	}
	go func() {
		defer q.wg.Done()
		defer func() { <-q.sem }()
		path, err := q.images.Save(q.ctx, imageURL, category)
		if err == nil {
			slog.Debug("image saved", slog.String("path", path))
		}
		q.onDone(err)
	}()
}

// Wait blocks until all submitted saves have completed.
func (q *ImageQueue) Wait() {
	q.wg.Wait()
}

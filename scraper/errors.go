package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-categories/pipeline"
)

var errNotFound = errors.New("not found")

// DiscoveryError means the category list could not be read. It aborts the run.
type DiscoveryError struct {
	URL string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover categories at %s: %v", e.URL, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// ListingError means a category's listing could not be walked to the end.
type ListingError struct {
	CategoryURL string
	PageURL     string
	Page        int
	Err         error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("walk listing %s: page %d (%s): %v", e.CategoryURL, e.Page, e.PageURL, e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}

// ExtractionError means one item page did not yield a complete record.
type ExtractionError struct {
	URL   string
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s: %v", e.URL, e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ImageError means an item's image could not be saved. It never fails the item.
type ImageError struct {
	URL      string
	Category string
	Err      error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("save image %s for %q: %v", e.URL, e.Category, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

func errorKind(err error) string {
	if err == nil {
		return "unknown"
	}
	var discovery *DiscoveryError
	if errors.As(err, &discovery) {
		return "discovery"
	}
	var listing *ListingError
	if errors.As(err, &listing) {
		return "listing"
	}
	var extraction *ExtractionError
	if errors.As(err, &extraction) {
		return "extraction"
	}
	var image *ImageError
	if errors.As(err, &image) {
		return "image"
	}
	var sink *pipeline.SinkError
	if errors.As(err, &sink) {
		return "sink"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return "other"
}

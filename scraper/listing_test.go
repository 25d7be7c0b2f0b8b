package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aluiziolira/go-scrape-categories/fetcher"
	"github.com/aluiziolira/go-scrape-categories/parser"
)

var travelURL = testRoot + categoryHref("Travel", 2)

// setupListing serves pages of the Travel category; each page holds perPage items.
func setupListing(f *fakeFetcher, pages, perPage int) []string {
	var want []string
	for n := 1; n <= pages; n++ {
		var names []string
		for i := 0; i < perPage; i++ {
			name := fmt.Sprintf("Book %d-%d", n, i)
			names = append(names, name)
			want = append(want, itemURL(name))
		}
		pageURL := travelURL
		if n > 1 {
			pageURL = parser.ListingPageURL(travelURL, n)
		}
		f.set(pageURL, listingHTML(n < pages, names...))
	}
	return want
}

func TestWalkReturnsItemsInPageOrder(t *testing.T) {
	f := newFakeFetcher()
	want := setupListing(f, 3, 4)
	s := newTestScraper(t, testConfig(t), f)

	got, err := s.Walk(context.Background(), travelURL)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d urls, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("url %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWalkTerminatesAfterLastPage(t *testing.T) {
	for pages := 1; pages <= 5; pages++ {
		t.Run(fmt.Sprintf("%d pages", pages), func(t *testing.T) {
			f := newFakeFetcher()
			setupListing(f, pages, 2)
			s := newTestScraper(t, testConfig(t), f)

			if _, err := s.Walk(context.Background(), travelURL); err != nil {
				t.Fatalf("walk: %v", err)
			}
			if len(f.calls) != pages {
				t.Fatalf("fetched %d pages, want %d: %v", len(f.calls), pages, f.calls)
			}
		})
	}
}

func TestWalkEmptyPageStillAdvances(t *testing.T) {
	f := newFakeFetcher()
	f.set(travelURL, listingHTML(true))
	f.set(parser.ListingPageURL(travelURL, 2), listingHTML(false, "Lonely"))
	s := newTestScraper(t, testConfig(t), f)

	got, err := s.Walk(context.Background(), travelURL)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(got) != 1 || got[0] != itemURL("Lonely") {
		t.Fatalf("urls = %v, want only Lonely", got)
	}
}

func TestWalkBrokenNextPage(t *testing.T) {
	f := newFakeFetcher()
	f.set(travelURL, listingHTML(true, "First", "Second"))
	s := newTestScraper(t, testConfig(t), f)

	got, err := s.Walk(context.Background(), travelURL)
	var listingErr *ListingError
	if !errors.As(err, &listingErr) {
		t.Fatalf("expected *ListingError, got %T (%v)", err, err)
	}
	if listingErr.Page != 2 {
		t.Fatalf("failed page = %d, want 2", listingErr.Page)
	}
	if got := fetcher.Label(err); got != "not_found" {
		t.Fatalf("cause label = %q, want not_found", got)
	}
	if len(got) != 2 {
		t.Fatalf("partial urls = %v, want the two from page 1", got)
	}
}

func TestWalkDropsDuplicates(t *testing.T) {
	f := newFakeFetcher()
	f.set(travelURL, listingHTML(true, "Same", "Other"))
	f.set(parser.ListingPageURL(travelURL, 2), listingHTML(false, "Same"))
	s := newTestScraper(t, testConfig(t), f)

	got, err := s.Walk(context.Background(), travelURL)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("urls = %v, want 2 unique", got)
	}
}

func TestWalkMaxPages(t *testing.T) {
	f := newFakeFetcher()
	setupListing(f, 5, 1)
	cfg := testConfig(t)
	cfg.MaxPages = 2
	s := newTestScraper(t, cfg, f)

	got, err := s.Walk(context.Background(), travelURL)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("urls = %v, want 2 from the first two pages", got)
	}
}

func TestWalkNextByText(t *testing.T) {
	f := newFakeFetcher()
	f.set(travelURL, `<html><body><article class="product_pod"><a href="../../../a/index.html">a</a></article>
		<ul><li> next </li></ul></body></html>`)
	f.set(parser.ListingPageURL(travelURL, 2), listingHTML(false, "b"))
	s := newTestScraper(t, testConfig(t), f)

	got, err := s.Walk(context.Background(), travelURL)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(got) != 2 || got[0] != itemURL("a") || got[1] != itemURL("b") {
		t.Fatalf("urls = %v", got)
	}
}

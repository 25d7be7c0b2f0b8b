package scraper

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-scrape-categories/fetcher"
	"github.com/aluiziolira/go-scrape-categories/models"
	"github.com/aluiziolira/go-scrape-categories/parser"
	"github.com/jarcoal/httpmock"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv %s: %v", path, err)
	}
	return rows
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	return len(entries)
}

func registerSite(transport *httpmock.MockTransport, pages map[string]string) {
	for url, body := range pages {
		transport.RegisterResponder("GET", url, httpmock.NewStringResponder(http.StatusOK, body))
	}
}

func TestScraperRunEndToEnd(t *testing.T) {
	mysteryURL := testRoot + categoryHref("Mystery", 3)
	travel := []product{
		sampleProduct("Himalayas", "Travel"),
		sampleProduct("Full Moon", "Travel"),
	}
	mystery := sampleProduct("Sharp Objects", "Mystery")

	transport := httpmock.NewMockTransport()
	pages := make(map[string]string)
	pages[testRoot] = rootPage("Travel", "Mystery")
	pages[travelURL] = listingHTML(true, travel[0].Title)
	pages[parser.ListingPageURL(travelURL, 2)] = listingHTML(false, travel[1].Title)
	pages[mysteryURL] = listingHTML(false, mystery.Title)
	pages[itemURL(mystery.Title)] = productPage(mystery)
	pages[imageURL(mystery.Title)] = "mystery-cover"
	pages[itemURL(travel[0].Title)] = productPage(travel[0])
	pages[itemURL(travel[1].Title)] = productPage(travel[1])
	pages[imageURL(travel[0].Title)] = "cover-0"
	pages[imageURL(travel[1].Title)] = "cover-1"
	registerSite(transport, pages)

	cfg := testConfig(t)
	cfg.Parallelism = 2
	s, err := NewScraper(cfg, fetcher.WithTransport(transport))
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.CategoriesAttempted != 2 || result.CategoriesSucceeded != 2 {
		t.Fatalf("categories attempted=%d succeeded=%d, want 2/2",
			result.CategoriesAttempted, result.CategoriesSucceeded)
	}
	if result.ItemsAttempted != 3 || result.ItemsSucceeded != 3 {
		t.Fatalf("items attempted=%d succeeded=%d, want 3/3", result.ItemsAttempted, result.ItemsSucceeded)
	}
	if result.ImagesSaved != 3 || result.ImagesFailed != 0 {
		t.Fatalf("images saved=%d failed=%d, want 3/0", result.ImagesSaved, result.ImagesFailed)
	}
	if result.RequestCount != len(pages) {
		t.Fatalf("request count = %d, want %d", result.RequestCount, len(pages))
	}

	rows := readRows(t, filepath.Join(cfg.OutputDir, "Travel-bookCategoryData.csv"))
	if len(rows) != 3 {
		t.Fatalf("travel csv has %d rows, want header plus 2", len(rows))
	}
	header := models.Header()
	for i, col := range header {
		if rows[0][i] != col {
			t.Fatalf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
	for i, p := range travel {
		row := rows[i+1]
		if row[0] != itemURL(p.Title) || row[2] != p.Title || row[6] != p.Description {
			t.Fatalf("row %d = %v, want %s", i+1, row, p.Title)
		}
		if row[9] != imageURL(p.Title) {
			t.Fatalf("row %d image url = %q", i+1, row[9])
		}
	}
	if got := countFiles(t, filepath.Join(cfg.OutputDir, "Travel_images")); got != 2 {
		t.Fatalf("travel images = %d, want 2", got)
	}

	if rows := readRows(t, filepath.Join(cfg.OutputDir, "Mystery-bookCategoryData.csv")); len(rows) != 2 {
		t.Fatalf("mystery csv has %d rows, want 2", len(rows))
	}
	if got := countFiles(t, filepath.Join(cfg.OutputDir, "Mystery_images")); got != 1 {
		t.Fatalf("mystery images = %d, want 1", got)
	}
}

func TestScraperRunDiscoveryFailure(t *testing.T) {
	s := newTestScraper(t, testConfig(t), newFakeFetcher())

	result, err := s.Run(context.Background())
	var discoveryErr *DiscoveryError
	if !errors.As(err, &discoveryErr) {
		t.Fatalf("expected *DiscoveryError, got %T (%v)", err, err)
	}
	if result != nil {
		t.Fatalf("expected nil result on discovery failure")
	}
}

func TestScraperRunBrokenPaginationFlushesRows(t *testing.T) {
	first := sampleProduct("Before Break", "Travel")
	mysteryURL := testRoot + categoryHref("Mystery", 3)
	mystery := sampleProduct("Unaffected", "Mystery")

	f := newFakeFetcher()
	f.set(testRoot, rootPage("Travel", "Mystery"))
	f.set(travelURL, listingHTML(true, first.Title))
	f.set(itemURL(first.Title), productPage(first))
	f.set(imageURL(first.Title), "img")
	f.set(mysteryURL, listingHTML(false, mystery.Title))
	f.set(itemURL(mystery.Title), productPage(mystery))
	f.set(imageURL(mystery.Title), "img")
	cfg := testConfig(t)
	s := newTestScraper(t, cfg, f)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.CategoriesAttempted != 2 || result.CategoriesSucceeded != 1 {
		t.Fatalf("categories attempted=%d succeeded=%d, want 2/1",
			result.CategoriesAttempted, result.CategoriesSucceeded)
	}
	if len(result.FailedCategories) != 1 || result.FailedCategories[0] != "Travel" {
		t.Fatalf("failed categories = %v, want [Travel]", result.FailedCategories)
	}
	if result.ErrorsByType["listing"] != 1 {
		t.Fatalf("errors by type = %v, want one listing error", result.ErrorsByType)
	}

	rows := readRows(t, filepath.Join(cfg.OutputDir, "Travel-bookCategoryData.csv"))
	if len(rows) != 2 || rows[1][2] != first.Title {
		t.Fatalf("travel rows = %v, want header plus %q", rows, first.Title)
	}
	if rows := readRows(t, filepath.Join(cfg.OutputDir, "Mystery-bookCategoryData.csv")); len(rows) != 2 {
		t.Fatalf("mystery csv has %d rows, want 2", len(rows))
	}
}

func TestScraperRunSkipsBrokenItems(t *testing.T) {
	good := sampleProduct("Good", "Poetry")
	bad := sampleProduct("Bad", "Poetry")
	bad.UPC = ""
	poetryURL := testRoot + categoryHref("Poetry", 2)

	f := newFakeFetcher()
	f.set(testRoot, rootPage("Poetry"))
	f.set(poetryURL, listingHTML(false, bad.Title, "Gone", good.Title))
	f.set(itemURL(bad.Title), productPage(bad))
	f.set(itemURL(good.Title), productPage(good))
	f.set(imageURL(good.Title), "img")
	cfg := testConfig(t)
	cfg.Parallelism = 3
	s := newTestScraper(t, cfg, f)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.CategoriesSucceeded != 1 {
		t.Fatalf("category should succeed despite item failures: %+v", result)
	}
	if result.ItemsAttempted != 3 || result.ItemsSucceeded != 1 {
		t.Fatalf("items attempted=%d succeeded=%d, want 3/1", result.ItemsAttempted, result.ItemsSucceeded)
	}
	if len(result.FailedItems) != 2 {
		t.Fatalf("failed items = %v, want 2", result.FailedItems)
	}
	if result.ErrorsByType["extraction"] != 2 {
		t.Fatalf("errors by type = %v, want 2 extraction", result.ErrorsByType)
	}

	rows := readRows(t, filepath.Join(cfg.OutputDir, "Poetry-bookCategoryData.csv"))
	if len(rows) != 2 || rows[1][2] != good.Title {
		t.Fatalf("poetry rows = %v", rows)
	}
}

func TestScraperRunAsyncImages(t *testing.T) {
	poetryURL := testRoot + categoryHref("Poetry", 2)
	items := []product{sampleProduct("One", "Poetry"), sampleProduct("Two", "Poetry")}

	f := newFakeFetcher()
	f.set(testRoot, rootPage("Poetry"))
	f.set(poetryURL, listingHTML(false, items[0].Title, items[1].Title))
	for _, p := range items {
		f.set(itemURL(p.Title), productPage(p))
	}
	f.set(imageURL(items[0].Title), "img")
	cfg := testConfig(t)
	cfg.AsyncImages = true
	cfg.ImageWorkers = 2
	s := newTestScraper(t, cfg, f)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ItemsSucceeded != 2 {
		t.Fatalf("items succeeded = %d, want 2", result.ItemsSucceeded)
	}
	if result.ImagesSaved != 1 || result.ImagesFailed != 1 {
		t.Fatalf("images saved=%d failed=%d, want 1/1", result.ImagesSaved, result.ImagesFailed)
	}
}

func TestScraperRunCancelled(t *testing.T) {
	f := newFakeFetcher()
	f.set(testRoot, rootPage("Travel"))
	s := newTestScraper(t, testConfig(t), f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to surface through discovery, got %v", err)
	}
}

func TestScraperRunEmptyFirstPageThenBrokenPagination(t *testing.T) {
	f := newFakeFetcher()
	f.set(testRoot, rootPage("Travel"))
	f.set(travelURL, listingHTML(true))
	cfg := testConfig(t)
	s := newTestScraper(t, cfg, f)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.CategoriesSucceeded != 0 || len(result.FailedCategories) != 1 {
		t.Fatalf("expected Travel to fail: %+v", result)
	}
	rows := readRows(t, filepath.Join(cfg.OutputDir, "Travel-bookCategoryData.csv"))
	if len(rows) != 1 {
		t.Fatalf("travel csv has %d rows, want header only", len(rows))
	}
}

func TestScraperRunFirstPageFailureWritesNoFile(t *testing.T) {
	f := newFakeFetcher()
	f.set(testRoot, rootPage("Travel"))
	cfg := testConfig(t)
	s := newTestScraper(t, cfg, f)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.FailedCategories) != 1 {
		t.Fatalf("failed categories = %v, want [Travel]", result.FailedCategories)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "Travel-bookCategoryData.csv")); !os.IsNotExist(err) {
		t.Fatalf("expected no output file, stat err = %v", err)
	}
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-categories/config"
	"github.com/aluiziolira/go-scrape-categories/fetcher"
)

const testRoot = "http://books.test/"

// fakeFetcher serves canned bodies by URL and 404s everything else.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: make(map[string]string)}
}

func (f *fakeFetcher) set(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = body
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*fetcher.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, &fetcher.FetchError{URL: rawURL, Err: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	body, ok := f.pages[rawURL]
	if !ok {
		return nil, &fetcher.FetchError{
			URL:        rawURL,
			StatusCode: http.StatusNotFound,
			Err:        fetcher.ErrNotFound{Err: errors.New("Not Found")},
		}
	}
	return &fetcher.Page{Body: []byte(body), FinalURL: rawURL, StatusCode: http.StatusOK}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RootURL = testRoot
	cfg.OutputDir = t.TempDir()
	return cfg
}

func newTestScraper(t *testing.T, cfg *config.Config, f fetcher.Fetcher) *Scraper {
	t.Helper()
	s, err := newScraper(cfg, f, NewMetrics())
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	return s
}

func slug(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}

// categoryHref is the nav href of the i-th category, relative to the root.
func categoryHref(name string, i int) string {
	return fmt.Sprintf("catalogue/category/books/%s_%d/index.html", slug(name), i)
}

func rootPage(categories ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body id="default"><div class="side_categories"><ul class="nav nav-list"><li>`)
	b.WriteString(`<a href="catalogue/category/books_1/index.html">Books</a><ul>`)
	for i, name := range categories {
		fmt.Fprintf(&b, "<li><a href=%q>\n  %s\n</a></li>", categoryHref(name, i+2), name)
	}
	b.WriteString(`</ul></li></ul></div></body></html>`)
	return b.String()
}

// itemHref is how listing pages link to an item.
func itemHref(name string) string {
	return "../../../" + slug(name) + "/index.html"
}

func itemURL(name string) string {
	return testRoot + "catalogue/" + slug(name) + "/index.html"
}

func listingHTML(hasNext bool, items ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ol class="row">`)
	for _, name := range items {
		fmt.Fprintf(&b, `<li><article class="product_pod"><div class="image_container"><a href=%q><img src="thumb.jpg"></a></div><h3><a href=%q>%s</a></h3></article></li>`,
			itemHref(name), itemHref(name), name)
	}
	b.WriteString(`</ol>`)
	if hasNext {
		b.WriteString(`<ul class="pager"><li class="current">Page</li><li class="next"><a href="page-2.html">next</a></li></ul>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

type product struct {
	Title         string
	Category      string
	UPC           string
	Description   string
	NoDescription bool
	Rating        string
	ImageSrc      string
	ExtraCell     bool
}

func sampleProduct(title, category string) product {
	return product{
		Title:       title,
		Category:    category,
		UPC:         "upc-" + slug(title),
		Description: "About " + title + ", with a comma.",
		Rating:      "Three",
		ImageSrc:    "../../media/cache/" + slug(title) + ".jpg",
	}
}

func imageURL(title string) string {
	return testRoot + "media/cache/" + slug(title) + ".jpg"
}

func productPage(p product) string {
	var b strings.Builder
	b.WriteString(`<html><body id="default"><div class="container-fluid page"><div class="page_inner">`)
	fmt.Fprintf(&b, `<ul class="breadcrumb"><li><a href="../../index.html">Home</a></li><li><a href="../category/books_1/index.html">Books</a></li><li><a href="../category/books/x/index.html">%s</a></li><li class="active">%s</li></ul>`,
		p.Category, p.Title)
	b.WriteString(`<div id="content_inner"><article class="product_page"><div class="row">`)
	fmt.Fprintf(&b, `<div class="col-sm-6"><div id="product_gallery"><img src=%q alt=%q></div></div>`, p.ImageSrc, p.Title)
	fmt.Fprintf(&b, `<div class="col-sm-6 product_main"><h1>%s</h1><p class="price_color">£10.00</p><p class="star-rating %s"><i class="icon-star"></i></p></div>`,
		p.Title, p.Rating)
	b.WriteString(`</div>`)
	if !p.NoDescription {
		fmt.Fprintf(&b, `<div id="product_description" class="sub-header"><h2>Product Description</h2></div><p>%s</p>`, p.Description)
	}
	b.WriteString(`<div class="sub-header"><h2>Product Information</h2></div><table class="table table-striped">`)
	if p.UPC != "" {
		fmt.Fprintf(&b, `<tr><th>UPC</th><td>%s</td></tr>`, p.UPC)
	}
	b.WriteString(`<tr><th>Product Type</th><td>Books</td></tr>`)
	b.WriteString(`<tr><th>Price (excl. tax)</th><td>£10.00</td></tr>`)
	b.WriteString(`<tr><th>Price (incl. tax)</th><td>£12.00</td></tr>`)
	b.WriteString(`<tr><th>Availability</th><td>In stock (22 available)</td></tr>`)
	if p.ExtraCell {
		b.WriteString(`<tr><td>orphan</td></tr>`)
	}
	b.WriteString(`</table></article></div></div></div></body></html>`)
	return b.String()
}

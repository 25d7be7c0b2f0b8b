package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-categories/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

type listingPage struct {
	items   []string
	hasNext bool
}

// Walk follows a category's listing pages and returns every item URL in
// page order. When a page cannot be fetched the URLs gathered so far are
// returned together with a *ListingError.
func (s *Scraper) Walk(ctx context.Context, categoryURL string) ([]string, error) {
	// DedupeMaxSize is sized above any single category's item count, so no
	// URL of the current walk is evicted.
	seen, err := lru.New[string, struct{}](s.cfg.DedupeMaxSize)
	if err != nil {
		return nil, &ListingError{CategoryURL: categoryURL, PageURL: categoryURL, Page: 1, Err: err}
	}

	var urls []string
	pageURL := categoryURL
	for n := 1; ; n++ {
		listing, err := s.fetchListing(ctx, pageURL)
		if err != nil {
			return urls, &ListingError{CategoryURL: categoryURL, PageURL: pageURL, Page: n, Err: err}
		}

		added := 0
		for _, itemURL := range listing.items {
			if seen.Contains(itemURL) {
				continue
			}
			seen.Add(itemURL, struct{}{})
			urls = append(urls, itemURL)
			added++
		}
		slog.Debug("listing page walked",
			slog.String("url", pageURL),
			slog.Int("page", n),
			slog.Int("items", added),
			slog.Bool("next", listing.hasNext),
		)

		if !listing.hasNext {
			return urls, nil
		}
		if n >= s.cfg.MaxPages {
			slog.Warn("max pages reached, stopping listing walk",
				slog.String("category_url", categoryURL),
				slog.Int("pages", n),
			)
			return urls, nil
		}
		pageURL = parser.ListingPageURL(categoryURL, n+1)
	}
}

func (s *Scraper) fetchListing(ctx context.Context, pageURL string) (listingPage, error) {
	page, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return listingPage{}, err
	}
	doc, err := parseDocument(page.Body)
	if err != nil {
		return listingPage{}, err
	}
	base, err := url.Parse(page.FinalURL)
	if err != nil {
		base, _ = url.Parse(pageURL)
	}
	return extractListing(doc, base, s.root), nil
}

func extractListing(doc *goquery.Document, pageURL, root *url.URL) listingPage {
	containers := doc.Find("div.image_container")
	if containers.Length() == 0 {
		containers = doc.Find("article.product_pod")
	}

	var listing listingPage
	containers.Each(func(_ int, c *goquery.Selection) {
		href, ok := c.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		itemURL, err := parser.ResolveItemHref(root, pageURL, href)
		if err != nil {
			slog.Warn("skipping item link", slog.String("href", href), slog.Any("error", err))
			return
		}
		listing.items = append(listing.items, itemURL)
	})
	listing.hasNext = hasNextControl(doc)
	return listing
}

func hasNextControl(doc *goquery.Document) bool {
	if doc.Find("li.next").Length() > 0 {
		return true
	}
	found := false
	doc.Find("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		if strings.TrimSpace(li.Text()) == "next" {
			found = true
			return false
		}
		return true
	})
	return found
}

package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-categories/models"
	"github.com/aluiziolira/go-scrape-categories/parser"
)

var navSelectors = []string{"ul.nav.nav-list", "div.side_categories ul"}

// Discover fetches the root page and returns its categories in navigation
// order, without the leading "all books" entry.
func (s *Scraper) Discover(ctx context.Context) ([]models.CategoryRef, error) {
	rootURL := s.root.String()

	page, err := s.fetcher.Fetch(ctx, rootURL)
	if err != nil {
		return nil, &DiscoveryError{URL: rootURL, Err: err}
	}
	doc, err := parseDocument(page.Body)
	if err != nil {
		return nil, &DiscoveryError{URL: rootURL, Err: err}
	}

	refs, err := ExtractCategories(doc, s.root)
	if err != nil {
		return nil, err
	}
	return filterCategories(refs, s.cfg.Categories), nil
}

// ExtractCategories reads the site navigation list. The first linked entry is
// the umbrella category and is dropped; hrefs resolve against root.
func ExtractCategories(doc *goquery.Document, root *url.URL) ([]models.CategoryRef, error) {
	nav := selectFirst(doc.Selection, navSelectors...)
	if nav == nil {
		return nil, &DiscoveryError{URL: root.String(), Err: errors.New("navigation list not found")}
	}

	var anchors []*goquery.Selection
	nav.Find("a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && strings.TrimSpace(href) != "" {
			anchors = append(anchors, a)
		}
	})
	if len(anchors) <= 1 {
		return []models.CategoryRef{}, nil
	}

	refs := make([]models.CategoryRef, 0, len(anchors)-1)
	for _, a := range anchors[1:] {
		href, _ := a.Attr("href")
		listingURL, err := parser.ResolveRef(root, href)
		if err != nil {
			slog.Warn("skipping category link", slog.String("href", href), slog.Any("error", err))
			continue
		}
		refs = append(refs, models.CategoryRef{
			Name:       strings.TrimSpace(a.Text()),
			ListingURL: listingURL,
		})
	}
	return refs, nil
}

func filterCategories(refs []models.CategoryRef, names []string) []models.CategoryRef {
	if len(names) == 0 {
		return refs
	}
	out := make([]models.CategoryRef, 0, len(names))
	for _, ref := range refs {
		for _, name := range names {
			if strings.EqualFold(ref.Name, strings.TrimSpace(name)) {
				out = append(out, ref)
				break
			}
		}
	}
	return out
}

package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-categories/models"
	"github.com/aluiziolira/go-scrape-categories/parser"
)

var (
	titleSelectors = []string{
		"#content_inner > article > div.row > div.col-sm-6.product_main > h1",
		"div.product_main h1",
	}
	categorySelectors = []string{
		"#default > div > div > ul > li:nth-child(3) > a",
		"ul.breadcrumb li:nth-child(3) a",
	}
	descriptionSelectors = []string{
		"#content_inner > article > p",
		"#product_description + p",
	}
	infoTableSelectors = []string{"table.table.table-striped", "table"}
	ratingSelectors    = []string{`div.product_main p[class^="star-rating "]`, `[class^="star-rating "]`}
	imageSelectors     = []string{"#product_gallery img", "img"}
)

// Extract fetches one item page, extracts its record and saves its image.
// An image failure is recorded but does not fail the item.
func (s *Scraper) Extract(ctx context.Context, itemURL string) (*models.ItemRecord, error) {
	page, err := s.fetcher.Fetch(ctx, itemURL)
	if err != nil {
		return nil, &ExtractionError{URL: itemURL, Field: "page", Err: err}
	}
	doc, err := parseDocument(page.Body)
	if err != nil {
		return nil, &ExtractionError{URL: itemURL, Field: "page", Err: err}
	}

	detailURL := page.FinalURL
	if detailURL == "" {
		detailURL = itemURL
	}
	record, err := ExtractItem(doc, detailURL, s.root)
	if err != nil {
		return nil, err
	}

	if s.queue != nil {
		s.queue.Submit(record.ImageURL, record.Category)
	} else {
		_, err := s.images.Save(ctx, record.ImageURL, record.Category)
		s.recordImage(err)
	}

	s.Metrics.IncItems()
	return record, nil
}

// ExtractItem reads an item record from a parsed product page. detailURL is
// the page's own URL; relative image sources resolve against root.
func ExtractItem(doc *goquery.Document, detailURL string, root *url.URL) (*models.ItemRecord, error) {
	fail := func(field string, err error) error {
		return &ExtractionError{URL: detailURL, Field: field, Err: err}
	}

	pageURL, err := url.Parse(detailURL)
	if err != nil {
		return nil, fail("url", err)
	}

	title := selectionText(selectFirst(doc.Selection, titleSelectors...))
	if title == "" {
		return nil, fail("title", errNotFound)
	}

	category := selectionText(selectFirst(doc.Selection, categorySelectors...))
	if category == "" {
		return nil, fail("category", errNotFound)
	}

	description := models.DescriptionMissing
	if p := selectFirst(doc.Selection, descriptionSelectors...); p != nil {
		description = selectionText(p)
	}

	table := selectFirst(doc.Selection, infoTableSelectors...)
	if table == nil {
		return nil, fail("product information", errNotFound)
	}
	info, err := parser.InfoTable(selectionTexts(table.Find("th")), selectionTexts(table.Find("td")))
	if err != nil {
		return nil, fail("product information", err)
	}
	for _, key := range parser.RequiredInfoKeys {
		if _, ok := info[key]; !ok {
			return nil, fail(key, errNotFound)
		}
	}

	ratingEl := selectFirst(doc.Selection, ratingSelectors...)
	if ratingEl == nil {
		return nil, fail("rating", errNotFound)
	}
	class, _ := ratingEl.Attr("class")
	rating, err := parser.RatingFromClass(class)
	if err != nil {
		return nil, fail("rating", err)
	}

	img := selectFirst(doc.Selection, imageSelectors...)
	if img == nil {
		return nil, fail("image", errNotFound)
	}
	src, ok := img.Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return nil, fail("image", fmt.Errorf("image has no src"))
	}
	imageURL, err := parser.ResolveImageSrc(root, pageURL, src)
	if err != nil {
		return nil, fail("image", err)
	}

	return &models.ItemRecord{
		URL:          detailURL,
		UPC:          info["UPC"],
		Title:        title,
		PriceInclTax: info["Price (incl. tax)"],
		PriceExclTax: info["Price (excl. tax)"],
		Availability: parser.NormalizeText(info["Availability"]),
		Description:  description,
		Category:     category,
		RatingText:   rating,
		ImageURL:     imageURL,
	}, nil
}

// Package models defines data structures for the scraper.
package models

import "time"

// DescriptionMissing is written when a product page has no description paragraph.
const DescriptionMissing = "None"

// CategoryRef names one catalogue category and its first listing page.
type CategoryRef struct {
	Name       string `json:"name"`
	ListingURL string `json:"listing_url"`
}

// ItemRecord is one product row. Field order matches Header.
type ItemRecord struct {
	URL          string `csv:"product_page_url" json:"product_page_url"`
	UPC          string `csv:"universal_product_code" json:"universal_product_code"`
	Title        string `csv:"book_title" json:"book_title"`
	PriceInclTax string `csv:"price_including_tax" json:"price_including_tax"`
	PriceExclTax string `csv:"price_excluding_tax" json:"price_excluding_tax"`
	Availability string `csv:"quantity_available" json:"quantity_available"`
	Description  string `csv:"product_description" json:"product_description"`
	Category     string `csv:"book_category" json:"book_category"`
	RatingText   string `csv:"review_rating" json:"review_rating"`
	ImageURL     string `csv:"image_url" json:"image_url"`
}

// Header returns the column names in output order.
func Header() []string {
	return []string{
		"product_page_url",
		"universal_product_code",
		"book_title",
		"price_including_tax",
		"price_excluding_tax",
		"quantity_available",
		"product_description",
		"book_category",
		"review_rating",
		"image_url",
	}
}

// Row returns the record's values in Header order.
func (r *ItemRecord) Row() []string {
	return []string{
		r.URL,
		r.UPC,
		r.Title,
		r.PriceInclTax,
		r.PriceExclTax,
		r.Availability,
		r.Description,
		r.Category,
		r.RatingText,
		r.ImageURL,
	}
}

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	StartTime time.Time
	EndTime   time.Time

	CategoriesAttempted int
	CategoriesSucceeded int
	ItemsAttempted      int
	ItemsSucceeded      int
	ImagesSaved         int
	ImagesFailed        int

	FailedCategories []string
	FailedItems      []string
	ErrorsByType     map[string]int
	RequestCount     int
	RetryCount       int
}

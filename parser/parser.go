package parser

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aluiziolira/go-scrape-categories/models"
)

const (
	// listingItemPrefix is how listing pages reference product pages.
	listingItemPrefix = "../../.."
	// imagePrefix is how product pages reference cover images.
	imagePrefix       = "../.."

	outputSuffix   = "-bookCategoryData"
	imageDirSuffix = "_images"
)

var ratingTokens = map[string]struct{}{
	"Zero":  {},
	"One":   {},
	"Two":   {},
	"Three": {},
	"Four":  {},
	"Five":  {},
}

// RequiredInfoKeys are the product information headers every record needs.
var RequiredInfoKeys = []string{"UPC", "Price (excl. tax)", "Price (incl. tax)", "Availability"}

// ValidateRecord ensures the extractor captured the required fields.
func ValidateRecord(r *models.ItemRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("record missing product page url")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("record missing title for %s", r.URL)
	}
	if strings.TrimSpace(r.UPC) == "" {
		return fmt.Errorf("record missing upc for %s", r.URL)
	}
	if !IsRatingToken(r.RatingText) {
		return fmt.Errorf("record has unknown rating %q for %s", r.RatingText, r.URL)
	}
	return nil
}

// NormalizeText trims the value and collapses internal whitespace runs.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// IsRatingToken reports whether token belongs to the star-rating vocabulary.
func IsRatingToken(token string) bool {
	_, ok := ratingTokens[token]
	return ok
}

// RatingFromClass returns the second class component of a star-rating
// element, e.g. "Three" for "star-rating Three".
func RatingFromClass(class string) (string, error) {
	parts := strings.Fields(class)
	if len(parts) < 2 {
		return "", fmt.Errorf("rating class %q has no rating component", class)
	}
	if !IsRatingToken(parts[1]) {
		return "", fmt.Errorf("unknown rating %q", parts[1])
	}
	return parts[1], nil
}

// InfoTable maps product information headers to their cells by position.
// Headers and cells must pair up one to one.
func InfoTable(headers, cells []string) (map[string]string, error) {
	if len(headers) != len(cells) {
		return nil, fmt.Errorf("product information has %d headers and %d cells", len(headers), len(cells))
	}
	table := make(map[string]string, len(headers))
	for i, header := range headers {
		table[NormalizeText(header)] = NormalizeText(cells[i])
	}
	return table, nil
}

// ResolveItemHref turns a listing-page product link into an absolute URL.
// Links carrying the listing's parent prefix are rebased onto the catalogue
// root; anything else resolves against the listing page itself.
func ResolveItemHref(root, page *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty item href")
	}
	if strings.HasPrefix(href, listingItemPrefix) {
		return resolve(root, strings.Replace(href, listingItemPrefix, "catalogue", 1))
	}
	return resolve(page, href)
}

// ResolveImageSrc turns a product-page image source into an absolute URL.
func ResolveImageSrc(root, page *url.URL, src string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", fmt.Errorf("empty image src")
	}
	if strings.HasPrefix(src, imagePrefix) {
		return resolve(root, strings.Replace(src, imagePrefix, "", 1))
	}
	return resolve(page, src)
}

// ResolveRef resolves ref against base.
func ResolveRef(base *url.URL, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty href")
	}
	return resolve(base, ref)
}

func resolve(base *url.URL, ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", ref, err)
	}
	if base == nil {
		if !parsed.IsAbs() {
			return "", fmt.Errorf("relative reference %q without base", ref)
		}
		return parsed.String(), nil
	}
	return base.ResolveReference(parsed).String(), nil
}

// ListingPageURL derives the URL of listing page n (n >= 2) from a category's
// first listing URL: ".../travel_2/index.html" becomes ".../travel_2/page-2.html".
func ListingPageURL(categoryURL string, n int) string {
	base := categoryURL
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[:i+1]
	}
	return fmt.Sprintf("%spage-%d.html", base, n)
}

// ImageFilename returns the final path segment of an image URL.
func ImageFilename(imageURL string) (string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("parse image url: %w", err)
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("image url %q has no file name", imageURL)
	}
	return name, nil
}

// OutputBaseName is the per-category output file name without extension.
func OutputBaseName(category string) string {
	return safeName(category) + outputSuffix
}

// ImageDirName is the per-category image directory name.
func ImageDirName(category string) string {
	return safeName(category) + imageDirSuffix
}

func safeName(name string) string {
	return strings.NewReplacer("/", "-", `\`, "-").Replace(name)
}

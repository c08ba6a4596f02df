package scraper

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"

	"velomarkt/catalogsync/internal/catalog"
)

// Page is the slice of the browser session the scrapers drive. The
// real implementation is browser.Session; tests supply a fixture.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitVisible(selector string, timeout time.Duration) error
	HTML() (string, error)
}

// Card is the lightweight per-product data visible on a listing page,
// before detail enrichment.
type Card struct {
	Title            string
	URL              string
	CurrentPriceRaw  string
	OriginalPriceRaw string
	ImageURL         string
}

// Detail is the enrichment collected from a product's own page.
type Detail struct {
	Images         []string
	Description    string
	Specifications []catalog.Spec
}

// ListingExtractor reads listing cards and the pagination control out
// of a rendered category page.
type ListingExtractor interface {
	// CardSelector is the selector whose appearance means the page has
	// listing cards to extract.
	CardSelector() string

	// Cards extracts every card on the page, in page order. Cards
	// without a title are dropped.
	Cards(doc *goquery.Document) []Card

	// HasNextPage inspects the pagination control for a usable next page.
	HasNextPage(doc *goquery.Document) bool
}

// DetailExtractor reads images, description and specifications out of a
// rendered product detail page.
type DetailExtractor interface {
	Detail(doc *goquery.Document) Detail
}

// Store is the slice of the catalog store the walker persists through.
type Store interface {
	Load(category string) ([]catalog.ProductRecord, error)
	AppendIncremental(category string, records []catalog.ProductRecord) error
}

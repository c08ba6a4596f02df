package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"velomarkt/catalogsync/internal/catalog"
)

// Selector set and extraction rules for the rebike.com storefront.
const (
	rebikeCardSelector     = ".bike-card"
	rebikeCurrentPriceSel  = "p.css-1bw9inq"
	rebikeOriginalPriceSel = "p.css-1rh6qqp"
	rebikeNextPageSel      = `[aria-label="Next page"], .pagination-next, [class*="next"]`
	rebikeImageCDN         = "rebike-photo-nas"

	maxDetailImages = 8
	maxSpecKeyLen   = 50
	maxSpecValueLen = 100
)

// specTableMarkers identify the specification table among all tables on
// a detail page.
var specTableMarkers = []string{"Artikel-Nr", "Motor", "Akku"}

// usageMarkers identify the paragraph describing what the bike is
// suited for, appended to the description when present.
var usageMarkers = []string{"Für den Alltag", "eignet sich für", "Körpergröße"}

// RebikeExtractor implements ListingExtractor and DetailExtractor
// against the rebike.com DOM.
type RebikeExtractor struct {
	baseURL string
}

func NewRebikeExtractor() *RebikeExtractor {
	return &RebikeExtractor{baseURL: "https://rebike.com"}
}

func (e *RebikeExtractor) resolveURL(href string) string {
	if strings.HasPrefix(href, "/") {
		return e.baseURL + href
	}
	return href
}

func (e *RebikeExtractor) CardSelector() string {
	return rebikeCardSelector
}

// Cards extracts the listing cards in page order. Cards without a title
// are dropped before they ever reach the walker.
func (e *RebikeExtractor) Cards(doc *goquery.Document) []Card {
	var cards []Card
	doc.Find(rebikeCardSelector).Each(func(_ int, s *goquery.Selection) {
		link := s.Find(`a[href*="/de/"]`).First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}

		card := Card{
			Title:            title,
			URL:              e.resolveURL(href),
			CurrentPriceRaw:  strings.TrimSpace(s.Find(rebikeCurrentPriceSel).First().Text()),
			OriginalPriceRaw: strings.TrimSpace(s.Find(rebikeOriginalPriceSel).First().Text()),
		}
		if src, ok := s.Find("img").First().Attr("src"); ok {
			card.ImageURL = src
		}
		cards = append(cards, card)
	})
	return cards
}

// HasNextPage reports whether the pagination control offers a next
// page. A control marked disabled counts as absent.
func (e *RebikeExtractor) HasNextPage(doc *goquery.Document) bool {
	next := doc.Find(rebikeNextPageSel).First()
	if next.Length() == 0 {
		return false
	}
	if _, disabled := next.Attr("disabled"); disabled {
		return false
	}
	if cls, ok := next.Attr("class"); ok && strings.Contains(cls, "disabled") {
		return false
	}
	return true
}

// Detail extracts images, description and the specification table from
// a product page.
func (e *RebikeExtractor) Detail(doc *goquery.Document) Detail {
	return Detail{
		Images:         e.images(doc),
		Description:    e.description(doc),
		Specifications: e.specifications(doc),
	}
}

// images collects the distinct product photos served from the image CDN.
func (e *RebikeExtractor) images(doc *goquery.Document) []string {
	images := []string{}
	seen := make(map[string]bool)
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, ok := s.Attr("src")
		if !ok || !strings.Contains(src, rebikeImageCDN) || seen[src] {
			return true
		}
		seen[src] = true
		images = append(images, src)
		return len(images) < maxDetailImages
	})
	return images
}

// description prefers the page heading, falls back to the meta
// description, and appends the usage paragraph when one matches.
func (e *RebikeExtractor) description(doc *goquery.Document) string {
	description := strings.TrimSpace(doc.Find("h1").First().Text())
	if len(description) <= 20 {
		if meta, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			description = strings.TrimSpace(meta)
		}
	}

	if description == "" {
		return ""
	}

	var usage string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		for _, marker := range usageMarkers {
			if strings.Contains(text, marker) {
				usage = strings.TrimSpace(text)
				return false
			}
		}
		return true
	})
	if usage != "" {
		description += ". " + usage
	}
	return description
}

// specifications locates the spec table by its marker substrings and
// reads header/value cell pairs, dropping rows outside the sanity
// length bounds.
func (e *RebikeExtractor) specifications(doc *goquery.Document) []catalog.Spec {
	var table *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		for _, marker := range specTableMarkers {
			if strings.Contains(text, marker) {
				table = s
				return false
			}
		}
		return true
	})
	if table == nil {
		return []catalog.Spec{}
	}

	specs := []catalog.Spec{}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		key := strings.TrimSpace(row.Find("th").First().Text())
		value := strings.TrimSpace(row.Find("td").First().Text())
		if key == "" || value == "" {
			return
		}
		if len(key) >= maxSpecKeyLen || len(value) >= maxSpecValueLen {
			return
		}
		specs = append(specs, catalog.Spec{Name: key, Value: value})
	})
	return specs
}

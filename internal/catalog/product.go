package catalog

import (
	"net/url"
	"strings"
	"time"

	"velomarkt/catalogsync/helpers"
)

// ProductRecord is one catalog item in the shape the storefront reads.
// Base prices carry no markup; the storefront applies its own on top.
type ProductRecord struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	URL               string    `json:"url"`
	ImageURL          string    `json:"imageUrl,omitempty"`
	Category          string    `json:"category"`
	CurrentPriceRaw   string    `json:"currentPrice,omitempty"`
	OriginalPriceRaw  string    `json:"originalPrice,omitempty"`
	CurrentBasePrice  *float64  `json:"currentBasePriceEur"`
	OriginalBasePrice *float64  `json:"originalBasePriceEur"`
	DiscountPercent   int       `json:"discountPercent"`
	Images            []string  `json:"images,omitempty"`
	Description       string    `json:"description,omitempty"`
	Specifications    []Spec    `json:"specifications,omitempty"`
	ParsedAt          time.Time `json:"parsedAt"`
}

// Spec is one row of a product's specification table. Kept as a slice
// so the table order survives the round trip through JSON.
type Spec struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// IsValid reports whether the record carries enough data to be persisted.
func (p *ProductRecord) IsValid() bool {
	return p.Title != "" && p.URL != "" && p.ImageURL != ""
}

// DeriveID produces a stable product identifier from its source URL.
// A numeric id query parameter wins; otherwise the last path segment is
// used, stripped of anything outside [A-Za-z0-9-].
func DeriveID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return sanitizeID(rawURL)
	}

	if id := u.Query().Get("id"); id != "" && isNumeric(id) {
		return id
	}

	path := strings.TrimSuffix(u.Path, "/")
	segment, err := helpers.GetSplitPart(path, "/", strings.Count(path, "/"))
	if err != nil || segment == "" {
		return sanitizeID(path)
	}
	return sanitizeID(segment)
}

func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

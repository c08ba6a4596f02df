package catalog

import (
	"math"
	"strconv"
	"strings"
)

// ParsePrice converts a locale-formatted price string like "1.939,50 €"
// into its numeric value. A comma is treated as the decimal separator
// and dots in the integer part as thousands separators; without a comma
// all dots are thousands separators. Returns ok=false on anything it
// cannot parse, never panics.
func ParsePrice(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '€', '$', '£', '¥', '₽':
			return -1
		}
		return r
	}, raw))
	if cleaned == "" {
		return 0, false
	}
	cleaned = strings.TrimSpace(cleaned)

	var normalized string
	if i := strings.Index(cleaned, ","); i >= 0 {
		whole := strings.ReplaceAll(cleaned[:i], ".", "")
		decimal := cleaned[i+1:]
		if strings.Contains(decimal, ",") {
			return 0, false
		}
		normalized = whole + "." + decimal
	} else {
		normalized = strings.ReplaceAll(cleaned, ".", "")
	}
	normalized = strings.ReplaceAll(normalized, " ", "")

	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// DiscountPercent computes the rounded discount between an original and
// a current price. Returns 0 unless both prices are present and
// original > current > 0.
func DiscountPercent(original, current *float64) int {
	if original == nil || current == nil {
		return 0
	}
	if *current <= 0 || *original <= *current {
		return 0
	}
	return int(math.Round((1 - *current / *original) * 100))
}

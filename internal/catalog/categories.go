package catalog

// Category pairs a catalog partition tag with the listing URL it mirrors.
type Category struct {
	Tag string
	URL string
}

// Categories returns the fixed, ordered list of target categories.
// The order is load-bearing: walks, stored files and aggregate reads
// all follow it.
func Categories() []Category {
	return []Category{
		{Tag: "sales", URL: "https://rebike.com/de/rebike1-sales-e-bike-angebote"},
		{Tag: "all", URL: "https://rebike.com/de/gebrauchte-e-bikes-und-pedelecs-kaufen"},
		{Tag: "trekking", URL: "https://rebike.com/de/trekkingrad-touren-e-bike-kaufen"},
		{Tag: "city", URL: "https://rebike.com/de/city-e-bikes"},
		{Tag: "urban", URL: "https://rebike.com/de/urban-e-bikes"},
		{Tag: "mountain", URL: "https://rebike.com/de/e-mountainbikes"},
		{Tag: "hardtail", URL: "https://rebike.com/de/e-mountainbikes/e-bike-hardtail"},
		{Tag: "fully", URL: "https://rebike.com/de/e-mountainbikes/e-bike-fully"},
		{Tag: "cargo", URL: "https://rebike.com/de/e-lastenrad-e-bike-kaufen"},
		{Tag: "speed", URL: "https://rebike.com/de/s-pedelecs"},
		{Tag: "gravel", URL: "https://rebike.com/de/e-gravel-rennraeder"},
		{Tag: "kids", URL: "https://rebike.com/de/kinder-e-bikes"},
		{Tag: "classic", URL: "https://rebike.com/de/fahrraeder"},
	}
}

// Tags returns the category tags in walk order.
func Tags() []string {
	cats := Categories()
	tags := make([]string, 0, len(cats))
	for _, c := range cats {
		tags = append(tags, c.Tag)
	}
	return tags
}

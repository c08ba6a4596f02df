package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"velomarkt/catalogsync/internal/catalog"
)

// fakePage serves scripted HTML per URL so the walk loop and the detail
// fetcher can run without a browser.
type fakePage struct {
	pages       map[string]string // url -> rendered html
	failures    map[string]int    // url -> remaining navigation failures
	alwaysFail  map[string]bool
	navigations []string
	current     string
}

func newFakePage() *fakePage {
	return &fakePage{
		pages:      make(map[string]string),
		failures:   make(map[string]int),
		alwaysFail: make(map[string]bool),
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.navigations = append(p.navigations, url)
	if p.alwaysFail[url] {
		return errors.New("navigation timeout")
	}
	if p.failures[url] > 0 {
		p.failures[url]--
		return errors.New("navigation timeout")
	}
	p.current = p.pages[url]
	return nil
}

func (p *fakePage) WaitVisible(selector string, _ time.Duration) error {
	marker := strings.TrimPrefix(selector, ".")
	if strings.Contains(p.current, marker) {
		return nil
	}
	return errors.New("selector never appeared")
}

func (p *fakePage) HTML() (string, error) {
	return p.current, nil
}

func (p *fakePage) navCount(url string) int {
	n := 0
	for _, v := range p.navigations {
		if v == url {
			n++
		}
	}
	return n
}

// memStore is an in-memory Store for walker tests; failAppend makes the
// next append fail to exercise the storage error path.
type memStore struct {
	records    map[string][]catalog.ProductRecord
	appends    int
	failAppend bool
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string][]catalog.ProductRecord)}
}

func (s *memStore) Load(category string) ([]catalog.ProductRecord, error) {
	return s.records[category], nil
}

func (s *memStore) AppendIncremental(category string, records []catalog.ProductRecord) error {
	if s.failAppend {
		return errors.New("disk full")
	}
	s.appends++
	s.records[category] = append(s.records[category], records...)
	return nil
}

// Fixture HTML builders.

type cardFixture struct {
	title         string
	url           string
	currentPrice  string
	originalPrice string
	image         string
}

func listingHTML(cards []cardFixture, hasNext bool) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, c := range cards {
		b.WriteString(`<div class="bike-card">`)
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, c.url, c.title)
		if c.currentPrice != "" {
			fmt.Fprintf(&b, `<p class="css-1bw9inq">%s</p>`, c.currentPrice)
		}
		if c.originalPrice != "" {
			fmt.Fprintf(&b, `<p class="css-1rh6qqp">%s</p>`, c.originalPrice)
		}
		if c.image != "" {
			fmt.Fprintf(&b, `<img src="%s">`, c.image)
		}
		b.WriteString(`</div>`)
	}
	if hasNext {
		b.WriteString(`<a aria-label="Next page" href="#">Weiter</a>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func detailHTML(heading string, images []string, specs [][2]string) string {
	var b strings.Builder
	b.WriteString("<html><head>")
	b.WriteString(`<meta name="description" content="Gebrauchtes E-Bike in sehr gutem Zustand">`)
	b.WriteString("</head><body>")
	fmt.Fprintf(&b, "<h1>%s</h1>", heading)
	for _, img := range images {
		fmt.Fprintf(&b, `<img src="%s">`, img)
	}
	if len(specs) > 0 {
		b.WriteString("<table>")
		for _, s := range specs {
			fmt.Fprintf(&b, "<tr><th>%s</th><td>%s</td></tr>", s[0], s[1])
		}
		b.WriteString("</table>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"velomarkt/catalogsync/internal/catalog"
	"velomarkt/catalogsync/logger"
)

// PlaceholderDescription is stored when a product's detail page could
// not be fetched; the storefront shows it until the next sync fills it.
const PlaceholderDescription = "Beschreibung wird geladen..."

// DetailFetcher enriches a product from its detail page, retrying
// transient navigation failures a bounded number of times. It never
// returns an error: after the last attempt it degrades to a
// placeholder result so one broken product cannot abort a walk.
type DetailFetcher struct {
	page      Page
	extractor DetailExtractor
	timeout   time.Duration
	attempts  int
	backoff   time.Duration
	log       *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewDetailFetcher creates a fetcher. attempts is the total number of
// navigation attempts; backoff scales linearly with the attempt number.
func NewDetailFetcher(page Page, extractor DetailExtractor, timeout time.Duration, attempts int, backoff time.Duration) *DetailFetcher {
	if attempts < 1 {
		attempts = 1
	}
	return &DetailFetcher{
		page:      page,
		extractor: extractor,
		timeout:   timeout,
		attempts:  attempts,
		backoff:   backoff,
		log:       logger.ForComponent("detail-fetcher"),
		sleep:     sleepCtx,
	}
}

// Fetch navigates the shared page to url and extracts the detail data.
func (f *DetailFetcher) Fetch(ctx context.Context, url string) Detail {
	for attempt := 1; attempt <= f.attempts; attempt++ {
		if attempt > 1 {
			pause := time.Duration(attempt-1) * f.backoff
			f.log.Debug().
				Str("url", url).
				Int("attempt", attempt).
				Dur("pause", pause).
				Msg("retrying detail fetch")
			if err := f.sleep(ctx, pause); err != nil {
				break
			}
		}

		detail, err := f.fetchOnce(ctx, url)
		if err != nil {
			f.log.Warn().
				Str("url", url).
				Int("attempt", attempt).
				Err(err).
				Msg("detail fetch failed")
			continue
		}
		return detail
	}

	f.log.Warn().Str("url", url).Msg("detail fetch exhausted retries, storing placeholder")
	return degradedDetail()
}

func (f *DetailFetcher) fetchOnce(ctx context.Context, url string) (Detail, error) {
	if err := f.page.Navigate(ctx, url, f.timeout); err != nil {
		return Detail{}, err
	}

	html, err := f.page.HTML()
	if err != nil {
		return Detail{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Detail{}, err
	}

	detail := f.extractor.Detail(doc)
	if detail.Description == "" {
		detail.Description = PlaceholderDescription
	}
	if detail.Images == nil {
		detail.Images = []string{}
	}
	if detail.Specifications == nil {
		detail.Specifications = []catalog.Spec{}
	}
	return detail, nil
}

func degradedDetail() Detail {
	return Detail{
		Images:         []string{},
		Description:    PlaceholderDescription,
		Specifications: []catalog.Spec{},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

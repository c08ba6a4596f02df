package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"velomarkt/catalogsync/internal/catalog"
	"velomarkt/catalogsync/logger"
	apperr "velomarkt/catalogsync/pkg/errors"
)

// Mode selects how a category walk treats existing stored products.
type Mode int

const (
	// ModeIncremental skips already-stored URLs and appends new
	// products to the store after every page.
	ModeIncremental Mode = iota
	// ModeFullReload re-fetches everything and returns the records
	// without touching the store; the caller overwrites at the end.
	ModeFullReload
)

// WalkParams describes one category walk.
type WalkParams struct {
	Category catalog.Category
	Mode     Mode
	// ResumeURL is the last product URL persisted by a prior
	// interrupted run. Cards are skipped until it is seen; normal
	// skip/fetch logic resumes from the following card.
	ResumeURL string
}

// WalkResult aggregates what one category walk observed and produced.
type WalkResult struct {
	Category string
	// FoundURLs is every valid card URL seen on the listing pages this
	// run, in page-then-card order. Input to reconciliation.
	FoundURLs []string
	// NewRecords are the products enriched this walk. In incremental
	// mode they are already persisted; in full reload mode the caller
	// persists them.
	NewRecords []catalog.ProductRecord
	// LastPersistedURL is the URL of the last record committed to the
	// store, usable as a resume marker if the walk did not finish.
	LastPersistedURL string
	Pages            int
}

// Walker paginates through one category's listing pages, extracts
// cards, drives the detail fetcher for new products, and persists each
// page's batch before moving on.
type Walker struct {
	page         Page
	listing      ListingExtractor
	details      *DetailFetcher
	store        Store
	navTimeout   time.Duration
	selectorWait time.Duration
	pageLimit    int
}

// NewWalker wires a walker. pageLimit is a runaway-loop guard, not a
// tuning knob.
func NewWalker(page Page, listing ListingExtractor, details *DetailFetcher, store Store, navTimeout, selectorWait time.Duration, pageLimit int) *Walker {
	if pageLimit < 1 {
		pageLimit = 200
	}
	return &Walker{
		page:         page,
		listing:      listing,
		details:      details,
		store:        store,
		navTimeout:   navTimeout,
		selectorWait: selectorWait,
		pageLimit:    pageLimit,
	}
}

// Walk runs one category to completion. The returned result is valid
// even when an error is returned; the error means the walk stopped
// early (navigation failure on a listing page, storage failure, or
// cancellation) and the category may be resumed later.
func (w *Walker) Walk(ctx context.Context, params WalkParams) (*WalkResult, error) {
	tag := params.Category.Tag
	log := logger.ForCategory(tag)
	result := &WalkResult{Category: tag}

	known := make(map[string]bool)
	if params.Mode == ModeIncremental {
		existing, err := w.store.Load(tag)
		if err != nil {
			return result, err
		}
		for _, r := range existing {
			known[r.URL] = true
		}
		log.Debug().Int("known", len(known)).Msg("loaded reference snapshot")
	}

	resuming := params.ResumeURL != ""

	for pageNum := 1; pageNum <= w.pageLimit; pageNum++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pageURL := listingPageURL(params.Category.URL, pageNum)
		log.Info().Int("page", pageNum).Str("url", pageURL).Msg("loading listing page")

		if err := w.page.Navigate(ctx, pageURL, w.navTimeout); err != nil {
			return result, apperr.NewNavigation(tag, fmt.Sprintf("listing page %d", pageNum), err)
		}

		// No cards appearing within the wait means the category ran
		// out of pages, not that something broke.
		if err := w.page.WaitVisible(w.listing.CardSelector(), w.selectorWait); err != nil {
			log.Info().Int("page", pageNum).Msg("no listing cards, stopping pagination")
			break
		}

		doc, err := w.document()
		if err != nil {
			return result, apperr.NewExtraction(tag, fmt.Sprintf("listing page %d", pageNum), err)
		}

		cards := w.listing.Cards(doc)
		if len(cards) == 0 {
			log.Info().Int("page", pageNum).Msg("empty page, stopping pagination")
			break
		}
		result.Pages = pageNum

		// The pagination decision is read now; detail fetching below
		// reuses the same browser page.
		hasNext := w.listing.HasNextPage(doc)

		var pageBatch []catalog.ProductRecord
		for _, card := range cards {
			result.FoundURLs = append(result.FoundURLs, card.URL)

			if resuming {
				if card.URL == params.ResumeURL {
					resuming = false
					log.Info().Str("url", card.URL).Msg("resume marker found, resuming walk")
				}
				continue
			}
			// known also dedups within this walk: pagination windows
			// shift as stock changes, so a product can show up on two
			// pages of the same run.
			if known[card.URL] {
				continue
			}

			detail := w.details.Fetch(ctx, card.URL)
			record := buildRecord(tag, card, detail)
			if !record.IsValid() {
				log.Debug().Str("url", card.URL).Msg("dropping incomplete card")
				continue
			}
			known[card.URL] = true
			pageBatch = append(pageBatch, record)
		}

		// A marker that survived to the end of the first page points at
		// a delisted product; the stored-URL skip covers the rest of
		// the walk from here.
		if resuming {
			log.Warn().Str("url", params.ResumeURL).Msg("resume marker not found on first page, continuing without it")
			resuming = false
		}

		if params.Mode == ModeIncremental && len(pageBatch) > 0 {
			// Durability point: a crash after this commit loses nothing
			// from this page.
			if err := w.store.AppendIncremental(tag, pageBatch); err != nil {
				return result, err
			}
			result.LastPersistedURL = pageBatch[len(pageBatch)-1].URL
		}
		result.NewRecords = append(result.NewRecords, pageBatch...)

		if !hasNext {
			log.Info().Int("pages", pageNum).Msg("no next page control, category done")
			break
		}
	}

	log.Info().
		Int("found", len(result.FoundURLs)).
		Int("new", len(result.NewRecords)).
		Msg("category walk finished")
	return result, nil
}

func (w *Walker) document() (*goquery.Document, error) {
	html, err := w.page.HTML()
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// buildRecord merges a listing card and its detail enrichment into a
// catalog record with normalized prices.
func buildRecord(tag string, card Card, detail Detail) catalog.ProductRecord {
	record := catalog.ProductRecord{
		ID:               catalog.DeriveID(card.URL),
		Title:            card.Title,
		URL:              card.URL,
		ImageURL:         card.ImageURL,
		Category:         tag,
		CurrentPriceRaw:  card.CurrentPriceRaw,
		OriginalPriceRaw: card.OriginalPriceRaw,
		Images:           detail.Images,
		Description:      detail.Description,
		Specifications:   detail.Specifications,
		ParsedAt:         time.Now(),
	}

	if v, ok := catalog.ParsePrice(card.CurrentPriceRaw); ok {
		record.CurrentBasePrice = &v
	}
	if v, ok := catalog.ParsePrice(card.OriginalPriceRaw); ok {
		record.OriginalBasePrice = &v
	}
	record.DiscountPercent = catalog.DiscountPercent(record.OriginalBasePrice, record.CurrentBasePrice)

	// A card without its own thumbnail borrows the first detail image.
	if record.ImageURL == "" && len(detail.Images) > 0 {
		record.ImageURL = detail.Images[0]
	}
	return record
}

func listingPageURL(base string, page int) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", base, sep, page)
}

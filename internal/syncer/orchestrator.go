package syncer

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync/atomic"
	"time"

	"velomarkt/catalogsync/helpers"
	"velomarkt/catalogsync/internal/catalog"
	"velomarkt/catalogsync/internal/scraper"
	"velomarkt/catalogsync/logger"
	apperr "velomarkt/catalogsync/pkg/errors"
	"velomarkt/catalogsync/services/cache"
	"velomarkt/catalogsync/services/notifier"
)

// ErrAlreadyRunning is returned when a run is requested while another
// run holds the guard.
var ErrAlreadyRunning = errors.New("sync already running")

const (
	runLockKey = "catalogsync_running"
	runLockTTL = 2 * time.Hour

	probeURL = "https://rebike.com/de"
)

// Store is the storage surface the orchestrator needs on top of what
// the walker already uses.
type Store interface {
	Load(category string) ([]catalog.ProductRecord, error)
	Overwrite(category string, records []catalog.ProductRecord) error
}

// CategoryWalker walks one category. Satisfied by *scraper.Walker.
type CategoryWalker interface {
	Walk(ctx context.Context, params scraper.WalkParams) (*scraper.WalkResult, error)
}

// RunResult aggregates one full pass over the catalog.
type RunResult struct {
	Action     string
	StartedAt  time.Time
	Duration   time.Duration
	Categories []string

	Added   int
	Removed int
	Updated int

	// TotalProducts is the store size after the run, summed over all
	// categories.
	TotalProducts int

	// CountsByCategory is the number of new records per category.
	CountsByCategory map[string]int

	// RemovedByCategory holds URLs that are stored but were not seen
	// this run. They are reported, never deleted, unless the caller
	// opts in via RemoveObsoleteProducts.
	RemovedByCategory map[string][]string
}

// Orchestrator runs the catalog sync: one category at a time, with
// human-paced delays between categories and a periodic longer pause.
// At most one run is active per process (atomic guard) and per
// deployment (memcache lock).
type Orchestrator struct {
	store      Store
	walker     CategoryWalker
	changeLog  *ChangeLog
	cache      cache.CacheService
	notifier   notifier.Notifier
	categories []catalog.Category

	categoryDelay     time.Duration
	longPauseInterval time.Duration
	longPauseMin      time.Duration
	longPauseMax      time.Duration

	statePath string
	log       *logger.Logger

	running       atomic.Bool
	lastLongPause time.Time

	// Injection points for tests.
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	randDur func(min, max time.Duration) time.Duration
	probe   func(url string) error
}

// Options carries the orchestrator knobs. Cache and Notifier may be
// nil; the run guard then falls back to the in-process flag and no
// summaries are published.
type Options struct {
	CategoryDelay     time.Duration
	LongPauseInterval time.Duration
	LongPauseMin      time.Duration
	LongPauseMax      time.Duration
	DataDir           string
	Cache             cache.CacheService
	Notifier          notifier.Notifier
}

// NewOrchestrator wires an orchestrator over the fixed category list.
func NewOrchestrator(store Store, walker CategoryWalker, changeLog *ChangeLog, opts Options) *Orchestrator {
	return &Orchestrator{
		store:             store,
		walker:            walker,
		changeLog:         changeLog,
		cache:             opts.Cache,
		notifier:          opts.Notifier,
		categories:        catalog.Categories(),
		categoryDelay:     opts.CategoryDelay,
		longPauseInterval: opts.LongPauseInterval,
		longPauseMin:      opts.LongPauseMin,
		longPauseMax:      opts.LongPauseMax,
		statePath:         filepath.Join(opts.DataDir, "runstate.json"),
		log:               logger.ForComponent("orchestrator"),
		sleep:             sleepCtx,
		now:               time.Now,
		randDur:           randomDuration,
		probe: func(url string) error {
			_, err := helpers.FetchWithRandomHeaders(url)
			return err
		},
	}
}

// SyncIncremental walks every category in order, appending new
// products and computing the reconciliation diff. A category failure
// is logged and the run moves on; only context cancellation stops the
// whole pass.
func (o *Orchestrator) SyncIncremental(ctx context.Context) (*RunResult, error) {
	if !o.acquire() {
		o.log.Warn().Msg("Sync requested while another run is active, skipping")
		return nil, ErrAlreadyRunning
	}
	defer o.release()

	if err := o.probe(probeURL); err != nil {
		return nil, apperr.NewNavigation("", "site unreachable", err)
	}

	return o.run(ctx, "sync", scraper.ModeIncremental)
}

// FullReload re-fetches every category from scratch and overwrites the
// stored files, diffing against the previous snapshot for reporting.
func (o *Orchestrator) FullReload(ctx context.Context) (*RunResult, error) {
	if !o.acquire() {
		o.log.Warn().Msg("Full reload requested while another run is active, skipping")
		return nil, ErrAlreadyRunning
	}
	defer o.release()

	if err := o.probe(probeURL); err != nil {
		return nil, apperr.NewNavigation("", "site unreachable", err)
	}

	return o.run(ctx, "full_reload", scraper.ModeFullReload)
}

// TriggerSync starts an incremental run in the background. It returns
// immediately: true when a run was started, false when one is already
// active.
func (o *Orchestrator) TriggerSync(ctx context.Context) bool {
	if o.running.Load() {
		o.log.Info().Msg("Trigger ignored, sync already running")
		return false
	}

	go func() {
		if _, err := o.SyncIncremental(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			logger.LogError("orchestrator", err, "Triggered sync failed")
		}
	}()
	return true
}

// RemoveObsoleteProducts deletes the products a previous run reported
// as no longer listed. Deletion never happens during a run; it is this
// explicit call only.
func (o *Orchestrator) RemoveObsoleteProducts(result *RunResult) (int, error) {
	if result == nil {
		return 0, nil
	}

	removed := 0
	for tag, urls := range result.RemovedByCategory {
		if len(urls) == 0 {
			continue
		}
		obsolete := make(map[string]bool, len(urls))
		for _, u := range urls {
			obsolete[u] = true
		}

		stored, err := o.store.Load(tag)
		if err != nil {
			return removed, err
		}
		kept := stored[:0:0]
		for _, r := range stored {
			if !obsolete[r.URL] {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(stored) {
			continue
		}
		if err := o.store.Overwrite(tag, kept); err != nil {
			return removed, err
		}
		removed += len(stored) - len(kept)
		o.log.Info().Str("category", tag).Int("removed", len(stored)-len(kept)).Msg("Removed obsolete products")
	}

	if removed > 0 && o.changeLog != nil {
		entry := ChangeEntry{
			Timestamp: o.now(),
			Action:    "remove_obsolete",
			Removed:   removed,
		}
		if err := o.changeLog.Append(entry); err != nil {
			logger.LogError("orchestrator", err, "Failed to append change log entry")
		}
	}
	return removed, nil
}

func (o *Orchestrator) run(ctx context.Context, action string, mode scraper.Mode) (*RunResult, error) {
	start := o.now()
	o.lastLongPause = start

	result := &RunResult{
		Action:            action,
		StartedAt:         start,
		CountsByCategory:  make(map[string]int),
		RemovedByCategory: make(map[string][]string),
	}

	var state *runState
	if mode == scraper.ModeIncremental {
		state = loadRunState(o.statePath)
		if state != nil {
			o.log.Info().Str("category", state.Category).Str("lastUrl", state.LastURL).Msg("Resuming interrupted run")
		}
	}

	o.log.Info().Str("action", action).Int("categories", len(o.categories)).Msg("Catalog run started")

	for i, cat := range o.categories {
		if err := ctx.Err(); err != nil {
			result.Duration = o.now().Sub(start)
			return result, err
		}

		if err := o.maybeLongPause(ctx); err != nil {
			result.Duration = o.now().Sub(start)
			return result, err
		}

		params := scraper.WalkParams{Category: cat, Mode: mode}
		if state != nil && state.Category == cat.Tag {
			params.ResumeURL = state.LastURL
		}

		walkRes, err := o.walker.Walk(ctx, params)
		if walkRes != nil {
			result.Categories = append(result.Categories, cat.Tag)
			result.CountsByCategory[cat.Tag] = len(walkRes.NewRecords)
			if mode == scraper.ModeIncremental {
				// Already persisted page by page, so they count even
				// when the walk stopped short.
				result.Added += len(walkRes.NewRecords)
			}
			if err == nil {
				// Reconciling a partial walk would report unseen
				// pages as removals.
				o.reconcile(mode, cat.Tag, walkRes, result)
			}
		}

		if err != nil {
			if walkRes != nil && walkRes.LastPersistedURL != "" && mode == scraper.ModeIncremental {
				saveRunState(o.statePath, runState{Category: cat.Tag, LastURL: walkRes.LastPersistedURL})
			}
			if ctx.Err() != nil {
				result.Duration = o.now().Sub(start)
				return result, ctx.Err()
			}
			logger.LogError("orchestrator", err, "Category %s failed, continuing", cat.Tag)
		} else if state != nil && state.Category == cat.Tag {
			clearRunState(o.statePath)
			state = nil
		}

		if i < len(o.categories)-1 && o.categoryDelay > 0 {
			if err := o.sleep(ctx, o.categoryDelay); err != nil {
				result.Duration = o.now().Sub(start)
				return result, err
			}
		}
	}

	result.Duration = o.now().Sub(start)
	result.TotalProducts = o.countStored()

	o.log.Info().
		Str("action", action).
		Int("added", result.Added).
		Int("removed", result.Removed).
		Int("updated", result.Updated).
		Int("totalProducts", result.TotalProducts).
		Dur("duration", result.Duration).
		Msg("Catalog run finished")

	o.record(result)
	return result, nil
}

// reconcile folds one category's walk outcome into the run result.
func (o *Orchestrator) reconcile(mode scraper.Mode, tag string, walkRes *scraper.WalkResult, result *RunResult) {
	if mode == scraper.ModeFullReload {
		old, err := o.store.Load(tag)
		if err != nil {
			logger.LogError("orchestrator", err, "Failed to load %s for diff", tag)
			old = nil
		}
		changes := CompareRecords(old, walkRes.NewRecords)
		if err := o.store.Overwrite(tag, walkRes.NewRecords); err != nil {
			logger.LogError("orchestrator", err, "Failed to overwrite %s", tag)
			return
		}
		result.Added += len(changes.Added)
		result.Removed += len(changes.Removed)
		result.Updated += len(changes.Updated)
		return
	}

	stored, err := o.store.Load(tag)
	if err != nil {
		logger.LogError("orchestrator", err, "Failed to load %s for reconciliation", tag)
		return
	}
	storedURLs := make([]string, 0, len(stored))
	for _, r := range stored {
		storedURLs = append(storedURLs, r.URL)
	}
	_, removed := DiffURLs(storedURLs, walkRes.FoundURLs)
	if len(removed) > 0 {
		result.RemovedByCategory[tag] = removed
		result.Removed += len(removed)
		o.log.Info().Str("category", tag).Int("count", len(removed)).Msg("Products no longer listed")
	}
}

// record appends the change log entry and publishes a summary when the
// run changed anything. Failures here never fail the run.
func (o *Orchestrator) record(result *RunResult) {
	if o.changeLog != nil {
		entry := ChangeEntry{
			Timestamp:     o.now(),
			Action:        result.Action,
			Added:         result.Added,
			Removed:       result.Removed,
			Updated:       result.Updated,
			TotalProducts: result.TotalProducts,
			Categories:    result.Categories,
		}
		if err := o.changeLog.Append(entry); err != nil {
			logger.LogError("orchestrator", err, "Failed to append change log entry")
		}
	}

	if o.notifier == nil || result.Added+result.Removed+result.Updated == 0 {
		return
	}
	summary := notifier.Summary{
		Action:        result.Action,
		AddedCount:    result.Added,
		RemovedCount:  result.Removed,
		UpdatedCount:  result.Updated,
		TotalProducts: result.TotalProducts,
		Categories:    result.Categories,
		Timestamp:     o.now(),
	}
	if err := o.notifier.Notify(summary); err != nil {
		logger.LogError("orchestrator", apperr.NewNotify("publish run summary", err), "Failed to publish run summary")
	}
}

func (o *Orchestrator) countStored() int {
	total := 0
	for _, cat := range o.categories {
		records, err := o.store.Load(cat.Tag)
		if err != nil {
			continue
		}
		total += len(records)
	}
	return total
}

// maybeLongPause sleeps for a random stretch once enough wall clock
// time has passed since the last one. Keeps long runs from looking
// like a constant-rate bot.
func (o *Orchestrator) maybeLongPause(ctx context.Context) error {
	if o.longPauseInterval <= 0 {
		return nil
	}
	if o.now().Sub(o.lastLongPause) < o.longPauseInterval {
		return nil
	}

	d := o.randDur(o.longPauseMin, o.longPauseMax)
	o.log.Info().Dur("pause", d).Msg("Taking a long pause")
	if err := o.sleep(ctx, d); err != nil {
		return err
	}
	o.lastLongPause = o.now()
	return nil
}

func (o *Orchestrator) acquire() bool {
	if !o.running.CompareAndSwap(false, true) {
		return false
	}
	if o.cache != nil {
		if _, err := o.cache.Get(runLockKey); err == nil {
			o.log.Warn().Msg("Another worker holds the run lock")
			o.running.Store(false)
			return false
		}
		if err := o.cache.Set(runLockKey, []byte("1"), runLockTTL); err != nil {
			// Lock is advisory; a cache outage must not block syncing.
			o.log.Warn().Err(err).Msg("Failed to set run lock")
		}
	}
	return true
}

func (o *Orchestrator) release() {
	if o.cache != nil {
		if err := o.cache.Delete(runLockKey); err != nil {
			o.log.Warn().Err(err).Msg("Failed to release run lock")
		}
	}
	o.running.Store(false)
}

func randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

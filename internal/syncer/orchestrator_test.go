package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velomarkt/catalogsync/internal/catalog"
	"velomarkt/catalogsync/internal/scraper"
	"velomarkt/catalogsync/services/notifier"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string][]catalog.ProductRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]catalog.ProductRecord{}}
}

func (s *fakeStore) Load(category string) ([]catalog.ProductRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]catalog.ProductRecord{}, s.data[category]...), nil
}

func (s *fakeStore) Overwrite(category string, records []catalog.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[category] = append([]catalog.ProductRecord{}, records...)
	return nil
}

type fakeWalker struct {
	mu      sync.Mutex
	results map[string]*scraper.WalkResult
	errs    map[string]error
	calls   []scraper.WalkParams
	onWalk  func(params scraper.WalkParams)
}

func (w *fakeWalker) Walk(ctx context.Context, params scraper.WalkParams) (*scraper.WalkResult, error) {
	w.mu.Lock()
	w.calls = append(w.calls, params)
	w.mu.Unlock()
	if w.onWalk != nil {
		w.onWalk(params)
	}
	res := w.results[params.Category.Tag]
	if res == nil {
		res = &scraper.WalkResult{Category: params.Category.Tag}
	}
	return res, w.errs[params.Category.Tag]
}

func (w *fakeWalker) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

type fakeNotifier struct {
	mu        sync.Mutex
	summaries []notifier.Summary
}

func (n *fakeNotifier) Notify(summary notifier.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return nil
}

func (n *fakeNotifier) TrimStream() error { return nil }
func (n *fakeNotifier) Close() error      { return nil }

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (c *fakeCache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return v, nil
}

func (c *fakeCache) Set(key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func newTestOrchestrator(t *testing.T, store Store, walker CategoryWalker, opts Options) *Orchestrator {
	t.Helper()
	if opts.DataDir == "" {
		opts.DataDir = t.TempDir()
	}
	o := NewOrchestrator(store, walker, NewChangeLog(filepath.Join(opts.DataDir, "changes.json")), opts)
	o.probe = func(string) error { return nil }
	o.sleep = func(context.Context, time.Duration) error { return nil }
	o.randDur = func(min, _ time.Duration) time.Duration { return min }
	return o
}

func record(url, title, price string) catalog.ProductRecord {
	return catalog.ProductRecord{URL: url, Title: title, CurrentPriceRaw: price}
}

func TestSyncIncrementalAggregatesRun(t *testing.T) {
	store := newFakeStore()
	// Post-walk store state: C was appended by the walker this run, B
	// is stored but no longer listed.
	store.data["city"] = []catalog.ProductRecord{
		record("/de/a", "Bike A", "1.000 €"),
		record("/de/b", "Bike B", "900 €"),
		record("/de/c", "Bike C", "800 €"),
	}

	walker := &fakeWalker{results: map[string]*scraper.WalkResult{
		"city": {
			Category:   "city",
			FoundURLs:  []string{"/de/a", "/de/c"},
			NewRecords: []catalog.ProductRecord{record("/de/c", "Bike C", "800 €")},
		},
	}}
	n := &fakeNotifier{}
	o := newTestOrchestrator(t, store, walker, Options{Notifier: n})

	result, err := o.SyncIncremental(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "sync", result.Action)
	assert.Equal(t, len(catalog.Categories()), walker.callCount())
	assert.Equal(t, catalog.Tags(), result.Categories)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, []string{"/de/b"}, result.RemovedByCategory["city"])
	assert.Equal(t, 1, result.CountsByCategory["city"])
	assert.Equal(t, 3, result.TotalProducts)

	// Reported as removed, still stored.
	stored, _ := store.Load("city")
	assert.Len(t, stored, 3)

	entries, err := o.changeLog.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sync", entries[0].Action)
	assert.Equal(t, 1, entries[0].Added)
	assert.Equal(t, 3, entries[0].TotalProducts)

	require.Len(t, n.summaries, 1)
	assert.Equal(t, "sync", n.summaries[0].Action)
	assert.Equal(t, 1, n.summaries[0].AddedCount)
}

func TestSyncIncrementalWalksCategoriesInOrder(t *testing.T) {
	walker := &fakeWalker{}
	o := newTestOrchestrator(t, newFakeStore(), walker, Options{})

	_, err := o.SyncIncremental(context.Background())
	require.NoError(t, err)

	require.Len(t, walker.calls, len(catalog.Categories()))
	for i, cat := range catalog.Categories() {
		assert.Equal(t, cat.Tag, walker.calls[i].Category.Tag)
		assert.Equal(t, scraper.ModeIncremental, walker.calls[i].Mode)
	}
}

func TestSyncIncrementalNoChangesSkipsNotification(t *testing.T) {
	n := &fakeNotifier{}
	o := newTestOrchestrator(t, newFakeStore(), &fakeWalker{}, Options{Notifier: n})

	_, err := o.SyncIncremental(context.Background())
	require.NoError(t, err)

	assert.Empty(t, n.summaries)

	// The change log still gets an entry for the run itself.
	entries, err := o.changeLog.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSecondRunWhileActiveIsNoOp(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	walker := &fakeWalker{}
	walker.onWalk = func(scraper.WalkParams) {
		once.Do(func() { close(started) })
		<-release
	}
	o := newTestOrchestrator(t, newFakeStore(), walker, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := o.SyncIncremental(context.Background())
		assert.NoError(t, err)
	}()

	<-started
	_, err := o.SyncIncremental(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.False(t, o.TriggerSync(context.Background()))

	close(release)
	<-done

	// Guard is released after the run.
	_, err = o.SyncIncremental(context.Background())
	assert.NoError(t, err)
}

func TestRunLockHeldByAnotherWorker(t *testing.T) {
	c := newFakeCache()
	require.NoError(t, c.Set(runLockKey, []byte("1"), time.Minute))

	walker := &fakeWalker{}
	o := newTestOrchestrator(t, newFakeStore(), walker, Options{Cache: c})

	_, err := o.SyncIncremental(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Zero(t, walker.callCount())
}

func TestRunLockSetAndReleased(t *testing.T) {
	c := newFakeCache()
	var lockedDuringRun bool
	walker := &fakeWalker{}
	walker.onWalk = func(scraper.WalkParams) {
		if _, err := c.Get(runLockKey); err == nil {
			lockedDuringRun = true
		}
	}
	o := newTestOrchestrator(t, newFakeStore(), walker, Options{Cache: c})

	_, err := o.SyncIncremental(context.Background())
	require.NoError(t, err)

	assert.True(t, lockedDuringRun)
	_, err = c.Get(runLockKey)
	assert.Error(t, err, "lock should be released after the run")
}

func TestProbeFailureAbortsBeforeWalking(t *testing.T) {
	walker := &fakeWalker{}
	o := newTestOrchestrator(t, newFakeStore(), walker, Options{})
	o.probe = func(string) error { return errors.New("connect timeout") }

	_, err := o.SyncIncremental(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRunning)
	assert.Zero(t, walker.callCount())

	// A failed probe must not leave the guard held.
	_, err = o.SyncIncremental(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRunning)
}

func TestCategoryFailureSavesResumeMarkerAndContinues(t *testing.T) {
	dir := t.TempDir()
	walker := &fakeWalker{
		results: map[string]*scraper.WalkResult{
			"sales": {
				Category:         "sales",
				NewRecords:       []catalog.ProductRecord{record("/de/x", "Bike X", "700 €")},
				LastPersistedURL: "/de/x",
			},
		},
		errs: map[string]error{"sales": errors.New("navigation failed")},
	}
	o := newTestOrchestrator(t, newFakeStore(), walker, Options{DataDir: dir})

	result, err := o.SyncIncremental(context.Background())
	require.NoError(t, err, "one failing category must not fail the run")
	assert.Equal(t, len(catalog.Categories()), walker.callCount())
	assert.Equal(t, 1, result.Added, "records persisted before the failure still count")

	state := loadRunState(filepath.Join(dir, "runstate.json"))
	require.NotNil(t, state)
	assert.Equal(t, "sales", state.Category)
	assert.Equal(t, "/de/x", state.LastURL)
}

func TestResumeMarkerHandedToWalkerAndCleared(t *testing.T) {
	dir := t.TempDir()
	saveRunState(filepath.Join(dir, "runstate.json"), runState{Category: "city", LastURL: "/de/b"})

	walker := &fakeWalker{}
	o := newTestOrchestrator(t, newFakeStore(), walker, Options{DataDir: dir})

	_, err := o.SyncIncremental(context.Background())
	require.NoError(t, err)

	for _, call := range walker.calls {
		if call.Category.Tag == "city" {
			assert.Equal(t, "/de/b", call.ResumeURL)
		} else {
			assert.Empty(t, call.ResumeURL)
		}
	}

	_, statErr := os.Stat(filepath.Join(dir, "runstate.json"))
	assert.True(t, os.IsNotExist(statErr), "marker should be cleared after a clean walk")
}

func TestContextCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	walker := &fakeWalker{}
	walker.onWalk = func(scraper.WalkParams) { cancel() }
	o := newTestOrchestrator(t, newFakeStore(), walker, Options{})

	_, err := o.SyncIncremental(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, walker.callCount())
}

func TestFullReloadOverwritesAndDiffs(t *testing.T) {
	store := newFakeStore()
	store.data["city"] = []catalog.ProductRecord{
		record("/de/a", "Bike A", "1.000 €"),
		record("/de/b", "Bike B", "900 €"),
	}

	walker := &fakeWalker{results: map[string]*scraper.WalkResult{
		"city": {
			Category: "city",
			NewRecords: []catalog.ProductRecord{
				record("/de/a", "Bike A", "950 €"),
				record("/de/c", "Bike C", "1.200 €"),
			},
		},
	}}
	o := newTestOrchestrator(t, store, walker, Options{})

	result, err := o.FullReload(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "full_reload", result.Action)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 1, result.Updated)

	for _, call := range walker.calls {
		assert.Equal(t, scraper.ModeFullReload, call.Mode)
		assert.Empty(t, call.ResumeURL)
	}

	stored, _ := store.Load("city")
	require.Len(t, stored, 2)
	assert.Equal(t, "/de/a", stored[0].URL)
	assert.Equal(t, "950 €", stored[0].CurrentPriceRaw)
	assert.Equal(t, "/de/c", stored[1].URL)
}

func TestFullReloadFailedCategoryKeepsStoredData(t *testing.T) {
	store := newFakeStore()
	store.data["city"] = []catalog.ProductRecord{record("/de/a", "Bike A", "1.000 €")}

	walker := &fakeWalker{
		results: map[string]*scraper.WalkResult{
			"city": {Category: "city", NewRecords: nil},
		},
		errs: map[string]error{"city": errors.New("navigation failed")},
	}
	o := newTestOrchestrator(t, store, walker, Options{})

	_, err := o.FullReload(context.Background())
	require.NoError(t, err)

	stored, _ := store.Load("city")
	assert.Len(t, stored, 1, "a failed reload must not wipe the category")
}

func TestTriggerSyncRunsInBackground(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	walker := &fakeWalker{}
	walker.onWalk = func(scraper.WalkParams) {
		once.Do(func() { close(started) })
		<-release
	}
	o := newTestOrchestrator(t, newFakeStore(), walker, Options{})

	assert.True(t, o.TriggerSync(context.Background()))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered sync never started")
	}
	assert.False(t, o.TriggerSync(context.Background()), "second trigger while running")
	close(release)

	deadline := time.After(2 * time.Second)
	for o.running.Load() {
		select {
		case <-deadline:
			t.Fatal("triggered sync never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRemoveObsoleteProducts(t *testing.T) {
	store := newFakeStore()
	store.data["city"] = []catalog.ProductRecord{
		record("/de/a", "Bike A", "1.000 €"),
		record("/de/b", "Bike B", "900 €"),
		record("/de/c", "Bike C", "800 €"),
	}
	o := newTestOrchestrator(t, store, &fakeWalker{}, Options{})

	result := &RunResult{RemovedByCategory: map[string][]string{"city": {"/de/b"}}}
	removed, err := o.RemoveObsoleteProducts(result)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stored, _ := store.Load("city")
	require.Len(t, stored, 2)
	assert.Equal(t, "/de/a", stored[0].URL)
	assert.Equal(t, "/de/c", stored[1].URL)

	entries, err := o.changeLog.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "remove_obsolete", entries[0].Action)
	assert.Equal(t, 1, entries[0].Removed)
}

func TestRemoveObsoleteProductsNilResult(t *testing.T) {
	o := newTestOrchestrator(t, newFakeStore(), &fakeWalker{}, Options{})
	removed, err := o.RemoveObsoleteProducts(nil)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestLongPauseTriggersOnWallClock(t *testing.T) {
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	walker := &fakeWalker{}
	walker.onWalk = func(scraper.WalkParams) {
		clock = clock.Add(21 * time.Minute)
	}

	var pauses []time.Duration
	o := newTestOrchestrator(t, newFakeStore(), walker, Options{
		LongPauseInterval: 20 * time.Minute,
		LongPauseMin:      3 * time.Minute,
		LongPauseMax:      5 * time.Minute,
	})
	o.now = func() time.Time { return clock }
	o.sleep = func(_ context.Context, d time.Duration) error {
		if d >= time.Minute {
			pauses = append(pauses, d)
		}
		return nil
	}

	_, err := o.SyncIncremental(context.Background())
	require.NoError(t, err)

	// Each category walk pushes the clock past the interval, so every
	// category after the first is preceded by a pause.
	assert.Len(t, pauses, len(catalog.Categories())-1)
	for _, d := range pauses {
		assert.Equal(t, 3*time.Minute, d)
	}
}

func TestNoLongPauseWithinInterval(t *testing.T) {
	walker := &fakeWalker{}
	var pauses int
	o := newTestOrchestrator(t, newFakeStore(), walker, Options{
		LongPauseInterval: 20 * time.Minute,
		LongPauseMin:      time.Minute,
		LongPauseMax:      7 * time.Minute,
	})
	o.sleep = func(_ context.Context, d time.Duration) error {
		if d >= time.Minute {
			pauses++
		}
		return nil
	}

	_, err := o.SyncIncremental(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pauses)
}

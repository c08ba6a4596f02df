package scheduler

import (
	"context"
	"time"

	"velomarkt/catalogsync/internal/syncer"
	"velomarkt/catalogsync/logger"
)

// Runner is the work a scheduler drives. Satisfied by the sync
// orchestrator.
type Runner interface {
	SyncIncremental(ctx context.Context) (*syncer.RunResult, error)
}

// Scheduler runs the catalog sync on a fixed interval: an initial
// delayed run after startup, then one run every interval. Runs are
// sequential; the orchestrator's own guard absorbs any overlap.
type Scheduler struct {
	runner        Runner
	firstRunDelay time.Duration
	interval      time.Duration
	log           *logger.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(runner Runner, firstRunDelay, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:        runner,
		firstRunDelay: firstRunDelay,
		interval:      interval,
		log:           logger.ForComponent("scheduler"),
	}
}

// Start blocks until the context is cancelled, running the sync on
// schedule.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info().
		Dur("firstRunDelay", s.firstRunDelay).
		Dur("interval", s.interval).
		Msg("Scheduler started")

	if !s.wait(ctx, s.firstRunDelay) {
		return
	}
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	result, err := s.runner.SyncIncremental(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.LogError("scheduler", err, "Scheduled sync failed")
		return
	}
	s.log.Info().
		Int("added", result.Added).
		Int("removed", result.Removed).
		Int("totalProducts", result.TotalProducts).
		Dur("elapsed", time.Since(start)).
		Msg("Scheduled sync finished")
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

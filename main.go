package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"velomarkt/catalogsync/config"
	"velomarkt/catalogsync/internal/browser"
	"velomarkt/catalogsync/internal/scraper"
	"velomarkt/catalogsync/internal/store"
	"velomarkt/catalogsync/internal/syncer"
	"velomarkt/catalogsync/logger"
	"velomarkt/catalogsync/services/cache"
	"velomarkt/catalogsync/services/notifier"
	"velomarkt/catalogsync/services/scheduler"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("dataDir", cfg.DataDir).
		Dur("syncInterval", cfg.SyncInterval).
		Msg("Starting catalog sync")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	fileStore, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open product store")
	}

	session, err := browser.New(browser.Options{
		UserAgent:     cfg.UserAgent,
		Bin:           cfg.BrowserBin,
		NavsPerMinute: cfg.NavsPerMinute,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to launch browser")
	}
	defer session.Close()

	services := initializeServices(ctx, &cfg)
	defer services.Cleanup()

	extractor := scraper.NewRebikeExtractor()
	details := scraper.NewDetailFetcher(session, extractor, cfg.NavTimeout, cfg.DetailRetries, cfg.DetailBackoff)
	walker := scraper.NewWalker(session, extractor, details, fileStore, cfg.NavTimeout, cfg.SelectorWait, cfg.PageLimit)

	changeLog := syncer.NewChangeLog(filepath.Join(cfg.DataDir, "changes.json"))
	orchestrator := syncer.NewOrchestrator(fileStore, walker, changeLog, syncer.Options{
		CategoryDelay:     cfg.CategoryDelay,
		LongPauseInterval: cfg.LongPauseInterval,
		LongPauseMin:      cfg.LongPauseMin,
		LongPauseMax:      cfg.LongPauseMax,
		DataDir:           cfg.DataDir,
		Cache:             services.Cache,
		Notifier:          services.Notifier,
	})

	if cfg.RunOnce {
		if err := runSingle(ctx, orchestrator, cfg.RunMode); err != nil {
			log.Fatal().Err(err).Str("mode", cfg.RunMode).Msg("Run failed")
		}
		return
	}

	s := scheduler.NewScheduler(orchestrator, cfg.FirstRunDelay, cfg.SyncInterval)

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		s.Start(ctx)
	}()

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-schedulerDone
	case <-schedulerDone:
	}

	log.Info().Msg("Shutting down gracefully...")
}

// runSingle performs one run in the requested mode and exits.
func runSingle(ctx context.Context, orchestrator *syncer.Orchestrator, mode string) error {
	switch mode {
	case config.RunModeFullReload:
		_, err := orchestrator.FullReload(ctx)
		return err
	case config.RunModeSyncPrune:
		result, err := orchestrator.SyncIncremental(ctx)
		if err != nil {
			return err
		}
		removed, err := orchestrator.RemoveObsoleteProducts(result)
		if err != nil {
			return err
		}
		logger.Info("Pruned %d obsolete products", removed)
		return nil
	default:
		_, err := orchestrator.SyncIncremental(ctx)
		return err
	}
}

// Services holds the optional external services
type Services struct {
	Cache    cache.CacheService
	Notifier notifier.Notifier
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Notifier != nil {
		if err := s.Notifier.TrimStream(); err != nil {
			logger.Warn("Failed to trim update stream: %v", err)
		}
		s.Notifier.Close()
	}
}

// initializeServices wires the memcache run lock and the Redis update
// stream. Both are optional: an empty address disables the service.
func initializeServices(ctx context.Context, cfg *config.Config) *Services {
	services := &Services{}

	if cfg.MemcacheAddr != "" {
		services.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)
		logger.Info("Using Memcache run lock at %s", cfg.MemcacheAddr)
	}

	if cfg.RedisAddr != "" {
		services.Notifier = notifier.NewRedisNotifier(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamMaxLen,
		)
		logger.Info("Publishing run summaries to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	return services
}

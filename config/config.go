package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Run modes for single-shot invocations (RUN_ONCE=true).
const (
	RunModeSync       = "sync"        // incremental sync
	RunModeFullReload = "full_reload" // re-fetch everything and overwrite
	RunModeSyncPrune  = "sync_prune"  // incremental sync, then delete obsolete products
)

// Config represents the application configuration
type Config struct {
	// Catalog storage
	DataDir string

	// Browser configuration
	UserAgent      string
	BrowserBin     string
	NavTimeout     time.Duration
	SelectorWait   time.Duration
	NavsPerMinute  float64

	// Detail fetch retries
	DetailRetries int
	DetailBackoff time.Duration

	// Pacing between categories and the periodic long pause
	CategoryDelay     time.Duration
	LongPauseInterval time.Duration
	LongPauseMin      time.Duration
	LongPauseMax      time.Duration

	// Runaway-loop guard per category
	PageLimit int

	// Scheduler
	SyncInterval  time.Duration
	FirstRunDelay time.Duration
	RunOnce       bool
	RunMode       string

	// Redis configuration (run summary stream)
	RedisAddr         string
	RedisDB           int
	RedisStream       string
	RedisStreamMaxLen int

	// Memcache configuration (cross-process run lock)
	MemcacheAddr string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	redisMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAXLEN", "500"))
	navTimeout, _ := strconv.Atoi(getEnv("NAV_TIMEOUT_SECONDS", "45"))
	selectorWait, _ := strconv.Atoi(getEnv("SELECTOR_WAIT_SECONDS", "5"))
	detailRetries, _ := strconv.Atoi(getEnv("DETAIL_RETRIES", "3"))
	detailBackoff, _ := strconv.Atoi(getEnv("DETAIL_BACKOFF_SECONDS", "4"))
	categoryDelay, _ := strconv.Atoi(getEnv("CATEGORY_DELAY_SECONDS", "3"))
	longPauseEvery, _ := strconv.Atoi(getEnv("LONG_PAUSE_INTERVAL_MINUTES", "20"))
	longPauseMin, _ := strconv.Atoi(getEnv("LONG_PAUSE_MIN_MINUTES", "1"))
	longPauseMax, _ := strconv.Atoi(getEnv("LONG_PAUSE_MAX_MINUTES", "7"))
	pageLimit, _ := strconv.Atoi(getEnv("PAGE_LIMIT", "200"))
	syncInterval, _ := strconv.Atoi(getEnv("SYNC_INTERVAL_MINUTES", "360"))
	firstRunDelay, _ := strconv.Atoi(getEnv("FIRST_RUN_DELAY_SECONDS", "30"))
	navsPerMinute, _ := strconv.ParseFloat(getEnv("NAVS_PER_MINUTE", "20"), 64)

	return Config{
		DataDir:           getEnv("DATA_DIR", "./data"),
		UserAgent:         getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		BrowserBin:        getEnv("BROWSER_BIN", ""),
		NavTimeout:        time.Duration(navTimeout) * time.Second,
		SelectorWait:      time.Duration(selectorWait) * time.Second,
		NavsPerMinute:     navsPerMinute,
		DetailRetries:     detailRetries,
		DetailBackoff:     time.Duration(detailBackoff) * time.Second,
		CategoryDelay:     time.Duration(categoryDelay) * time.Second,
		LongPauseInterval: time.Duration(longPauseEvery) * time.Minute,
		LongPauseMin:      time.Duration(longPauseMin) * time.Minute,
		LongPauseMax:      time.Duration(longPauseMax) * time.Minute,
		PageLimit:         pageLimit,
		SyncInterval:      time.Duration(syncInterval) * time.Minute,
		FirstRunDelay:     time.Duration(firstRunDelay) * time.Second,
		RunOnce:           getEnv("RUN_ONCE", "false") == "true",
		RunMode:           getEnv("RUN_MODE", RunModeSync),
		RedisAddr:         getEnvAllowEmpty("REDIS_ADDR", "localhost:6379"),
		RedisDB:           redisDB,
		RedisStream:       getEnv("REDIS_STREAM", "catalog_updates"),
		RedisStreamMaxLen: redisMaxLen,
		MemcacheAddr:      getEnvAllowEmpty("MEMCACHE_ADDR", "localhost:11211"),
		Environment:       getEnv("SYNC_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	if c.NavTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
	if c.SelectorWait <= 0 {
		return fmt.Errorf("selector wait must be positive")
	}
	if c.DetailRetries < 1 {
		return fmt.Errorf("detail retries must be at least 1")
	}
	if c.PageLimit < 1 {
		return fmt.Errorf("page limit must be at least 1")
	}
	if c.LongPauseMin > c.LongPauseMax {
		return fmt.Errorf("long pause minimum %v exceeds maximum %v", c.LongPauseMin, c.LongPauseMax)
	}
	switch c.RunMode {
	case RunModeSync, RunModeFullReload, RunModeSyncPrune:
	default:
		return fmt.Errorf("unknown RUN_MODE %q", c.RunMode)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAllowEmpty is like getEnv but an explicitly set empty value
// wins over the default. Used for service addresses where empty means
// the service is disabled.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

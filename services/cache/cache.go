package cache

import (
	"time"
)

// CacheService represents a generic cache service. The sync pipeline
// uses it for the cross-process run lock: a key held in a shared
// memcache keeps two worker instances from walking the same catalog
// files at once.
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

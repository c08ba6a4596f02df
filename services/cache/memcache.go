package cache

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheService implements CacheService using memcached
type MemcacheService struct {
	client *memcache.Client
}

// NewMemcacheService creates a new memcache-based cache service
func NewMemcacheService(addr string) *MemcacheService {
	return &MemcacheService{
		client: memcache.New(addr),
	}
}

// Get retrieves a value from memcached
func (s *MemcacheService) Get(key string) ([]byte, error) {
	item, err := s.client.Get(key)
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

// Set stores a value in memcached
func (s *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	return s.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
}

// Delete removes a value from memcached
func (s *MemcacheService) Delete(key string) error {
	err := s.client.Delete(key)
	if err == memcache.ErrCacheMiss {
		return nil
	}
	return err
}

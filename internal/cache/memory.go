package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is the default single-instance cache backend.
type MemoryStore struct {
	cache *gocache.Cache
}

func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(defaultTTL, 10*time.Minute),
	}
}

func (s *MemoryStore) GetETag(_ context.Context, url string) (string, bool) {
	val, ok := s.cache.Get(etagKey(url))
	if !ok {
		return "", false
	}
	return val.(string), true
}

func (s *MemoryStore) SetETag(_ context.Context, url, etag string, ttl time.Duration) error {
	s.cache.Set(etagKey(url), etag, ttl)
	return nil
}

func (s *MemoryStore) GetBody(_ context.Context, url string) ([]byte, bool) {
	val, ok := s.cache.Get(bodyKey(url))
	if !ok {
		return nil, false
	}
	return val.([]byte), true
}

func (s *MemoryStore) SetBody(_ context.Context, url string, body []byte, ttl time.Duration) error {
	s.cache.Set(bodyKey(url), body, ttl)
	return nil
}

func (s *MemoryStore) GetPages(_ context.Context, url string) (int, bool) {
	val, ok := s.cache.Get(pagesKey(url))
	if !ok {
		return 0, false
	}
	return val.(int), true
}

func (s *MemoryStore) SetPages(_ context.Context, url string, pages int, ttl time.Duration) error {
	s.cache.Set(pagesKey(url), pages, ttl)
	return nil
}

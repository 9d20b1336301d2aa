package cache

import (
	"context"
	"time"
)

// Store caches conditional-request state per URL: the validator, the last
// body served for it, and the page count of paginated responses.
type Store interface {
	GetETag(ctx context.Context, url string) (string, bool)
	SetETag(ctx context.Context, url, etag string, ttl time.Duration) error

	GetBody(ctx context.Context, url string) ([]byte, bool)
	SetBody(ctx context.Context, url string, body []byte, ttl time.Duration) error

	GetPages(ctx context.Context, url string) (int, bool)
	SetPages(ctx context.Context, url string, pages int, ttl time.Duration) error
}

func etagKey(url string) string  { return "etag:" + url }
func bodyKey(url string) string  { return "json:" + url }
func pagesKey(url string) string { return "pages:" + url }

package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// RedisStore backs the conditional-request cache with redis so multiple
// instances share validators.
type RedisStore struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisStore(addr string, db int, log zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "unable to connect to redis")
	}

	return &RedisStore{
		client: client,
		log:    log.With().Str("module", "cache").Str("backend", "redis").Logger(),
	}, nil
}

func (s *RedisStore) get(ctx context.Context, key string) (string, bool) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return "", false
	}
	return val, true
}

func (s *RedisStore) set(ctx context.Context, key, val string, ttl time.Duration) error {
	return s.client.Set(ctx, key, val, ttl).Err()
}

func (s *RedisStore) GetETag(ctx context.Context, url string) (string, bool) {
	return s.get(ctx, etagKey(url))
}

func (s *RedisStore) SetETag(ctx context.Context, url, etag string, ttl time.Duration) error {
	return s.set(ctx, etagKey(url), etag, ttl)
}

func (s *RedisStore) GetBody(ctx context.Context, url string) ([]byte, bool) {
	val, ok := s.get(ctx, bodyKey(url))
	if !ok {
		return nil, false
	}
	return []byte(val), true
}

func (s *RedisStore) SetBody(ctx context.Context, url string, body []byte, ttl time.Duration) error {
	return s.set(ctx, bodyKey(url), string(body), ttl)
}

func (s *RedisStore) GetPages(ctx context.Context, url string) (int, bool) {
	val, ok := s.get(ctx, pagesKey(url))
	if !ok {
		return 0, false
	}
	pages, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return pages, true
}

func (s *RedisStore) SetPages(ctx context.Context, url string, pages int, ttl time.Duration) error {
	return s.set(ctx, pagesKey(url), strconv.Itoa(pages), ttl)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

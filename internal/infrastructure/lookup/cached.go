package lookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mohammadpnp/book-import/internal/domain/book"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores raw values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Lookup interface {
	Lookup(ctx context.Context, isbn string) (book.Book, error)
}

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// CachedLookup is a read-through cache in front of another Lookup. Only
// successful lookups are cached; cache faults fall through to the source.
type CachedLookup struct {
	source Lookup
	cache  Cache
	ttl    time.Duration
	log    logrus.FieldLogger
}

func NewCachedLookup(source Lookup, cache Cache, ttl time.Duration, log logrus.FieldLogger) *CachedLookup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedLookup{source: source, cache: cache, ttl: ttl, log: log}
}

type cachedBook struct {
	ISBN13        string    `json:"isbn13"`
	Title         string    `json:"title"`
	Subtitle      string    `json:"subtitle,omitempty"`
	Authors       []string  `json:"authors"`
	Publisher     string    `json:"publisher,omitempty"`
	PublishedDate string    `json:"published_date,omitempty"`
	PageCount     int       `json:"page_count,omitempty"`
	CoverURL      string    `json:"cover_url,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}

func (l *CachedLookup) Lookup(ctx context.Context, isbn string) (book.Book, error) {
	key := "book:" + isbn

	raw, err := l.cache.Get(ctx, key)
	switch {
	case err == nil:
		var cached cachedBook
		if err := json.Unmarshal(raw, &cached); err == nil {
			return book.Book(cached), nil
		}
		l.log.WithField("isbn", isbn).Warn("discarding undecodable cached book")
	case !errors.Is(err, ErrCacheMiss):
		l.log.WithError(err).WithField("isbn", isbn).Warn("lookup cache read failed")
	}

	b, err := l.source.Lookup(ctx, isbn)
	if err != nil {
		return book.Book{}, err
	}

	if encoded, err := json.Marshal(cachedBook(b)); err == nil {
		if err := l.cache.Set(ctx, key, encoded, l.ttl); err != nil {
			l.log.WithError(err).WithField("isbn", isbn).Warn("lookup cache write failed")
		}
	}
	return b, nil
}

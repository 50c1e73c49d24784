package lookup_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammadpnp/book-import/internal/domain/book"
	"github.com/mohammadpnp/book-import/internal/infrastructure/lookup"
)

type mapCache struct {
	mu      sync.Mutex
	values  map[string][]byte
	ttls    map[string]time.Duration
	failGet bool
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, errors.New("connection refused")
	}
	v, ok := c.values[key]
	if !ok {
		return nil, lookup.ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.ttls[key] = ttl
	return nil
}

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) Lookup(_ context.Context, isbn string) (book.Book, error) {
	s.calls++
	if s.err != nil {
		return book.Book{}, s.err
	}
	return book.Book{ISBN13: isbn, Title: "Cached Title", Authors: []string{"A"}, FetchedAt: time.Unix(1700000000, 0).UTC()}, nil
}

func TestCachedLookupReadsThrough(t *testing.T) {
	t.Parallel()

	logger, _ := test.NewNullLogger()
	source := &countingSource{}
	cache := newMapCache()
	l := lookup.NewCachedLookup(source, cache, time.Hour, logger)

	first, err := l.Lookup(context.Background(), "9780262033848")
	require.NoError(t, err)
	second, err := l.Lookup(context.Background(), "9780262033848")
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, time.Hour, cache.ttls["book:9780262033848"])
}

func TestCachedLookupDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	logger, _ := test.NewNullLogger()
	source := &countingSource{err: book.ErrBookNotFound}
	cache := newMapCache()
	l := lookup.NewCachedLookup(source, cache, time.Hour, logger)

	for i := 0; i < 2; i++ {
		_, err := l.Lookup(context.Background(), "9780000000000")
		require.ErrorIs(t, err, book.ErrBookNotFound)
	}
	assert.Equal(t, 2, source.calls)
	assert.Empty(t, cache.values)
}

func TestCachedLookupFallsThroughOnCacheFault(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	source := &countingSource{}
	cache := newMapCache()
	cache.failGet = true
	l := lookup.NewCachedLookup(source, cache, 0, logger)

	b, err := l.Lookup(context.Background(), "9780262033848")
	require.NoError(t, err)
	assert.Equal(t, "Cached Title", b.Title)
	assert.Equal(t, 1, source.calls)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "lookup cache read failed", hook.LastEntry().Message)
}

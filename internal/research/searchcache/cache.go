// Package searchcache memoizes web search calls for a fixed TTL.
//
// Entries are checked for staleness on read only; there is no background
// sweep. Provider failures are never cached and surface as a single
// error-marked result so callers always receive a list.
package searchcache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/metrics"
	"meeting-intel/internal/models"
)

const (
	DefaultTTL          = 15 * time.Minute
	DefaultFetchSize    = 10
	DefaultFetchTimeout = 30 * time.Second
)

// Provider is the underlying web search backend.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error)
}

// Entry is one cached result set.
type Entry struct {
	Results   []models.SearchResult `json:"results"`
	FetchedAt time.Time             `json:"fetchedAt"`
}

// Store persists entries keyed by the literal query string.
type Store interface {
	Get(ctx context.Context, query string) (Entry, bool, error)
	Set(ctx context.Context, query string, entry Entry, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// Cache wraps a Provider with TTL memoization.
type Cache struct {
	provider  Provider
	store     Store
	ttl       time.Duration
	fetchSize int
	timeout   time.Duration
	now       func() time.Time
	logger    logger.Logger
	group     singleflight.Group
}

// Option customises a Cache.
type Option func(*Cache)

// WithTTL sets the staleness threshold. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithStore replaces the in-memory store.
func WithStore(s Store) Option {
	return func(c *Cache) {
		if s != nil {
			c.store = s
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithFetchSize sets how many results are requested from the provider on a
// miss. The full set is cached and trimmed per call.
func WithFetchSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.fetchSize = n
		}
	}
}

// WithFetchTimeout bounds a shared provider call. It is independent of any
// single caller's context.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Cache in front of provider.
func New(provider Provider, opts ...Option) *Cache {
	c := &Cache{
		provider:  provider,
		store:     NewMemoryStore(),
		ttl:       DefaultTTL,
		fetchSize: DefaultFetchSize,
		timeout:   DefaultFetchTimeout,
		now:       time.Now,
		logger:    logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Component(c.logger, "search-cache")
	return c
}

// TTL returns the configured staleness threshold.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetOrFetch returns up to limit results for query, calling the provider only
// when no fresh entry exists. A non-positive limit returns everything cached.
func (c *Cache) GetOrFetch(ctx context.Context, query string, limit int) []models.SearchResult {
	if entry, ok := c.lookup(ctx, query); ok {
		metrics.SearchCacheLookups.WithLabelValues("hit").Inc()
		return trim(entry.Results, limit)
	}
	metrics.SearchCacheLookups.WithLabelValues("miss").Inc()

	n := c.fetchSize
	if limit > n {
		n = limit
	}

	// The shared fetch outlives any one caller: a waiter that gives up must
	// not cancel the provider call the others are waiting on.
	ch := c.group.DoChan(fmt.Sprintf("%d\x00%s", n, query), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.fetch(fetchCtx, query, n)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}
	if res.Err != nil {
		metrics.SearchCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("search provider failed", map[string]interface{}{
			"query": query,
			"error": res.Err.Error(),
		})
		return []models.SearchResult{ErrorResult(query, res.Err)}
	}

	return trim(res.Val.([]models.SearchResult), limit)
}

func (c *Cache) fetch(ctx context.Context, query string, n int) ([]models.SearchResult, error) {
	// Another caller may have populated the entry while we queued.
	if entry, ok := c.lookup(ctx, query); ok {
		return entry.Results, nil
	}

	results, err := c.provider.Search(ctx, query, n)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.SearchResult{}
	}

	entry := Entry{Results: results, FetchedAt: c.now()}
	if err := c.store.Set(ctx, query, entry, c.ttl); err != nil {
		c.logger.Warn("failed to store search results", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
	}
	return results, nil
}

// Clear drops every entry.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

func (c *Cache) lookup(ctx context.Context, query string) (Entry, bool) {
	entry, ok, err := c.store.Get(ctx, query)
	if err != nil {
		c.logger.Warn("search cache read failed, treating as miss", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		return Entry{}, false
	}
	if !ok || c.now().Sub(entry.FetchedAt) >= c.ttl {
		return Entry{}, false
	}
	return entry, true
}

// ErrorResult builds the synthetic result returned in place of a failed search.
func ErrorResult(query string, err error) models.SearchResult {
	return models.SearchResult{
		Title:   "Search unavailable",
		Snippet: fmt.Sprintf("Search for %q failed: %v", query, err),
		Error:   err.Error(),
	}
}

func trim(results []models.SearchResult, limit int) []models.SearchResult {
	if limit <= 0 || len(results) <= limit {
		out := make([]models.SearchResult, len(results))
		copy(out, results)
		return out
	}
	out := make([]models.SearchResult, limit)
	copy(out, results[:limit])
	return out
}

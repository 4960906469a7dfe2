// Package cache keeps search responses in Redis so that repeated queries skip
// posting intersection. Entries are dropped wholesale whenever the index
// changes.
package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/resilience"
)

const (
	keyPrefix   = "search:"
	breakerName = "redis-cache"
)

// Client is the subset of the Redis client the cache uses.
type Client interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Searcher is anything that answers a paginated search.
type Searcher interface {
	Search(ctx context.Context, query, site string, offset, limit int) (*search.Response, error)
}

type QueryCache struct {
	client  Client
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	tracker analytics.Tracker
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps client in a circuit breaker. m and tracker may be nil.
func New(client Client, cfg config.RedisConfig, m *metrics.Metrics, tracker analytics.Tracker) *QueryCache {
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	c := &QueryCache{
		client:  client,
		ttl:     cfg.CacheTTL,
		metrics: m,
		tracker: tracker,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker(breakerName, resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		OnStateChange: func(name string, state resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
			}
		},
	})
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(resilience.StateClosed))
	}
	return c
}

// Get returns the cached response for key. Redis failures count as misses.
func (c *QueryCache) Get(ctx context.Context, key string) (*search.Response, bool) {
	var (
		resp search.Response
		miss bool
	)
	err := c.breaker.Execute(func() error {
		err := c.client.GetJSON(ctx, key, &resp)
		if errors.Is(err, pkgredis.ErrMiss) {
			miss = true
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if miss {
		return nil, false
	}
	return &resp, true
}

func (c *QueryCache) Set(ctx context.Context, key string, resp *search.Response) {
	err := c.breaker.Execute(func() error {
		return c.client.SetJSON(ctx, key, resp, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute serves the response from the cache or computes and stores
// it. Concurrent misses on the same key share one computation. The boolean
// reports a cache hit. Errors are returned and never cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query, site string,
	offset, limit int,
	compute func() (*search.Response, error),
) (*search.Response, bool, error) {
	key := buildKey(query, site, offset, limit)
	if resp, ok := c.Get(ctx, key); ok {
		c.hit(query, site, resp)
		return resp, true, nil
	}
	c.miss()
	val, err, _ := c.group.Do(key, func() (any, error) {
		if resp, ok := c.Get(ctx, key); ok {
			return resp, nil
		}
		resp, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*search.Response), false, nil
}

// Wrap returns a Searcher that consults the cache before s.
func (c *QueryCache) Wrap(s Searcher) Searcher {
	return &cachedSearcher{cache: c, next: s}
}

// Invalidate removes every cached response.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.client.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit(query, site string, resp *search.Response) {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	event := analytics.NewSearchEvent()
	event.Query = query
	event.Site = site
	event.CacheHit = true
	event.TotalHits = resp.Count
	event.Returned = len(resp.Data)
	c.tracker.Track(event)
	c.logger.Debug("cache hit", "query", query, "site", site)
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

type cachedSearcher struct {
	cache *QueryCache
	next  Searcher
}

func (s *cachedSearcher) Search(ctx context.Context, query, site string, offset, limit int) (*search.Response, error) {
	resp, _, err := s.cache.GetOrCompute(ctx, query, site, offset, limit, func() (*search.Response, error) {
		return s.next.Search(ctx, query, site, offset, limit)
	})
	return resp, err
}

func buildKey(query, site string, offset, limit int) string {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	raw := fmt.Sprintf("%s|site=%s|offset=%d|limit=%d", normalizeQuery(query), normalizeSite(site), offset, limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func normalizeSite(site string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(site)), "/")
}

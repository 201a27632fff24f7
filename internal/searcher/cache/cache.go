// Package cache stores ranked results in Redis, keyed by the weighting
// variant, the query's term counts and the result limit.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/resilience"
)

const keyPrefix = "vsr:rank:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Observer receives cache lookup outcomes, e.g. for metrics.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheError()
}

type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Errors  int64  `json:"errors"`
	Circuit string `json:"circuit"`
}

type QueryCache struct {
	store    Store
	ttl      time.Duration
	variant  string
	group    singleflight.Group
	breaker  *resilience.CircuitBreaker
	observer Observer
	logger   *slog.Logger
	hits     atomic.Int64
	misses   atomic.Int64
	errors   atomic.Int64
}

// New builds a cache over store. variant names the scoring configuration
// (scheme plus options) so that differently scored results never share keys.
// breaker and observer may be nil.
func New(store Store, ttl time.Duration, variant string, breaker *resilience.CircuitBreaker, observer Observer) *QueryCache {
	return &QueryCache{
		store:    store,
		ttl:      ttl,
		variant:  variant,
		breaker:  breaker,
		observer: observer,
		logger:   slog.Default().With("component", "ranking-cache"),
	}
}

func (c *QueryCache) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

// Get returns the cached result for (q, limit). Any failure is a miss.
func (c *QueryCache) Get(ctx context.Context, q index.Query, limit int) (*executor.SearchResult, bool) {
	key := c.Key(q, limit)
	var data string
	err := c.guard(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.recordError()
		return nil, false
	}
	if data == "" {
		c.recordMiss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordError()
		return nil, false
	}
	c.hits.Add(1)
	if c.observer != nil {
		c.observer.CacheHit()
	}
	return &result, true
}

// Set stores result best-effort; failures are logged, not returned.
func (c *QueryCache) Set(ctx context.Context, q index.Query, limit int, result *executor.SearchResult) {
	key := c.Key(q, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.guard(func() error { return c.store.Set(ctx, key, data, c.ttl) }); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes and caches it.
// Concurrent misses for the same key share one computation. The boolean
// reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	q index.Query,
	limit int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, q, limit); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(c.Key(q, limit), func() (any, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, q, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached ranking, for all variants.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.guard(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	s := Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errors.Load(),
		Circuit: resilience.StateClosed.String(),
	}
	if c.breaker != nil {
		s.Circuit = c.breaker.State().String()
	}
	return s
}

// Key derives the cache key from the variant, the query's term counts in
// sorted order and the limit.
func (c *QueryCache) Key(q index.Query, limit int) string {
	var b strings.Builder
	b.WriteString(c.variant)
	for _, term := range q.SortedTerms() {
		fmt.Fprintf(&b, "|%q=%d", term, q[term])
	}
	fmt.Fprintf(&b, "|limit=%d", limit)
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.observer != nil {
		c.observer.CacheMiss()
	}
}

func (c *QueryCache) recordError() {
	c.errors.Add(1)
	c.misses.Add(1)
	if c.observer != nil {
		c.observer.CacheError()
	}
}

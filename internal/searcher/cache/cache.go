// Package cache stores search results in Redis keyed by the normalised query
// plan. Concurrent misses for the same key are collapsed with singleflight.
// The whole cache is dropped whenever the index changes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/searcher/parser"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Backend is the key/value surface the cache needs from Redis.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	client Backend
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64

	// generation counts invalidations. A result computed under an older
	// generation is returned but never stored.
	genMu      sync.RWMutex
	generation uint64
}

func New(client Backend, ttl time.Duration) *QueryCache {
	return &QueryCache{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, plan *parser.QueryPlan) (*executor.SearchResult, bool) {
	key := buildKey(plan)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	// The echoed query and filters belong to this request, not the one that
	// filled the entry.
	result.Query = plan.RawQuery
	result.Filters = plan.Filters
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, plan *parser.QueryPlan, result *executor.SearchResult) {
	key := buildKey(plan)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached result or computes, stores and returns a
// fresh one. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	plan *parser.QueryPlan,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, plan); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(buildKey(plan), func() (interface{}, error) {
		gen := c.currentGeneration()
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.setIfCurrent(ctx, gen, plan, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	shared := *val.(*executor.SearchResult)
	shared.Query = plan.RawQuery
	shared.Filters = plan.Filters
	return &shared, false, nil
}

func (c *QueryCache) currentGeneration() uint64 {
	c.genMu.RLock()
	defer c.genMu.RUnlock()
	return c.generation
}

// setIfCurrent stores result unless the cache was invalidated after gen was
// read. The read lock keeps a concurrent Invalidate from flushing before the
// write lands.
func (c *QueryCache) setIfCurrent(ctx context.Context, gen uint64, plan *parser.QueryPlan, result *executor.SearchResult) {
	c.genMu.RLock()
	defer c.genMu.RUnlock()
	if c.generation != gen {
		c.logger.Debug("discarding result computed before invalidation", "query", plan.RawQuery)
		return
	}
	c.Set(ctx, plan, result)
}

// Invalidate drops every cached result, including results still being
// computed from the previous index state.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	c.genMu.Lock()
	c.generation++
	c.genMu.Unlock()

	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func buildKey(plan *parser.QueryPlan) string {
	hash := sha256.Sum256([]byte(plan.Normalized()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

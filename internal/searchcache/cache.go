// Package searchcache keeps recent catalog search results for incremental lookup.
//
// A Cache is owned by one component (the API server, a CLI command) and is
// never shared through package state. Entries are evicted strictly in
// insertion order; a hit does not refresh an entry.
package searchcache

import (
	"context"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"stockcount/internal"
	"stockcount/internal/metrics"
	"stockcount/internal/util"
)

const (
	DefaultCapacity = 50
	// StoreLimit is how many rows are fetched and cached per query, whatever the caller asks for.
	StoreLimit  = 50
	MinQueryLen = 2

	// sharedLoadTimeout bounds a coalesced store call, which no single caller can cancel.
	sharedLoadTimeout = 30 * time.Second
)

type Searcher interface {
	SearchProducts(ctx context.Context, queryUpper string, limit int) ([]internal.Product, error)
}

type Options struct {
	Capacity int
	// Coalesce shares one store call between concurrent misses on the same key.
	Coalesce bool
}

type Cache struct {
	store    Searcher
	capacity int
	group    *singleflight.Group

	mu      sync.Mutex
	entries map[string][]internal.Product
	order   []string
	// gen is bumped by Reset; loads started before a Reset are not cached.
	gen uint64
}

func New(store Searcher, opts Options) *Cache {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		store:    store,
		capacity: capacity,
		entries:  make(map[string][]internal.Product, capacity),
		order:    make([]string, 0, capacity),
	}
	if opts.Coalesce {
		c.group = &singleflight.Group{}
	}
	return c
}

// Search returns at most limit products matching query. A limit <= 0 returns
// everything cached for the key.
func (c *Cache) Search(ctx context.Context, query string, limit int) ([]internal.Product, error) {
	key := util.NormalizeQuery(query)
	if utf8.RuneCountInString(key) < MinQueryLen {
		metrics.SearchLookups.WithLabelValues("short").Inc()
		return []internal.Product{}, nil
	}

	if hit, ok := c.get(key); ok {
		metrics.SearchLookups.WithLabelValues("hit").Inc()
		return capped(hit, limit), nil
	}
	metrics.SearchLookups.WithLabelValues("miss").Inc()

	results, err := c.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return capped(results, limit), nil
}

func (c *Cache) fetch(ctx context.Context, key string) ([]internal.Product, error) {
	if c.group == nil {
		return c.load(ctx, key)
	}
	// The shared call outlives any one caller; each caller still honours its own ctx.
	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		return c.load(loadCtx, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]internal.Product), nil
	}
}

func (c *Cache) load(ctx context.Context, key string) ([]internal.Product, error) {
	gen := c.generation()
	metrics.StoreSearches.Inc()
	results, err := c.store.SearchProducts(ctx, key, StoreLimit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []internal.Product{}
	}
	c.put(key, results, gen)
	return results, nil
}

func (c *Cache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Cache) get(key string) ([]internal.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *Cache) put(key string, results []internal.Product, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}

	if _, ok := c.entries[key]; ok {
		// Two uncoalesced misses raced; keep the first insertion position.
		c.entries[key] = results
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = results
	c.order = append(c.order, key)
}

// Reset drops every entry. Owners call it after the catalog changes.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]internal.Product, c.capacity)
	c.order = make([]string, 0, c.capacity)
	c.gen++
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Contains reports whether query currently has a cached entry.
func (c *Cache) Contains(query string) bool {
	_, ok := c.get(util.NormalizeQuery(query))
	return ok
}

func capped(results []internal.Product, limit int) []internal.Product {
	n := len(results)
	if limit > 0 && limit < n {
		n = limit
	}
	return slices.Clone(results[:n])
}

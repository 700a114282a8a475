package searchcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcount/internal"
)

type fakeSearcher struct {
	calls   atomic.Int32
	queries []string
	mu      sync.Mutex
	results int
	err     error
	delay   time.Duration
}

func (f *fakeSearcher) SearchProducts(_ context.Context, queryUpper string, limit int) ([]internal.Product, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, queryUpper)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	n := f.results
	if n > limit {
		n = limit
	}
	out := make([]internal.Product, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, internal.Product{Code: fmt.Sprintf("%s-%02d", queryUpper, i), Description: queryUpper})
	}
	return out, nil
}

func TestSearchShortQueryNeverHitsStore(t *testing.T) {
	store := &fakeSearcher{results: 3}
	cache := New(store, Options{})

	for _, q := range []string{"", " ", "A", "  a  "} {
		got, err := cache.Search(context.Background(), q, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Equal(t, int32(0), store.calls.Load())
	assert.Equal(t, 0, cache.Len())
}

func TestSearchCaseInsensitiveSharesEntry(t *testing.T) {
	store := &fakeSearcher{results: 10}
	cache := New(store, Options{})

	lower, err := cache.Search(context.Background(), "agua", 50)
	require.NoError(t, err)
	upper, err := cache.Search(context.Background(), "AGUA", 50)
	require.NoError(t, err)

	assert.Equal(t, lower, upper)
	assert.Equal(t, int32(1), store.calls.Load())
	assert.Equal(t, []string{"AGUA"}, store.queries)
	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Contains(" agua "))
}

func TestSearchCapsToCallerLimit(t *testing.T) {
	store := &fakeSearcher{results: 60}
	cache := New(store, Options{})

	auto, err := cache.Search(context.Background(), "cabo", 5)
	require.NoError(t, err)
	assert.Len(t, auto, 5)

	full, err := cache.Search(context.Background(), "cabo", 50)
	require.NoError(t, err)
	assert.Len(t, full, StoreLimit)
	assert.Equal(t, int32(1), store.calls.Load())

	// Mutating a returned slice must not leak into the cache.
	auto[0].Code = "CHANGED"
	again, err := cache.Search(context.Background(), "cabo", 1)
	require.NoError(t, err)
	assert.Equal(t, "CABO-00", again[0].Code)
}

func TestSearchEvictsOldestInserted(t *testing.T) {
	store := &fakeSearcher{results: 1}
	cache := New(store, Options{Capacity: 50})

	for i := 0; i < 51; i++ {
		_, err := cache.Search(context.Background(), fmt.Sprintf("q%02d", i), 5)
		require.NoError(t, err)
	}

	assert.Equal(t, 50, cache.Len())
	assert.False(t, cache.Contains("q00"))
	for i := 1; i < 51; i++ {
		assert.True(t, cache.Contains(fmt.Sprintf("q%02d", i)), "q%02d should be cached", i)
	}
}

func TestSearchHitDoesNotRefreshPosition(t *testing.T) {
	store := &fakeSearcher{results: 1}
	cache := New(store, Options{Capacity: 2})
	ctx := context.Background()

	_, _ = cache.Search(ctx, "aa", 5)
	_, _ = cache.Search(ctx, "bb", 5)
	_, _ = cache.Search(ctx, "aa", 5)
	_, _ = cache.Search(ctx, "cc", 5)

	assert.False(t, cache.Contains("aa"))
	assert.True(t, cache.Contains("bb"))
	assert.True(t, cache.Contains("cc"))
}

func TestSearchErrorIsNotCached(t *testing.T) {
	store := &fakeSearcher{err: errors.New("boom")}
	cache := New(store, Options{})

	_, err := cache.Search(context.Background(), "agua", 5)
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())

	store.err = nil
	store.results = 2
	got, err := cache.Search(context.Background(), "agua", 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSearchEmptyResultIsCached(t *testing.T) {
	store := &fakeSearcher{}
	cache := New(store, Options{})

	got, err := cache.Search(context.Background(), "zz", 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, _ = cache.Search(context.Background(), "zz", 5)
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestReset(t *testing.T) {
	store := &fakeSearcher{results: 1}
	cache := New(store, Options{})

	_, _ = cache.Search(context.Background(), "agua", 5)
	cache.Reset()
	assert.Equal(t, 0, cache.Len())

	_, _ = cache.Search(context.Background(), "agua", 5)
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestSearchCoalescesConcurrentMisses(t *testing.T) {
	store := &fakeSearcher{results: 3, delay: 50 * time.Millisecond}
	cache := New(store, Options{Coalesce: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cache.Search(context.Background(), "agua", 5)
			assert.NoError(t, err)
			assert.Len(t, got, 3)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), store.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

// gatedSearcher blocks every store call until release is closed.
type gatedSearcher struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newGatedSearcher() *gatedSearcher {
	return &gatedSearcher{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gatedSearcher) SearchProducts(ctx context.Context, queryUpper string, _ int) ([]internal.Product, error) {
	g.calls.Add(1)
	g.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
	}
	return []internal.Product{{Code: queryUpper + "-01", Description: queryUpper}}, nil
}

func TestSearchCoalescedLoadSurvivesLeaderCancel(t *testing.T) {
	store := newGatedSearcher()
	cache := New(store, Options{Coalesce: true})

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cache.Search(leaderCtx, "agua", 5)
		leaderErr <- err
	}()
	<-store.started

	type result struct {
		got []internal.Product
		err error
	}
	follower := make(chan result, 1)
	go func() {
		got, err := cache.Search(context.Background(), "agua", 5)
		follower <- result{got, err}
	}()

	cancel()
	select {
	case err := <-leaderErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(store.release)
	select {
	case r := <-follower:
		require.NoError(t, r.err)
		require.Len(t, r.got, 1)
		assert.Equal(t, "AGUA-01", r.got[0].Code)
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not return")
	}
	assert.Equal(t, int32(1), store.calls.Load())
	assert.True(t, cache.Contains("agua"))
}

func TestResetDropsInFlightLoad(t *testing.T) {
	store := newGatedSearcher()
	cache := New(store, Options{})

	done := make(chan []internal.Product, 1)
	go func() {
		got, err := cache.Search(context.Background(), "cafe", 5)
		assert.NoError(t, err)
		done <- got
	}()
	<-store.started

	cache.Reset()
	close(store.release)

	select {
	case got := <-done:
		assert.Len(t, got, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("search did not return")
	}
	assert.False(t, cache.Contains("cafe"))
	assert.Equal(t, 0, cache.Len())
}

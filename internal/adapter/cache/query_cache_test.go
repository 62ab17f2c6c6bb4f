package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
)

func matches(ids ...string) []domain.Match {
	out := make([]domain.Match, len(ids))
	for i, id := range ids {
		out[i] = domain.Match{ID: id, Score: float64(len(ids) - i)}
	}
	return out
}

func TestCacheKeyIncludesDocument(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put(0, "q", 5, "", matches("a"))
	c.Put(0, "q", 5, "doc", matches("b"))
	c.Put(0, "q", 3, "", matches("c"))

	got, ok := c.Get("q", 5, "")
	require.True(t, ok)
	assert.Equal(t, "a", got[0].ID)

	got, ok = c.Get("q", 5, "doc")
	require.True(t, ok)
	assert.Equal(t, "b", got[0].ID)

	got, ok = c.Get("q", 3, "")
	require.True(t, ok)
	assert.Equal(t, "c", got[0].ID)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	c.Put(0, "a", 1, "", matches("a"))
	c.Put(0, "b", 1, "", matches("b"))
	_, ok := c.Get("a", 1, "")
	require.True(t, ok)

	c.Put(0, "c", 1, "", matches("c"))
	assert.Equal(t, 2, c.Size())

	_, ok = c.Get("b", 1, "")
	assert.False(t, ok)
	_, ok = c.Get("a", 1, "")
	assert.True(t, ok)
}

func TestCacheTTLAndInvalidate(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put(0, "q", 1, "", matches("a"))
	now = now.Add(2 * time.Minute)
	_, ok := c.Get("q", 1, "")
	assert.False(t, ok)

	c.Put(0, "q", 1, "", matches("a"))
	c.Invalidate()
	c.Put(0, "q", 1, "", matches("stale"))
	_, ok = c.Get("q", 1, "")
	assert.False(t, ok)
	assert.Zero(t, c.Size())

	c.Put(c.Generation(), "q", 1, "", matches("fresh"))
	got, ok := c.Get("q", 1, "")
	require.True(t, ok)
	assert.Equal(t, "fresh", got[0].ID)
}

type countingRetriever struct {
	calls int
	err   error
}

func (r *countingRetriever) Retrieve(_ context.Context, query string, _ int, _ string) ([]domain.Match, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return matches(query), nil
}

func TestCachedRetriever(t *testing.T) {
	ctx := context.Background()
	inner := &countingRetriever{}
	r := NewCachedRetriever(inner, NewQueryCache(10, time.Minute))

	for i := 0; i < 3; i++ {
		got, err := r.Retrieve(ctx, "q", 5, "")
		require.NoError(t, err)
		assert.Equal(t, "q", got[0].ID)
	}
	assert.Equal(t, 1, inner.calls)

	r.Invalidate()
	_, err := r.Retrieve(ctx, "q", 5, "")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	inner.err = errors.New("down")
	_, err = r.Retrieve(ctx, "other", 5, "")
	assert.Error(t, err)
	assert.Equal(t, 1, r.cache.Size(), "errors are not cached")
}

// gatedRetriever blocks its first call until release is closed.
type gatedRetriever struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	results [][]domain.Match
}

func (r *gatedRetriever) Retrieve(_ context.Context, _ string, _ int, _ string) ([]domain.Match, error) {
	r.mu.Lock()
	n := r.calls
	r.calls++
	r.mu.Unlock()

	if n == 0 {
		close(r.started)
		<-r.release
	}
	return r.results[n], nil
}

func TestCachedRetrieverDropsResultsRacingAnIngest(t *testing.T) {
	ctx := context.Background()
	inner := &gatedRetriever{
		started: make(chan struct{}),
		release: make(chan struct{}),
		results: [][]domain.Match{nil, matches("new")},
	}
	r := NewCachedRetriever(inner, NewQueryCache(10, time.Minute))

	done := make(chan []domain.Match)
	go func() {
		got, err := r.Retrieve(ctx, "q", 5, "")
		assert.NoError(t, err)
		done <- got
	}()

	<-inner.started
	r.Invalidate()
	close(inner.release)
	assert.Empty(t, <-done)
	assert.Zero(t, r.cache.Size())

	got, err := r.Retrieve(ctx, "q", 5, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, 2, inner.calls)
}

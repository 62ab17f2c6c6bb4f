package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

// QueryCache is an LRU of retrieval results with a TTL. Invalidate bumps a
// generation counter so entries cached before an ingest are never served.
type QueryCache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	order    []string
	maxSize  int
	ttl      time.Duration
	indexGen uint64
	now      func() time.Time
}

type cacheEntry struct {
	results   []domain.Match
	timestamp time.Time
	indexGen  uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(query string, topK int, documentID string) string {
	h := sha256.New()
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(topK))
	h.Write(k[:])
	binary.BigEndian.PutUint64(k[:], uint64(len(documentID)))
	h.Write(k[:])
	h.Write([]byte(documentID))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func (c *QueryCache) Get(query string, topK int, documentID string) ([]domain.Match, bool) {
	key := cacheKey(query, topK, documentID)

	c.mu.RLock()
	entry, exists := c.entries[key]
	currentGen := c.indexGen
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if c.now().Sub(entry.timestamp) > c.ttl || entry.indexGen != currentGen {
		c.mu.Lock()
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()

	return cloneMatches(entry.results), true
}

// Generation returns the current invalidation counter. Callers read it
// before computing a result and hand it back to Put.
func (c *QueryCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexGen
}

// Put stores results computed while gen was current. The write is dropped
// when an Invalidate happened since.
func (c *QueryCache) Put(gen uint64, query string, topK int, documentID string, results []domain.Match) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.indexGen {
		return
	}

	key := cacheKey(query, topK, documentID)
	entry := &cacheEntry{
		results:   cloneMatches(results),
		timestamp: c.now(),
		indexGen:  gen,
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
}

func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
	c.indexGen++
}

func (c *QueryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func cloneMatches(in []domain.Match) []domain.Match {
	if in == nil {
		return nil
	}
	out := make([]domain.Match, len(in))
	copy(out, in)
	return out
}

// CachedRetriever serves repeated queries from a QueryCache.
type CachedRetriever struct {
	retriever port.Retriever
	cache     *QueryCache
}

func NewCachedRetriever(retriever port.Retriever, cache *QueryCache) *CachedRetriever {
	return &CachedRetriever{
		retriever: retriever,
		cache:     cache,
	}
}

func (r *CachedRetriever) Retrieve(ctx context.Context, query string, topK int, documentID string) ([]domain.Match, error) {
	if results, hit := r.cache.Get(query, topK, documentID); hit {
		return results, nil
	}

	gen := r.cache.Generation()
	results, err := r.retriever.Retrieve(ctx, query, topK, documentID)
	if err != nil {
		return nil, err
	}

	r.cache.Put(gen, query, topK, documentID, results)
	return results, nil
}

// Invalidate drops every cached result.
func (r *CachedRetriever) Invalidate() {
	r.cache.Invalidate()
}

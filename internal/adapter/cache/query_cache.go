package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"charrag/internal/metrics"
	"charrag/internal/port"
)

// QueryCache is an LRU of query embeddings keyed by embedding model and
// text. Invalidate bumps a generation counter so entries written before it
// are never served again, even by a Get racing the invalidation.
type QueryCache struct {
	mu      sync.Mutex
	items   map[cacheKey]*list.Element
	lru     *list.List // front is most recently used
	maxSize int
	ttl     time.Duration
	gen     uint64
	now     func() time.Time

	hits   uint64
	misses uint64
}

type cacheKey struct {
	model string
	text  string
}

type cacheEntry struct {
	key     cacheKey
	vector  []float32
	written time.Time
	gen     uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &QueryCache{
		items:   make(map[cacheKey]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the cached vector so callers may not corrupt it.
func (c *QueryCache) Get(model, text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[cacheKey{model, text}]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if e.gen != c.gen || c.now().Sub(e.written) > c.ttl {
		c.remove(el)
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.hits++
	return append([]float32(nil), e.vector...), true
}

func (c *QueryCache) Put(model, text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{model, text}
	e := &cacheEntry{
		key:     key,
		vector:  append([]float32(nil), vector...),
		written: c.now(),
		gen:     c.gen,
	}
	if el, ok := c.items[key]; ok {
		el.Value = e
		c.lru.MoveToFront(el)
		return
	}
	for c.lru.Len() >= c.maxSize {
		c.remove(c.lru.Back())
	}
	c.items[key] = c.lru.PushFront(e)
}

// Invalidate drops every entry. It runs whenever an index changes
// generation.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[cacheKey]*list.Element, c.maxSize)
	c.lru.Init()
	c.gen++
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns hit and miss counts since creation.
func (c *QueryCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *QueryCache) remove(el *list.Element) {
	if el == nil {
		return
	}
	c.lru.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).key)
}

// CachedEmbedder serves single-text embeddings from a QueryCache. Batches
// go straight to the wrapped embedder since they come from index builds.
type CachedEmbedder struct {
	embedder port.Embedder
	cache    *QueryCache
	metrics  *metrics.Metrics
}

var _ port.Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(embedder port.Embedder, cache *QueryCache) *CachedEmbedder {
	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
	}
}

// WithMetrics records cache hits and misses. m may be nil.
func (e *CachedEmbedder) WithMetrics(m *metrics.Metrics) *CachedEmbedder {
	e.metrics = m
	return e
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return e.embedder.Embed(ctx, texts)
	}

	model := e.embedder.ModelName()
	if v, hit := e.cache.Get(model, texts[0]); hit {
		e.metrics.ObserveQueryCache(true)
		return [][]float32{v}, nil
	}
	e.metrics.ObserveQueryCache(false)

	vecs, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 1 {
		e.cache.Put(model, texts[0], vecs[0])
	}
	return vecs, nil
}

func (e *CachedEmbedder) Dimension() int    { return e.embedder.Dimension() }
func (e *CachedEmbedder) ModelName() string { return e.embedder.ModelName() }

// Cache exposes the underlying cache so index rebuilds can invalidate it.
func (e *CachedEmbedder) Cache() *QueryCache { return e.cache }

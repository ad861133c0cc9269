package cache

import (
	"context"
	"testing"
	"time"
)

type countingEmbedder struct {
	calls int
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *countingEmbedder) Dimension() int    { return 2 }
func (e *countingEmbedder) ModelName() string { return "counting" }

func TestQueryCacheLRU(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	c.Put("m", "a", []float32{1})
	c.Put("m", "b", []float32{2})

	// Touch a so b becomes the oldest.
	if _, ok := c.Get("m", "a"); !ok {
		t.Fatal("expected hit for a")
	}
	c.Put("m", "c", []float32{3})

	if _, ok := c.Get("m", "b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("m", "a"); !ok {
		t.Error("expected a to survive")
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
}

func TestQueryCacheKeyIncludesModel(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("m1", "hello", []float32{1})
	if _, ok := c.Get("m2", "hello"); ok {
		t.Error("expected miss for a different model")
	}
}

func TestQueryCacheInvalidate(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("m", "a", []float32{1})
	c.Invalidate()
	if _, ok := c.Get("m", "a"); ok {
		t.Error("expected miss after invalidate")
	}
}

func TestQueryCacheTTL(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Put("m", "a", []float32{1})
	now = now.Add(30 * time.Second)
	if _, ok := c.Get("m", "a"); !ok {
		t.Error("expected fresh entry to hit")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("m", "a"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Size() != 0 {
		t.Errorf("expected expired entry to be dropped, size %d", c.Size())
	}
}

func TestQueryCacheReturnsCopies(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	v := []float32{1, 2}
	c.Put("m", "a", v)
	v[0] = 9

	got, _ := c.Get("m", "a")
	got[1] = 9
	again, _ := c.Get("m", "a")
	if again[0] != 1 || again[1] != 2 {
		t.Errorf("cached vector was mutated: %v", again)
	}
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewCachedEmbedder(inner, NewQueryCache(10, time.Minute))

	for i := 0; i < 3; i++ {
		vecs, err := e.Embed(context.Background(), []string{"query"})
		if err != nil {
			t.Fatal(err)
		}
		if vecs[0][0] != 5 {
			t.Errorf("unexpected vector %v", vecs[0])
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", inner.calls)
	}

	e.Embed(context.Background(), []string{"a", "b"})
	e.Embed(context.Background(), []string{"a", "b"})
	if inner.calls != 3 {
		t.Errorf("expected batches to bypass the cache, got %d calls", inner.calls)
	}

	hits, misses := e.Cache().Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("expected 2 hits and 1 miss, got %d/%d", hits, misses)
	}
}

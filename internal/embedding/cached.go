package embedding

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 256

// Cached memoizes embeddings by exact text. Keys are held in memory, so it
// wraps query embedding only; document bodies go to the inner embedder.
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float64]
}

var _ Embedder = (*Cached)(nil)

func NewCached(inner Embedder, size int) (*Cached, error) {
	if inner == nil {
		return nil, errors.New("embedding: inner embedder is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Name() string   { return c.inner.Name() }
func (c *Cached) Dimension() int { return c.inner.Dimension() }

func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.cache.Get(text); ok {
		return clone(v), nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, clone(v))
	return v, nil
}

func (c *Cached) Len() int { return c.cache.Len() }

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL applies when NewCachedProvider is given ttl <= 0.
const DefaultCacheTTL = 10 * time.Minute

var _ Provider = (*CachedProvider)(nil)

// CachedProvider memoizes another provider's vectors in an expirable LRU
// keyed by model and text. Cache misses in a batch are fetched together in
// a single inner call.
type CachedProvider struct {
	inner Provider
	lru   *expirable.LRU[string, []float32]
}

// NewCachedProvider wraps p with a cache holding up to size entries.
func NewCachedProvider(p Provider, size int, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedProvider{
		inner: p,
		lru:   expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return Embed(ctx, c, text)
}

func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var (
		misses  []string
		pending = map[string][]int{}
	)
	for i, t := range texts {
		if v, ok := c.lru.Get(c.key(t)); ok {
			out[i] = clone(v)
			continue
		}
		if _, seen := pending[t]; !seen {
			misses = append(misses, t)
		}
		pending[t] = append(pending[t], i)
	}

	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.inner.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	if err := CheckVectors(c.inner.Name(), len(misses), c.inner.Dimensions(), fetched); err != nil {
		return nil, err
	}

	for j, t := range misses {
		c.lru.Add(c.key(t), fetched[j])
		for _, i := range pending[t] {
			out[i] = clone(fetched[j])
		}
	}
	return out, nil
}

// Len reports the number of cached vectors.
func (c *CachedProvider) Len() int { return c.lru.Len() }

func (c *CachedProvider) Dimensions() int { return c.inner.Dimensions() }
func (c *CachedProvider) Name() string    { return c.inner.Name() }
func (c *CachedProvider) Model() string   { return c.inner.Model() }

func (c *CachedProvider) key(text string) string {
	return c.inner.Model() + "\x00" + text
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}

package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the number of chunk vectors kept when no size
// is configured. At 256 dimensions that is about 4MB.
const DefaultEmbeddingCacheSize = 4096

// CacheStats counts lookups served by a CachedEmbedder.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// CachedEmbedder keeps recent chunk vectors in an LRU keyed by model and
// chunk text. A chunk seen before, in this batch or an earlier document, is
// not sent to the inner embedder again.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[[sha256.Size]byte, []float32]

	hits   atomic.Int64
	misses atomic.Int64
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an LRU of cacheSize vectors.
// A non-positive size uses DefaultEmbeddingCacheSize.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[[sha256.Size]byte, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

// key binds a text to the model and dimension that produced its vector, so a
// provider switch never serves stale vectors.
func (c *CachedEmbedder) key(text string) [sha256.Size]byte {
	h := sha256.New()
	_, _ = h.Write([]byte(c.inner.ModelName()))
	_ = binary.Write(h, binary.LittleEndian, int64(c.inner.Dimensions()))
	_, _ = h.Write([]byte(text))
	var k [sha256.Size]byte
	h.Sum(k[:0])
	return k
}

// Embed implements Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder. Cached texts are answered from the LRU;
// the remaining distinct texts go to the inner embedder in one call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	// distinct uncached text -> positions in texts
	pending := make(map[string][]int)
	var missed []string
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.key(text)); ok {
			out[i] = vec
			c.hits.Add(1)
			continue
		}
		if _, seen := pending[text]; !seen {
			missed = append(missed, text)
		}
		pending[text] = append(pending[text], i)
	}
	if len(missed) == 0 {
		return out, nil
	}
	c.misses.Add(int64(len(missed)))

	vecs, err := c.inner.EmbedBatch(ctx, missed)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missed) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missed))
	}
	for j, text := range missed {
		c.cache.Add(c.key(text), vecs[j])
		for _, i := range pending[text] {
			out[i] = vecs[j]
		}
	}
	return out, nil
}

// Stats reports cache hits and misses since creation.
func (c *CachedEmbedder) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.cache.Len()}
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// Close closes the inner embedder.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }

package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records every text it is asked to embed.
type countingEmbedder struct {
	mu     sync.Mutex
	seen   []string
	calls  int
	model  string
	dims   int
	err    error
	closed bool
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{model: "counting", dims: 4}
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		e.seen = append(e.seen, text)
		out[i] = []float32{float32(len(text)), float32(len(e.seen)), 0, 0}
	}
	return out, nil
}

func (e *countingEmbedder) Dimensions() int                { return e.dims }
func (e *countingEmbedder) ModelName() string              { return e.model }
func (e *countingEmbedder) Available(context.Context) bool { return true }

func (e *countingEmbedder) Close() error {
	e.closed = true
	return nil
}

func (e *countingEmbedder) texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.seen...)
}

func TestCachedEmbedder_RedeliveredDocumentSkipsInner(t *testing.T) {
	inner := newCountingEmbedder()
	c := NewCachedEmbedder(inner, 100)
	ctx := context.Background()
	chunks := []string{"revenue grew", "costs fell"}

	first, err := c.EmbedBatch(ctx, chunks)
	require.NoError(t, err)
	second, err := c.EmbedBatch(ctx, chunks)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, CacheStats{Hits: 2, Misses: 2, Entries: 2}, c.Stats())
}

func TestCachedEmbedder_DuplicateChunksInOneBatchEmbeddedOnce(t *testing.T) {
	inner := newCountingEmbedder()
	c := NewCachedEmbedder(inner, 100)

	vecs, err := c.EmbedBatch(context.Background(), []string{"footer", "body", "footer"})

	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []string{"footer", "body"}, inner.texts())
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestCachedEmbedder_OnlyMissesReachInner(t *testing.T) {
	inner := newCountingEmbedder()
	c := NewCachedEmbedder(inner, 100)
	ctx := context.Background()

	_, err := c.Embed(ctx, "page one")
	require.NoError(t, err)
	_, err = c.EmbedBatch(ctx, []string{"page one", "page two"})
	require.NoError(t, err)

	assert.Equal(t, []string{"page one", "page two"}, inner.texts())
}

func TestCachedEmbedder_KeyIncludesModel(t *testing.T) {
	inner := newCountingEmbedder()
	c := NewCachedEmbedder(inner, 100)
	ctx := context.Background()

	_, err := c.Embed(ctx, "same text")
	require.NoError(t, err)
	inner.model = "other-model"
	_, err = c.Embed(ctx, "same text")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedder_InnerErrorIsNotCached(t *testing.T) {
	inner := newCountingEmbedder()
	inner.err = errors.New("ollama unavailable")
	c := NewCachedEmbedder(inner, 100)
	ctx := context.Background()

	_, err := c.EmbedBatch(ctx, []string{"a"})
	require.ErrorContains(t, err, "ollama unavailable")

	inner.err = nil
	_, err = c.EmbedBatch(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 0, int(c.Stats().Hits))
}

func TestCachedEmbedder_Eviction(t *testing.T) {
	inner := newCountingEmbedder()
	c := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		_, err := c.Embed(ctx, text)
		require.NoError(t, err)
	}
	_, err := c.Embed(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "a"}, inner.texts(), "oldest entry was evicted")
	assert.Equal(t, 2, c.Stats().Entries)
}

func TestCachedEmbedder_EmptyBatch(t *testing.T) {
	inner := newCountingEmbedder()
	c := NewCachedEmbedder(inner, 0)

	vecs, err := c.EmbedBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Zero(t, inner.calls)
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := newCountingEmbedder()
	c := NewCachedEmbedder(inner, 10)

	assert.Equal(t, 4, c.Dimensions())
	assert.Equal(t, "counting", c.ModelName())
	assert.True(t, c.Available(context.Background()))
	require.NoError(t, c.Close())
	assert.True(t, inner.closed)
}

func TestCachedEmbedder_Concurrent(t *testing.T) {
	c := NewCachedEmbedder(newCountingEmbedder(), 50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := c.EmbedBatch(ctx, []string{fmt.Sprintf("chunk-%d", i%20), fmt.Sprintf("g%d", g)})
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	s := c.Stats()
	assert.Equal(t, int64(8*50*2), s.Hits+s.Misses)
}

package index

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragingest/internal/chunk"
	"github.com/Aman-CERP/ragingest/internal/embed"
	"github.com/Aman-CERP/ragingest/internal/errors"
	"github.com/Aman-CERP/ragingest/internal/ingest"
	"github.com/Aman-CERP/ragingest/internal/sqldb"
	"github.com/Aman-CERP/ragingest/internal/store"
)

const testDims = 32

func newTables(t *testing.T) *store.TableStore {
	t.Helper()
	db, err := sqldb.OpenSQLite("")
	require.NoError(t, err)
	s, err := store.New(context.Background(), db, testDims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newPipeline(t *testing.T, tables *store.TableStore, e embed.Embedder) *Pipeline {
	t.Helper()
	p, err := NewPipeline(PipelineConfig{
		Embedder:  e,
		Store:     tables,
		Splitter:  chunk.NewSplitter(100, 20),
		BatchSize: 4,
	})
	require.NoError(t, err)
	return p
}

// failingEmbedder fails every batch after the first n.
type failingEmbedder struct {
	embed.Embedder
	okBatches int
	calls     int
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls > f.okBatches {
		return nil, stderrors.New("model crashed")
	}
	return f.Embedder.EmbedBatch(ctx, texts)
}

func longText(words int) string {
	return strings.TrimSpace(strings.Repeat("lorem ipsum ", words/2))
}

func TestPipeline_IndexDocument_WritesRows(t *testing.T) {
	ctx := context.Background()
	tables := newTables(t)
	p := newPipeline(t, tables, embed.NewStaticEmbedder(testDims))

	doc := ingest.Document{Source: "s3://b/private/userA/notes.txt", Name: "notes.txt", Content: []byte(longText(200))}
	n, err := p.IndexDocument(ctx, "userA", doc)

	require.NoError(t, err)
	assert.Greater(t, n, 4, "document spans several embedding batches")

	rows, err := tables.Rows(ctx, "userA", doc.Source)
	require.NoError(t, err)
	require.Len(t, rows, n)
	for i, r := range rows {
		assert.Equal(t, i, r.Ordinal)
		assert.Equal(t, "0", r.Page)
		assert.Equal(t, doc.Source, r.Source)
		assert.Len(t, r.Vector, testDims)
		assert.Equal(t, chunk.ChunkID(doc.Source, 0, i), r.ID)
	}
}

func TestPipeline_IndexDocument_ReindexIsStable(t *testing.T) {
	ctx := context.Background()
	tables := newTables(t)
	p := newPipeline(t, tables, embed.NewStaticEmbedder(testDims))
	doc := ingest.Document{Source: "src", Name: "a.txt", Content: []byte(longText(60))}

	n1, err := p.IndexDocument(ctx, "userA", doc)
	require.NoError(t, err)
	n2, err := p.IndexDocument(ctx, "userA", doc)
	require.NoError(t, err)

	assert.Equal(t, n1, n2)
	count, err := tables.CountBySource(ctx, "userA", "src")
	require.NoError(t, err)
	assert.Equal(t, n1, count)
}

func TestPipeline_IndexDocument_ShorterRevisionDropsOldRows(t *testing.T) {
	ctx := context.Background()
	tables := newTables(t)
	p := newPipeline(t, tables, embed.NewStaticEmbedder(testDims))

	_, err := p.IndexDocument(ctx, "userA", ingest.Document{Source: "src", Name: "a.txt", Content: []byte(longText(200))})
	require.NoError(t, err)
	n, err := p.IndexDocument(ctx, "userA", ingest.Document{Source: "src", Name: "a.txt", Content: []byte("short now")})
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	count, err := tables.CountBySource(ctx, "userA", "src")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPipeline_IndexDocument_EmbedFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	tables := newTables(t)
	p := newPipeline(t, tables, &failingEmbedder{Embedder: embed.NewStaticEmbedder(testDims), okBatches: 1})

	_, err := p.IndexDocument(ctx, "userA", ingest.Document{Source: "src", Name: "a.txt", Content: []byte(longText(200))})

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeEmbeddingFailed, errors.GetCode(err))
	count, err := tables.CountBySource(ctx, "userA", "src")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPipeline_IndexDocument_UnsupportedContent(t *testing.T) {
	p := newPipeline(t, newTables(t), embed.NewStaticEmbedder(testDims))

	_, err := p.IndexDocument(context.Background(), "userA", ingest.Document{Source: "src", Name: "x.bin", Content: []byte{0xff, 0xfe, 0x00}})

	assert.Equal(t, errors.ErrCodeChunkingFailed, errors.GetCode(err))
}

func TestPipeline_DeleteSource(t *testing.T) {
	ctx := context.Background()
	tables := newTables(t)
	p := newPipeline(t, tables, embed.NewStaticEmbedder(testDims))
	n, err := p.IndexDocument(ctx, "userA", ingest.Document{Source: "src", Name: "a.txt", Content: []byte(longText(60))})
	require.NoError(t, err)

	deleted, err := p.DeleteSource(ctx, "userA", "src")
	require.NoError(t, err)
	assert.Equal(t, n, deleted)

	deleted, err = p.DeleteSource(ctx, "userA", "src")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestNewPipeline_DimensionMismatch(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{Embedder: embed.NewStaticEmbedder(testDims * 2), Store: newTables(t)})
	assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))
}

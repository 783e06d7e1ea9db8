// Package index turns fetched documents into rows of an owner's index table
// and checks that the registry and the index tables agree.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/ragingest/internal/chunk"
	"github.com/Aman-CERP/ragingest/internal/embed"
	"github.com/Aman-CERP/ragingest/internal/errors"
	"github.com/Aman-CERP/ragingest/internal/ingest"
	"github.com/Aman-CERP/ragingest/internal/store"
)

// RowWriter is the part of store.TableStore the pipeline writes through.
type RowWriter interface {
	ReplaceSource(ctx context.Context, owner, source string, rows []store.Row) error
	DeleteBySource(ctx context.Context, owner, source string) (int, error)
	Dimensions() int
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Extractor chunk.Extractor
	Splitter  chunk.Splitter
	Embedder  embed.Embedder
	Store     RowWriter

	// BatchSize is the number of chunks per EmbedBatch call.
	BatchSize int
}

// Pipeline implements ingest.Indexer: extract, split, embed, store.
type Pipeline struct {
	extractor chunk.Extractor
	splitter  chunk.Splitter
	embedder  embed.Embedder
	store     RowWriter
	batchSize int
}

var _ ingest.Indexer = (*Pipeline)(nil)

// NewPipeline creates a Pipeline. The embedder and the store must agree on
// the vector width.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Embedder == nil || cfg.Store == nil {
		return nil, fmt.Errorf("index: embedder and store are required")
	}
	if cfg.Embedder.Dimensions() != cfg.Store.Dimensions() {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedder %s produces %d dimensions, index expects %d",
				cfg.Embedder.ModelName(), cfg.Embedder.Dimensions(), cfg.Store.Dimensions()),
			store.ErrDimensionMismatch{Expected: cfg.Store.Dimensions(), Got: cfg.Embedder.Dimensions()})
	}
	if cfg.Extractor == nil {
		cfg.Extractor = chunk.TextExtractor{}
	}
	if cfg.Splitter.Size <= 0 {
		cfg.Splitter = chunk.NewSplitter(chunk.DefaultChunkSize, chunk.DefaultChunkOverlap)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embed.DefaultBatchSize
	}
	return &Pipeline{
		extractor: cfg.Extractor,
		splitter:  cfg.Splitter,
		embedder:  cfg.Embedder,
		store:     cfg.Store,
		batchSize: cfg.BatchSize,
	}, nil
}

// IndexDocument replaces the owner's rows for doc.Source. Nothing is written
// unless every chunk was embedded.
func (p *Pipeline) IndexDocument(ctx context.Context, owner string, doc ingest.Document) (int, error) {
	start := time.Now()

	pages, err := p.extractor.Extract(ctx, doc.Name, doc.Content)
	if err != nil {
		return 0, err
	}

	chunks := p.splitter.Split(chunk.Document{Source: doc.Source, Pages: pages})
	if len(chunks) == 0 {
		return 0, errors.New(errors.ErrCodeChunkingFailed, fmt.Sprintf("%s produced no chunks", doc.Name), nil)
	}

	vectors, err := p.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}

	rows := make([]store.Row, len(chunks))
	for i, c := range chunks {
		rows[i] = store.Row{
			ID:      c.ID,
			Source:  c.Source,
			Page:    c.Page,
			Ordinal: c.Ordinal,
			Text:    c.Text,
			Vector:  vectors[i],
		}
	}

	if err := p.store.ReplaceSource(ctx, owner, doc.Source, rows); err != nil {
		return 0, err
	}

	attrs := []any{
		slog.String("owner", owner),
		slog.String("source", doc.Source),
		slog.Int("pages", len(pages)),
		slog.Int("chunks", len(rows)),
		slog.Duration("duration", time.Since(start)),
	}
	if c, ok := p.embedder.(*embed.CachedEmbedder); ok {
		st := c.Stats()
		attrs = append(attrs, slog.Int64("embed_cache_hits", st.Hits), slog.Int64("embed_cache_misses", st.Misses))
	}
	slog.Debug("document_indexed", attrs...)
	return len(rows), nil
}

func (p *Pipeline) embed(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for batchStart := 0; batchStart < len(chunks); batchStart += p.batchSize {
		batchEnd := min(batchStart+p.batchSize, len(chunks))

		texts := make([]string, 0, batchEnd-batchStart)
		for _, c := range chunks[batchStart:batchEnd] {
			texts = append(texts, c.Text)
		}

		batch, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if errors.GetCode(err) != "" {
				return nil, err
			}
			return nil, errors.New(errors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("failed to embed chunks %d-%d", batchStart, batchEnd), err)
		}
		if len(batch) != len(texts) {
			return nil, errors.New(errors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedder returned %d vectors for %d chunks", len(batch), len(texts)), nil)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// DeleteSource removes the owner's rows for source.
func (p *Pipeline) DeleteSource(ctx context.Context, owner, source string) (int, error) {
	return p.store.DeleteBySource(ctx, owner, source)
}

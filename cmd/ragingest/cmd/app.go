package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/ragingest/internal/batch"
	"github.com/Aman-CERP/ragingest/internal/chunk"
	"github.com/Aman-CERP/ragingest/internal/config"
	"github.com/Aman-CERP/ragingest/internal/embed"
	"github.com/Aman-CERP/ragingest/internal/errors"
	"github.com/Aman-CERP/ragingest/internal/index"
	"github.com/Aman-CERP/ragingest/internal/ingest"
	"github.com/Aman-CERP/ragingest/internal/notify"
	"github.com/Aman-CERP/ragingest/internal/objectstore"
	"github.com/Aman-CERP/ragingest/internal/queue"
	"github.com/Aman-CERP/ragingest/internal/registry"
	"github.com/Aman-CERP/ragingest/internal/store"
)

// services holds the stores every pipeline command shares.
type services struct {
	cfg      *config.Config
	queue    queue.Queue
	registry registry.Registry
	objects  *objectstore.FileStore
	tables   *store.TableStore
	embedder embed.Embedder
	pipeline *index.Pipeline
}

// openServices opens the queue, registry, object store and index described
// by cfg. On error everything already opened is closed.
func openServices(ctx context.Context, cfg *config.Config) (_ *services, err error) {
	s := &services{cfg: cfg}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	s.queue, err = queue.Open(ctx, cfg.Queue.DSN, queue.Options{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxReceives:       cfg.Queue.MaxReceives,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}

	s.registry, err = registry.Open(ctx, cfg.Registry.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	s.objects, err = objectstore.NewFileStore(cfg.Storage.Root)
	if err != nil {
		return nil, err
	}

	s.tables, err = store.Open(ctx, cfg.Index.DSN, cfg.Index.EmbeddingSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	s.embedder, err = embed.New(embed.Options{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.OllamaHost,
		Dimensions: cfg.Index.EmbeddingSize,
		BatchSize:  cfg.Index.BatchSize,
		Timeout:    cfg.Embeddings.Timeout,
		CacheSize:  cfg.Index.EmbedCacheSize,
	})
	if err != nil {
		return nil, err
	}

	s.pipeline, err = index.NewPipeline(index.PipelineConfig{
		Extractor: chunk.TextExtractor{},
		Splitter:  chunk.NewSplitter(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap),
		Embedder:  s.embedder,
		Store:     s.tables,
		BatchSize: cfg.Index.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("services_opened",
		slog.String("queue", cfg.Queue.DSN),
		slog.String("registry", cfg.Registry.DSN),
		slog.String("index", cfg.Index.DSN),
		slog.String("storage_root", s.objects.Root),
		slog.String("embedder", s.embedder.ModelName()))
	return s, nil
}

// processor builds the batch processor. Notifications go through notifier,
// addressed by resolver.
func (s *services) processor(notifier notify.Notifier, resolver notify.Resolver) *batch.Processor {
	workers := ingest.Config{
		Objects:        s.objects,
		Registry:       s.registry,
		Indexer:        s.pipeline,
		Notifier:       notifier,
		Resolver:       resolver,
		MaxObjectBytes: s.cfg.Storage.MaxObjectBytes,
	}

	retry := errors.DefaultRetryConfig()
	retry.MaxRetries = s.cfg.Queue.AckRetries

	return batch.NewProcessor(batch.Config{
		Creator:  ingest.NewIngester(workers),
		Remover:  ingest.NewDeleter(workers),
		Acker:    s.queue,
		AckRetry: retry,
	})
}

func (s *services) poller(p *batch.Processor, onResult func(batch.Result)) *batch.Poller {
	return batch.NewPoller(batch.PollerConfig{
		Queue:     s.queue,
		Processor: p,
		BatchSize: s.cfg.Queue.BatchSize,
		Interval:  s.cfg.Queue.PollInterval,
		OnResult:  onResult,
	})
}

// Close releases every opened store.
func (s *services) Close() error {
	var errs []error
	if s.embedder != nil {
		errs = append(errs, s.embedder.Close())
	}
	if s.tables != nil {
		errs = append(errs, s.tables.Close())
	}
	if s.registry != nil {
		errs = append(errs, s.registry.Close())
	}
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	return stderrors.Join(errs...)
}

package embed

import (
	"fmt"
	"strings"
	"time"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings. No network, fully deterministic.
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API.
	ProviderOllama ProviderType = "ollama"
)

// Options selects and tunes an embedder.
type Options struct {
	Provider   string
	Model      string
	Host       string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	CacheSize  int // 0 uses the default, negative disables caching
}

// New creates the embedder named by opts.Provider, wrapped in an LRU cache
// unless caching is disabled.
func New(opts Options) (Embedder, error) {
	var embedder Embedder

	switch ProviderType(strings.ToLower(opts.Provider)) {
	case ProviderStatic, "":
		embedder = NewStaticEmbedder(opts.Dimensions)
	case ProviderOllama:
		embedder = NewOllamaEmbedder(OllamaConfig{
			Host:       opts.Host,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			BatchSize:  opts.BatchSize,
			Timeout:    opts.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (want static or ollama)", opts.Provider)
	}

	if opts.CacheSize < 0 {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, opts.CacheSize), nil
}

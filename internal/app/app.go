// Package app wires configured adapters into the ingest and retrieval
// pipelines.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pdfrag/config"
	"pdfrag/internal/adapter/cache"
	"pdfrag/internal/adapter/chunker"
	"pdfrag/internal/adapter/embedding"
	"pdfrag/internal/adapter/generation"
	"pdfrag/internal/adapter/memstore"
	"pdfrag/internal/adapter/pdf"
	pgindex "pdfrag/internal/adapter/pgvector"
	pcindex "pdfrag/internal/adapter/pinecone"
	qdindex "pdfrag/internal/adapter/qdrant"
	"pdfrag/internal/adapter/store"
	"pdfrag/internal/adapter/vectorindex"
	"pdfrag/internal/domain"
	"pdfrag/internal/port"
	"pdfrag/internal/usecase"
)

// App holds the components wired from a loaded config.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Prov      port.IndexProvisioner
	Index     *vectorindex.Adapter
	Embedder  port.Embedder
	Retriever port.Retriever
	Cache     *cache.CachedRetriever
	Ingest    *usecase.IngestUseCase
}

// Open provisions the configured index and builds the ingest and retrieve
// pipelines. Relative paths in cfg resolve against rootDir. The generator is
// built on demand by Answerer.
func Open(ctx context.Context, cfg *config.Config, rootDir string, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	embedder, err := NewEmbedder(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	prov, err := newProvisioner(ctx, cfg, rootDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Index.Backend, err)
	}

	metric, err := domain.ParseMetric(cfg.Index.Metric)
	if err != nil {
		prov.Close()
		return nil, err
	}
	spec := domain.IndexSpec{
		Name:      cfg.Index.Name,
		Dimension: embedder.Dimension(),
		Metric:    metric,
	}

	index, err := vectorindex.Open(ctx, prov, spec, vectorindex.Options{
		BatchSize:       cfg.Index.BatchSize,
		Timeout:         cfg.Timeouts.Index,
		ContinueOnError: cfg.Index.ContinueOnError,
		Logger:          log,
	})
	if err != nil {
		prov.Close()
		return nil, fmt.Errorf("failed to ensure index %q: %w", spec.Name, err)
	}

	chk, err := chunker.NewWindowChunker(cfg.Chunk.Size, cfg.Chunk.Overlap)
	if err != nil {
		prov.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		Prov:     prov,
		Index:    index,
		Embedder: embedder,
	}

	var retriever port.Retriever = usecase.NewRetrieveUseCase(embedder, index, cfg.Timeouts.Embed)
	ingestOpts := []usecase.IngestOption{
		usecase.WithExtractor(pdf.NewExtractor(log)),
		usecase.WithEmbedTimeout(cfg.Timeouts.Embed),
		usecase.WithIngestLogger(log),
	}
	if cfg.Retrieve.CacheSize > 0 {
		a.Cache = cache.NewCachedRetriever(retriever, cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL))
		retriever = a.Cache
		ingestOpts = append(ingestOpts, usecase.WithInvalidator(a.Cache))
	}
	a.Retriever = retriever
	a.Ingest = usecase.NewIngestUseCase(chk, embedder, index, ingestOpts...)

	log.Debug("pipeline ready",
		"backend", cfg.Index.Backend,
		"index", spec.Name,
		"dimension", spec.Dimension,
		"embedder", embedder.ModelName(),
	)
	return a, nil
}

func (a *App) Close() error {
	return a.Prov.Close()
}

// Answerer builds the answer use case with the configured generator.
func (a *App) Answerer() (*usecase.AnswerUseCase, error) {
	gen, err := NewGenerator(a.Config, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	return usecase.NewAnswerUseCase(a.Retriever, gen, a.Config.Generator.MaxSnippets, a.Config.Timeouts.Generate, a.Logger), nil
}

// Reset drops the configured local index so the next Open starts empty.
// Hosted backends are managed outside pdfrag and are refused.
func Reset(cfg *config.Config, rootDir string) error {
	switch cfg.Index.Backend {
	case "memory":
		return nil
	case "bolt":
		st, err := store.NewBoltStore(config.ResolvePath(rootDir, cfg.Index.Path))
		if err != nil {
			return err
		}
		defer st.Close()
		return st.DropIndex(cfg.Index.Name)
	default:
		return fmt.Errorf("%w: reset is only supported for the bolt and memory backends, not %s", domain.ErrConfiguration, cfg.Index.Backend)
	}
}

func newProvisioner(ctx context.Context, cfg *config.Config, rootDir string, log *slog.Logger) (port.IndexProvisioner, error) {
	switch cfg.Index.Backend {
	case "memory":
		return memstore.NewMemoryStore(), nil
	case "bolt":
		return store.NewBoltStore(config.ResolvePath(rootDir, cfg.Index.Path))
	case "pinecone":
		return pcindex.NewProvisioner(pcindex.Config{
			APIKey:    config.Secret(cfg.Index.Pinecone.APIKeyEnv),
			Cloud:     cfg.Index.Pinecone.Cloud,
			Region:    cfg.Index.Pinecone.Region,
			Namespace: cfg.Index.Pinecone.Namespace,
		}, log)
	case "qdrant":
		return qdindex.NewProvisioner(qdindex.Config{
			Host:   cfg.Index.Qdrant.Host,
			Port:   cfg.Index.Qdrant.Port,
			APIKey: config.Secret(cfg.Index.Qdrant.APIKeyEnv),
			UseTLS: cfg.Index.Qdrant.UseTLS,
		}, log)
	case "pgvector":
		return pgindex.NewProvisioner(ctx, config.Secret(cfg.Index.Pgvector.DSNEnv), log)
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q", domain.ErrConfiguration, cfg.Index.Backend)
	}
}

func NewEmbedder(cfg *config.Config, log *slog.Logger) (port.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:            config.Secret(cfg.Embedding.APIKeyEnv),
			Model:             cfg.Embedding.Model,
			BaseURL:           cfg.Embedding.BaseURL,
			Dimension:         cfg.Embedding.Dimension,
			BatchSize:         cfg.Embedding.BatchSize,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			MaxRetries:        cfg.Embedding.MaxRetries,
		}, log)
	case "hash":
		return embedding.NewHashEmbedder(cfg.Embedding.Dimension), nil
	case "random":
		return embedding.NewRandomEmbedder(cfg.Embedding.Dimension, 0, log), nil
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", domain.ErrConfiguration, cfg.Embedding.Provider)
	}
}

func NewGenerator(cfg *config.Config, log *slog.Logger) (port.Generator, error) {
	switch cfg.Generator.Provider {
	case "openai":
		return generation.NewOpenAIGenerator(generation.OpenAIConfig{
			APIKey:            config.Secret(cfg.Generator.APIKeyEnv),
			Model:             cfg.Generator.Model,
			BaseURL:           cfg.Generator.BaseURL,
			MaxRetries:        cfg.Generator.MaxRetries,
			RequestsPerSecond: cfg.Generator.RequestsPerSecond,
			Temperature:       cfg.Generator.Temperature,
			MaxTokens:         cfg.Generator.MaxTokens,
		}, log)
	case "none":
		return generation.ContextGenerator{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported generator provider %q", domain.ErrConfiguration, cfg.Generator.Provider)
	}
}

// Hint adds a next step to errors a user can fix.
func Hint(err error) error {
	var rl *domain.RateLimitError
	switch {
	case errors.As(err, &rl) && rl.RetryAfter > 0:
		return fmt.Errorf("%w (try again in %s)", err, rl.RetryAfter)
	case errors.Is(err, domain.ErrConfiguration):
		return fmt.Errorf("%w (check pdfrag.yaml and the API key environment variables)", err)
	default:
		return err
	}
}

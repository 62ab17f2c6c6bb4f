package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"pdfrag/internal/adapter/remote"
	"pdfrag/internal/domain"
)

const defaultBatchSize = 100

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// Dimension is sent as the "dimensions" request parameter when set.
	// Zero keeps the model's native size.
	Dimension int
	BatchSize int
	// RequestsPerSecond throttles calls client-side; zero disables it.
	RequestsPerSecond float64
	MaxRetries        int
}

// OpenAIEmbedder calls any OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
	requested int
	batchSize int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func NewOpenAIEmbedder(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding API key is not set", domain.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = knownDimension(cfg.Model)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: dimension,
		requested: max(cfg.Dimension, 0),
		batchSize: cfg.BatchSize,
		limiter:   remote.NewLimiter(cfg.RequestsPerSecond),
		logger:    logger.With("component", "embedder", "model", cfg.Model),
	}, nil
}

func knownDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-004", "models/text-embedding-004":
		return 768
	default:
		return 1536
	}
}

// Embed sends texts in sub-batches and returns vectors in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, embeddings...)
	}
	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := remote.Wait(ctx, e.limiter); err != nil {
		return nil, err
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if e.requested > 0 {
		params.Dimensions = openai.Int(int64(e.requested))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, remote.ClassifyAPI("failed to generate embeddings", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(embeddings) {
			continue
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		embeddings[data.Index] = vector
	}
	for i, v := range embeddings {
		if v == nil {
			return nil, fmt.Errorf("%w: embedding service returned no vector for input %d", domain.ErrValidation, i)
		}
	}

	e.logger.Debug("embedded batch", "count", len(texts))
	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

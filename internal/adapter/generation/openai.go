package generation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"

	"pdfrag/internal/adapter/remote"
	"pdfrag/internal/domain"
)

const (
	DefaultModel = "gemini-1.5-flash"
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

type OpenAIConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	MaxRetries        int
	RequestsPerSecond float64
	Temperature       float64
	MaxTokens         int
}

// OpenAIGenerator answers through a chat completions endpoint.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

func NewOpenAIGenerator(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: generator API key is not set", domain.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(cfg.MaxRetries),
	)

	return &OpenAIGenerator{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		limiter:     remote.NewLimiter(cfg.RequestsPerSecond),
		logger:      logger.With("component", "generator", "model", cfg.Model),
	}, nil
}

// Generate returns the model's answer. A 429 from the endpoint is returned as
// *domain.RateLimitError.
func (g *OpenAIGenerator) Generate(ctx context.Context, query string, snippets []string) (string, error) {
	prompt, err := RenderPrompt(query, snippets)
	if err != nil {
		return "", err
	}
	if err := remote.Wait(ctx, g.limiter); err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
		Temperature: openai.Float(g.temperature),
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(g.maxTokens))
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", remote.ClassifyAPI("failed to generate answer", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion choices returned", domain.ErrUnavailable)
	}

	g.logger.Debug("generated answer", "snippets", len(snippets), "tokens", completion.Usage.TotalTokens)
	return completion.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) ModelName() string {
	return g.model
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

// AnswerUseCase runs retrieval and hands the context to the generator.
type AnswerUseCase struct {
	retriever       port.Retriever
	generator       port.Generator
	maxSnippets     int
	generateTimeout time.Duration
	logger          *slog.Logger
}

func NewAnswerUseCase(retriever port.Retriever, generator port.Generator, maxSnippets int, generateTimeout time.Duration, logger *slog.Logger) *AnswerUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerUseCase{
		retriever:       retriever,
		generator:       generator,
		maxSnippets:     maxSnippets,
		generateTimeout: generateTimeout,
		logger:          logger.With("component", "answer"),
	}
}

// Answer retrieves context for query and generates a grounded answer. A
// throttled generator surfaces as *domain.RateLimitError.
func (u *AnswerUseCase) Answer(ctx context.Context, query string, topK int, documentID string) (*domain.Answer, error) {
	matches, err := u.retriever.Retrieve(ctx, query, topK, documentID)
	if err != nil {
		return nil, err
	}

	snippets := BuildContext(matches, u.maxSnippets)

	genCtx, cancel := withTimeout(ctx, u.generateTimeout)
	defer cancel()

	text, err := u.generator.Generate(genCtx, query, snippets)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", asTimeout(err))
	}

	u.logger.Debug("answered query", "matches", len(matches), "snippets", len(snippets), "model", u.generator.ModelName())
	return &domain.Answer{
		Text:    text,
		Sources: Sources(matches),
	}, nil
}

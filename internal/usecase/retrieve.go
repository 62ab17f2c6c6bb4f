package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

// RetrieveUseCase embeds a query and searches the index.
type RetrieveUseCase struct {
	embedder     port.Embedder
	index        Index
	embedTimeout time.Duration
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(embedder port.Embedder, index Index, embedTimeout time.Duration) *RetrieveUseCase {
	return &RetrieveUseCase{
		embedder:     embedder,
		index:        index,
		embedTimeout: embedTimeout,
	}
}

// Retrieve returns the topK matches for query, optionally restricted to one
// document. No matches is not an error.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, topK int, documentID string) ([]domain.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrValidation, topK)
	}

	embedCtx, cancel := withTimeout(ctx, u.embedTimeout)
	vectors, err := u.embedder.Embed(embedCtx, []string{query})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", asTimeout(err))
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", domain.ErrValidation, len(vectors))
	}

	return u.index.Query(ctx, vectors[0], topK, domain.Filter{DocumentID: documentID})
}

// ScoredChunkResult is a simplified result for CLI output.
type ScoredChunkResult struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

func ToResults(matches []domain.Match) []ScoredChunkResult {
	out := make([]ScoredChunkResult, len(matches))
	for i, m := range matches {
		out[i] = ScoredChunkResult{
			ID:         m.ID,
			DocumentID: m.Metadata.DocumentID,
			ChunkIndex: m.Metadata.ChunkIndex,
			Score:      m.Score,
			Text:       m.Metadata.Text,
		}
	}
	return out
}

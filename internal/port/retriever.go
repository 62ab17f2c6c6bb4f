package port

import (
	"context"

	"pdfrag/internal/domain"
)

// Retriever finds the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, documentID string) ([]domain.Match, error)
}

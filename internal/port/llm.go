package port

import "context"

// Generator answers a question from retrieved context snippets.
// Throttling is reported as *domain.RateLimitError so callers can tell it
// apart from other failures.
type Generator interface {
	Generate(ctx context.Context, query string, snippets []string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}

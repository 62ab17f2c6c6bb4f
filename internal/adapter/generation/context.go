package generation

import (
	"context"
	"strings"
)

// ContextGenerator is the `none` provider. It returns the assembled context
// instead of calling a model.
type ContextGenerator struct{}

func (ContextGenerator) Generate(ctx context.Context, _ string, snippets []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(snippets) > MaxPromptSnippets {
		snippets = snippets[:MaxPromptSnippets]
	}
	return strings.Join(snippets, "\n\n---\n\n"), nil
}

func (ContextGenerator) ModelName() string {
	return "none"
}

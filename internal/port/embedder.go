package port

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// EmbedFunc adapts a plain function to the Embedder interface. The dimension
// is only used to provision the index.
type EmbedFunc struct {
	Fn   func(ctx context.Context, texts []string) ([][]float32, error)
	Dim  int
	Name string
}

func (f EmbedFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f.Fn(ctx, texts)
}

func (f EmbedFunc) Dimension() int {
	return f.Dim
}

func (f EmbedFunc) ModelName() string {
	if f.Name == "" {
		return "func"
	}
	return f.Name
}

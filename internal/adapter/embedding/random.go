package embedding

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
)

// RandomEmbedder returns uniform random vectors. Retrieval with it is
// meaningless; it only exercises the pipeline end to end.
type RandomEmbedder struct {
	dimension int

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomEmbedder(dimension int, seed uint64, logger *slog.Logger) *RandomEmbedder {
	if dimension <= 0 {
		dimension = 512
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("using random embeddings; search results will not be relevant", "dimension", dimension)
	return &RandomEmbedder{
		dimension: dimension,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (e *RandomEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	embeddings := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, e.dimension)
		for j := range v {
			v[j] = e.rng.Float32()
		}
		embeddings[i] = v
	}
	return embeddings, nil
}

func (e *RandomEmbedder) Dimension() int {
	return e.dimension
}

func (e *RandomEmbedder) ModelName() string {
	return "random"
}

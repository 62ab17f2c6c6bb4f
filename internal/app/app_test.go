package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/config"
	"pdfrag/internal/adapter/store"
	"pdfrag/internal/domain"
)

func testConfig(backend string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Index.Backend = backend
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimension = 64
	cfg.Generator.Provider = "none"
	cfg.Chunk.Size = 100
	cfg.Chunk.Overlap = 10
	return cfg
}

func TestOpenMemoryPipeline(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, testConfig("memory"), t.TempDir(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 64, a.Index.Spec().Dimension)
	assert.Equal(t, domain.MetricCosine, a.Index.Spec().Metric)
	require.NotNil(t, a.Cache)

	_, err = a.Ingest.Ingest(ctx, "faq", "Orders ship within two business days.")
	require.NoError(t, err)

	answerer, err := a.Answerer()
	require.NoError(t, err)
	ans, err := answerer.Answer(ctx, "when do orders ship", 3, "")
	require.NoError(t, err)
	assert.Equal(t, "Orders ship within two business days.", ans.Text)
}

func TestOpenBoltPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := testConfig("bolt")

	a, err := Open(ctx, cfg, dir, nil)
	require.NoError(t, err)
	_, ok := a.Prov.(*store.BoltStore)
	require.True(t, ok)
	_, err = a.Ingest.Ingest(ctx, "doc", "Bolt keeps vectors on disk between runs.")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	assert.FileExists(t, filepath.Join(dir, ".rag", "index.db"))

	a, err = Open(ctx, cfg, dir, nil)
	require.NoError(t, err)
	defer a.Close()
	stats, err := a.Index.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.VectorCount)
}

func TestOpenBoltDimensionConflict(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, err := Open(ctx, testConfig("bolt"), dir, nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	cfg := testConfig("bolt")
	cfg.Embedding.Dimension = 32
	_, err = Open(ctx, cfg, dir, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestResetDropsLocalIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := testConfig("bolt")

	a, err := Open(ctx, cfg, dir, nil)
	require.NoError(t, err)
	_, err = a.Ingest.Ingest(ctx, "doc", "Stale vectors from an earlier run.")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	require.NoError(t, Reset(cfg, dir))

	cfg.Embedding.Dimension = 32
	a, err = Open(ctx, cfg, dir, nil)
	require.NoError(t, err, "a dropped index can be recreated with another dimension")
	defer a.Close()
	stats, err := a.Index.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.VectorCount)
	assert.Equal(t, 32, stats.Dimension)

	assert.NoError(t, Reset(testConfig("memory"), dir))
	assert.ErrorIs(t, Reset(testConfig("pinecone"), dir), domain.ErrConfiguration)
}

func TestOpenRemoteBackendsRequireCredentials(t *testing.T) {
	t.Setenv("PINECONE_API_KEY", "")
	t.Setenv("DATABASE_URL", "")

	for _, backend := range []string{"pinecone", "pgvector"} {
		_, err := Open(context.Background(), testConfig(backend), t.TempDir(), nil)
		assert.ErrorIs(t, err, domain.ErrConfiguration, backend)
	}
}

func TestFactories(t *testing.T) {
	cfg := testConfig("memory")

	cfg.Embedding.Provider = "openai"
	cfg.Embedding.APIKeyEnv = "PDFRAG_TEST_MISSING_KEY"
	_, err := NewEmbedder(cfg, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	cfg.Embedding.Provider = "random"
	emb, err := NewEmbedder(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 64, emb.Dimension())

	cfg.Generator.Provider = "openai"
	cfg.Generator.APIKeyEnv = "PDFRAG_TEST_MISSING_KEY"
	_, err = NewGenerator(cfg, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	cfg.Generator.Provider = "bard"
	_, err = NewGenerator(cfg, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestHint(t *testing.T) {
	rl := &domain.RateLimitError{RetryAfter: 3 * time.Second}
	assert.Contains(t, Hint(rl).Error(), "try again in 3s")
	assert.True(t, errors.Is(Hint(rl), domain.ErrRateLimited))

	assert.Contains(t, Hint(domain.ErrConfiguration).Error(), "pdfrag.yaml")

	plain := errors.New("boom")
	assert.Equal(t, plain, Hint(plain))
}

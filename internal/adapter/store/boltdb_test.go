package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"pdfrag/internal/domain"
)

func newTestStore(t *testing.T) (*BoltStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rag", "index.db")
	s, err := NewBoltStore(path)
	require.NoError(t, err)
	return s, path
}

func rec(doc string, i int, v ...float32) domain.VectorRecord {
	return domain.VectorRecord{
		ID:        domain.ChunkKey(doc, i),
		Embedding: v,
		Metadata:  domain.ChunkMetadata{DocumentID: doc, ChunkIndex: i, Text: "chunk"},
	}
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)

	idx, err := s.EnsureIndex(ctx, domain.IndexSpec{Name: "docs", Dimension: 2})
	require.NoError(t, err)
	n, err := idx.Upsert(ctx, []domain.VectorRecord{rec("a", 0, 1, 0), rec("a", 1, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	idx, err = s.EnsureIndex(ctx, domain.IndexSpec{Name: "docs", Dimension: 2})
	require.NoError(t, err)
	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.VectorCount)
	assert.Equal(t, domain.MetricCosine, stats.Metric)
	assert.Equal(t, "bolt", stats.Backend)

	matches, err := idx.Query(ctx, []float32{0, 1}, 1, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a-1", matches[0].ID)
	assert.Equal(t, 1, matches[0].Metadata.ChunkIndex)
	assert.Equal(t, "a", matches[0].Metadata.DocumentID)
}

func TestBoltStoreDimensionConflict(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)

	_, err := s.EnsureIndex(ctx, domain.IndexSpec{Name: "docs", Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.EnsureIndex(ctx, domain.IndexSpec{Name: "docs", Dimension: 3})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = s.EnsureIndex(ctx, domain.IndexSpec{Name: "docs", Dimension: 2, Metric: domain.MetricEuclidean})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	other, err := s.EnsureIndex(ctx, domain.IndexSpec{Name: "other", Dimension: 3, Metric: domain.MetricDotProduct})
	require.NoError(t, err)
	assert.Equal(t, 3, other.Spec().Dimension)

	specs, err := s.ListIndexes()
	require.NoError(t, err)
	assert.Len(t, specs, 2)
}

func TestBoltIndexUpsertOverwritesAndValidates(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	defer s.Close()

	idx, err := s.EnsureIndex(ctx, domain.IndexSpec{Name: "docs", Dimension: 2})
	require.NoError(t, err)

	_, err = idx.Upsert(ctx, []domain.VectorRecord{rec("a", 0, 1, 0)})
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, []domain.VectorRecord{rec("a", 0, 0, 1)})
	require.NoError(t, err)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.VectorCount)

	n, err := idx.Upsert(ctx, []domain.VectorRecord{rec("b", 0, 1, 0), rec("b", 1, 1)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, n)

	stats, err = idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.VectorCount)
}

func TestBoltIndexFilter(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	defer s.Close()

	idx, err := s.EnsureIndex(ctx, domain.IndexSpec{Name: "docs", Dimension: 2})
	require.NoError(t, err)

	_, err = idx.Upsert(ctx, []domain.VectorRecord{rec("a", 0, 1, 0), rec("b", 0, 1, 0), rec("b", 1, 0.5, 0.5)})
	require.NoError(t, err)

	matches, err := idx.Query(ctx, []float32{1, 0}, 5, domain.Filter{DocumentID: "b"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "b-0", matches[0].ID)
	assert.Equal(t, "b-1", matches[1].ID)
}

func TestMigrateRefusesNewerSchema(t *testing.T) {
	s, path := newTestStore(t)

	version, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	require.NoError(t, s.setSchemaVersion(CurrentSchemaVersion+1))
	require.NoError(t, s.Close())

	_, err = NewBoltStore(path)
	assert.Error(t, err)
}

func TestDropIndex(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	defer s.Close()

	_, err := s.EnsureIndex(ctx, domain.IndexSpec{Name: "docs", Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, s.DropIndex("docs"))

	_, found, err := s.GetIndexSpec("docs")
	require.NoError(t, err)
	assert.False(t, found)

	err = s.db.View(func(tx *bbolt.Tx) error {
		assert.Nil(t, tx.Bucket(bucketVectors).Bucket([]byte("docs")))
		return nil
	})
	require.NoError(t, err)

	idx, err := s.EnsureIndex(ctx, domain.IndexSpec{Name: "docs", Dimension: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Spec().Dimension)
}

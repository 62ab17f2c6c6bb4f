package qdrant

import (
	"context"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pdfrag/internal/domain"
)

type fakePoints struct {
	upserts   []*qdrant.UpsertPoints
	lastQuery *qdrant.QueryPoints
	points    []*qdrant.ScoredPoint
	count     uint64
	err       error
}

func (f *fakePoints) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.upserts = append(f.upserts, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakePoints) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.lastQuery = req
	if f.err != nil {
		return nil, f.err
	}
	return f.points, nil
}

func (f *fakePoints) Count(_ context.Context, _ *qdrant.CountPoints) (uint64, error) {
	return f.count, f.err
}

func TestPointIDIsStable(t *testing.T) {
	assert.Equal(t, PointID("doc-1"), PointID("doc-1"))
	assert.NotEqual(t, PointID("doc-1"), PointID("doc-2"))
	assert.Len(t, PointID("doc-1"), 36)
}

func TestPayloadRoundTrip(t *testing.T) {
	meta := domain.ChunkMetadata{DocumentID: "doc", ChunkIndex: 3, Text: "hello"}
	key, got := fromPayload(toPayload("doc-3", meta))
	assert.Equal(t, "doc-3", key)
	assert.Equal(t, meta, got)
}

func TestUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	fake := &fakePoints{}
	idx := newIndex(fake, domain.IndexSpec{Name: "docs", Dimension: 2, Metric: domain.MetricCosine})

	n, err := idx.Upsert(ctx, []domain.VectorRecord{
		{ID: "doc-0", Embedding: []float32{1, 0}, Metadata: domain.ChunkMetadata{DocumentID: "doc"}},
		{ID: "doc-1", Embedding: []float32{0, 1}, Metadata: domain.ChunkMetadata{DocumentID: "doc", ChunkIndex: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, fake.upserts, 1)
	assert.Len(t, fake.upserts[0].Points, 2)
	assert.Equal(t, PointID("doc-0"), fake.upserts[0].Points[0].GetId().GetUuid())

	fake.points = []*qdrant.ScoredPoint{{
		Id:      qdrant.NewID(PointID("doc-1")),
		Payload: toPayload("doc-1", domain.ChunkMetadata{DocumentID: "doc", ChunkIndex: 1, Text: "b"}),
		Score:   0.75,
	}}
	matches, err := idx.Query(ctx, []float32{0, 1}, 3, domain.Filter{DocumentID: "doc"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc-1", matches[0].ID)
	assert.Equal(t, 1, matches[0].Metadata.ChunkIndex)
	assert.InDelta(t, 0.75, matches[0].Score, 1e-6)

	require.NotNil(t, fake.lastQuery.Filter)
	assert.Len(t, fake.lastQuery.Filter.Must, 1)
	assert.Equal(t, uint64(3), fake.lastQuery.GetLimit())

	_, err = idx.Query(ctx, []float32{0, 1}, 3, domain.Filter{})
	require.NoError(t, err)
	assert.Nil(t, fake.lastQuery.Filter)
}

func TestEuclideanScoresAreNegated(t *testing.T) {
	assert.InDelta(t, -2.0, scoreOf(domain.MetricEuclidean, 2), 1e-9)
	assert.InDelta(t, 0.5, scoreOf(domain.MetricCosine, 0.5), 1e-9)
}

func TestErrorsAreClassified(t *testing.T) {
	ctx := context.Background()
	fake := &fakePoints{err: status.Error(codes.DeadlineExceeded, "slow")}
	idx := newIndex(fake, domain.IndexSpec{Name: "docs", Dimension: 2})

	_, err := idx.Upsert(ctx, []domain.VectorRecord{{ID: "a", Embedding: []float32{1, 0}}})
	assert.ErrorIs(t, err, domain.ErrTimeout)

	_, err = idx.Stats(ctx)
	assert.ErrorIs(t, err, domain.ErrTimeout)

	_, err = idx.Upsert(ctx, []domain.VectorRecord{{ID: "a", Embedding: []float32{1}}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDistanceMapping(t *testing.T) {
	for _, m := range []domain.Metric{domain.MetricCosine, domain.MetricEuclidean, domain.MetricDotProduct} {
		assert.Equal(t, m, fromDistance(toDistance(m)))
	}
}

package port

import (
	"context"

	"pdfrag/internal/domain"
)

// VectorIndex is a single provisioned index on some backend.
type VectorIndex interface {
	// Upsert writes one batch. A batch is committed entirely or not at all;
	// the returned count is the number of records the backend acknowledged.
	Upsert(ctx context.Context, records []domain.VectorRecord) (int, error)

	// Query returns at most topK matches ordered by descending score. A
	// non-zero filter is applied by the backend.
	Query(ctx context.Context, embedding []float32, topK int, filter domain.Filter) ([]domain.Match, error)

	// Stats reports the index configuration and size.
	Stats(ctx context.Context) (domain.IndexStats, error)

	// Spec returns the spec the index was provisioned with.
	Spec() domain.IndexSpec
}

// IndexProvisioner creates or opens indexes on a backend.
type IndexProvisioner interface {
	// EnsureIndex is idempotent. It fails with domain.ErrConfiguration when an
	// index with the same name exists with a different dimension or metric.
	EnsureIndex(ctx context.Context, spec domain.IndexSpec) (VectorIndex, error)

	// Close releases backend connections.
	Close() error
}

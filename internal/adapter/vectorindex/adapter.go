// Package vectorindex wraps an index backend with batching, validation and
// per-call timeouts.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

const DefaultBatchSize = 100

type Options struct {
	BatchSize int
	// Timeout bounds each backend call. Zero disables it.
	Timeout time.Duration
	// ContinueOnError keeps writing later batches after one fails.
	ContinueOnError bool
	Logger          *slog.Logger
}

type Adapter struct {
	backend port.VectorIndex
	spec    domain.IndexSpec
	opts    Options
	logger  *slog.Logger
}

func New(backend port.VectorIndex, opts Options) *Adapter {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		backend: backend,
		spec:    backend.Spec(),
		opts:    opts,
		logger:  logger.With("component", "vectorindex", "index", backend.Spec().Name),
	}
}

// Open ensures the index exists on the provisioner and wraps it.
func Open(ctx context.Context, prov port.IndexProvisioner, spec domain.IndexSpec, opts Options) (*Adapter, error) {
	callCtx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	backend, err := prov.EnsureIndex(callCtx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure index %s: %w", spec.Name, asTimeout(err))
	}
	return New(backend, opts), nil
}

func (a *Adapter) Spec() domain.IndexSpec {
	return a.spec
}

// Upsert writes records in sequential batches and returns how many were
// acknowledged. Any failure is reported as *domain.PartialWriteError holding
// the first error. Writing stops at the first failed batch unless
// ContinueOnError is set.
func (a *Adapter) Upsert(ctx context.Context, records []domain.VectorRecord) (int, error) {
	total := len(records)
	written := 0
	var first error

	for start := 0; start < total; start += a.opts.BatchSize {
		end := start + a.opts.BatchSize
		if end > total {
			end = total
		}
		batch := records[start:end]

		n, err := a.writeBatch(ctx, batch)
		written += n
		if err == nil {
			continue
		}

		a.logger.Warn("batch upsert failed", "batch_start", start, "batch_size", len(batch), "error", err)
		if first == nil {
			first = err
		}
		if !a.opts.ContinueOnError || ctx.Err() != nil {
			break
		}
	}

	if first != nil {
		return written, &domain.PartialWriteError{Written: written, Total: total, Err: first}
	}
	a.logger.Debug("upserted records", "count", written)
	return written, nil
}

func (a *Adapter) writeBatch(ctx context.Context, batch []domain.VectorRecord) (int, error) {
	if err := a.spec.CheckRecords(batch); err != nil {
		return 0, err
	}

	callCtx, cancel := withTimeout(ctx, a.opts.Timeout)
	defer cancel()

	n, err := a.backend.Upsert(callCtx, batch)
	if err != nil {
		return 0, asTimeout(err)
	}
	return n, nil
}

// Query returns at most topK matches by descending score.
func (a *Adapter) Query(ctx context.Context, embedding []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrValidation, topK)
	}
	if err := a.spec.CheckVector(embedding); err != nil {
		return nil, err
	}

	callCtx, cancel := withTimeout(ctx, a.opts.Timeout)
	defer cancel()

	matches, err := a.backend.Query(callCtx, embedding, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", asTimeout(err))
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (a *Adapter) Stats(ctx context.Context) (domain.IndexStats, error) {
	callCtx, cancel := withTimeout(ctx, a.opts.Timeout)
	defer cancel()

	stats, err := a.backend.Stats(callCtx)
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("failed to read index stats: %w", asTimeout(err))
	}
	return stats, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func asTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return err
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

// Index is the vector index surface the use cases need. It is satisfied by
// *vectorindex.Adapter.
type Index interface {
	Upsert(ctx context.Context, records []domain.VectorRecord) (int, error)
	Query(ctx context.Context, embedding []float32, topK int, filter domain.Filter) ([]domain.Match, error)
	Stats(ctx context.Context) (domain.IndexStats, error)
}

// Invalidator is implemented by caches that must be dropped after a write.
type Invalidator interface {
	Invalidate()
}

// IngestUseCase chunks, embeds and indexes one document.
type IngestUseCase struct {
	chunker      port.Chunker
	embedder     port.Embedder
	index        Index
	extractor    port.Extractor
	invalidators []Invalidator
	embedTimeout time.Duration
	logger       *slog.Logger
}

type IngestOption func(*IngestUseCase)

func WithExtractor(e port.Extractor) IngestOption {
	return func(u *IngestUseCase) { u.extractor = e }
}

func WithInvalidator(i Invalidator) IngestOption {
	return func(u *IngestUseCase) { u.invalidators = append(u.invalidators, i) }
}

func WithEmbedTimeout(d time.Duration) IngestOption {
	return func(u *IngestUseCase) { u.embedTimeout = d }
}

func WithIngestLogger(l *slog.Logger) IngestOption {
	return func(u *IngestUseCase) { u.logger = l }
}

// NewIngestUseCase creates a new ingest use case.
func NewIngestUseCase(chunker port.Chunker, embedder port.Embedder, index Index, opts ...IngestOption) *IngestUseCase {
	u := &IngestUseCase{
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = u.logger.With("component", "ingest")
	return u
}

// IngestResult describes one ingested document.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunks"`
	Written    int    `json:"written"`
}

// NewDocumentID returns a fresh random document id.
func NewDocumentID() string {
	return uuid.NewString()
}

// Ingest indexes rawText under documentID. Text with no content fails with
// domain.ErrEmptyDocument before anything is written. When some batches fail
// the partial result is returned together with the error.
func (u *IngestUseCase) Ingest(ctx context.Context, documentID, rawText string) (*IngestResult, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id is required", domain.ErrValidation)
	}

	windows := u.chunker.Chunk(rawText)
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: document %s has no text", domain.ErrEmptyDocument, documentID)
	}

	embeddings, err := u.embed(ctx, windows)
	if err != nil {
		return nil, err
	}

	records := make([]domain.VectorRecord, len(windows))
	for i, c := range domain.ChunksOf(documentID, windows) {
		records[i] = c.Record(embeddings[i])
	}

	written, err := u.index.Upsert(ctx, records)
	if written > 0 {
		for _, inv := range u.invalidators {
			inv.Invalidate()
		}
	}

	result := &IngestResult{
		DocumentID: documentID,
		ChunkCount: len(windows),
		Written:    written,
	}
	if err != nil {
		u.logger.Warn("ingest incomplete", "document_id", documentID, "chunks", len(windows), "written", written, "error", err)
		return result, fmt.Errorf("failed to index document %s: %w", documentID, err)
	}

	u.logger.Info("ingested document", "document_id", documentID, "chunks", len(windows))
	return result, nil
}

// IngestPDF extracts text from a PDF and ingests it.
func (u *IngestUseCase) IngestPDF(ctx context.Context, documentID string, data []byte) (*IngestResult, error) {
	if u.extractor == nil {
		return nil, fmt.Errorf("%w: no pdf extractor configured", domain.ErrConfiguration)
	}
	text, err := u.extractor.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExtraction, err)
	}
	return u.Ingest(ctx, documentID, text)
}

func (u *IngestUseCase) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := withTimeout(ctx, u.embedTimeout)
	defer cancel()

	embeddings, err := u.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", asTimeout(err))
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks", domain.ErrValidation, len(embeddings), len(texts))
	}
	return embeddings, nil
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

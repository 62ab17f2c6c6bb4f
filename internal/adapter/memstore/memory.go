package memstore

import (
	"context"
	"fmt"
	"sync"

	"pdfrag/internal/adapter/similarity"
	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

// MemoryStore keeps every index in process memory. It is the backend used by
// tests and by `backend: memory`.
type MemoryStore struct {
	mu      sync.Mutex
	indexes map[string]*MemoryIndex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		indexes: make(map[string]*MemoryIndex),
	}
}

func (s *MemoryStore) EnsureIndex(_ context.Context, spec domain.IndexSpec) (port.VectorIndex, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[spec.Name]; ok {
		if err := idx.spec.Conflicts(spec); err != nil {
			return nil, err
		}
		return idx, nil
	}

	if spec.Metric == "" {
		spec.Metric = domain.MetricCosine
	}
	idx := &MemoryIndex{
		spec:    spec,
		records: make(map[string]domain.VectorRecord),
	}
	s.indexes[spec.Name] = idx
	return idx, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

type MemoryIndex struct {
	mu      sync.RWMutex
	spec    domain.IndexSpec
	records map[string]domain.VectorRecord

	// failNext makes the next Upsert calls fail; used by tests.
	failNext []error
}

func (i *MemoryIndex) Upsert(_ context.Context, records []domain.VectorRecord) (int, error) {
	if err := i.spec.CheckRecords(records); err != nil {
		return 0, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.failNext) > 0 {
		err := i.failNext[0]
		i.failNext = i.failNext[1:]
		if err != nil {
			return 0, err
		}
	}

	for _, r := range records {
		emb := make([]float32, len(r.Embedding))
		copy(emb, r.Embedding)
		r.Embedding = emb
		i.records[r.ID] = r
	}
	return len(records), nil
}

func (i *MemoryIndex) Query(_ context.Context, embedding []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	if err := i.spec.CheckVector(embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrValidation, topK)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	matches := make([]domain.Match, 0, len(i.records))
	for id, r := range i.records {
		if !filter.IsZero() && r.Metadata.DocumentID != filter.DocumentID {
			continue
		}
		matches = append(matches, domain.Match{
			ID:       id,
			Score:    similarity.Score(i.spec.Metric, embedding, r.Embedding),
			Metadata: r.Metadata,
		})
	}
	return similarity.Rank(matches, topK), nil
}

func (i *MemoryIndex) Stats(_ context.Context) (domain.IndexStats, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return domain.IndexStats{
		Name:        i.spec.Name,
		Backend:     "memory",
		Dimension:   i.spec.Dimension,
		Metric:      i.spec.Metric,
		VectorCount: int64(len(i.records)),
	}, nil
}

func (i *MemoryIndex) Spec() domain.IndexSpec {
	return i.spec
}

// Get returns a stored record by id.
func (i *MemoryIndex) Get(id string) (domain.VectorRecord, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	r, ok := i.records[id]
	return r, ok
}

// FailUpserts queues errors returned by subsequent Upsert calls, one per
// call. A nil entry lets that call succeed.
func (i *MemoryIndex) FailUpserts(errs ...error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failNext = append(i.failNext, errs...)
}

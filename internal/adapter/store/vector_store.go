package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"pdfrag/internal/adapter/similarity"
	"pdfrag/internal/domain"
)

// BoltIndex is one named index inside a BoltStore.
// Uses brute-force search over an in-memory copy of the bucket.
type BoltIndex struct {
	db   *bbolt.DB
	spec domain.IndexSpec
	mu   sync.RWMutex
	// In-memory cache for fast search
	vectors map[string]vectorEntry
}

type vectorEntry struct {
	vector   []float32
	metadata domain.ChunkMetadata
}

type storedVector struct {
	Vector   []float32            `json:"v"`
	Metadata domain.ChunkMetadata `json:"m"`
}

func openBoltIndex(db *bbolt.DB, spec domain.IndexSpec) (*BoltIndex, error) {
	idx := &BoltIndex{
		db:      db,
		spec:    spec,
		vectors: make(map[string]vectorEntry),
	}
	if err := idx.loadVectors(); err != nil {
		return nil, fmt.Errorf("failed to load vectors for %s: %w", spec.Name, err)
	}
	return idx, nil
}

func (s *BoltIndex) bucket(tx *bbolt.Tx) *bbolt.Bucket {
	return tx.Bucket(bucketVectors).Bucket([]byte(s.spec.Name))
}

func (s *BoltIndex) loadVectors() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := s.bucket(tx)
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // Skip corrupted entries
			}
			if len(stored.Vector) != s.spec.Dimension {
				return nil
			}
			s.vectors[string(k)] = vectorEntry{
				vector:   stored.Vector,
				metadata: stored.Metadata,
			}
			return nil
		})
	})
}

// Upsert writes the batch in one transaction. Either every record is stored
// or none is.
func (s *BoltIndex) Upsert(ctx context.Context, records []domain.VectorRecord) (int, error) {
	if err := s.spec.CheckRecords(records); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := s.bucket(tx)
		if b == nil {
			return fmt.Errorf("%w: index %s has no vectors bucket", domain.ErrUnavailable, s.spec.Name)
		}

		for _, r := range records {
			data, err := json.Marshal(storedVector{Vector: r.Embedding, Metadata: r.Metadata})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(r.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, r := range records {
		vec := make([]float32, len(r.Embedding))
		copy(vec, r.Embedding)
		s.vectors[r.ID] = vectorEntry{vector: vec, metadata: r.Metadata}
	}
	return len(records), nil
}

func (s *BoltIndex) Query(ctx context.Context, embedding []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	if err := s.spec.CheckVector(embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrValidation, topK)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Match, 0, len(s.vectors))
	for id, entry := range s.vectors {
		if !filter.IsZero() && entry.metadata.DocumentID != filter.DocumentID {
			continue
		}
		matches = append(matches, domain.Match{
			ID:       id,
			Score:    similarity.Score(s.spec.Metric, embedding, entry.vector),
			Metadata: entry.metadata,
		})
	}
	return similarity.Rank(matches, topK), nil
}

func (s *BoltIndex) Stats(_ context.Context) (domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.IndexStats{
		Name:        s.spec.Name,
		Backend:     "bolt",
		Dimension:   s.spec.Dimension,
		Metric:      s.spec.Metric,
		VectorCount: int64(len(s.vectors)),
	}, nil
}

func (s *BoltIndex) Spec() domain.IndexSpec {
	return s.spec
}

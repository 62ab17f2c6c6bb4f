package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

var (
	bucketIndexes = []byte("indexes")
	bucketVectors = []byte("vectors")
	bucketMeta    = []byte("meta")
)

// BoltStore persists vector indexes in a single bbolt file. Each index gets a
// nested bucket under "vectors" and a spec entry under "indexes".
type BoltStore struct {
	db *bbolt.DB

	mu      sync.Mutex
	indexes map[string]*BoltIndex
}

func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open bolt db: %v", domain.ErrUnavailable, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketIndexes, bucketVectors, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{db: db, indexes: make(map[string]*BoltIndex)}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// EnsureIndex opens the named index, creating it when absent. An existing
// index whose dimension or metric differs is a configuration error.
func (s *BoltStore) EnsureIndex(_ context.Context, spec domain.IndexSpec) (port.VectorIndex, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Metric == "" {
		spec.Metric = domain.MetricCosine
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[spec.Name]; ok {
		if err := idx.spec.Conflicts(spec); err != nil {
			return nil, err
		}
		return idx, nil
	}

	stored, found, err := s.GetIndexSpec(spec.Name)
	if err != nil {
		return nil, err
	}
	if found {
		if err := stored.Conflicts(spec); err != nil {
			return nil, err
		}
		spec = stored
	} else {
		err := s.db.Update(func(tx *bbolt.Tx) error {
			data, err := json.Marshal(spec)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketIndexes).Put([]byte(spec.Name), data); err != nil {
				return err
			}
			_, err = tx.Bucket(bucketVectors).CreateBucketIfNotExists([]byte(spec.Name))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create index %s: %w", spec.Name, err)
		}
	}

	idx, err := openBoltIndex(s.db, spec)
	if err != nil {
		return nil, err
	}
	s.indexes[spec.Name] = idx
	return idx, nil
}

// GetIndexSpec returns the persisted spec of an index.
func (s *BoltStore) GetIndexSpec(name string) (domain.IndexSpec, bool, error) {
	var spec domain.IndexSpec
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketIndexes).Get([]byte(name))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &spec)
	})
	if err != nil {
		return domain.IndexSpec{}, false, fmt.Errorf("failed to read index spec %s: %w", name, err)
	}
	return spec, found, nil
}

// ListIndexes returns the specs of every index in the file.
func (s *BoltStore) ListIndexes() ([]domain.IndexSpec, error) {
	var specs []domain.IndexSpec
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIndexes).ForEach(func(_, v []byte) error {
			var spec domain.IndexSpec
			if err := json.Unmarshal(v, &spec); err != nil {
				return err
			}
			specs = append(specs, spec)
			return nil
		})
	})
	return specs, err
}

// DropIndex deletes an index and its vectors.
func (s *BoltStore) DropIndex(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, name)

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketIndexes).Delete([]byte(name)); err != nil {
			return err
		}
		err := tx.Bucket(bucketVectors).DeleteBucket([]byte(name))
		if err == bbolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

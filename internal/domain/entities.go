package domain

import (
	"fmt"
	"strings"
)

// Chunk is a contiguous window of a document's normalized text.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
}

// Key returns the chunk identity used as the vector record id.
func (c Chunk) Key() string {
	return ChunkKey(c.DocumentID, c.Index)
}

// Record pairs the chunk with its embedding.
func (c Chunk) Record(embedding []float32) VectorRecord {
	return VectorRecord{
		ID:        c.Key(),
		Embedding: embedding,
		Metadata: ChunkMetadata{
			DocumentID: c.DocumentID,
			ChunkIndex: c.Index,
			Text:       c.Text,
		},
	}
}

// ChunksOf numbers the windows of a document from zero.
func ChunksOf(documentID string, windows []string) []Chunk {
	chunks := make([]Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = Chunk{DocumentID: documentID, Index: i, Text: w}
	}
	return chunks
}

// ChunkKey serializes a chunk identity as "{document_id}-{chunk_index}".
func ChunkKey(documentID string, index int) string {
	return fmt.Sprintf("%s-%d", documentID, index)
}

// ChunkMetadata is stored alongside every embedding.
type ChunkMetadata struct {
	DocumentID string `json:"doc_id"`
	ChunkIndex int    `json:"chunk_id"`
	Text       string `json:"text"`
}

// Metadata wire keys shared by all index backends.
const (
	MetaDocumentID = "doc_id"
	MetaChunkIndex = "chunk_id"
	MetaText       = "text"
)

type VectorRecord struct {
	ID        string
	Embedding []float32
	Metadata  ChunkMetadata
}

// Match is a single query hit. Higher scores are more relevant.
type Match struct {
	ID       string        `json:"id"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

// Filter restricts a query to one document. The zero value matches everything.
type Filter struct {
	DocumentID string
}

func (f Filter) IsZero() bool {
	return f.DocumentID == ""
}

// Metric is the similarity function an index is built with.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dotproduct"
)

// ParseMetric accepts the metric names used in config files.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return MetricCosine, nil
	case "euclidean", "euclid", "l2":
		return MetricEuclidean, nil
	case "dotproduct", "dot", "ip":
		return MetricDotProduct, nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q", ErrValidation, s)
	}
}

// IndexSpec describes the index an adapter is bound to.
type IndexSpec struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    Metric `json:"metric"`
}

type IndexStats struct {
	Name        string `json:"index"`
	Backend     string `json:"backend"`
	Dimension   int    `json:"dimension"`
	Metric      Metric `json:"metric"`
	VectorCount int64  `json:"vectors"`
}

// Source is the provenance returned with a generated answer.
type Source struct {
	Score      float64 `json:"score"`
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
}

type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// CheckVector rejects embeddings whose length differs from the index dimension.
func (s IndexSpec) CheckVector(v []float32) error {
	if len(v) != s.Dimension {
		return fmt.Errorf("%w: vector dimension mismatch: expected %d, got %d", ErrValidation, s.Dimension, len(v))
	}
	return nil
}

// CheckRecords validates a whole batch before anything is written.
func (s IndexSpec) CheckRecords(records []VectorRecord) error {
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record %d has an empty id", ErrValidation, i)
		}
		if err := s.CheckVector(r.Embedding); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
	}
	return nil
}

// Conflicts reports whether an existing index cannot serve the requested spec.
func (s IndexSpec) Conflicts(requested IndexSpec) error {
	if s.Dimension != requested.Dimension {
		return fmt.Errorf("%w: index %q has dimension %d, requested %d", ErrConfiguration, s.Name, s.Dimension, requested.Dimension)
	}
	if requested.Metric != "" && s.Metric != "" && s.Metric != requested.Metric {
		return fmt.Errorf("%w: index %q uses metric %s, requested %s", ErrConfiguration, s.Name, s.Metric, requested.Metric)
	}
	return nil
}

// Validate checks a spec before it is provisioned.
func (s IndexSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: index name is required", ErrValidation)
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("%w: index dimension must be positive, got %d", ErrValidation, s.Dimension)
	}
	if _, err := ParseMetric(string(s.Metric)); err != nil {
		return err
	}
	return nil
}

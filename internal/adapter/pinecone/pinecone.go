// Package pinecone stores chunk vectors in a Pinecone serverless index.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pinecone-io/go-pinecone/v2/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"pdfrag/internal/adapter/remote"
	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

type Config struct {
	APIKey    string
	Cloud     string
	Region    string
	Namespace string
	// ReadyTimeout bounds the wait for a freshly created index.
	ReadyTimeout time.Duration
}

// indexConn is the subset of *pinecone.IndexConnection used here.
type indexConn interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
	Close() error
}

type Provisioner struct {
	client *pinecone.Client
	cfg    Config
	logger *slog.Logger
	conns  []indexConn
}

func NewProvisioner(cfg Config, logger *slog.Logger) (*Provisioner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: pinecone api key is not set", domain.ErrConfiguration)
	}
	if cfg.Cloud == "" {
		cfg.Cloud = "aws"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("%w: pinecone client: %v", domain.ErrConfiguration, err)
	}
	return &Provisioner{client: client, cfg: cfg, logger: logger}, nil
}

func toPineconeMetric(m domain.Metric) pinecone.IndexMetric {
	switch m {
	case domain.MetricEuclidean:
		return pinecone.Euclidean
	case domain.MetricDotProduct:
		return pinecone.Dotproduct
	default:
		return pinecone.Cosine
	}
}

func fromPineconeMetric(m pinecone.IndexMetric) domain.Metric {
	switch m {
	case pinecone.Euclidean:
		return domain.MetricEuclidean
	case pinecone.Dotproduct:
		return domain.MetricDotProduct
	default:
		return domain.MetricCosine
	}
}

// EnsureIndex creates the serverless index when it is missing, waits for it
// to become ready, and connects to its data plane.
func (p *Provisioner) EnsureIndex(ctx context.Context, spec domain.IndexSpec) (port.VectorIndex, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Metric == "" {
		spec.Metric = domain.MetricCosine
	}

	existing, err := p.findIndex(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		have := domain.IndexSpec{
			Name:      existing.Name,
			Dimension: int(existing.Dimension),
			Metric:    fromPineconeMetric(existing.Metric),
		}
		if err := have.Conflicts(spec); err != nil {
			return nil, err
		}
	} else {
		p.logger.Info("creating pinecone index", "index", spec.Name, "dimension", spec.Dimension, "metric", spec.Metric)
		cloud := pinecone.Cloud(p.cfg.Cloud)
		_, err := p.client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
			Name:      spec.Name,
			Dimension: int32(spec.Dimension),
			Metric:    toPineconeMetric(spec.Metric),
			Cloud:     cloud,
			Region:    p.cfg.Region,
		})
		if err != nil {
			return nil, classify("create index", err)
		}
	}

	idx, err := p.waitReady(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	conn, err := p.client.Index(pinecone.NewIndexConnParams{
		Host:      idx.Host,
		Namespace: p.cfg.Namespace,
	})
	if err != nil {
		return nil, classify("connect index", err)
	}
	p.conns = append(p.conns, conn)

	return newIndex(conn, spec), nil
}

func (p *Provisioner) findIndex(ctx context.Context, name string) (*pinecone.Index, error) {
	indexes, err := p.client.ListIndexes(ctx)
	if err != nil {
		return nil, classify("list indexes", err)
	}
	for _, idx := range indexes {
		if idx != nil && idx.Name == name {
			return idx, nil
		}
	}
	return nil, nil
}

func (p *Provisioner) waitReady(ctx context.Context, name string) (*pinecone.Index, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		idx, err := p.client.DescribeIndex(ctx, name)
		if err != nil {
			return nil, classify("describe index", err)
		}
		if idx.Status != nil && idx.Status.Ready && idx.Host != "" {
			return idx, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: index %s not ready", domain.ErrTimeout, name)
		case <-ticker.C:
		}
	}
}

func (p *Provisioner) Close() error {
	var first error
	for _, c := range p.conns {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.conns = nil
	return first
}

// Index is one connected Pinecone index.
type Index struct {
	conn indexConn
	spec domain.IndexSpec
}

func newIndex(conn indexConn, spec domain.IndexSpec) *Index {
	return &Index{conn: conn, spec: spec}
}

func (i *Index) Upsert(ctx context.Context, records []domain.VectorRecord) (int, error) {
	if err := i.spec.CheckRecords(records); err != nil {
		return 0, err
	}

	vectors := make([]*pinecone.Vector, len(records))
	for n, r := range records {
		meta, err := toMetadata(r.Metadata)
		if err != nil {
			return 0, fmt.Errorf("%w: metadata for %s: %v", domain.ErrValidation, r.ID, err)
		}
		vectors[n] = &pinecone.Vector{
			Id:       r.ID,
			Values:   r.Embedding,
			Metadata: meta,
		}
	}

	written, err := i.conn.UpsertVectors(ctx, vectors)
	if err != nil {
		return 0, classify("upsert", err)
	}
	return int(written), nil
}

func (i *Index) Query(ctx context.Context, embedding []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	if err := i.spec.CheckVector(embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrValidation, topK)
	}

	req := &pinecone.QueryByVectorValuesRequest{
		Vector:          embedding,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	}
	if !filter.IsZero() {
		f, err := documentFilter(filter.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("%w: filter: %v", domain.ErrValidation, err)
		}
		req.MetadataFilter = f
	}

	resp, err := i.conn.QueryByVectorValues(ctx, req)
	if err != nil {
		return nil, classify("query", err)
	}

	matches := make([]domain.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		matches = append(matches, domain.Match{
			ID:       m.Vector.Id,
			Score:    i.score(m.Score),
			Metadata: fromMetadata(m.Vector.Metadata),
		})
	}
	return matches, nil
}

// score flips euclidean distances so that higher always ranks first.
func (i *Index) score(s float32) float64 {
	if i.spec.Metric == domain.MetricEuclidean {
		return -float64(s)
	}
	return float64(s)
}

func (i *Index) Stats(ctx context.Context) (domain.IndexStats, error) {
	resp, err := i.conn.DescribeIndexStats(ctx)
	if err != nil {
		return domain.IndexStats{}, classify("describe stats", err)
	}
	return domain.IndexStats{
		Name:        i.spec.Name,
		Backend:     "pinecone",
		Dimension:   int(resp.Dimension),
		Metric:      i.spec.Metric,
		VectorCount: int64(resp.TotalVectorCount),
	}, nil
}

func (i *Index) Spec() domain.IndexSpec {
	return i.spec
}

func toMetadata(m domain.ChunkMetadata) (*pinecone.Metadata, error) {
	return structpb.NewStruct(map[string]any{
		domain.MetaDocumentID: m.DocumentID,
		domain.MetaChunkIndex: m.ChunkIndex,
		domain.MetaText:       m.Text,
	})
}

func fromMetadata(s *pinecone.Metadata) domain.ChunkMetadata {
	if s == nil {
		return domain.ChunkMetadata{}
	}
	fields := s.GetFields()
	return domain.ChunkMetadata{
		DocumentID: fields[domain.MetaDocumentID].GetStringValue(),
		ChunkIndex: int(fields[domain.MetaChunkIndex].GetNumberValue()),
		Text:       fields[domain.MetaText].GetStringValue(),
	}
}

func documentFilter(documentID string) (*pinecone.Metadata, error) {
	return structpb.NewStruct(map[string]any{
		domain.MetaDocumentID: map[string]any{"$eq": documentID},
	})
}

// classify maps control-plane status codes onto domain kinds. Data-plane
// calls fail with gRPC statuses, which remote.Classify handles.
func classify(op string, err error) error {
	var pcErr *pinecone.PineconeError
	if errors.As(err, &pcErr) && pcErr.Code != 0 {
		return remote.ClassifyStatus(op, pcErr.Code, 0, err)
	}
	return remote.Classify(op, err)
}

// Package qdrant stores chunk vectors in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"pdfrag/internal/adapter/remote"
	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

// payloadChunkKey keeps the "{document_id}-{chunk_index}" id, since Qdrant
// point ids must be UUIDs or integers.
const payloadChunkKey = "chunk_key"

// pointNamespace seeds the deterministic point ids.
var pointNamespace = uuid.MustParse("6f1c8f4e-8a57-4c34-9d0e-1f2b7d6b2a90")

type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// pointsClient is the subset of *qdrant.Client used by Index.
type pointsClient interface {
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
}

type Provisioner struct {
	client *qdrant.Client
	logger *slog.Logger
}

func NewProvisioner(cfg Config, logger *slog.Logger) (*Provisioner, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant client: %v", domain.ErrConfiguration, err)
	}
	return &Provisioner{client: client, logger: logger}, nil
}

func toDistance(m domain.Metric) qdrant.Distance {
	switch m {
	case domain.MetricEuclidean:
		return qdrant.Distance_Euclid
	case domain.MetricDotProduct:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func fromDistance(d qdrant.Distance) domain.Metric {
	switch d {
	case qdrant.Distance_Euclid:
		return domain.MetricEuclidean
	case qdrant.Distance_Dot:
		return domain.MetricDotProduct
	default:
		return domain.MetricCosine
	}
}

func (p *Provisioner) EnsureIndex(ctx context.Context, spec domain.IndexSpec) (port.VectorIndex, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Metric == "" {
		spec.Metric = domain.MetricCosine
	}

	exists, err := p.client.CollectionExists(ctx, spec.Name)
	if err != nil {
		return nil, remote.Classify("collection exists", err)
	}

	if exists {
		info, err := p.client.GetCollectionInfo(ctx, spec.Name)
		if err != nil {
			return nil, remote.Classify("collection info", err)
		}
		params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
		if params == nil {
			return nil, fmt.Errorf("%w: collection %s uses named vectors", domain.ErrConfiguration, spec.Name)
		}
		have := domain.IndexSpec{
			Name:      spec.Name,
			Dimension: int(params.GetSize()),
			Metric:    fromDistance(params.GetDistance()),
		}
		if err := have.Conflicts(spec); err != nil {
			return nil, err
		}
	} else {
		p.logger.Info("creating qdrant collection", "collection", spec.Name, "dimension", spec.Dimension, "metric", spec.Metric)
		err := p.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: spec.Name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(spec.Dimension),
				Distance: toDistance(spec.Metric),
			}),
		})
		if err != nil {
			return nil, remote.Classify("create collection", err)
		}
		_, err = p.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: spec.Name,
			FieldName:      domain.MetaDocumentID,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return nil, remote.Classify("create payload index", err)
		}
	}

	return newIndex(p.client, spec), nil
}

func (p *Provisioner) Close() error {
	return p.client.Close()
}

type Index struct {
	client pointsClient
	spec   domain.IndexSpec
}

func newIndex(client pointsClient, spec domain.IndexSpec) *Index {
	return &Index{client: client, spec: spec}
}

// PointID maps a chunk key onto a stable UUID point id.
func PointID(key string) string {
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

func (i *Index) Upsert(ctx context.Context, records []domain.VectorRecord) (int, error) {
	if err := i.spec.CheckRecords(records); err != nil {
		return 0, err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for n, r := range records {
		points[n] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: toPayload(r.ID, r.Metadata),
		}
	}

	_, err := i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.spec.Name,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, remote.Classify("upsert", err)
	}
	return len(records), nil
}

func (i *Index) Query(ctx context.Context, embedding []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	if err := i.spec.CheckVector(embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrValidation, topK)
	}

	req := &qdrant.QueryPoints{
		CollectionName: i.spec.Name,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         documentFilter(filter),
	}

	resp, err := i.client.Query(ctx, req)
	if err != nil {
		return nil, remote.Classify("query", err)
	}

	matches := make([]domain.Match, 0, len(resp))
	for _, sp := range resp {
		key, meta := fromPayload(sp.GetPayload())
		if key == "" {
			key = sp.GetId().GetUuid()
		}
		matches = append(matches, domain.Match{
			ID:       key,
			Score:    scoreOf(i.spec.Metric, sp.GetScore()),
			Metadata: meta,
		})
	}
	return matches, nil
}

// scoreOf turns Qdrant's euclidean distance into a higher-is-better score.
func scoreOf(m domain.Metric, s float32) float64 {
	if m == domain.MetricEuclidean {
		return -float64(s)
	}
	return float64(s)
}

func (i *Index) Stats(ctx context.Context) (domain.IndexStats, error) {
	count, err := i.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: i.spec.Name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return domain.IndexStats{}, remote.Classify("count", err)
	}
	return domain.IndexStats{
		Name:        i.spec.Name,
		Backend:     "qdrant",
		Dimension:   i.spec.Dimension,
		Metric:      i.spec.Metric,
		VectorCount: int64(count),
	}, nil
}

func (i *Index) Spec() domain.IndexSpec {
	return i.spec
}

func documentFilter(f domain.Filter) *qdrant.Filter {
	if f.IsZero() {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchKeyword(domain.MetaDocumentID, f.DocumentID),
		},
	}
}

func toPayload(key string, m domain.ChunkMetadata) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		payloadChunkKey:       qdrant.NewValueString(key),
		domain.MetaDocumentID: qdrant.NewValueString(m.DocumentID),
		domain.MetaChunkIndex: qdrant.NewValueInt(int64(m.ChunkIndex)),
		domain.MetaText:       qdrant.NewValueString(m.Text),
	}
}

func fromPayload(p map[string]*qdrant.Value) (string, domain.ChunkMetadata) {
	meta := domain.ChunkMetadata{
		DocumentID: p[domain.MetaDocumentID].GetStringValue(),
		Text:       p[domain.MetaText].GetStringValue(),
	}
	if v := p[domain.MetaChunkIndex]; v != nil {
		switch v.GetKind().(type) {
		case *qdrant.Value_DoubleValue:
			meta.ChunkIndex = int(v.GetDoubleValue())
		default:
			meta.ChunkIndex = int(v.GetIntegerValue())
		}
	}
	return p[payloadChunkKey].GetStringValue(), meta
}

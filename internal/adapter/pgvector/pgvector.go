// Package pgvector stores chunk vectors in PostgreSQL with the pgvector
// extension. Each index is one table.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"pdfrag/internal/adapter/remote"
	"pdfrag/internal/domain"
	"pdfrag/internal/port"
)

const tablePrefix = "pdfrag_"

type Provisioner struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewProvisioner(ctx context.Context, dsn string, logger *slog.Logger) (*Provisioner, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is not set", domain.ErrConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres pool: %v", domain.ErrConfiguration, err)
	}
	return &Provisioner{pool: pool, logger: logger}, nil
}

// TableName maps an index name onto a safe table name.
func TableName(index string) string {
	var b strings.Builder
	b.WriteString(tablePrefix)
	for _, r := range strings.ToLower(index) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// distanceOp returns the pgvector operator for a metric and the sign that
// turns its distance into a higher-is-better score.
func distanceOp(m domain.Metric) (op string, score string) {
	switch m {
	case domain.MetricEuclidean:
		return "<->", "-(embedding <-> $1)"
	case domain.MetricDotProduct:
		// <#> is the negative inner product.
		return "<#>", "-(embedding <#> $1)"
	default:
		return "<=>", "1 - (embedding <=> $1)"
	}
}

func (p *Provisioner) EnsureIndex(ctx context.Context, spec domain.IndexSpec) (port.VectorIndex, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Metric == "" {
		spec.Metric = domain.MetricCosine
	}
	table := TableName(spec.Name)
	ident := pgx.Identifier{table}.Sanitize()

	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return nil, classify("create extension", err)
	}

	var dim int
	err := p.pool.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute WHERE attrelid = to_regclass($1) AND attname = 'embedding'`,
		table,
	).Scan(&dim)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		p.logger.Info("creating pgvector table", "table", table, "dimension", spec.Dimension)
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id text PRIMARY KEY,
	document_id text NOT NULL,
	chunk_index integer NOT NULL,
	text text NOT NULL,
	embedding vector(%d) NOT NULL
)`, ident, spec.Dimension)
		if _, err := p.pool.Exec(ctx, ddl); err != nil {
			return nil, classify("create table", err)
		}
		idx := pgx.Identifier{table + "_document_id_idx"}.Sanitize()
		if _, err := p.pool.Exec(ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (document_id)", idx, ident)); err != nil {
			return nil, classify("create index", err)
		}
	case err != nil:
		return nil, classify("describe table", err)
	default:
		have := domain.IndexSpec{Name: spec.Name, Dimension: dim}
		if err := have.Conflicts(spec); err != nil {
			return nil, err
		}
	}

	return &Index{pool: p.pool, spec: spec, table: ident}, nil
}

func (p *Provisioner) Close() error {
	p.pool.Close()
	return nil
}

type Index struct {
	pool  *pgxpool.Pool
	spec  domain.IndexSpec
	table string
}

// Upsert writes the batch in a single transaction.
func (i *Index) Upsert(ctx context.Context, records []domain.VectorRecord) (int, error) {
	if err := i.spec.CheckRecords(records); err != nil {
		return 0, err
	}

	tx, err := i.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, classify("begin", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`INSERT INTO %s (id, document_id, chunk_index, text, embedding)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET document_id = EXCLUDED.document_id, chunk_index = EXCLUDED.chunk_index,
	text = EXCLUDED.text, embedding = EXCLUDED.embedding`, i.table)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(stmt, r.ID, r.Metadata.DocumentID, r.Metadata.ChunkIndex, r.Metadata.Text, pgv.NewVector(r.Embedding))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, classify("upsert", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, classify("commit", err)
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

	op, score := distanceOp(i.spec.Metric)
	args := []any{pgv.NewVector(embedding), topK}
	where := ""
	if !filter.IsZero() {
		where = "WHERE document_id = $3"
		args = append(args, filter.DocumentID)
	}
	q := fmt.Sprintf(`SELECT id, document_id, chunk_index, text, %s AS score
FROM %s %s
ORDER BY embedding %s $1
LIMIT $2`, score, i.table, where, op)

	rows, err := i.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		var m domain.Match
		if err := rows.Scan(&m.ID, &m.Metadata.DocumentID, &m.Metadata.ChunkIndex, &m.Metadata.Text, &m.Score); err != nil {
			return nil, classify("scan", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query", err)
	}
	return matches, nil
}

func (i *Index) Stats(ctx context.Context) (domain.IndexStats, error) {
	var count int64
	if err := i.pool.QueryRow(ctx, "SELECT count(*) FROM "+i.table).Scan(&count); err != nil {
		return domain.IndexStats{}, classify("count", err)
	}
	return domain.IndexStats{
		Name:        i.spec.Name,
		Backend:     "pgvector",
		Dimension:   i.spec.Dimension,
		Metric:      i.spec.Metric,
		VectorCount: count,
	}, nil
}

func (i *Index) Spec() domain.IndexSpec {
	return i.spec
}

// classify maps Postgres error classes onto domain kinds and defers the rest
// to the shared transport classifier.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22":
			return fmt.Errorf("%w: %s: %s", domain.ErrValidation, op, pgErr.Message)
		case "08", "53", "57":
			return fmt.Errorf("%w: %s: %s", domain.ErrUnavailable, op, pgErr.Message)
		case "28", "42":
			return fmt.Errorf("%w: %s: %s", domain.ErrConfiguration, op, pgErr.Message)
		}
	}
	if pgconn.Timeout(err) {
		return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, op, err)
	}
	return remote.Classify(op, err)
}

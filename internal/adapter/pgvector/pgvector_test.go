package pgvector

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"pdfrag/internal/domain"
)

func TestTableName(t *testing.T) {
	assert.Equal(t, "pdfrag_docs", TableName("docs"))
	assert.Equal(t, "pdfrag_pdf_rag_index", TableName("pdf-rag-index"))
	assert.Equal(t, "pdfrag_a___b", TableName("A\"; b"))
	assert.Equal(t, "pdfrag__", TableName("é"))
}

func TestDistanceOp(t *testing.T) {
	op, score := distanceOp(domain.MetricCosine)
	assert.Equal(t, "<=>", op)
	assert.Contains(t, score, "1 -")

	op, score = distanceOp(domain.MetricEuclidean)
	assert.Equal(t, "<->", op)
	assert.Contains(t, score, "-(")

	op, _ = distanceOp(domain.MetricDotProduct)
	assert.Equal(t, "<#>", op)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify("q", &pgconn.PgError{Code: "22000", Message: "bad"}), domain.ErrValidation)
	assert.ErrorIs(t, classify("q", &pgconn.PgError{Code: "08006", Message: "gone"}), domain.ErrUnavailable)
	assert.ErrorIs(t, classify("q", &pgconn.PgError{Code: "57P01", Message: "shutdown"}), domain.ErrUnavailable)
	assert.ErrorIs(t, classify("q", &pgconn.PgError{Code: "42P01", Message: "no table"}), domain.ErrConfiguration)
	assert.ErrorIs(t, classify("q", context.DeadlineExceeded), domain.ErrTimeout)

	other := errors.New("odd")
	assert.ErrorIs(t, classify("q", other), other)
}

func TestNewProvisionerRequiresDSN(t *testing.T) {
	_, err := NewProvisioner(context.Background(), "", nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pdfrag/internal/domain"
)

func TestClassifyGRPC(t *testing.T) {
	tests := []struct {
		code codes.Code
		kind error
	}{
		{codes.Unavailable, domain.ErrUnavailable},
		{codes.ResourceExhausted, domain.ErrRateLimited},
		{codes.DeadlineExceeded, domain.ErrTimeout},
		{codes.InvalidArgument, domain.ErrValidation},
		{codes.Unauthenticated, domain.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := Classify("upsert", status.Error(tt.code, "boom"))
			assert.ErrorIs(t, err, tt.kind)
			assert.Contains(t, err.Error(), "upsert")
		})
	}
}

func TestClassifyRateLimitIsTyped(t *testing.T) {
	err := Classify("query", status.Error(codes.ResourceExhausted, "slow down"))
	var rl *domain.RateLimitError
	assert.True(t, errors.As(err, &rl))
	assert.True(t, domain.Retryable(err))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyContextAndTransport(t *testing.T) {
	assert.ErrorIs(t, Classify("q", context.DeadlineExceeded), domain.ErrTimeout)
	assert.ErrorIs(t, Classify("q", context.Canceled), context.Canceled)

	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	assert.ErrorIs(t, Classify("q", refused), domain.ErrUnavailable)
	assert.ErrorIs(t, Classify("q", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF)), domain.ErrUnavailable)
	assert.ErrorIs(t, Classify("q", timeoutErr{}), domain.ErrTimeout)

	plain := errors.New("something odd")
	assert.ErrorIs(t, Classify("q", plain), plain)
	assert.False(t, domain.Retryable(Classify("q", plain)))
}

func TestClassifyIgnoresMessageText(t *testing.T) {
	for _, msg := range []string{
		"failed to upsert 4003 vectors",
		"index invalid-contracts not found",
		"HTTP 429 Too Many Requests",
		"401 Unauthorized",
	} {
		err := errors.New(msg)
		got := Classify("q", err)
		assert.ErrorIs(t, got, err, msg)
		assert.False(t, errors.Is(got, domain.ErrValidation), msg)
		assert.False(t, errors.Is(got, domain.ErrRateLimited), msg)
		assert.False(t, errors.Is(got, domain.ErrConfiguration), msg)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		kind error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusInternalServerError, domain.ErrUnavailable},
		{http.StatusServiceUnavailable, domain.ErrUnavailable},
		{http.StatusGatewayTimeout, domain.ErrTimeout},
		{http.StatusUnauthorized, domain.ErrConfiguration},
		{http.StatusForbidden, domain.ErrConfiguration},
		{http.StatusNotFound, domain.ErrConfiguration},
		{http.StatusBadRequest, domain.ErrValidation},
		{http.StatusUnprocessableEntity, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			assert.ErrorIs(t, ClassifyStatus("op", tt.code, 0, errors.New("boom")), tt.kind)
		})
	}

	err := ClassifyStatus("op", http.StatusTooManyRequests, 3*time.Second, errors.New("slow"))
	wait, ok := domain.RetryAfter(err)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, wait)

	conflict := errors.New("conflict")
	assert.ErrorIs(t, ClassifyStatus("op", http.StatusConflict, 0, conflict), conflict)
	assert.False(t, domain.Retryable(ClassifyStatus("op", http.StatusConflict, 0, conflict)))
}

func TestClassifyKeepsExistingKind(t *testing.T) {
	err := fmt.Errorf("%w: bad vector", domain.ErrValidation)
	assert.Same(t, err, Classify("q", err))
	assert.Nil(t, Classify("q", nil))
}

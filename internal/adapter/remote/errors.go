// Package remote maps transport errors from hosted index backends onto the
// domain error kinds.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pdfrag/internal/domain"
)

// Classify wraps err with the domain kind it belongs to. Errors that already
// carry a domain kind are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if hasKind(err) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return fromCode(op, st.Code(), st.Message(), err)
	}
	return fromTransport(op, err)
}

func hasKind(err error) bool {
	for _, kind := range []error{
		domain.ErrValidation,
		domain.ErrUnavailable,
		domain.ErrRateLimited,
		domain.ErrTimeout,
		domain.ErrConfiguration,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func fromCode(op string, code codes.Code, msg string, err error) error {
	switch code {
	case codes.Unavailable, codes.Aborted, codes.Internal:
		return fmt.Errorf("%w: %s: %s", domain.ErrUnavailable, op, msg)
	case codes.ResourceExhausted:
		return &domain.RateLimitError{Err: fmt.Errorf("%s: %s", op, msg)}
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s: %s", domain.ErrTimeout, op, msg)
	case codes.InvalidArgument, codes.OutOfRange:
		return fmt.Errorf("%w: %s: %s", domain.ErrValidation, op, msg)
	case codes.Unauthenticated, codes.PermissionDenied, codes.NotFound, codes.FailedPrecondition:
		return fmt.Errorf("%w: %s: %s", domain.ErrConfiguration, op, msg)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// fromTransport recognises dial and read failures by type.
func fromTransport(op string, err error) error {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, op, err)
	case netErr != nil, errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// ClassifyStatus maps an HTTP status code onto a domain kind. retryAfter is
// carried on rate-limit errors.
func ClassifyStatus(op string, code int, retryAfter time.Duration, err error) error {
	switch {
	case code == http.StatusTooManyRequests:
		return &domain.RateLimitError{RetryAfter: retryAfter, Err: fmt.Errorf("%s: %w", op, err)}
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, op, err)
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusNotFound:
		return fmt.Errorf("%w: %s: %v", domain.ErrConfiguration, op, err)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s: %v", domain.ErrValidation, op, err)
	case code >= 500:
		return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

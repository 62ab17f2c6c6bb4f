package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Adapters wrap backend failures with one of these so callers
// can branch with errors.Is without knowing the backend.
var (
	ErrValidation    = errors.New("validation error")
	ErrEmptyDocument = errors.New("empty document")
	ErrExtraction    = errors.New("text extraction failed")
	ErrUnavailable   = errors.New("backend unavailable")
	ErrRateLimited   = errors.New("rate limited")
	ErrTimeout       = errors.New("timeout")
	ErrConfiguration = errors.New("configuration error")
)

// RateLimitError is returned when an embedder, generator or index throttles us.
// RetryAfter is zero when the backend gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := ErrRateLimited.Error()
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("%s (retry after %s)", msg, e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// PartialWriteError reports a batched upsert that stopped or failed part way.
// Written counts records in batches that were committed.
type PartialWriteError struct {
	Written int
	Total   int
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("upsert wrote %d of %d records: %v", e.Written, e.Total, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err is a kind the caller may retry with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout)
}

// RetryAfter extracts the backend's retry hint, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}

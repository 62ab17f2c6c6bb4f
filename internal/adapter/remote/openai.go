package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"golang.org/x/time/rate"

	"pdfrag/internal/domain"
)

// ClassifyAPI maps errors from OpenAI-compatible HTTP APIs onto domain kinds.
// A 429 becomes *domain.RateLimitError carrying the Retry-After hint.
func ClassifyAPI(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return Classify(op, err)
	}

	var retryAfter time.Duration
	if apiErr.Response != nil {
		retryAfter = ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"), time.Now())
	}
	return ClassifyStatus(op, apiErr.StatusCode, retryAfter, err)
}

// ParseRetryAfter accepts both delta-seconds and HTTP-date forms. Unparseable
// or past values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// NewLimiter builds a client-side token bucket. rps <= 0 disables throttling.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Wait blocks on the limiter, reporting a cancelled or expired context as a
// domain timeout.
func Wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		if ctx.Err() == context.Canceled {
			return ctx.Err()
		}
		return fmt.Errorf("%w: rate limiter: %v", domain.ErrTimeout, err)
	}
	return nil
}

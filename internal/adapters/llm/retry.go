package llm

import (
	"context"
	"time"

	"github.com/draftwell/draftwell/internal/core/domain"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
)

// withRetry runs fn with bounded exponential backoff on transient provider
// errors (rate limit, 5xx, timeout). Non-transient errors and context
// cancellation return immediately; retries are never implicit or unbounded.
func withRetry(ctx context.Context, fn func() (*domain.Completion, error)) (*domain.Completion, error) {
	var lastErr error
	backoff := defaultBackoffBase
	for attempt := 0; attempt < defaultMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !domain.Transient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// permanentError wraps provider failures that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable for withRetry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// withRetry runs fn against the provider with a per-attempt timeout and
// exponential backoff. Transient failures are retried up to maxAttempts;
// exhaustion surfaces as ErrProviderTimeout so callers can tell a hung
// provider from a decline. Permanent failures return immediately.
func withRetry(ctx context.Context, logger *zap.Logger, op string, maxAttempts int, timeout time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		lastErr = err
		logger.Warn("provider call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
			zap.Error(err))

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrProviderTimeout, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrProviderTimeout, op, maxAttempts, lastErr)
}

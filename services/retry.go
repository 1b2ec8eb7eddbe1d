package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Permanent marks an error that Retry must not retry
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op up to attempts times with a fixed delay between tries.
// It returns nil on the first success, otherwise the last error. A
// Permanent error or a cancelled ctx ends the loop early.
func Retry(ctx context.Context, logger *zap.Logger, name string, attempts int, delay time.Duration, op func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	attempt := 0
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	return backoff.RetryNotify(func() error {
		attempt++
		return op(ctx)
	}, b, func(err error, next time.Duration) {
		logger.Warn("Operation failed, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("retry_in", next),
			zap.Error(err))
	})
}

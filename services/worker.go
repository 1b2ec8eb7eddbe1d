package services

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrWorkerTimeout is returned when a bounded worker does not finish in time
var ErrWorkerTimeout = errors.New("worker did not complete in time")

// RunBounded runs fn on its own goroutine and waits at most timeout for it.
// On timeout the worker's context is cancelled and the worker is abandoned;
// its eventual result is discarded. A panic in fn is returned as an error.
func RunBounded(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	workCtx, cancel := context.WithCancel(ctx)

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("worker panic: %v", r)
			}
		}()
		done <- fn(workCtx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		cancel()
		return err
	case <-timer.C:
		cancel()
		return ErrWorkerTimeout
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

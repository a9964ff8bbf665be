package service

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/timmy/deepresearch/internal/logger"
)

// Backoff for archive and export writes. Tests shorten retryBase.
var (
	retryBase       = 500 * time.Millisecond
	retryMaxRetries uint64 = 3
)

// withRetry runs task with Fibonacci backoff. Context errors are permanent.
func withRetry(ctx context.Context, task func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(retryMaxRetries, retry.NewFibonacci(retryBase))
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := task(ctx)
		if err == nil || !shouldRetry(err) {
			return err
		}
		logger.CtxWarn(ctx, "Attempt %d failed, retrying: %v", attempt, err)
		return retry.RetryableError(err)
	})
	if err != nil {
		logger.CtxWarn(ctx, "%v, gave up after %d attempts", err, attempt)
	}
	return err
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !errors.Is(err, ErrConfiguration)
}

package worker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how often and how fast an operation is retried.
type RetryPolicy struct {
	Attempts uint
	Initial  time.Duration
	Max      time.Duration
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	return b
}

// Retry runs op until it succeeds, returns a backoff.Permanent error, runs
// out of attempts, or ctx is done.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	return backoff.Retry(ctx, func() (T, error) {
		return op(ctx)
	}, backoff.WithBackOff(p.backOff()), backoff.WithMaxTries(attempts))
}

package fetcher

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy is applied uniformly to every platform fetch. Attempts are
// spaced by BackoffBase doubling on each retry.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	Retryable   map[Kind]bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BackoffBase: 500 * time.Millisecond,
		Retryable: map[Kind]bool{
			KindTimeout:    true,
			KindConnection: true,
			KindHTTP:       true,
		},
	}
}

// ShouldRetry reports whether err is transient under this policy. Generic
// HTTP errors only qualify for 5xx statuses.
func (p RetryPolicy) ShouldRetry(err error) bool {
	kind, ok := KindOf(err)
	if !ok || !p.Retryable[kind] {
		return false
	}
	if kind == KindHTTP {
		var fe *Error
		if errors.As(err, &fe) && fe.Status < 500 {
			return false
		}
	}
	return true
}

// Delay returns the wait before retry number n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return p.BackoffBase << uint(n-1)
}

// Do runs fn until it succeeds, fails permanently, or the attempt budget is
// spent. It returns the number of retries performed.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(p.Delay(i))
			select {
			case <-ctx.Done():
				timer.Stop()
				return i - 1, ctx.Err()
			case <-timer.C:
			}
		}

		err = fn(ctx)
		if err == nil || !p.ShouldRetry(err) || ctx.Err() != nil {
			return i, err
		}
	}
	return attempts - 1, err
}

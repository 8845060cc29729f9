package gateway

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// limiter bounds per-tool load: a weighted semaphore caps in-flight calls and
// an optional token bucket caps call rate. Acquisition honors the caller's
// context so a deadline is never waited past.
type limiter struct {
	sem  *semaphore.Weighted
	rate *rate.Limiter
}

func newLimiter(maxConcurrent int64, limit rate.Limit, burst int) *limiter {
	l := &limiter{sem: semaphore.NewWeighted(maxConcurrent)}
	if limit > 0 {
		l.rate = rate.NewLimiter(limit, burst)
	}
	return l
}

func (l *limiter) acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if l.rate != nil {
		if err := l.rate.Wait(ctx); err != nil {
			l.sem.Release(1)
			return err
		}
	}
	return nil
}

func (l *limiter) release() {
	l.sem.Release(1)
}

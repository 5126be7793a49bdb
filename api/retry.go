package api

import (
	"context"
	"time"
)

// RetryPolicy controls how many times a fetch is attempted, how long to wait
// between attempts and whether exhaustion aborts the caller or may be skipped
type RetryPolicy struct {
	MaxRetries int
	Backoff    func(retry int) time.Duration
	Skippable  bool
}

// ThreadPolicy is used for single-source fetches: retry hard, then fail
func ThreadPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Backoff:    LinearBackoff(time.Second),
		Skippable:  false,
	}
}

// ListingPolicy is used for one of several listing sources: one attempt,
// failure only skips that source
func ListingPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 0,
		Skippable:  true,
	}
}

// LinearBackoff waits retry*step before the given retry (1-based)
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(retry int) time.Duration {
		return time.Duration(retry) * step
	}
}

func (p RetryPolicy) delay(retry int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(retry)
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

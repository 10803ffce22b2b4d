package retry

import (
	"context"
	"time"
)

// Policy is a reusable retry schedule shared by the notification
// adapters: a bounded number of attempts, a backoff curve and a
// predicate deciding which errors are worth another attempt.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     Backoff
	Retryable   func(error) bool
}

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	BackoffExponential Backoff = iota
	BackoffLinear
	BackoffFixed
)

// DelayFor returns the wait before the given attempt (1-based) retries.
func (p Policy) DelayFor(attempt int) time.Duration {
	switch p.Backoff {
	case BackoffLinear:
		return p.Delay * time.Duration(attempt)
	case BackoffFixed:
		return p.Delay
	default:
		d := p.Delay
		for i := 1; i < attempt; i++ {
			d *= 2
		}
		return d
	}
}

// Do runs fn up to MaxAttempts times, sleeping between attempts. It
// returns the attempt count alongside the final error so callers can
// report delivery outcomes. A non-retryable error stops immediately.
func (p Policy) Do(ctx context.Context, fn func() error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return attempt, nil
		}

		if p.Retryable != nil && !p.Retryable(err) {
			return attempt, err
		}
		if attempt == attempts {
			return attempt, err
		}

		select {
		case <-time.After(p.DelayFor(attempt)):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}
	return attempts, err
}

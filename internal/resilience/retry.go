// Package resilience wraps external service calls with retry, transient
// error classification, circuit breaking, and a dead-letter queue for
// failed audit writes.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Retry controls backoff behavior for one class of calls.
type Retry struct {
	// Attempts is the total number of tries including the first.
	// A value of 1 means no retries. Default: 4.
	Attempts int

	// BaseDelay is the wait before the first retry. Default: 400ms.
	BaseDelay time.Duration

	// MaxDelay caps any computed or server-requested wait. Default: 20s.
	MaxDelay time.Duration

	// Growth scales the delay after each attempt. Default: 2.0.
	Growth float64

	// Jitter spreads each delay by ±Jitter fraction. Default: 0.2.
	Jitter float64

	// Retryable overrides the default IsTransient check when set.
	Retryable func(error) bool

	// OnAttempt is invoked before each backoff sleep with the attempt
	// number just failed and its error.
	OnAttempt func(attempt int, err error)
}

// APIRetry returns the retry profile used for provider and store calls.
func APIRetry() Retry {
	return Retry{
		Attempts:  4,
		BaseDelay: 400 * time.Millisecond,
		MaxDelay:  20 * time.Second,
		Growth:    2.0,
		Jitter:    0.2,
	}
}

func (r Retry) withDefaults() Retry {
	if r.Attempts <= 0 {
		r.Attempts = 4
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = 400 * time.Millisecond
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 20 * time.Second
	}
	if r.Growth <= 0 {
		r.Growth = 2.0
	}
	if r.Jitter < 0 {
		r.Jitter = 0
	}
	return r
}

// delay computes the wait before the next try. A server-requested
// Retry-After in err overrides the exponential schedule; both are capped
// at MaxDelay.
func (r Retry) delay(attempt int, err error) time.Duration {
	if after, ok := retryAfterHint(err); ok {
		if after > r.MaxDelay {
			return r.MaxDelay
		}
		return after
	}

	d := float64(r.BaseDelay) * math.Pow(r.Growth, float64(attempt))
	if d > float64(r.MaxDelay) {
		d = float64(r.MaxDelay)
	}
	if r.Jitter > 0 {
		spread := d * r.Jitter
		d += (rand.Float64()*2 - 1) * spread
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, exhausts its attempts, or returns a
// non-retryable error. Context cancellation stops retries immediately.
func Do(ctx context.Context, r Retry, fn func(context.Context) error) error {
	_, err := DoVal(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that return a value.
func DoVal[T any](ctx context.Context, r Retry, fn func(context.Context) (T, error)) (T, error) {
	r = r.withDefaults()

	retryable := r.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < r.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !retryable(lastErr) {
			return zero, lastErr
		}
		if attempt >= r.Attempts-1 {
			break
		}

		if r.OnAttempt != nil {
			r.OnAttempt(attempt+1, lastErr)
		}

		timer := time.NewTimer(r.delay(attempt, lastErr))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// Logged returns an OnAttempt hook that records each retry.
func Logged(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) Retry {
	return Retry{
		Attempts:  attempts,
		BaseDelay: 1 * time.Millisecond,
		MaxDelay:  10 * time.Millisecond,
		Growth:    2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), APIRetry(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return MarkTransient(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return MarkTransient(errors.New("always fails"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonRetryableError_NoRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return errors.New("permanent error: bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry for permanent errors), got %d", calls)
	}
}

func TestDo_ContextCancelledStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	r := Retry{Attempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Growth: 2.0}

	err := Do(ctx, r, func(_ context.Context) error {
		calls++
		cancel()
		return MarkTransient(errors.New("fails"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation stopped retries, got %d", calls)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", MarkTransient(errors.New("temporary"), 429)
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "done" {
		t.Errorf("expected %q, got %q", "done", val)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_OnAttemptCallback(t *testing.T) {
	var attempts []int
	r := fastRetry(3)
	r.OnAttempt = func(attempt int, _ error) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), r, func(_ context.Context) error {
		return MarkTransient(errors.New("fails"), 503)
	})

	if len(attempts) != 2 {
		t.Fatalf("expected 2 callbacks (no sleep after the last attempt), got %d", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("unexpected attempt numbers: %v", attempts)
	}
}

func TestDo_CustomRetryable(t *testing.T) {
	var calls int
	r := fastRetry(3)
	r.Retryable = func(err error) bool { return err.Error() == "retry me" }

	_ = Do(context.Background(), r, func(_ context.Context) error {
		calls++
		return errors.New("retry me")
	})
	if calls != 3 {
		t.Errorf("expected 3 calls with custom retryable, got %d", calls)
	}
}

func TestDelay_HonorsRetryAfterHint(t *testing.T) {
	r := Retry{BaseDelay: 1 * time.Millisecond, MaxDelay: 5 * time.Second, Growth: 2.0}.withDefaults()

	err := MarkTransientAfter(errors.New("rate limited"), 429, 2*time.Second)
	if got := r.delay(0, err); got != 2*time.Second {
		t.Errorf("expected server-requested 2s delay, got %v", got)
	}

	// Hint above the cap is clamped.
	err = MarkTransientAfter(errors.New("rate limited"), 429, time.Minute)
	if got := r.delay(0, err); got != 5*time.Second {
		t.Errorf("expected delay clamped to 5s, got %v", got)
	}
}

func TestDelay_ExponentialGrowthCapped(t *testing.T) {
	r := Retry{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Growth: 2.0}.withDefaults()
	plain := errors.New("no hint")

	if got := r.delay(0, plain); got != 100*time.Millisecond {
		t.Errorf("attempt 0: expected 100ms, got %v", got)
	}
	if got := r.delay(1, plain); got != 200*time.Millisecond {
		t.Errorf("attempt 1: expected 200ms, got %v", got)
	}
	if got := r.delay(5, plain); got != 300*time.Millisecond {
		t.Errorf("attempt 5: expected cap of 300ms, got %v", got)
	}
}

func TestDelay_JitterStaysInRange(t *testing.T) {
	r := Retry{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Growth: 2.0, Jitter: 0.5}.withDefaults()
	plain := errors.New("no hint")

	for i := 0; i < 50; i++ {
		d := r.delay(0, plain)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay %v outside [50ms, 150ms]", d)
		}
	}
}

package cache

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// noDelay is a policy that retries without waiting.
func noDelay(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second}

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{6, 3200 * time.Millisecond},
		{7, 5 * time.Second},
		{64, 5 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Backoff(tt.retry); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestRetryPolicy_BackoffUncapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second}
	if got := p.Backoff(200); got <= 0 {
		t.Errorf("Backoff(200) = %v, want a positive duration", got)
	}
}

func TestJitter_Bounds(t *testing.T) {
	if got := jitter(0); got != 0 {
		t.Errorf("jitter(0) = %v, want 0", got)
	}
	for i := 0; i < 1000; i++ {
		got := jitter(10 * time.Millisecond)
		if got < 0 || got > 10*time.Millisecond {
			t.Fatalf("jitter(10ms) = %v, want within [0, 10ms]", got)
		}
	}
}

func TestDo_Success(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), noDelay(3), "test", func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Do() = %q, want %q", got, "ok")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), noDelay(3), "test", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, io.EOF
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Do() = %d, want 42", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	for _, attempts := range []int{1, 2, 5} {
		calls := 0
		_, err := Do(context.Background(), noDelay(attempts), "test", func(ctx context.Context) (struct{}, error) {
			calls++
			return struct{}{}, &RemoteError{Op: "get", Kind: KindTimeout, Err: context.DeadlineExceeded}
		})
		if !errors.Is(err, ErrRetryExhausted) {
			t.Errorf("attempts=%d: Do() error = %v, want ErrRetryExhausted", attempts, err)
		}
		if Classify(err) != KindTimeout {
			t.Errorf("attempts=%d: Classify() = %v, want %v", attempts, Classify(err), KindTimeout)
		}
		if calls != attempts {
			t.Errorf("attempts=%d: calls = %d", attempts, calls)
		}
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, _ = Do(context.Background(), noDelay(0), "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, io.EOF
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_PermanentNotRetried(t *testing.T) {
	calls := 0
	permanent := &RemoteError{Op: "get", Kind: KindAuth, Err: errors.New("NOAUTH")}
	_, err := Do(context.Background(), noDelay(5), "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("Do() error = %v, want %v", err, permanent)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("permanent errors should not report exhaustion")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Minute, MaxDelay: time.Minute}

	orig := jitter
	jitter = func(d time.Duration) time.Duration { return d }
	defer func() { jitter = orig }()

	calls := 0
	start := time.Now()
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, policy, "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, io.EOF
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Do() took %v after cancel", elapsed)
	}
}

func TestDo_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, noDelay(3), "test", func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestDo_AttemptTimeout(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, AttemptTimeout: 10 * time.Millisecond}

	calls := 0
	_, err := Do(context.Background(), policy, "test", func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Do() error = %v, want ErrRetryExhausted", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want wrapped DeadlineExceeded", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDo_UsesJitteredBackoff(t *testing.T) {
	var seen []time.Duration
	orig := jitter
	jitter = func(d time.Duration) time.Duration {
		seen = append(seen, d)
		return 0
	}
	defer func() { jitter = orig }()

	policy := RetryPolicy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond}
	_, _ = Do(context.Background(), policy, "test", func(ctx context.Context) (int, error) {
		return 0, io.EOF
	})

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}
	if len(seen) != len(want) {
		t.Fatalf("jitter called %d times, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("backoff ceiling %d = %v, want %v", i+1, seen[i], want[i])
		}
	}
}

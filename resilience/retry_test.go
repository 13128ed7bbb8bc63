package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	errFatal := errors.New("fatal")
	tests := []struct {
		name      string
		cfg       RetryConfig
		failures  int
		failWith  error
		wantCalls int
		wantErr   error
	}{
		{"first attempt", fastConfig(3), 0, nil, 1, nil},
		{"recovers", fastConfig(3), 2, errTransient, 3, nil},
		{"exhausted", fastConfig(2), 5, errTransient, 2, errTransient},
		{
			name: "non-transient stops",
			cfg: RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond,
				RetryIf: func(err error) bool { return errors.Is(err, errTransient) }},
			failures: 5, failWith: errFatal, wantCalls: 1, wantErr: errFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts []int
			got, err := Retry(context.Background(), tt.cfg, func(attempt int) (string, error) {
				attempts = append(attempts, attempt)
				if len(attempts) <= tt.failures {
					return "", tt.failWith
				}
				return "ok", nil
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got != "ok" {
				t.Errorf("result = %q", got)
			}
			if len(attempts) != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", len(attempts), tt.wantCalls)
			}
			for i, a := range attempts {
				if a != i+1 {
					t.Errorf("attempt %d numbered %d", i+1, a)
				}
			}
		})
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := RetryFunc(ctx, fastConfig(3), func(int) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) || calls != 0 {
		t.Fatalf("err = %v calls = %d", err, calls)
	}
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Minute, MaxBackoff: time.Minute}
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	err := RetryFunc(ctx, cfg, func(int) error { return errTransient })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, BackoffFactor: 2}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for i, w := range want {
		if got := Backoff(i+1, cfg); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}

	cfg.Jitter = 0.5
	for i := 0; i < 20; i++ {
		if got := Backoff(1, cfg); got < 5*time.Millisecond || got > 15*time.Millisecond {
			t.Fatalf("jittered backoff %v out of range", got)
		}
	}
}
